package core

// ExpenseStatus is the lifecycle state of an expense.
//
// Transitions:
//
//	PENDING → APPROVED_BY_MANAGER | REJECTED
//	APPROVED_BY_MANAGER → APPROVED_BY_FINANCE | REJECTED
//	APPROVED_BY_FINANCE, REJECTED → (terminal)
type ExpenseStatus string

const (
	StatusPending           ExpenseStatus = "PENDING"
	StatusApprovedByManager ExpenseStatus = "APPROVED_BY_MANAGER"
	StatusApprovedByFinance ExpenseStatus = "APPROVED_BY_FINANCE"
	StatusRejected          ExpenseStatus = "REJECTED"
)

// Statuses lists every status in happy-path order, Rejected last.
var Statuses = []ExpenseStatus{
	StatusPending,
	StatusApprovedByManager,
	StatusApprovedByFinance,
	StatusRejected,
}

func (s ExpenseStatus) String() string {
	return string(s)
}

// IsValid returns true if s is one of the known statuses
func (s ExpenseStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusApprovedByManager, StatusApprovedByFinance, StatusRejected:
		return true
	}
	return false
}

// IsTerminal returns true for statuses with no outgoing transitions
func (s ExpenseStatus) IsTerminal() bool {
	return s == StatusApprovedByFinance || s == StatusRejected
}
