package core

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	BudgetCategory   BudgetType = "CATEGORY"
	BudgetDepartment BudgetType = "DEPARTMENT"

	WindowDaily   BudgetWindow = "DAILY"
	WindowMonthly BudgetWindow = "MONTHLY"
)

type (
	BudgetType   string
	BudgetWindow string

	// BudgetExceededEvent describes one threshold crossed by a submission.
	// It is published for alerting and never stored.
	BudgetExceededEvent struct {
		BudgetType   BudgetType
		Window       BudgetWindow
		Date         Date   // set for daily windows
		YearMonth    string // set for monthly windows, YYYY-MM
		ScopeID      int64  // category or department ID
		ScopeName    string
		UserID       int64
		ExpenseID    int64
		CurrentTotal decimal.Decimal // before the expense
		NewTotal     decimal.Decimal // after the expense
		BudgetLimit  decimal.Decimal
		Currency     string
		OccurredAt   time.Time
	}

	// StatusChangedEvent is emitted after a committed workflow transition.
	StatusChangedEvent struct {
		ExpenseID  int64
		OwnerID    int64
		ActorID    int64
		From       ExpenseStatus
		To         ExpenseStatus
		Amount     decimal.Decimal
		Currency   string
		OccurredAt time.Time
	}
)

// Period returns the budget window label: the date for daily windows,
// the year-month for monthly ones.
func (e BudgetExceededEvent) Period() string {
	if e.Window == WindowDaily {
		return e.Date.String()
	}
	return e.YearMonth
}

// Overrun returns how far the new total goes past the limit.
func (e BudgetExceededEvent) Overrun() decimal.Decimal {
	return e.NewTotal.Sub(e.BudgetLimit)
}
