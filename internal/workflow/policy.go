// Package workflow implements the expense approval state machine.
//
// Every status owns a Policy: the statuses it may move to and the predicate an
// acting user must satisfy. Policies are immutable once built and are shared
// by all requests.
package workflow

import (
	"rimborsi/internal/core"
)

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

type (
	// Action is a workflow operation a user can request on an expense.
	Action string

	// Authorizer reports whether actor may act on an expense owned by owner.
	Authorizer func(actor, owner core.User) bool

	// Policy is the transition table and authorization rule of one status.
	Policy struct {
		Status      core.ExpenseStatus
		Transitions map[Action]core.ExpenseStatus
		Authorize   Authorizer
	}
)

// Actions lists every workflow action.
var Actions = []Action{ActionApprove, ActionReject}

// Target returns the status an action leads to, if the action is legal here.
func (p Policy) Target(a Action) (core.ExpenseStatus, bool) {
	to, ok := p.Transitions[a]
	return to, ok
}

// CanTransitionTo reports whether to is among the policy's valid transitions.
func (p Policy) CanTransitionTo(to core.ExpenseStatus) bool {
	for _, t := range p.Transitions {
		if t == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the policy has no outgoing transitions.
func (p Policy) Terminal() bool {
	return len(p.Transitions) == 0
}

// managerOfOwner allows active managers acting on expenses of their own department.
func managerOfOwner(actor, owner core.User) bool {
	return actor.Active && actor.Role == core.RoleManager && actor.InDepartment(owner.DepartmentID)
}

func finance(actor, _ core.User) bool {
	return actor.Active && actor.Role == core.RoleFinance
}

func denyAll(_, _ core.User) bool {
	return false
}

func terminal(status core.ExpenseStatus) Policy {
	return Policy{
		Status:      status,
		Transitions: map[Action]core.ExpenseStatus{},
		Authorize:   denyAll,
	}
}

// DefaultPolicies returns the reimbursement approval table.
func DefaultPolicies() map[core.ExpenseStatus]Policy {
	return map[core.ExpenseStatus]Policy{
		core.StatusPending: {
			Status: core.StatusPending,
			Transitions: map[Action]core.ExpenseStatus{
				ActionApprove: core.StatusApprovedByManager,
				ActionReject:  core.StatusRejected,
			},
			Authorize: managerOfOwner,
		},
		core.StatusApprovedByManager: {
			Status: core.StatusApprovedByManager,
			Transitions: map[Action]core.ExpenseStatus{
				ActionApprove: core.StatusApprovedByFinance,
				ActionReject:  core.StatusRejected,
			},
			Authorize: finance,
		},
		core.StatusApprovedByFinance: terminal(core.StatusApprovedByFinance),
		core.StatusRejected:          terminal(core.StatusRejected),
	}
}
