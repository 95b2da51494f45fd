package workflow

import (
	"context"
	"log/slog"

	"rimborsi/internal/core"
	applog "rimborsi/internal/log"
)

// PersistFunc stores an expense after a status change and returns the stored copy.
type PersistFunc func(ctx context.Context, e core.Expense) (core.Expense, error)

// Transition binds the data of a single workflow request.
// Expense is updated in place only when the transition succeeds.
type Transition struct {
	Expense *core.Expense
	Owner   core.User
	Actor   core.User
	Persist PersistFunc
}

// Machine dispatches workflow actions to the policy of the expense's status.
type Machine struct {
	policies map[core.ExpenseStatus]Policy
	logger   *slog.Logger
}

// NewMachine builds a machine over the default reimbursement policies.
func NewMachine(logger *slog.Logger) *Machine {
	return NewMachineWithPolicies(DefaultPolicies(), logger)
}

func NewMachineWithPolicies(policies map[core.ExpenseStatus]Policy, logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Machine{
		policies: policies,
		logger:   logger.With(applog.FieldComponent, applog.ComponentWorkflow),
	}
}

// Policy returns the policy for status.
func (m *Machine) Policy(status core.ExpenseStatus) (Policy, error) {
	p, ok := m.policies[status]
	if !ok {
		return Policy{}, core.InvalidTransition("workflow", "unknown expense status %q", status)
	}
	return p, nil
}

// Approve moves the expense one step forward in the approval pipeline.
func (m *Machine) Approve(ctx context.Context, tr *Transition) error {
	return m.apply(ctx, ActionApprove, tr)
}

// Reject moves the expense to REJECTED.
func (m *Machine) Reject(ctx context.Context, tr *Transition) error {
	return m.apply(ctx, ActionReject, tr)
}

// CanTransitionTo reports whether from has to among its valid transitions.
// It never touches an expense.
func (m *Machine) CanTransitionTo(from, to core.ExpenseStatus) bool {
	p, ok := m.policies[from]
	if !ok {
		return false
	}
	return p.CanTransitionTo(to)
}

// Check validates action against the transition without applying it and
// returns the target status. Transition legality is checked before
// authorization, so terminal statuses always report InvalidTransition.
func (m *Machine) Check(action Action, tr Transition) (core.ExpenseStatus, error) {
	op := string(action)
	if tr.Expense == nil {
		return "", core.NotFound(op, "expense missing")
	}
	p, err := m.Policy(tr.Expense.Status)
	if err != nil {
		return "", err
	}
	to, ok := p.Target(action)
	if !ok {
		if p.Terminal() {
			return "", core.InvalidTransition(op, "cannot %s a terminal-status expense (status %s)", action, p.Status)
		}
		return "", core.InvalidTransition(op, "cannot %s an expense in status %s", action, p.Status)
	}
	if !p.Authorize(tr.Actor, tr.Owner) {
		if !tr.Actor.Active {
			return "", core.Unauthorized(op, "user %d is not active", tr.Actor.ID)
		}
		return "", core.Unauthorized(op, "user %d with role %s may not %s an expense in status %s",
			tr.Actor.ID, tr.Actor.Role, action, p.Status)
	}
	return to, nil
}

// AvailableActions lists the actions the transition's actor may perform now.
func (m *Machine) AvailableActions(tr Transition) []Action {
	var out []Action
	for _, a := range Actions {
		if _, err := m.Check(a, tr); err == nil {
			out = append(out, a)
		}
	}
	return out
}

func (m *Machine) apply(ctx context.Context, action Action, tr *Transition) error {
	if tr == nil || tr.Expense == nil {
		return core.NotFound(string(action), "expense missing")
	}
	to, err := m.Check(action, *tr)
	if err != nil {
		m.logger.DebugContext(ctx, "Workflow transition refused",
			applog.FieldExpenseID, tr.Expense.ID,
			applog.FieldActorID, tr.Actor.ID,
			applog.FieldAction, action,
			applog.FieldError, err)
		return err
	}

	from := tr.Expense.Status
	next := *tr.Expense
	next.Status = to
	if tr.Persist != nil {
		saved, err := tr.Persist(ctx, next)
		if err != nil {
			return err
		}
		next = saved
	}
	*tr.Expense = next

	m.logger.InfoContext(ctx, "Expense status changed",
		applog.FieldExpenseID, next.ID,
		applog.FieldActorID, tr.Actor.ID,
		applog.FieldAction, action,
		applog.FieldStatusFrom, from,
		applog.FieldStatusTo, next.Status)
	return nil
}
