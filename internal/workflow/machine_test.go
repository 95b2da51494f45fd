package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rimborsi/internal/core"
)

var (
	deptIT = int64(1)
	deptHR = int64(2)
)

func quietMachine() *Machine {
	return NewMachine(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func user(id int64, role core.Role, dept *int64) core.User {
	return core.User{ID: id, Name: fmt.Sprintf("u%d", id), Role: role, DepartmentID: dept, Active: true}
}

func expenseIn(status core.ExpenseStatus) *core.Expense {
	return &core.Expense{
		ID:          101,
		Amount:      decimal.RequireFromString("42.00"),
		Description: "train ticket",
		Date:        core.NewDate(2025, 3, 10),
		OwnerID:     10,
		CategoryID:  1,
		Currency:    "EUR",
		Status:      status,
		Version:     1,
	}
}

func run(m *Machine, action Action, tr *Transition) error {
	if action == ActionApprove {
		return m.Approve(context.Background(), tr)
	}
	return m.Reject(context.Background(), tr)
}

func TestTransitionTotality(t *testing.T) {
	m := quietMachine()
	owner := user(10, core.RoleEmployee, &deptIT)
	actors := []core.User{
		user(1, core.RoleEmployee, &deptIT),
		user(2, core.RoleManager, &deptIT),
		user(3, core.RoleFinance, &deptHR),
	}

	for _, status := range []core.ExpenseStatus{core.StatusApprovedByFinance, core.StatusRejected} {
		for _, action := range Actions {
			for _, actor := range actors {
				t.Run(fmt.Sprintf("%s/%s/%s", status, action, actor.Role), func(t *testing.T) {
					e := expenseIn(status)
					err := run(m, action, &Transition{Expense: e, Owner: owner, Actor: actor})
					require.Error(t, err)
					assert.ErrorIs(t, err, core.ErrInvalidTransition)
					assert.NotErrorIs(t, err, core.ErrUnauthorized)
					assert.Contains(t, err.Error(), "terminal-status")
					assert.Contains(t, err.Error(), string(action))
					assert.Equal(t, status, e.Status)
				})
			}
		}
	}
}

func TestAuthorizationTable(t *testing.T) {
	m := quietMachine()
	owner := user(10, core.RoleEmployee, &deptIT)
	roles := []core.Role{core.RoleEmployee, core.RoleManager, core.RoleFinance}

	allowed := map[core.ExpenseStatus]core.Role{
		core.StatusPending:           core.RoleManager,
		core.StatusApprovedByManager: core.RoleFinance,
	}
	targets := map[core.ExpenseStatus]map[Action]core.ExpenseStatus{
		core.StatusPending: {
			ActionApprove: core.StatusApprovedByManager,
			ActionReject:  core.StatusRejected,
		},
		core.StatusApprovedByManager: {
			ActionApprove: core.StatusApprovedByFinance,
			ActionReject:  core.StatusRejected,
		},
	}

	cases := 0
	for _, status := range core.Statuses {
		for _, role := range roles {
			for _, action := range Actions {
				cases++
				status, role, action := status, role, action
				t.Run(fmt.Sprintf("%s/%s/%s", status, role, action), func(t *testing.T) {
					e := expenseIn(status)
					actor := user(50, role, &deptIT)
					err := run(m, action, &Transition{Expense: e, Owner: owner, Actor: actor})

					switch {
					case status.IsTerminal():
						assert.ErrorIs(t, err, core.ErrInvalidTransition)
						assert.Equal(t, status, e.Status)
					case allowed[status] == role:
						require.NoError(t, err)
						assert.Equal(t, targets[status][action], e.Status)
					default:
						assert.ErrorIs(t, err, core.ErrUnauthorized)
						assert.Equal(t, status, e.Status)
					}
				})
			}
		}
	}
	assert.Equal(t, 24, cases)
}

func TestDepartmentColocation(t *testing.T) {
	m := quietMachine()
	owner := user(10, core.RoleEmployee, &deptIT)

	for _, action := range Actions {
		e := expenseIn(core.StatusPending)
		err := run(m, action, &Transition{Expense: e, Owner: owner, Actor: user(2, core.RoleManager, &deptHR)})
		assert.ErrorIs(t, err, core.ErrUnauthorized)
		assert.Equal(t, core.StatusPending, e.Status)

		// a manager with no department never matches
		err = run(m, action, &Transition{Expense: e, Owner: owner, Actor: user(3, core.RoleManager, nil)})
		assert.ErrorIs(t, err, core.ErrUnauthorized)

		// an owner with no department cannot be approved by any manager
		err = run(m, action, &Transition{Expense: e, Owner: user(11, core.RoleEmployee, nil), Actor: user(2, core.RoleManager, &deptIT)})
		assert.ErrorIs(t, err, core.ErrUnauthorized)
	}

	// finance approval ignores departments
	e := expenseIn(core.StatusApprovedByManager)
	require.NoError(t, m.Approve(context.Background(), &Transition{Expense: e, Owner: owner, Actor: user(4, core.RoleFinance, &deptHR)}))
	assert.Equal(t, core.StatusApprovedByFinance, e.Status)
}

func TestCanTransitionTo(t *testing.T) {
	m := quietMachine()
	want := map[core.ExpenseStatus][]core.ExpenseStatus{
		core.StatusPending:           {core.StatusApprovedByManager, core.StatusRejected},
		core.StatusApprovedByManager: {core.StatusApprovedByFinance, core.StatusRejected},
	}

	for _, from := range core.Statuses {
		for _, to := range core.Statuses {
			expected := false
			for _, s := range want[from] {
				if s == to {
					expected = true
				}
			}
			first := m.CanTransitionTo(from, to)
			for i := 0; i < 3; i++ {
				assert.Equal(t, first, m.CanTransitionTo(from, to), "%s -> %s not stable", from, to)
			}
			assert.Equal(t, expected, first, "%s -> %s", from, to)
		}
	}
	assert.False(t, m.CanTransitionTo("DRAFT", core.StatusPending))
}

func TestPersistFailureLeavesExpenseUnchanged(t *testing.T) {
	m := quietMachine()
	boom := errors.New("disk full")
	e := expenseIn(core.StatusPending)
	tr := &Transition{
		Expense: e,
		Owner:   user(10, core.RoleEmployee, &deptIT),
		Actor:   user(2, core.RoleManager, &deptIT),
		Persist: func(context.Context, core.Expense) (core.Expense, error) { return core.Expense{}, boom },
	}

	err := m.Approve(context.Background(), tr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, core.StatusPending, e.Status)
	assert.Equal(t, int64(1), e.Version)
}

func TestPersistReceivesTargetStatus(t *testing.T) {
	m := quietMachine()
	var persisted []core.ExpenseStatus
	e := expenseIn(core.StatusPending)
	tr := &Transition{
		Expense: e,
		Owner:   user(10, core.RoleEmployee, &deptIT),
		Actor:   user(2, core.RoleManager, &deptIT),
		Persist: func(_ context.Context, next core.Expense) (core.Expense, error) {
			persisted = append(persisted, next.Status)
			next.Version++
			return next, nil
		},
	}

	require.NoError(t, m.Reject(context.Background(), tr))
	assert.Equal(t, []core.ExpenseStatus{core.StatusRejected}, persisted)
	assert.Equal(t, core.StatusRejected, e.Status)
	assert.Equal(t, int64(2), e.Version)
}

func TestAvailableActions(t *testing.T) {
	m := quietMachine()
	owner := user(10, core.RoleEmployee, &deptIT)

	got := m.AvailableActions(Transition{Expense: expenseIn(core.StatusPending), Owner: owner, Actor: user(2, core.RoleManager, &deptIT)})
	assert.Equal(t, []Action{ActionApprove, ActionReject}, got)

	got = m.AvailableActions(Transition{Expense: expenseIn(core.StatusPending), Owner: owner, Actor: user(3, core.RoleFinance, &deptIT)})
	assert.Empty(t, got)

	got = m.AvailableActions(Transition{Expense: expenseIn(core.StatusRejected), Owner: owner, Actor: user(3, core.RoleFinance, &deptIT)})
	assert.Empty(t, got)
}

func TestUnknownStatus(t *testing.T) {
	m := quietMachine()
	e := expenseIn("DRAFT")
	err := m.Approve(context.Background(), &Transition{Expense: e, Actor: user(2, core.RoleManager, &deptIT)})
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	err = m.Approve(context.Background(), &Transition{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestScenarioAliceThenBob(t *testing.T) {
	m := quietMachine()
	owner := user(10, core.RoleEmployee, &deptIT)
	alice := core.User{ID: 20, Name: "alice", Role: core.RoleManager, DepartmentID: &deptIT, Active: true}
	bob := core.User{ID: 30, Name: "bob", Role: core.RoleFinance, Active: true}
	e := expenseIn(core.StatusPending)

	require.NoError(t, m.Approve(context.Background(), &Transition{Expense: e, Owner: owner, Actor: alice}))
	assert.Equal(t, core.StatusApprovedByManager, e.Status)

	require.NoError(t, m.Approve(context.Background(), &Transition{Expense: e, Owner: owner, Actor: bob}))
	assert.Equal(t, core.StatusApprovedByFinance, e.Status)

	err := m.Approve(context.Background(), &Transition{Expense: e, Owner: owner, Actor: bob})
	assert.ErrorIs(t, err, core.ErrInvalidTransition)
	assert.Contains(t, err.Error(), "terminal-status")
}

func TestInactiveActor(t *testing.T) {
	m := quietMachine()
	owner := user(10, core.RoleEmployee, &deptIT)

	manager := user(2, core.RoleManager, &deptIT)
	manager.Active = false
	fin := user(3, core.RoleFinance, nil)
	fin.Active = false

	tests := []struct {
		name   string
		status core.ExpenseStatus
		actor  core.User
		want   error
	}{
		{"manager on pending", core.StatusPending, manager, core.ErrUnauthorized},
		{"finance on manager-approved", core.StatusApprovedByManager, fin, core.ErrUnauthorized},
		{"finance on finance-approved", core.StatusApprovedByFinance, fin, core.ErrInvalidTransition},
		{"manager on rejected", core.StatusRejected, manager, core.ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, action := range Actions {
				e := expenseIn(tt.status)
				err := run(m, action, &Transition{Expense: e, Owner: owner, Actor: tt.actor})
				assert.ErrorIs(t, err, tt.want, string(action))
				assert.Equal(t, tt.status, e.Status)
			}
			assert.Empty(t, m.AvailableActions(Transition{Expense: expenseIn(tt.status), Owner: owner, Actor: tt.actor}))
		})
	}

	err := run(m, ActionApprove, &Transition{Expense: expenseIn(core.StatusPending), Owner: owner, Actor: manager})
	assert.ErrorContains(t, err, "not active")
}
