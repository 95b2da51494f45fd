package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rimborsi/internal/core"
	"rimborsi/internal/services"
)

func expense(owner, category int64, amount string, day int) core.Expense {
	return core.Expense{
		Amount:      decimal.RequireFromString(amount),
		Description: "taxi",
		Date:        core.NewDate(2025, 3, day),
		OwnerID:     owner,
		CategoryID:  category,
		Currency:    "EUR",
		Status:      core.StatusPending,
	}
}

func TestSaveExpenseVersionGuard(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	e, err := s.SaveExpense(ctx, expense(1, 1, "10.00", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.Version)

	stale := e
	e.Status = core.StatusApprovedByManager
	e, err = s.SaveExpense(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.Version)

	stale.Status = core.StatusRejected
	_, err = s.SaveExpense(ctx, stale)
	assert.ErrorIs(t, err, core.ErrConflict)

	assert.ErrorIs(t, s.DeleteExpense(ctx, e.ID, 1), core.ErrConflict)
	require.NoError(t, s.DeleteExpense(ctx, e.ID, 2))
	_, err = s.FindExpense(ctx, e.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestWithinTxRollsBack(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx services.Repository) error {
		if _, err := tx.SaveExpense(ctx, expense(1, 1, "10.00", 1)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	list, err := s.ListUnexported(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, list)

	saved, err := s.SaveExpense(ctx, expense(1, 1, "10.00", 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.ID)
}

func TestSums(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	outsider := int64(9)
	s.AddUser(core.User{ID: 4, Name: "ext", Role: core.RoleEmployee, DepartmentID: &outsider, Active: true})

	a := s.PutExpense(expense(1, 1, "10.00", 5))
	s.PutExpense(expense(1, 1, "20.00", 5))
	s.PutExpense(expense(1, 2, "40.00", 5))
	s.PutExpense(expense(2, 1, "80.00", 5))
	s.PutExpense(expense(4, 1, "160.00", 5))
	s.PutExpense(expense(1, 1, "320.00", 31))
	rejected := expense(1, 1, "640.00", 5)
	rejected.Status = core.StatusRejected
	s.PutExpense(rejected)
	apr := expense(1, 1, "1.00", 1)
	apr.Date = core.NewDate(2025, 4, 1)
	s.PutExpense(apr)

	day := core.NewDate(2025, 3, 5)
	from, to := day.MonthRange()

	got, err := s.SumByUserCategoryOnDate(ctx, 1, 1, day, 0)
	require.NoError(t, err)
	assert.Equal(t, "30", got.String())

	got, err = s.SumByUserCategoryOnDate(ctx, 1, 1, day, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "20", got.String())

	got, err = s.SumByUserCategoryBetween(ctx, 1, 1, from, to, 0)
	require.NoError(t, err)
	assert.Equal(t, "350", got.String())

	got, err = s.SumByDepartmentOnDate(ctx, 1, day, 0)
	require.NoError(t, err)
	assert.Equal(t, "150", got.String())

	got, err = s.SumByDepartmentBetween(ctx, 1, from, to, 0)
	require.NoError(t, err)
	assert.Equal(t, "470", got.String())
}

func TestExportTracking(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := expense(1, 1, "5.00", i+1)
		e.Status = core.StatusApprovedByFinance
		s.PutExpense(e)
	}
	s.PutExpense(expense(1, 1, "5.00", 9))

	list, err := s.ListUnexported(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].ID)

	require.NoError(t, s.MarkExported(ctx, 1))
	list, err = s.ListUnexported(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID)

	assert.ErrorIs(t, s.MarkExported(ctx, 99), core.ErrNotFound)
}

func TestLookups(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	u, err := s.FindUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Name)

	_, err = s.FindCurrency(ctx, "JPY")
	assert.ErrorIs(t, err, core.ErrNotFound)

	d, err := s.FindDepartment(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, d.DailyBudget)
	assert.Equal(t, "500", d.DailyBudget.String())
}
