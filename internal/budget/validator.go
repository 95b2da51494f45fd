// Package budget checks submitted expenses against category and department
// spending limits. Exceeding a limit is advisory: it produces events, never errors.
package budget

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"rimborsi/internal/core"
	applog "rimborsi/internal/log"
)

// SpendReader aggregates persisted spend. Every sum skips REJECTED expenses
// and the expense whose ID equals excludeID (0 excludes nothing).
type SpendReader interface {
	SumByUserCategoryOnDate(ctx context.Context, userID, categoryID int64, day core.Date, excludeID int64) (decimal.Decimal, error)
	SumByUserCategoryBetween(ctx context.Context, userID, categoryID int64, from, to core.Date, excludeID int64) (decimal.Decimal, error)
	SumByDepartmentOnDate(ctx context.Context, departmentID int64, day core.Date, excludeID int64) (decimal.Decimal, error)
	SumByDepartmentBetween(ctx context.Context, departmentID int64, from, to core.Date, excludeID int64) (decimal.Decimal, error)
}

// Check is the input of one validation run.
type Check struct {
	Owner      core.User
	Category   core.Category
	Department *core.Department // nil when the owner has no department
	Expense    core.Expense
	Amount     decimal.Decimal
}

// Validator computes threshold crossings and publishes them to a sink.
type Validator struct {
	spend  SpendReader
	sink   EventSink
	now    func() time.Time
	logger *slog.Logger
}

func NewValidator(spend SpendReader, sink EventSink, logger *slog.Logger) *Validator {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		spend:  spend,
		sink:   sink,
		now:    time.Now,
		logger: logger.With(applog.FieldComponent, applog.ComponentBudget),
	}
}

// Validate runs the category and department checks and publishes one event per
// exceeded threshold. The only error is a failed aggregation query.
func (v *Validator) Validate(ctx context.Context, c Check) ([]core.BudgetExceededEvent, error) {
	var catEvents, deptEvents []core.BudgetExceededEvent

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		evs, err := v.checkCategory(gctx, c)
		catEvents = evs
		return err
	})
	if c.Department != nil && c.Owner.DepartmentID != nil {
		g.Go(func() error {
			evs, err := v.checkDepartment(gctx, c)
			deptEvents = evs
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	events := append(catEvents, deptEvents...)
	for _, ev := range events {
		v.sink.Publish(ctx, ev)
	}

	v.logger.DebugContext(ctx, "Budget validation completed",
		applog.FieldExpenseID, c.Expense.ID,
		applog.FieldCategoryID, c.Category.ID,
		"events", len(events))
	return events, nil
}

func (v *Validator) checkCategory(ctx context.Context, c Check) ([]core.BudgetExceededEvent, error) {
	day := c.Expense.Date
	from, to := day.MonthRange()
	var events []core.BudgetExceededEvent

	daily, err := v.spend.SumByUserCategoryOnDate(ctx, c.Owner.ID, c.Category.ID, day, c.Expense.ID)
	if err != nil {
		return nil, fmt.Errorf("sum category daily spend: %w", err)
	}
	if ev, ok := v.exceeded(c, core.BudgetCategory, core.WindowDaily, daily, c.Category.DailyBudget); ok {
		ev.ScopeID, ev.ScopeName, ev.Currency = c.Category.ID, c.Category.Name, c.Category.Currency
		events = append(events, ev)
	}

	monthly, err := v.spend.SumByUserCategoryBetween(ctx, c.Owner.ID, c.Category.ID, from, to, c.Expense.ID)
	if err != nil {
		return nil, fmt.Errorf("sum category monthly spend: %w", err)
	}
	if ev, ok := v.exceeded(c, core.BudgetCategory, core.WindowMonthly, monthly, c.Category.MonthlyBudget); ok {
		ev.ScopeID, ev.ScopeName, ev.Currency = c.Category.ID, c.Category.Name, c.Category.Currency
		events = append(events, ev)
	}

	return events, nil
}

func (v *Validator) checkDepartment(ctx context.Context, c Check) ([]core.BudgetExceededEvent, error) {
	dept := c.Department
	day := c.Expense.Date
	from, to := day.MonthRange()
	var events []core.BudgetExceededEvent

	if dept.DailyBudget != nil {
		daily, err := v.spend.SumByDepartmentOnDate(ctx, dept.ID, day, c.Expense.ID)
		if err != nil {
			return nil, fmt.Errorf("sum department daily spend: %w", err)
		}
		if ev, ok := v.exceeded(c, core.BudgetDepartment, core.WindowDaily, daily, *dept.DailyBudget); ok {
			ev.ScopeID, ev.ScopeName, ev.Currency = dept.ID, dept.Name, dept.Currency
			events = append(events, ev)
		}
	}

	monthly, err := v.spend.SumByDepartmentBetween(ctx, dept.ID, from, to, c.Expense.ID)
	if err != nil {
		return nil, fmt.Errorf("sum department monthly spend: %w", err)
	}
	if ev, ok := v.exceeded(c, core.BudgetDepartment, core.WindowMonthly, monthly, dept.MonthlyBudget); ok {
		ev.ScopeID, ev.ScopeName, ev.Currency = dept.ID, dept.Name, dept.Currency
		events = append(events, ev)
	}

	return events, nil
}

// exceeded applies the strict rule current+amount > limit; reaching the limit is allowed.
func (v *Validator) exceeded(c Check, typ core.BudgetType, window core.BudgetWindow, current, limit decimal.Decimal) (core.BudgetExceededEvent, bool) {
	total := current.Add(c.Amount)
	if !total.GreaterThan(limit) {
		return core.BudgetExceededEvent{}, false
	}

	ev := core.BudgetExceededEvent{
		BudgetType:   typ,
		Window:       window,
		UserID:       c.Owner.ID,
		ExpenseID:    c.Expense.ID,
		CurrentTotal: current,
		NewTotal:     total,
		BudgetLimit:  limit,
		OccurredAt:   v.now().UTC(),
	}
	if window == core.WindowDaily {
		ev.Date = c.Expense.Date
	} else {
		ev.YearMonth = c.Expense.Date.YearMonth()
	}
	return ev, true
}
