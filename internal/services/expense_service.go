package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rimborsi/internal/budget"
	"rimborsi/internal/core"
	applog "rimborsi/internal/log"
	"rimborsi/internal/workflow"
)

// CreateExpenseRequest carries the fields of a new expense. The owner is the actor.
type CreateExpenseRequest struct {
	CategoryID  int64
	Currency    string
	Amount      decimal.Decimal
	Date        core.Date
	Description string
	ReceiptRef  string
}

// UpdateExpenseRequest changes only the non-nil fields.
type UpdateExpenseRequest struct {
	CategoryID  *int64
	Currency    *string
	Amount      *decimal.Decimal
	Date        *core.Date
	Description *string
	ReceiptRef  *string
}

// ExpenseService is the workflow entry point: it ties the approval state
// machine and the budget validator to persistence and caller identity.
type ExpenseService struct {
	store     Store
	machine   *workflow.Machine
	validator *budget.Validator
	publisher StatusPublisher
	now       func() time.Time
}

func NewExpenseService(store Store, machine *workflow.Machine, validator *budget.Validator, publisher StatusPublisher) *ExpenseService {
	return &ExpenseService{
		store:     store,
		machine:   machine,
		validator: validator,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateExpense stores a PENDING expense owned by actor, then checks budgets.
// Budget overruns are published as events and never fail the creation.
func (s *ExpenseService) CreateExpense(ctx context.Context, actor core.User, req CreateExpenseRequest) (core.Expense, error) {
	const op = applog.OpCreate

	e := core.Expense{
		Amount:      req.Amount.Round(2),
		Description: strings.TrimSpace(req.Description),
		Date:        req.Date,
		OwnerID:     actor.ID,
		CategoryID:  req.CategoryID,
		Currency:    normalizeCurrency(req.Currency),
		Status:      core.StatusPending,
		ReceiptRef:  strings.TrimSpace(req.ReceiptRef),
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, core.Invalid(op, err)
	}

	var saved core.Expense
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		if actor, err = loadActor(ctx, tx, op, actor.ID); err != nil {
			return err
		}
		if err := requireActive(op, actor); err != nil {
			return err
		}
		if _, err := tx.FindCategory(ctx, e.CategoryID); err != nil {
			return err
		}
		if _, err := tx.FindCurrency(ctx, e.Currency); err != nil {
			return err
		}
		saved, err = tx.SaveExpense(ctx, e)
		return err
	})
	if err != nil {
		return core.Expense{}, err
	}

	applog.NewStructuredLogger(applog.FromContext(ctx)).LogExpenseCreated(ctx, saved)
	s.checkBudget(ctx, actor, saved)
	return saved, nil
}

// Approve advances the expense one step in the approval pipeline.
func (s *ExpenseService) Approve(ctx context.Context, expenseID int64, actor core.User) (core.Expense, error) {
	return s.transition(ctx, workflow.ActionApprove, expenseID, actor)
}

// Reject moves the expense to REJECTED.
func (s *ExpenseService) Reject(ctx context.Context, expenseID int64, actor core.User) (core.Expense, error) {
	return s.transition(ctx, workflow.ActionReject, expenseID, actor)
}

func (s *ExpenseService) transition(ctx context.Context, action workflow.Action, expenseID int64, actor core.User) (core.Expense, error) {
	op := string(action)

	var (
		out  core.Expense
		from core.ExpenseStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		e, err := tx.FindExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		if actor, err = loadActor(ctx, tx, op, actor.ID); err != nil {
			return err
		}
		owner, err := tx.FindUser(ctx, e.OwnerID)
		if err != nil {
			return err
		}
		from = e.Status

		tr := &workflow.Transition{Expense: &e, Owner: owner, Actor: actor, Persist: tx.SaveExpense}
		if action == workflow.ActionApprove {
			err = s.machine.Approve(ctx, tr)
		} else {
			err = s.machine.Reject(ctx, tr)
		}
		out = e
		return err
	})
	if err != nil {
		return core.Expense{}, err
	}

	s.publishStatusChanged(ctx, core.StatusChangedEvent{
		ExpenseID:  out.ID,
		OwnerID:    out.OwnerID,
		ActorID:    actor.ID,
		From:       from,
		To:         out.Status,
		Amount:     out.Amount,
		Currency:   out.Currency,
		OccurredAt: s.now().UTC(),
	})
	return out, nil
}

// GetExpense returns an expense the actor may view: employees see only their
// own expenses, managers and finance see all.
func (s *ExpenseService) GetExpense(ctx context.Context, expenseID int64, actor core.User) (core.Expense, error) {
	e, err := s.store.FindExpense(ctx, expenseID)
	if err != nil {
		return core.Expense{}, err
	}
	if actor, err = loadActor(ctx, s.store, applog.OpRead, actor.ID); err != nil {
		return core.Expense{}, err
	}
	if err := canView(applog.OpRead, actor, e); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

// UpdateExpense edits a PENDING expense owned by actor and re-checks budgets
// with the expense excluded from its own totals.
func (s *ExpenseService) UpdateExpense(ctx context.Context, expenseID int64, actor core.User, req UpdateExpenseRequest) (core.Expense, error) {
	const op = applog.OpUpdate

	var saved core.Expense
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		e, err := tx.FindExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		if actor, err = loadActor(ctx, tx, op, actor.ID); err != nil {
			return err
		}
		if err := canEdit(op, actor, e); err != nil {
			return err
		}

		if req.CategoryID != nil && *req.CategoryID != e.CategoryID {
			if _, err := tx.FindCategory(ctx, *req.CategoryID); err != nil {
				return err
			}
			e.CategoryID = *req.CategoryID
		}
		if req.Currency != nil && normalizeCurrency(*req.Currency) != e.Currency {
			code := normalizeCurrency(*req.Currency)
			if _, err := tx.FindCurrency(ctx, code); err != nil {
				return err
			}
			e.Currency = code
		}
		if req.Amount != nil {
			e.Amount = req.Amount.Round(2)
		}
		if req.Date != nil {
			e.Date = *req.Date
		}
		if req.Description != nil {
			e.Description = strings.TrimSpace(*req.Description)
		}
		if req.ReceiptRef != nil {
			e.ReceiptRef = strings.TrimSpace(*req.ReceiptRef)
		}
		if err := e.Validate(); err != nil {
			return core.Invalid(op, err)
		}

		saved, err = tx.SaveExpense(ctx, e)
		return err
	})
	if err != nil {
		return core.Expense{}, err
	}

	s.checkBudget(ctx, actor, saved)
	return saved, nil
}

// DeleteExpense removes a PENDING expense owned by actor.
func (s *ExpenseService) DeleteExpense(ctx context.Context, expenseID int64, actor core.User) error {
	const op = applog.OpDelete

	return s.store.WithinTx(ctx, func(ctx context.Context, tx Repository) error {
		e, err := tx.FindExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		if actor, err = loadActor(ctx, tx, op, actor.ID); err != nil {
			return err
		}
		if err := canEdit(op, actor, e); err != nil {
			return err
		}
		return tx.DeleteExpense(ctx, e.ID, e.Version)
	})
}

// AvailableActions lists the workflow actions actor may perform on the expense now.
func (s *ExpenseService) AvailableActions(ctx context.Context, expenseID int64, actor core.User) ([]workflow.Action, error) {
	e, err := s.GetExpense(ctx, expenseID, actor)
	if err != nil {
		return nil, err
	}
	if actor, err = loadActor(ctx, s.store, applog.OpRead, actor.ID); err != nil {
		return nil, err
	}
	owner, err := s.store.FindUser(ctx, e.OwnerID)
	if err != nil {
		return nil, err
	}
	return s.machine.AvailableActions(workflow.Transition{Expense: &e, Owner: owner, Actor: actor}), nil
}

// checkBudget runs the validator on a committed expense. Failures are logged only.
func (s *ExpenseService) checkBudget(ctx context.Context, owner core.User, e core.Expense) {
	if s.validator == nil {
		return
	}
	logger := applog.FromContext(ctx)

	category, err := s.store.FindCategory(ctx, e.CategoryID)
	if err != nil {
		logger.ErrorContext(ctx, "Budget check skipped: category lookup failed",
			applog.FieldExpenseID, e.ID, applog.FieldError, err)
		return
	}

	var dept *core.Department
	if owner.DepartmentID != nil {
		d, err := s.store.FindDepartment(ctx, *owner.DepartmentID)
		if err != nil {
			logger.WarnContext(ctx, "Department budget check skipped",
				applog.FieldExpenseID, e.ID, applog.FieldError, err)
		} else {
			dept = &d
		}
	}

	_, err = s.validator.Validate(ctx, budget.Check{
		Owner:      owner,
		Category:   category,
		Department: dept,
		Expense:    e,
		Amount:     e.Amount,
	})
	if err != nil {
		logger.ErrorContext(ctx, "Budget validation failed",
			applog.FieldExpenseID, e.ID, applog.FieldError, err)
	}
}

func (s *ExpenseService) publishStatusChanged(ctx context.Context, ev core.StatusChangedEvent) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Status publisher not available, skipping status change message")
		return
	}
	if err := s.publisher.PublishStatusChanged(ctx, ev); err != nil {
		// the transition is committed; the worker reconciles missed exports
		applog.FromContext(ctx).ErrorContext(ctx, "Failed to publish status change",
			applog.FieldExpenseID, ev.ExpenseID, applog.FieldError, err)
	}
}

// loadActor reads the acting user's current record, so role, department and
// activity changes apply to the very next request. A user that no longer
// exists is Unauthorized rather than NotFound.
func loadActor(ctx context.Context, r Repository, op string, id int64) (core.User, error) {
	u, err := r.FindUser(ctx, id)
	if err != nil {
		if core.KindOf(err) == core.KindNotFound {
			return core.User{}, core.Unauthorized(op, "user %d does not exist", id)
		}
		return core.User{}, err
	}
	return u, nil
}

func requireActive(op string, actor core.User) error {
	if !actor.Active {
		return core.Unauthorized(op, "user %d is not active", actor.ID)
	}
	return nil
}

func canView(op string, actor core.User, e core.Expense) error {
	switch actor.Role {
	case core.RoleManager, core.RoleFinance:
		return nil
	case core.RoleEmployee:
		if e.OwnerID == actor.ID {
			return nil
		}
	}
	return core.Unauthorized(op, "user %d may not view expense %d", actor.ID, e.ID)
}

// canEdit allows only an active owner, and only while the expense is PENDING.
func canEdit(op string, actor core.User, e core.Expense) error {
	if e.OwnerID != actor.ID {
		return core.Unauthorized(op, "only the owner may %s expense %d", op, e.ID)
	}
	if e.Status != core.StatusPending {
		return core.InvalidTransition(op, "cannot %s an expense in status %s", op, e.Status)
	}
	return requireActive(op, actor)
}

func normalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
