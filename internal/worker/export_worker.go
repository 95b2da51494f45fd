// Package worker consumes workflow events: budget alerts are logged for the
// notification channel and finance approvals are exported to the payout ledger.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"rimborsi/internal/amqp"
	"rimborsi/internal/core"
	"rimborsi/internal/ledger"
	applog "rimborsi/internal/log"
)

// ExportStore is the slice of storage the worker needs.
type ExportStore interface {
	FindExpense(ctx context.Context, id int64) (core.Expense, error)
	ListUnexported(ctx context.Context, limit int) ([]core.Expense, error)
	MarkExported(ctx context.Context, id int64) error
}

// MessageSource delivers queue messages to a handler until ctx ends.
type MessageSource interface {
	Consume(ctx context.Context, handler amqp.Handler) error
}

// ExportWorker moves finance-approved expenses into the payout ledger.
type ExportWorker struct {
	store     ExportStore
	ledger    ledger.Writer
	batchSize int
	interval  time.Duration
	logger    *applog.Logger
}

func NewExportWorker(store ExportStore, writer ledger.Writer, batchSize int, interval time.Duration, logger *applog.Logger) *ExportWorker {
	if batchSize < 1 {
		batchSize = 10
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &ExportWorker{
		store:     store,
		ledger:    writer,
		batchSize: batchSize,
		interval:  interval,
		logger:    logger.WithComponent(applog.ComponentWorker),
	}
}

// Run reconciles once, then consumes source and reconciles on every tick
// until ctx is cancelled. A nil source runs reconciliation only.
func (w *ExportWorker) Run(ctx context.Context, source MessageSource) error {
	if err := w.StartupCheck(ctx); err != nil {
		w.logger.WarnContext(ctx, "Startup export check failed", applog.FieldError, err)
	}

	g, ctx := errgroup.WithContext(ctx)
	if source != nil {
		g.Go(func() error {
			err := source.Consume(ctx, w.HandleMessage)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := w.ProcessPending(ctx); err != nil {
					w.logger.ErrorContext(ctx, "Periodic export failed", applog.FieldError, err)
				}
			}
		}
	})
	return g.Wait()
}

// HandleMessage processes one queue message. A returned error requeues it.
func (w *ExportWorker) HandleMessage(ctx context.Context, msg *amqp.Message) error {
	switch msg.Type {
	case amqp.TypeBudgetExceeded:
		ev := msg.BudgetExceeded.BudgetExceededEvent()
		applog.NewStructuredLogger(w.logger).LogBudgetExceeded(ctx, ev)
		return nil

	case amqp.TypeStatusChanged:
		ev := msg.StatusChanged.StatusChangedEvent()
		w.logger.InfoContext(ctx, "Processing status change",
			applog.FieldExpenseID, ev.ExpenseID,
			applog.FieldStatusFrom, ev.From,
			applog.FieldStatusTo, ev.To,
			applog.FieldActorID, ev.ActorID)
		if ev.To != core.StatusApprovedByFinance {
			return nil
		}
		e, err := w.store.FindExpense(ctx, ev.ExpenseID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				w.logger.WarnContext(ctx, "Approved expense no longer exists", applog.FieldExpenseID, ev.ExpenseID)
				return nil
			}
			return fmt.Errorf("get expense from storage: %w", err)
		}
		return w.export(ctx, e)
	}

	w.logger.WarnContext(ctx, "Ignoring message of unknown type", "type", msg.Type, "message_id", msg.ID)
	return nil
}

// ProcessPending exports one batch of expenses the queue may have missed and
// returns how many were exported.
func (w *ExportWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.processBatch(ctx, w.batchSize)
}

// StartupCheck exports a larger batch to recover from worker downtime.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	n, err := w.processBatch(ctx, w.batchSize*5)
	if err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "Startup export check completed", "exported", n)
	return nil
}

func (w *ExportWorker) processBatch(ctx context.Context, limit int) (int, error) {
	pending, err := w.store.ListUnexported(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unexported expenses: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	w.logger.InfoContext(ctx, "Exporting pending expenses", "count", len(pending))
	exported := 0
	for _, e := range pending {
		if err := ctx.Err(); err != nil {
			return exported, err
		}
		if err := w.export(ctx, e); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export expense",
				applog.FieldExpenseID, e.ID, applog.FieldError, err)
			continue
		}
		exported++
	}
	return exported, nil
}

func (w *ExportWorker) export(ctx context.Context, e core.Expense) error {
	if e.Status != core.StatusApprovedByFinance {
		w.logger.WarnContext(ctx, "Skipping export of expense that is not finance-approved",
			applog.FieldExpenseID, e.ID, "status", e.Status)
		return nil
	}

	ref, err := w.ledger.Append(ctx, e)
	if err != nil {
		return fmt.Errorf("append to ledger: %w", err)
	}

	// the row exists; a failed mark only means the next reconcile finds it again
	if err := w.store.MarkExported(ctx, e.ID); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark expense exported",
			applog.FieldExpenseID, e.ID, applog.FieldError, err)
	}

	w.logger.InfoContext(ctx, "Expense exported to payout ledger",
		applog.FieldExpenseID, e.ID,
		applog.FieldOperation, applog.OpExport,
		"ledger_ref", ref,
		applog.FieldAmount, e.Amount.StringFixed(2),
		applog.FieldCurrency, e.Currency)
	return nil
}
