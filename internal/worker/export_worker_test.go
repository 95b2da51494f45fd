package worker

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rimborsi/internal/amqp"
	"rimborsi/internal/core"
	ledgermem "rimborsi/internal/ledger/memory"
	applog "rimborsi/internal/log"
	"rimborsi/internal/storage/memory"
)

func expense(status core.ExpenseStatus) core.Expense {
	return core.Expense{
		Amount:      decimal.RequireFromString("25.00"),
		Description: "Client dinner",
		Date:        core.NewDate(2024, 4, 9),
		OwnerID:     1,
		CategoryID:  2,
		Currency:    "EUR",
		Status:      status,
	}
}

func newTestWorker(t *testing.T, batch int) (*ExportWorker, *memory.Store, *ledgermem.Ledger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Format: "json", Output: &buf})
	store := memory.NewSeeded()
	l := ledgermem.New()
	return NewExportWorker(store, l, batch, time.Hour, logger), store, l, &buf
}

func statusMessage(id int64, to core.ExpenseStatus) *amqp.Message {
	return amqp.NewStatusChangedMessage(core.StatusChangedEvent{
		ExpenseID: id, OwnerID: 1, ActorID: 3,
		From: core.StatusApprovedByManager, To: to,
		Amount: decimal.RequireFromString("25.00"), Currency: "EUR",
	})
}

func TestHandleStatusChangedExports(t *testing.T) {
	w, store, l, _ := newTestWorker(t, 10)
	ctx := context.Background()
	e := store.PutExpense(expense(core.StatusApprovedByFinance))

	require.NoError(t, w.HandleMessage(ctx, statusMessage(e.ID, core.StatusApprovedByFinance)))
	require.Len(t, l.Rows(), 1)
	assert.Equal(t, e.ID, l.Rows()[0].ID)

	pending, err := store.ListUnexported(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "exported expenses are marked")

	// redelivery does not duplicate the row
	require.NoError(t, w.HandleMessage(ctx, statusMessage(e.ID, core.StatusApprovedByFinance)))
	assert.Len(t, l.Rows(), 1)
}

func TestHandleStatusChangedIgnoresOtherTargets(t *testing.T) {
	w, store, l, _ := newTestWorker(t, 10)
	e := store.PutExpense(expense(core.StatusApprovedByManager))

	require.NoError(t, w.HandleMessage(context.Background(), statusMessage(e.ID, core.StatusApprovedByManager)))
	require.NoError(t, w.HandleMessage(context.Background(), statusMessage(e.ID, core.StatusRejected)))
	assert.Empty(t, l.Rows())
}

func TestHandleStatusChangedMissingExpense(t *testing.T) {
	w, _, l, _ := newTestWorker(t, 10)
	require.NoError(t, w.HandleMessage(context.Background(), statusMessage(404, core.StatusApprovedByFinance)))
	assert.Empty(t, l.Rows())
}

func TestHandleBudgetExceededLogsWarning(t *testing.T) {
	w, _, _, buf := newTestWorker(t, 10)
	msg := amqp.NewBudgetExceededMessage(core.BudgetExceededEvent{
		BudgetType:   core.BudgetCategory,
		Window:       core.WindowDaily,
		Date:         core.NewDate(2024, 4, 9),
		ScopeID:      2,
		ScopeName:    "Meals",
		UserID:       1,
		ExpenseID:    5,
		CurrentTotal: decimal.RequireFromString("40"),
		NewTotal:     decimal.RequireFromString("65"),
		BudgetLimit:  decimal.RequireFromString("60"),
		Currency:     "EUR",
	})

	require.NoError(t, w.HandleMessage(context.Background(), msg))
	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"period":"2024-04-09"`)
	assert.Contains(t, out, `"budget_limit":"60.00"`)
}

type failingLedger struct{ calls int }

func (f *failingLedger) Append(context.Context, core.Expense) (string, error) {
	f.calls++
	return "", errors.New("sheet unavailable")
}

func TestHandleMessageRequeuesOnLedgerFailure(t *testing.T) {
	store := memory.NewSeeded()
	e := store.PutExpense(expense(core.StatusApprovedByFinance))
	w := NewExportWorker(store, &failingLedger{}, 10, time.Hour, nil)

	err := w.HandleMessage(context.Background(), statusMessage(e.ID, core.StatusApprovedByFinance))
	assert.ErrorContains(t, err, "append to ledger")

	pending, _ := store.ListUnexported(context.Background(), 10)
	assert.Len(t, pending, 1, "still pending for reconciliation")
}

func TestProcessPending(t *testing.T) {
	w, store, l, _ := newTestWorker(t, 2)
	ctx := context.Background()
	for range 3 {
		store.PutExpense(expense(core.StatusApprovedByFinance))
	}
	store.PutExpense(expense(core.StatusPending))

	n, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one batch per call")

	n, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, l.Rows(), 3)
}

func TestProcessPendingContinuesPastFailures(t *testing.T) {
	store := memory.NewSeeded()
	store.PutExpense(expense(core.StatusApprovedByFinance))
	store.PutExpense(expense(core.StatusApprovedByFinance))
	fl := &failingLedger{}
	w := NewExportWorker(store, fl, 10, time.Hour, nil)

	n, err := w.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, fl.calls)
}

// chanSource delivers queued messages, then waits for cancellation.
type chanSource struct {
	msgs []*amqp.Message
	errs chan error
}

func (s *chanSource) Consume(ctx context.Context, handler amqp.Handler) error {
	for _, m := range s.msgs {
		s.errs <- handler(ctx, m)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestRun(t *testing.T) {
	w, store, l, _ := newTestWorker(t, 10)
	missed := store.PutExpense(expense(core.StatusApprovedByFinance))
	live := store.PutExpense(expense(core.StatusApprovedByFinance))
	// pretend the live one was exported before, so only the message exports it
	require.NoError(t, store.MarkExported(context.Background(), live.ID))

	src := &chanSource{
		msgs: []*amqp.Message{statusMessage(live.ID, core.StatusApprovedByFinance)},
		errs: make(chan error, 1),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, src) }()

	select {
	case err := <-src.errs:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("message not handled")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	var ids []int64
	for _, e := range l.Rows() {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []int64{missed.ID, live.ID}, ids)
}
