package memory

import (
	"context"
	"fmt"
	"sync"

	"rimborsi/internal/core"
	"rimborsi/internal/ledger"
)

var _ ledger.Writer = (*Ledger)(nil)

// Ledger keeps payout rows in process, for development and tests.
type Ledger struct {
	mu    sync.Mutex
	rows  []core.Expense
	index map[int64]int
}

func New() *Ledger {
	return &Ledger{index: make(map[int64]int)}
}

// Append stores the expense and returns a synthetic row reference.
func (l *Ledger) Append(_ context.Context, e core.Expense) (string, error) {
	if err := ledger.CheckExportable(e); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if i, ok := l.index[e.ID]; ok {
		return rowRef(i), nil
	}
	l.rows = append(l.rows, e)
	l.index[e.ID] = len(l.rows) - 1
	return rowRef(len(l.rows) - 1), nil
}

// Rows returns a copy of the exported expenses in append order.
func (l *Ledger) Rows() []core.Expense {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]core.Expense(nil), l.rows...)
}

func rowRef(i int) string {
	return fmt.Sprintf("mem:%d", i+1)
}
