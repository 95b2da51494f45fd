package services

import (
	"context"

	"rimborsi/internal/budget"
	"rimborsi/internal/core"
)

// Ports for outbound adapters.
type (
	// Repository reads and writes workflow data. Lookups of missing rows
	// return a core.KindNotFound error.
	Repository interface {
		budget.SpendReader

		FindExpense(ctx context.Context, id int64) (core.Expense, error)
		// SaveExpense inserts when e.ID is zero, otherwise updates the row
		// only if its version still equals e.Version (core.KindConflict if not).
		// The returned copy carries the assigned ID and new version.
		SaveExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		DeleteExpense(ctx context.Context, id, version int64) error

		FindUser(ctx context.Context, id int64) (core.User, error)
		FindCategory(ctx context.Context, id int64) (core.Category, error)
		FindDepartment(ctx context.Context, id int64) (core.Department, error)
		FindCurrency(ctx context.Context, code string) (core.Currency, error)
	}

	// Store runs fn inside a transaction; fn's error rolls everything back.
	Store interface {
		Repository
		WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error
	}

	// StatusPublisher announces committed status changes.
	StatusPublisher interface {
		PublishStatusChanged(ctx context.Context, ev core.StatusChangedEvent) error
	}
)
