package backend

import (
	"context"

	"rimborsi/internal/amqp"
	"rimborsi/internal/budget"
	"rimborsi/internal/ledger"
	applog "rimborsi/internal/log"
	"rimborsi/internal/services"
	"rimborsi/internal/worker"
)

// Store is what both processes need from storage: the workflow repository
// plus the export bookkeeping used by the worker.
type Store interface {
	services.Store
	worker.ExportStore
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult holds the wired storage and messaging for one process.
type BackendResult struct {
	Store Store
	// Events is nil when no AMQP URL is configured or the broker was unreachable.
	Events *amqp.Client
	// Ready reports storage health for readiness probes.
	Ready   func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Publisher returns the status publisher, or nil when messaging is disabled.
func (r *BackendResult) Publisher() services.StatusPublisher {
	if r.Events == nil {
		return nil
	}
	return r.Events
}

// BudgetSink logs every budget event and also publishes it when messaging is enabled.
func (r *BackendResult) BudgetSink(logger *applog.Logger) budget.EventSink {
	if r.Events == nil {
		return budget.LogSink(logger)
	}
	return budget.Fanout(budget.LogSink(logger), r.Events.BudgetSink())
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
	CreateLedger(ctx context.Context, config Config) (ledger.Writer, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	SQLiteDBPath string

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	Ledger                LedgerType
	GoogleSpreadsheetID   string
	GoogleSheetName       string
	GoogleOAuthClientFile string
	GoogleOAuthTokenFile  string
	GoogleOAuthClientJSON string
	GoogleOAuthTokenJSON  string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// LedgerType selects where payouts are exported.
type LedgerType string

const (
	MemoryLedger LedgerType = "memory"
	SheetsLedger LedgerType = "sheets"
)

func (lt LedgerType) IsValid() bool {
	return lt == MemoryLedger || lt == SheetsLedger
}
