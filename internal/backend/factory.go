package backend

import (
	"context"
	"fmt"
	"log/slog"

	"rimborsi/internal/amqp"
	"rimborsi/internal/ledger"
	lgoogle "rimborsi/internal/ledger/google"
	lmemory "rimborsi/internal/ledger/memory"
	"rimborsi/internal/storage"
	"rimborsi/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend opens storage and, when configured, connects to the broker.
// A broker that cannot be reached is logged and skipped.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var result *BackendResult
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		result = &BackendResult{Store: repo, Ready: repo.Ping, Cleanup: repo.Close}
	case MemoryBackend:
		f.logger.InfoContext(ctx, "Initialized memory backend with seed data")
		result = &BackendResult{Store: memory.NewSeeded()}
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without messaging", "error", err)
		} else {
			f.logger.InfoContext(ctx, "Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Events = client
			result.Cleanup = chainCleanup(client.Close, result.Cleanup)
		}
	}
	return result, nil
}

// CreateLedger builds the payout ledger writer used by the worker.
func (f *DefaultFactory) CreateLedger(ctx context.Context, config Config) (ledger.Writer, error) {
	switch config.Ledger {
	case "", MemoryLedger:
		f.logger.InfoContext(ctx, "Using in-memory payout ledger")
		return lmemory.New(), nil
	case SheetsLedger:
		cli, err := lgoogle.NewFromOptions(ctx, lgoogle.Options{
			SpreadsheetID: config.GoogleSpreadsheetID,
			SheetName:     config.GoogleSheetName,
			Credentials: lgoogle.Credentials{
				ClientJSON: config.GoogleOAuthClientJSON,
				ClientFile: config.GoogleOAuthClientFile,
				TokenJSON:  config.GoogleOAuthTokenJSON,
				TokenFile:  config.GoogleOAuthTokenFile,
			},
		}, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets ledger: %w", err)
		}
		f.logger.InfoContext(ctx, "Initialized Google Sheets payout ledger", "sheet", config.GoogleSheetName)
		return cli, nil
	}
	return nil, fmt.Errorf("unsupported ledger type: %s", config.Ledger)
}

// chainCleanup runs every non-nil cleanup and returns the first error.
func chainCleanup(fns ...CleanupFunc) CleanupFunc {
	return func() error {
		var first error
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
}
