package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"rimborsi/internal/core"
	"rimborsi/internal/services"

	_ "modernc.org/sqlite"
)

var _ services.Store = (*SQLiteRepository)(nil)

const timestampLayout = time.RFC3339Nano

type SQLiteRepository struct {
	*repo
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations before the main pool opens the file
	change, err := RunMigrations(dbPath)
	if err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if change.Applied() {
		slog.Info("Database schema migrated", "from_version", change.From, "to_version", change.To, "path", dbPath)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection keeps transactions from
	// tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		repo: &repo{queries: New(db), now: time.Now},
		db:   db,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx services.Repository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, &repo{queries: r.queries.WithTx(tx), now: r.now}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Transaction rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// CreateUser adds a user to the directory and returns its ID.
func (r *SQLiteRepository) CreateUser(ctx context.Context, u core.User) (int64, error) {
	params := CreateUserParams{Name: u.Name, Role: string(u.Role)}
	if u.DepartmentID != nil {
		params.DepartmentID = sql.NullInt64{Int64: *u.DepartmentID, Valid: true}
	}
	if u.Active {
		params.Active = 1
	}
	id, err := r.queries.CreateUser(ctx, params)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// ListUnexported returns finance-approved expenses not yet written to the payout ledger.
func (r *SQLiteRepository) ListUnexported(ctx context.Context, limit int) ([]core.Expense, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.queries.GetUnexportedExpenses(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("get unexported expenses: %w", err)
	}

	expenses := make([]core.Expense, 0, len(rows))
	for _, row := range rows {
		e, err := toCoreExpense(row)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}
	return expenses, nil
}

func (r *SQLiteRepository) MarkExported(ctx context.Context, id int64) error {
	n, err := r.queries.MarkExpenseExported(ctx, id, r.now().UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("mark expense exported: %w", err)
	}
	if n == 0 {
		return core.NotFound("mark exported", "expense %d not found", id)
	}

	slog.InfoContext(ctx, "Expense marked as exported", "id", id)
	return nil
}

// repo implements services.Repository over either the pool or a transaction.
type repo struct {
	queries *Queries
	now     func() time.Time
}

func (r *repo) FindExpense(ctx context.Context, id int64) (core.Expense, error) {
	row, err := r.queries.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.NotFound("find expense", "expense %d not found", id)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by id: %w", err)
	}
	return toCoreExpense(row)
}

func (r *repo) SaveExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	now := r.now().UTC().Format(timestampLayout)

	if e.ID == 0 {
		row, err := r.queries.CreateExpense(ctx, CreateExpenseParams{
			AmountCents: core.ToCents(e.Amount),
			Description: e.Description,
			ExpenseDate: e.Date.String(),
			OwnerID:     e.OwnerID,
			CategoryID:  e.CategoryID,
			Currency:    e.Currency,
			Status:      string(e.Status),
			ReceiptRef:  e.ReceiptRef,
			CreatedAt:   now,
		})
		if err != nil {
			return core.Expense{}, fmt.Errorf("create expense: %w", err)
		}

		slog.InfoContext(ctx, "Expense saved to SQLite",
			"id", row.ID,
			"amount_cents", row.AmountCents,
			"date", row.ExpenseDate)
		return toCoreExpense(row)
	}

	n, err := r.queries.UpdateExpense(ctx, UpdateExpenseParams{
		AmountCents: core.ToCents(e.Amount),
		Description: e.Description,
		ExpenseDate: e.Date.String(),
		CategoryID:  e.CategoryID,
		Currency:    e.Currency,
		Status:      string(e.Status),
		ReceiptRef:  e.ReceiptRef,
		UpdatedAt:   now,
		ID:          e.ID,
		Version:     e.Version,
	})
	if err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	if n == 0 {
		return core.Expense{}, r.missingOrStale(ctx, "save expense", e.ID)
	}
	return r.FindExpense(ctx, e.ID)
}

func (r *repo) DeleteExpense(ctx context.Context, id, version int64) error {
	n, err := r.queries.DeleteExpense(ctx, id, version)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return r.missingOrStale(ctx, "delete expense", id)
	}
	return nil
}

// missingOrStale explains why a version-guarded statement touched no rows.
func (r *repo) missingOrStale(ctx context.Context, op string, id int64) error {
	_, err := r.queries.GetExpense(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NotFound(op, "expense %d not found", id)
	}
	if err != nil {
		return fmt.Errorf("get expense by id: %w", err)
	}
	return core.Conflict(op, "expense %d was modified concurrently", id)
}

func (r *repo) FindUser(ctx context.Context, id int64) (core.User, error) {
	row, err := r.queries.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NotFound("find user", "user %d not found", id)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}

	u := core.User{ID: row.ID, Name: row.Name, Role: core.Role(row.Role), Active: row.Active != 0}
	if row.DepartmentID.Valid {
		dept := row.DepartmentID.Int64
		u.DepartmentID = &dept
	}
	return u, nil
}

func (r *repo) FindCategory(ctx context.Context, id int64) (core.Category, error) {
	row, err := r.queries.GetCategory(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFound("find category", "category %d not found", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return core.Category{
		ID:            row.ID,
		Name:          row.Name,
		DailyBudget:   core.FromCents(row.DailyBudgetCents),
		MonthlyBudget: core.FromCents(row.MonthlyBudgetCents),
		Currency:      row.Currency,
	}, nil
}

func (r *repo) FindDepartment(ctx context.Context, id int64) (core.Department, error) {
	row, err := r.queries.GetDepartment(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Department{}, core.NotFound("find department", "department %d not found", id)
	}
	if err != nil {
		return core.Department{}, fmt.Errorf("get department: %w", err)
	}

	d := core.Department{
		ID:            row.ID,
		Name:          row.Name,
		MonthlyBudget: core.FromCents(row.MonthlyBudgetCents),
		Currency:      row.Currency,
	}
	if row.DailyBudgetCents.Valid {
		daily := core.FromCents(row.DailyBudgetCents.Int64)
		d.DailyBudget = &daily
	}
	return d, nil
}

func (r *repo) FindCurrency(ctx context.Context, code string) (core.Currency, error) {
	row, err := r.queries.GetCurrency(ctx, code)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Currency{}, core.NotFound("find currency", "currency %q not found", code)
	}
	if err != nil {
		return core.Currency{}, fmt.Errorf("get currency: %w", err)
	}
	return core.Currency{Code: row.Code, Name: row.Name}, nil
}

func (r *repo) SumByUserCategoryOnDate(ctx context.Context, userID, categoryID int64, day core.Date, excludeID int64) (decimal.Decimal, error) {
	return r.SumByUserCategoryBetween(ctx, userID, categoryID, day, day, excludeID)
}

func (r *repo) SumByUserCategoryBetween(ctx context.Context, userID, categoryID int64, from, to core.Date, excludeID int64) (decimal.Decimal, error) {
	cents, err := r.queries.SumByUserCategory(ctx, SumByUserCategoryParams{
		OwnerID:    userID,
		CategoryID: categoryID,
		FromDate:   from.String(),
		ToDate:     to.String(),
		ExcludeID:  excludeID,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum user category spend: %w", err)
	}
	return core.FromCents(cents), nil
}

func (r *repo) SumByDepartmentOnDate(ctx context.Context, departmentID int64, day core.Date, excludeID int64) (decimal.Decimal, error) {
	return r.SumByDepartmentBetween(ctx, departmentID, day, day, excludeID)
}

func (r *repo) SumByDepartmentBetween(ctx context.Context, departmentID int64, from, to core.Date, excludeID int64) (decimal.Decimal, error) {
	cents, err := r.queries.SumByDepartment(ctx, SumByDepartmentParams{
		DepartmentID: departmentID,
		FromDate:     from.String(),
		ToDate:       to.String(),
		ExcludeID:    excludeID,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum department spend: %w", err)
	}
	return core.FromCents(cents), nil
}

func toCoreExpense(row Expense) (core.Expense, error) {
	date, err := core.ParseDate(row.ExpenseDate)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d: %w", row.ID, err)
	}
	created, err := time.Parse(timestampLayout, row.CreatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d created_at: %w", row.ID, err)
	}
	updated, err := time.Parse(timestampLayout, row.UpdatedAt)
	if err != nil {
		return core.Expense{}, fmt.Errorf("expense %d updated_at: %w", row.ID, err)
	}

	return core.Expense{
		ID:          row.ID,
		Amount:      core.FromCents(row.AmountCents),
		Description: row.Description,
		Date:        date,
		OwnerID:     row.OwnerID,
		CategoryID:  row.CategoryID,
		Currency:    row.Currency,
		Status:      core.ExpenseStatus(row.Status),
		ReceiptRef:  row.ReceiptRef,
		Version:     row.Version,
		CreatedAt:   created,
		UpdatedAt:   updated,
	}, nil
}
