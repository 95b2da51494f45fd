package storage

import (
	"context"
	"database/sql"
)

const expenseColumns = `id, amount_cents, description, expense_date, owner_id, category_id,
       currency, status, receipt_ref, version, created_at, updated_at, exported_at`

func scanExpense(row interface{ Scan(...interface{}) error }) (Expense, error) {
	var i Expense
	err := row.Scan(
		&i.ID,
		&i.AmountCents,
		&i.Description,
		&i.ExpenseDate,
		&i.OwnerID,
		&i.CategoryID,
		&i.Currency,
		&i.Status,
		&i.ReceiptRef,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.ExportedAt,
	)
	return i, err
}

const getExpense = `SELECT ` + expenseColumns + `
FROM expenses
WHERE id = ?`

func (q *Queries) GetExpense(ctx context.Context, id int64) (Expense, error) {
	return scanExpense(q.db.QueryRowContext(ctx, getExpense, id))
}

const createExpense = `INSERT INTO expenses (
    amount_cents, description, expense_date, owner_id, category_id,
    currency, status, receipt_ref, version, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
RETURNING ` + expenseColumns

type CreateExpenseParams struct {
	AmountCents int64
	Description string
	ExpenseDate string
	OwnerID     int64
	CategoryID  int64
	Currency    string
	Status      string
	ReceiptRef  string
	CreatedAt   string
}

func (q *Queries) CreateExpense(ctx context.Context, arg CreateExpenseParams) (Expense, error) {
	row := q.db.QueryRowContext(ctx, createExpense,
		arg.AmountCents,
		arg.Description,
		arg.ExpenseDate,
		arg.OwnerID,
		arg.CategoryID,
		arg.Currency,
		arg.Status,
		arg.ReceiptRef,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return scanExpense(row)
}

const updateExpense = `UPDATE expenses
SET amount_cents = ?, description = ?, expense_date = ?, category_id = ?,
    currency = ?, status = ?, receipt_ref = ?, version = version + 1, updated_at = ?
WHERE id = ? AND version = ?`

type UpdateExpenseParams struct {
	AmountCents int64
	Description string
	ExpenseDate string
	CategoryID  int64
	Currency    string
	Status      string
	ReceiptRef  string
	UpdatedAt   string
	ID          int64
	Version     int64
}

// UpdateExpense returns the number of rows changed; zero means the version moved on.
func (q *Queries) UpdateExpense(ctx context.Context, arg UpdateExpenseParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateExpense,
		arg.AmountCents,
		arg.Description,
		arg.ExpenseDate,
		arg.CategoryID,
		arg.Currency,
		arg.Status,
		arg.ReceiptRef,
		arg.UpdatedAt,
		arg.ID,
		arg.Version,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteExpense = `DELETE FROM expenses WHERE id = ? AND version = ?`

func (q *Queries) DeleteExpense(ctx context.Context, id, version int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteExpense, id, version)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getUser = `SELECT id, name, role, department_id, active FROM users WHERE id = ?`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	var i User
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(
		&i.ID,
		&i.Name,
		&i.Role,
		&i.DepartmentID,
		&i.Active,
	)
	return i, err
}

const createUser = `INSERT INTO users (name, role, department_id, active)
VALUES (?, ?, ?, ?)
RETURNING id`

type CreateUserParams struct {
	Name         string
	Role         string
	DepartmentID sql.NullInt64
	Active       int64
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createUser, arg.Name, arg.Role, arg.DepartmentID, arg.Active).Scan(&id)
	return id, err
}

const getCategory = `SELECT id, name, daily_budget_cents, monthly_budget_cents, currency
FROM categories
WHERE id = ?`

func (q *Queries) GetCategory(ctx context.Context, id int64) (Category, error) {
	var i Category
	err := q.db.QueryRowContext(ctx, getCategory, id).Scan(
		&i.ID,
		&i.Name,
		&i.DailyBudgetCents,
		&i.MonthlyBudgetCents,
		&i.Currency,
	)
	return i, err
}

const getDepartment = `SELECT id, name, daily_budget_cents, monthly_budget_cents, currency
FROM departments
WHERE id = ?`

func (q *Queries) GetDepartment(ctx context.Context, id int64) (Department, error) {
	var i Department
	err := q.db.QueryRowContext(ctx, getDepartment, id).Scan(
		&i.ID,
		&i.Name,
		&i.DailyBudgetCents,
		&i.MonthlyBudgetCents,
		&i.Currency,
	)
	return i, err
}

const getCurrency = `SELECT code, name FROM currencies WHERE code = ?`

func (q *Queries) GetCurrency(ctx context.Context, code string) (Currency, error) {
	var i Currency
	err := q.db.QueryRowContext(ctx, getCurrency, code).Scan(&i.Code, &i.Name)
	return i, err
}

const sumByUserCategory = `SELECT CAST(COALESCE(SUM(amount_cents), 0) AS INTEGER)
FROM expenses
WHERE owner_id = ?
  AND category_id = ?
  AND expense_date BETWEEN ? AND ?
  AND status != 'REJECTED'
  AND id != ?`

type SumByUserCategoryParams struct {
	OwnerID    int64
	CategoryID int64
	FromDate   string
	ToDate     string
	ExcludeID  int64
}

func (q *Queries) SumByUserCategory(ctx context.Context, arg SumByUserCategoryParams) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumByUserCategory,
		arg.OwnerID,
		arg.CategoryID,
		arg.FromDate,
		arg.ToDate,
		arg.ExcludeID,
	).Scan(&total)
	return total, err
}

const sumByDepartment = `SELECT CAST(COALESCE(SUM(e.amount_cents), 0) AS INTEGER)
FROM expenses e
JOIN users u ON u.id = e.owner_id
WHERE u.department_id = ?
  AND e.expense_date BETWEEN ? AND ?
  AND e.status != 'REJECTED'
  AND e.id != ?`

type SumByDepartmentParams struct {
	DepartmentID int64
	FromDate     string
	ToDate       string
	ExcludeID    int64
}

func (q *Queries) SumByDepartment(ctx context.Context, arg SumByDepartmentParams) (int64, error) {
	var total int64
	err := q.db.QueryRowContext(ctx, sumByDepartment,
		arg.DepartmentID,
		arg.FromDate,
		arg.ToDate,
		arg.ExcludeID,
	).Scan(&total)
	return total, err
}

const getUnexportedExpenses = `SELECT ` + expenseColumns + `
FROM expenses
WHERE status = 'APPROVED_BY_FINANCE' AND exported_at IS NULL
ORDER BY id ASC
LIMIT ?`

func (q *Queries) GetUnexportedExpenses(ctx context.Context, limit int64) ([]Expense, error) {
	rows, err := q.db.QueryContext(ctx, getUnexportedExpenses, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Expense
	for rows.Next() {
		i, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markExpenseExported = `UPDATE expenses SET exported_at = ? WHERE id = ?`

func (q *Queries) MarkExpenseExported(ctx context.Context, id int64, at string) (int64, error) {
	result, err := q.db.ExecContext(ctx, markExpenseExported, at, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
