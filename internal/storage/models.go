package storage

import "database/sql"

type Expense struct {
	ID          int64
	AmountCents int64
	Description string
	ExpenseDate string
	OwnerID     int64
	CategoryID  int64
	Currency    string
	Status      string
	ReceiptRef  string
	Version     int64
	CreatedAt   string
	UpdatedAt   string
	ExportedAt  sql.NullString
}

type User struct {
	ID           int64
	Name         string
	Role         string
	DepartmentID sql.NullInt64
	Active       int64
}

type Category struct {
	ID                 int64
	Name               string
	DailyBudgetCents   int64
	MonthlyBudgetCents int64
	Currency           string
}

type Department struct {
	ID                 int64
	Name               string
	DailyBudgetCents   sql.NullInt64
	MonthlyBudgetCents int64
	Currency           string
}

type Currency struct {
	Code string
	Name string
}
