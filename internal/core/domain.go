package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleEmployee Role = "EMPLOYEE"
	RoleManager  Role = "MANAGER"
	RoleFinance  Role = "FINANCE"
)

const maxDescriptionLen = 200

type (
	Role string

	Date struct {
		time.Time
	}

	Expense struct {
		ID          int64
		Amount      decimal.Decimal
		Description string
		Date        Date
		OwnerID     int64
		CategoryID  int64
		Currency    string // ISO code, references Currency.Code
		Status      ExpenseStatus
		ReceiptRef  string
		Version     int64 // optimistic concurrency guard
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	Category struct {
		ID            int64
		Name          string
		DailyBudget   decimal.Decimal
		MonthlyBudget decimal.Decimal
		Currency      string
	}

	Department struct {
		ID            int64
		Name          string
		DailyBudget   *decimal.Decimal // nil when unset
		MonthlyBudget decimal.Decimal
		Currency      string
	}

	User struct {
		ID           int64
		Name         string
		Role         Role
		DepartmentID *int64
		Active       bool
	}

	Currency struct {
		Code string
		Name string
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("missing category")
	ErrEmptyCurrency    = errors.New("missing currency")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return d.Format(time.DateOnly)
}

// YearMonth formats the calendar month of the date as YYYY-MM.
func (d Date) YearMonth() string {
	return fmt.Sprintf("%04d-%02d", d.Year(), d.Month())
}

// MonthRange returns the first and last day of the date's calendar month.
func (d Date) MonthRange() (Date, Date) {
	first := NewDate(d.Year(), d.Month(), 1)
	last := Date{Time: first.AddDate(0, 1, -1)}
	return first, last
}

// InDepartment reports whether the user belongs to the given department.
func (u User) InDepartment(departmentID *int64) bool {
	if u.DepartmentID == nil || departmentID == nil {
		return false
	}
	return *u.DepartmentID == *departmentID
}

func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleManager, RoleFinance:
		return true
	}
	return false
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(e.Description) > maxDescriptionLen {
		return fmt.Errorf("description too long (max %d characters)", maxDescriptionLen)
	}
	if !e.Amount.IsPositive() || e.Amount.Shift(2).GreaterThan(maxCents) {
		return ErrInvalidAmount
	}
	if e.CategoryID <= 0 {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(e.Currency) == "" {
		return ErrEmptyCurrency
	}
	return nil
}
