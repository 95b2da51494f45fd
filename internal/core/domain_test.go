package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateValidate(t *testing.T) {
	cases := []struct {
		d  Date
		ok bool
	}{
		{NewDate(2025, 1, 1), true},
		{NewDate(2025, 12, 31), true},
		{Date{Time: time.Time{}}, false}, // zero time
	}
	for i, tc := range cases {
		err := tc.d.Validate()
		if tc.ok && err != nil {
			t.Fatalf("case %d expected ok, got %v", i, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestDateMonthRange(t *testing.T) {
	cases := []struct {
		d           Date
		first, last string
	}{
		{NewDate(2025, 1, 15), "2025-01-01", "2025-01-31"},
		{NewDate(2024, 2, 29), "2024-02-01", "2024-02-29"},
		{NewDate(2025, 12, 1), "2025-12-01", "2025-12-31"},
	}
	for _, tc := range cases {
		first, last := tc.d.MonthRange()
		if first.String() != tc.first || last.String() != tc.last {
			t.Fatalf("%s: got %s..%s, want %s..%s", tc.d, first, last, tc.first, tc.last)
		}
	}
	if got := NewDate(2025, 3, 9).YearMonth(); got != "2025-03" {
		t.Fatalf("YearMonth = %q", got)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate(" 2025-06-30 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Year() != 2025 || d.Month() != 6 || d.Day() != 30 {
		t.Fatalf("unexpected date %v", d)
	}
	if _, err := ParseDate("30/06/2025"); err == nil {
		t.Fatalf("expected error for non ISO date")
	}
}

func TestExpenseValidate(t *testing.T) {
	good := Expense{
		Date:        NewDate(2025, 1, 1),
		Description: "taxi",
		Amount:      decimal.RequireFromString("12.50"),
		CategoryID:  1,
		Currency:    "EUR",
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	long := make([]byte, 201)
	for i := range long {
		long[i] = 'a'
	}

	bads := []Expense{
		{Date: Date{}, Description: "a", Amount: decimal.NewFromInt(1), CategoryID: 1, Currency: "EUR"},
		{Date: NewDate(2025, 1, 1), Description: " ", Amount: decimal.NewFromInt(1), CategoryID: 1, Currency: "EUR"},
		{Date: NewDate(2025, 1, 1), Description: string(long), Amount: decimal.NewFromInt(1), CategoryID: 1, Currency: "EUR"},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: decimal.Zero, CategoryID: 1, Currency: "EUR"},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: decimal.NewFromInt(-3), CategoryID: 1, Currency: "EUR"},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: decimal.NewFromInt(1), CategoryID: 0, Currency: "EUR"},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: decimal.NewFromInt(1), CategoryID: 1, Currency: ""},
		{Date: NewDate(2025, 1, 1), Description: "a", Amount: decimal.RequireFromString("1e17"), CategoryID: 1, Currency: "EUR"},
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}

func TestExpenseValidateAmountFitsCents(t *testing.T) {
	e := Expense{Date: NewDate(2025, 1, 1), Description: "a", CategoryID: 1, Currency: "EUR"}

	e.Amount = maxCents.Shift(-2)
	if err := e.Validate(); err != nil {
		t.Fatalf("largest storable amount rejected: %v", err)
	}
	if got := ToCents(e.Amount); got != 1<<62 {
		t.Fatalf("ToCents = %d", got)
	}

	e.Amount = e.Amount.Add(decimal.New(1, -2))
	if err := e.Validate(); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestUserInDepartment(t *testing.T) {
	it, hr := int64(1), int64(2)
	u := User{ID: 1, Role: RoleManager, DepartmentID: &it}
	if !u.InDepartment(&it) {
		t.Fatalf("expected same department")
	}
	if u.InDepartment(&hr) {
		t.Fatalf("expected different department")
	}
	if u.InDepartment(nil) || (User{}).InDepartment(&it) {
		t.Fatalf("missing department must never match")
	}
}

func TestStatusTerminal(t *testing.T) {
	for _, s := range Statuses {
		if !s.IsValid() {
			t.Fatalf("%s should be valid", s)
		}
		want := s == StatusApprovedByFinance || s == StatusRejected
		if s.IsTerminal() != want {
			t.Fatalf("%s terminal = %v", s, s.IsTerminal())
		}
	}
	if ExpenseStatus("DRAFT").IsValid() {
		t.Fatalf("unknown status must be invalid")
	}
}
