// Package memory is an in-process store used for development and tests.
// Transactions are serialized: WithinTx holds the store lock for the whole
// callback and restores the expense table if the callback fails.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"rimborsi/internal/core"
	"rimborsi/internal/services"
)

var _ services.Store = (*Store)(nil)

type Store struct {
	mu          sync.Mutex
	nextID      int64
	expenses    map[int64]core.Expense
	exported    map[int64]bool
	users       map[int64]core.User
	categories  map[int64]core.Category
	departments map[int64]core.Department
	currencies  map[string]core.Currency
	now         func() time.Time
}

func New() *Store {
	return &Store{
		expenses:    make(map[int64]core.Expense),
		exported:    make(map[int64]bool),
		users:       make(map[int64]core.User),
		categories:  make(map[int64]core.Category),
		departments: make(map[int64]core.Department),
		currencies:  make(map[string]core.Currency),
		now:         time.Now,
	}
}

// NewSeeded returns a store with a small demo organisation.
func NewSeeded() *Store {
	s := New()
	it := int64(1)
	daily := decimal.NewFromInt(500)
	s.AddCurrency(core.Currency{Code: "EUR", Name: "Euro"})
	s.AddCurrency(core.Currency{Code: "USD", Name: "US Dollar"})
	s.AddDepartment(core.Department{ID: it, Name: "IT", DailyBudget: &daily, MonthlyBudget: decimal.NewFromInt(10000), Currency: "EUR"})
	s.AddCategory(core.Category{ID: 1, Name: "Travel", DailyBudget: decimal.NewFromInt(300), MonthlyBudget: decimal.NewFromInt(2000), Currency: "EUR"})
	s.AddCategory(core.Category{ID: 2, Name: "Meals", DailyBudget: decimal.NewFromInt(60), MonthlyBudget: decimal.NewFromInt(600), Currency: "EUR"})
	s.AddUser(core.User{ID: 1, Name: "employee", Role: core.RoleEmployee, DepartmentID: &it, Active: true})
	s.AddUser(core.User{ID: 2, Name: "alice", Role: core.RoleManager, DepartmentID: &it, Active: true})
	s.AddUser(core.User{ID: 3, Name: "bob", Role: core.RoleFinance, Active: true})
	return s
}

func (s *Store) AddUser(u core.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) AddCategory(c core.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
}

func (s *Store) AddDepartment(d core.Department) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.departments[d.ID] = d
}

func (s *Store) AddCurrency(c core.Currency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currencies[c.Code] = c
}

// PutExpense stores e as-is, keeping its ID and status. Version defaults to 1.
func (s *Store) PutExpense(e core.Expense) core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		s.nextID++
		e.ID = s.nextID
	} else if e.ID > s.nextID {
		s.nextID = e.ID
	}
	if e.Version == 0 {
		e.Version = 1
	}
	s.expenses[e.ID] = e
	return e
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx services.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := maps.Clone(s.expenses)
	nextID := s.nextID
	if err := fn(ctx, (*txView)(s)); err != nil {
		s.expenses = snapshot
		s.nextID = nextID
		return err
	}
	return nil
}

func (s *Store) FindExpense(ctx context.Context, id int64) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txView)(s).FindExpense(ctx, id)
}

func (s *Store) SaveExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txView)(s).SaveExpense(ctx, e)
}

func (s *Store) DeleteExpense(ctx context.Context, id, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txView)(s).DeleteExpense(ctx, id, version)
}

func (s *Store) FindUser(ctx context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txView)(s).FindUser(ctx, id)
}

func (s *Store) FindCategory(ctx context.Context, id int64) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txView)(s).FindCategory(ctx, id)
}

func (s *Store) FindDepartment(ctx context.Context, id int64) (core.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txView)(s).FindDepartment(ctx, id)
}

func (s *Store) FindCurrency(ctx context.Context, code string) (core.Currency, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txView)(s).FindCurrency(ctx, code)
}

func (s *Store) SumByUserCategoryOnDate(ctx context.Context, userID, categoryID int64, day core.Date, excludeID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txView)(s).SumByUserCategoryOnDate(ctx, userID, categoryID, day, excludeID)
}

func (s *Store) SumByUserCategoryBetween(ctx context.Context, userID, categoryID int64, from, to core.Date, excludeID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txView)(s).SumByUserCategoryBetween(ctx, userID, categoryID, from, to, excludeID)
}

func (s *Store) SumByDepartmentOnDate(ctx context.Context, departmentID int64, day core.Date, excludeID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txView)(s).SumByDepartmentOnDate(ctx, departmentID, day, excludeID)
}

func (s *Store) SumByDepartmentBetween(ctx context.Context, departmentID int64, from, to core.Date, excludeID int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*txView)(s).SumByDepartmentBetween(ctx, departmentID, from, to, excludeID)
}

// ListUnexported returns finance-approved expenses not yet exported, oldest first.
func (s *Store) ListUnexported(_ context.Context, limit int) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []core.Expense
	for id, e := range s.expenses {
		if e.Status == core.StatusApprovedByFinance && !s.exported[id] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkExported records that the expense reached the payout ledger.
func (s *Store) MarkExported(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return core.NotFound("mark exported", "expense %d not found", id)
	}
	s.exported[id] = true
	return nil
}

// txView runs repository operations with the store lock already held.
type txView Store

func (v *txView) FindExpense(_ context.Context, id int64) (core.Expense, error) {
	e, ok := v.expenses[id]
	if !ok {
		return core.Expense{}, core.NotFound("find expense", "expense %d not found", id)
	}
	return e, nil
}

func (v *txView) SaveExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	now := v.now().UTC()
	if e.ID == 0 {
		v.nextID++
		e.ID = v.nextID
		e.Version = 1
		e.CreatedAt = now
		e.UpdatedAt = now
		v.expenses[e.ID] = e
		return e, nil
	}

	current, ok := v.expenses[e.ID]
	if !ok {
		return core.Expense{}, core.NotFound("save expense", "expense %d not found", e.ID)
	}
	if current.Version != e.Version {
		return core.Expense{}, core.Conflict("save expense", "expense %d was modified concurrently", e.ID)
	}
	e.Version++
	e.CreatedAt = current.CreatedAt
	e.UpdatedAt = now
	v.expenses[e.ID] = e
	return e, nil
}

func (v *txView) DeleteExpense(_ context.Context, id, version int64) error {
	current, ok := v.expenses[id]
	if !ok {
		return core.NotFound("delete expense", "expense %d not found", id)
	}
	if current.Version != version {
		return core.Conflict("delete expense", "expense %d was modified concurrently", id)
	}
	delete(v.expenses, id)
	return nil
}

func (v *txView) FindUser(_ context.Context, id int64) (core.User, error) {
	u, ok := v.users[id]
	if !ok {
		return core.User{}, core.NotFound("find user", "user %d not found", id)
	}
	return u, nil
}

func (v *txView) FindCategory(_ context.Context, id int64) (core.Category, error) {
	c, ok := v.categories[id]
	if !ok {
		return core.Category{}, core.NotFound("find category", "category %d not found", id)
	}
	return c, nil
}

func (v *txView) FindDepartment(_ context.Context, id int64) (core.Department, error) {
	d, ok := v.departments[id]
	if !ok {
		return core.Department{}, core.NotFound("find department", "department %d not found", id)
	}
	return d, nil
}

func (v *txView) FindCurrency(_ context.Context, code string) (core.Currency, error) {
	c, ok := v.currencies[code]
	if !ok {
		return core.Currency{}, core.NotFound("find currency", "currency %q not found", code)
	}
	return c, nil
}

func (v *txView) SumByUserCategoryOnDate(_ context.Context, userID, categoryID int64, day core.Date, excludeID int64) (decimal.Decimal, error) {
	return v.sum(excludeID, day, day, func(e core.Expense) bool {
		return e.OwnerID == userID && e.CategoryID == categoryID
	}), nil
}

func (v *txView) SumByUserCategoryBetween(_ context.Context, userID, categoryID int64, from, to core.Date, excludeID int64) (decimal.Decimal, error) {
	return v.sum(excludeID, from, to, func(e core.Expense) bool {
		return e.OwnerID == userID && e.CategoryID == categoryID
	}), nil
}

func (v *txView) SumByDepartmentOnDate(_ context.Context, departmentID int64, day core.Date, excludeID int64) (decimal.Decimal, error) {
	return v.sum(excludeID, day, day, v.inDepartment(departmentID)), nil
}

func (v *txView) SumByDepartmentBetween(_ context.Context, departmentID int64, from, to core.Date, excludeID int64) (decimal.Decimal, error) {
	return v.sum(excludeID, from, to, v.inDepartment(departmentID)), nil
}

func (v *txView) inDepartment(departmentID int64) func(core.Expense) bool {
	return func(e core.Expense) bool {
		owner, ok := v.users[e.OwnerID]
		return ok && owner.DepartmentID != nil && *owner.DepartmentID == departmentID
	}
}

// sum totals non-rejected expenses dated within [from, to] that match keep.
func (v *txView) sum(excludeID int64, from, to core.Date, keep func(core.Expense) bool) decimal.Decimal {
	total := decimal.Zero
	for id, e := range v.expenses {
		if id == excludeID || e.Status == core.StatusRejected || !keep(e) {
			continue
		}
		if e.Date.Before(from.Time) || e.Date.After(to.Time) {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total
}
