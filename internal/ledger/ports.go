// Package ledger defines the payout ledger that finance-approved expenses
// are exported to.
package ledger

import (
	"context"
	"fmt"

	"rimborsi/internal/core"
)

// Writer appends one payout row per expense. Appending an expense that is
// already in the ledger returns its existing row reference.
type Writer interface {
	Append(ctx context.Context, e core.Expense) (rowRef string, err error)
}

// Header is the column layout of a payout row.
var Header = []string{"Expense ID", "Date", "Owner ID", "Category ID", "Description", "Amount", "Currency", "Receipt"}

// CheckExportable rejects expenses that are not finance-approved or are invalid.
func CheckExportable(e core.Expense) error {
	if e.ID <= 0 {
		return fmt.Errorf("expense has no ID")
	}
	if e.Status != core.StatusApprovedByFinance {
		return fmt.Errorf("expense %d is %s, only %s expenses are paid out", e.ID, e.Status, core.StatusApprovedByFinance)
	}
	if err := e.Validate(); err != nil {
		return fmt.Errorf("expense %d: %w", e.ID, err)
	}
	return nil
}

// Row renders an expense in Header order.
func Row(e core.Expense) []any {
	return []any{
		e.ID,
		e.Date.String(),
		e.OwnerID,
		e.CategoryID,
		e.Description,
		e.Amount.StringFixed(2),
		e.Currency,
		e.ReceiptRef,
	}
}
