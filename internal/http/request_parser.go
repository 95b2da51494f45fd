package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rimborsi/internal/core"
	"rimborsi/internal/services"
)

const maxBodyBytes = 1 << 20

// amountField accepts an amount as a JSON string ("12.34", "12,34") or number.
type amountField struct {
	value decimal.Decimal
}

func (a *amountField) UnmarshalJSON(b []byte) error {
	raw := string(bytes.TrimSpace(b))
	if strings.HasPrefix(raw, `"`) {
		s, err := strconv.Unquote(raw)
		if err != nil {
			return core.ErrInvalidAmount
		}
		raw = s
	}
	d, err := core.ParseAmount(raw)
	if err != nil {
		return err
	}
	a.value = d
	return nil
}

// dateField is a YYYY-MM-DD calendar date.
type dateField struct {
	value core.Date
}

func (d *dateField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a YYYY-MM-DD string")
	}
	parsed, err := core.ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	d.value = parsed
	return nil
}

type createExpenseBody struct {
	CategoryID  int64        `json:"category_id"`
	Currency    string       `json:"currency"`
	Amount      *amountField `json:"amount"`
	Date        *dateField   `json:"date"`
	Description string       `json:"description"`
	ReceiptRef  string       `json:"receipt_ref"`
}

type updateExpenseBody struct {
	CategoryID  *int64       `json:"category_id"`
	Currency    *string      `json:"currency"`
	Amount      *amountField `json:"amount"`
	Date        *dateField   `json:"date"`
	Description *string      `json:"description"`
	ReceiptRef  *string      `json:"receipt_ref"`
}

// decodeJSON reads a single JSON object from the body, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return core.Invalid(op, errors.New("request body is empty"))
		}
		return core.Invalid(op, err)
	}
	if dec.More() {
		return core.Invalid(op, errors.New("request body must hold a single JSON object"))
	}
	return nil
}

// parseCreateRequest builds a create request; the date defaults to today (UTC).
func parseCreateRequest(w http.ResponseWriter, r *http.Request, op string, now time.Time) (services.CreateExpenseRequest, error) {
	var body createExpenseBody
	if err := decodeJSON(w, r, op, &body); err != nil {
		return services.CreateExpenseRequest{}, err
	}
	if body.Amount == nil {
		return services.CreateExpenseRequest{}, core.Invalid(op, core.ErrInvalidAmount)
	}

	date := core.NewDate(now.UTC().Year(), int(now.UTC().Month()), now.UTC().Day())
	if body.Date != nil {
		date = body.Date.value
	}

	return services.CreateExpenseRequest{
		CategoryID:  body.CategoryID,
		Currency:    body.Currency,
		Amount:      body.Amount.value,
		Date:        date,
		Description: sanitizeInput(body.Description),
		ReceiptRef:  sanitizeInput(body.ReceiptRef),
	}, nil
}

func parseUpdateRequest(w http.ResponseWriter, r *http.Request, op string) (services.UpdateExpenseRequest, error) {
	var body updateExpenseBody
	if err := decodeJSON(w, r, op, &body); err != nil {
		return services.UpdateExpenseRequest{}, err
	}

	req := services.UpdateExpenseRequest{
		CategoryID: body.CategoryID,
		Currency:   body.Currency,
	}
	if body.Amount != nil {
		req.Amount = &body.Amount.value
	}
	if body.Date != nil {
		req.Date = &body.Date.value
	}
	if body.Description != nil {
		s := sanitizeInput(*body.Description)
		req.Description = &s
	}
	if body.ReceiptRef != nil {
		s := sanitizeInput(*body.ReceiptRef)
		req.ReceiptRef = &s
	}
	return req, nil
}

// pathID parses the {id} path segment as a positive integer.
func pathID(r *http.Request, op string) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Invalid(op, fmt.Errorf("invalid expense id %q", raw))
	}
	return id, nil
}

// sanitizeInput drops control characters other than tab and newlines, and trims.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}
