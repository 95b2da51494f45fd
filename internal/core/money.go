// Package core provides money parsing and handling utilities.
//
// Amounts are shopspring decimals rounded to two places. Storage keeps them
// as integer cents so that aggregated sums are exact.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// maxCents keeps cents conversion inside int64.
var maxCents = decimal.New(1<<62, 0)

// ParseAmount converts a decimal string to a two-place amount with half-up rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Signs,
// exponents and zero amounts are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,34")  -> 12.34, nil
//	ParseAmount("12.345") -> 12.35, nil
//	ParseAmount("12.344") -> 12.34, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	intPart := parts[0]
	if intPart == "" {
		intPart = "0"
	}
	if len(parts) == 2 && parts[1] != "" {
		intPart += "." + parts[1]
	}
	d, err := decimal.NewFromString(intPart)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	d = d.Round(2)
	if !d.IsPositive() || d.Shift(2).GreaterThan(maxCents) {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ToCents converts a two-place amount to integer cents.
func ToCents(d decimal.Decimal) int64 {
	return d.Shift(2).Round(0).IntPart()
}

// FromCents converts integer cents back to a decimal amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// FormatAmount renders an amount with exactly two decimals and the currency code.
func FormatAmount(d decimal.Decimal, currency string) string {
	if currency == "" {
		return d.StringFixed(2)
	}
	return d.StringFixed(2) + " " + currency
}
