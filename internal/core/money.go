// Package core holds the domain records and their validation.
//
// Amounts are kept as decimal.Decimal end to end; floats only appear inside
// the statistical scoring where a square root is needed.
package core

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-supplied decimal string into a positive amount
// rounded half-up to cents.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Returns a ValidationError for invalid formats, negative values or zero.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,345") -> 12.35
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, NewValidationError("amount", "must not be empty")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, NewValidationError("amount", "only positive values are allowed")
	}
	for _, r := range s {
		if !unicode.IsDigit(r) && r != '.' {
			return decimal.Zero, NewValidationError("amount", "not a number")
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError("amount", "not a number")
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, NewValidationError("amount", "must be greater than zero")
	}
	return d, nil
}

// ParseBudget parses a non-negative budget or income figure.
func ParseBudget(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError(field, "not a number")
	}
	if d.IsNegative() {
		return decimal.Zero, NewValidationError(field, "must not be negative")
	}
	return d.Round(2), nil
}

// MonthRange returns the half-open [start, end) interval of the calendar
// month containing t, in UTC.
func MonthRange(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// DayKey formats t as the UTC calendar day used in dedup keys.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
