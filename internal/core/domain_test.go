package core

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validExpense() ExpenseRecord {
	return ExpenseRecord{
		ID:          "e1",
		UserID:      "u1",
		Amount:      decimal.RequireFromString("12.50"),
		Category:    "Food",
		PaymentType: PaymentCash,
		OccurredAt:  time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestExpenseValidate(t *testing.T) {
	if err := validExpense().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []func(*ExpenseRecord){
		func(e *ExpenseRecord) { e.UserID = "" },
		func(e *ExpenseRecord) { e.Amount = decimal.Zero },
		func(e *ExpenseRecord) { e.Amount = decimal.NewFromInt(-3) },
		func(e *ExpenseRecord) { e.Category = "  " },
		func(e *ExpenseRecord) { e.Category = strings.Repeat("é", MaxCategoryLength+1) },
		func(e *ExpenseRecord) { e.PaymentType = "barter" },
		func(e *ExpenseRecord) { e.OccurredAt = time.Time{} },
	}
	for i, mutate := range bads {
		e := validExpense()
		mutate(&e)
		err := e.Validate()
		if err == nil {
			t.Fatalf("case %d expected error", i)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("case %d expected validation error, got %v", i, err)
		}
	}
}

func TestValidateCategory(t *testing.T) {
	tests := []struct {
		name     string
		category string
		ok       bool
	}{
		{"plain", "Food", true},
		{"at limit in multibyte", strings.Repeat("é", MaxCategoryLength), true},
		{"over limit", strings.Repeat("a", MaxCategoryLength+1), false},
		{"blank", " \t", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCategory(tt.category)
			if (err == nil) != tt.ok {
				t.Fatalf("ValidateCategory() = %v, want ok=%v", err, tt.ok)
			}
			var ve *ValidationError
			if err != nil && (!errors.As(err, &ve) || ve.Field != "category") {
				t.Fatalf("expected a category validation error, got %v", err)
			}
		})
	}
}

func TestExpenseNormalize(t *testing.T) {
	e := ExpenseRecord{Category: " Food ", Tags: []string{"a", " a", "", "b"}}
	e.Normalize()
	if e.Category != "Food" {
		t.Fatalf("category not trimmed: %q", e.Category)
	}
	if e.PaymentType != PaymentOther {
		t.Fatalf("expected default payment type, got %q", e.PaymentType)
	}
	if len(e.Tags) != 2 || e.Tags[0] != "a" || e.Tags[1] != "b" {
		t.Fatalf("unexpected tags: %v", e.Tags)
	}
}

func TestBudgetProfileValidate(t *testing.T) {
	ok := BudgetProfile{UserID: "u1", MonthlyBudget: decimal.Zero, MonthlyIncome: decimal.NewFromInt(10)}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	neg := BudgetProfile{UserID: "u1", MonthlyBudget: decimal.NewFromInt(-1)}
	var verr *ValidationError
	if err := neg.Validate(); !errors.As(err, &verr) || verr.Field != "monthly_budget" {
		t.Fatalf("expected monthly_budget validation error, got %v", err)
	}
}

func TestAlertMarkAsReadIdempotent(t *testing.T) {
	a := AlertRecord{ID: "a1"}
	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	if !a.MarkAsRead(first) {
		t.Fatalf("first transition should report a change")
	}
	if a.MarkAsRead(first.Add(time.Hour)) {
		t.Fatalf("second transition should be a no-op")
	}
	if !a.IsRead || a.ReadAt == nil || !a.ReadAt.Equal(first) {
		t.Fatalf("read_at changed: %v", a.ReadAt)
	}
}

func TestAlertValidate(t *testing.T) {
	a := AlertRecord{
		UserID:    "u1",
		AlertType: AlertAnomaly,
		Title:     "Unusual Spending Detected",
		Message:   "Unusual Food expense",
		Priority:  PriorityHigh,
		DedupKey:  "u1|anomaly|Food|2025-01-01",
	}
	if err := a.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	a.DedupKey = ""
	if err := a.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing dedup key should fail validation, got %v", err)
	}
}

func TestAlertFilterPaging(t *testing.T) {
	f := AlertFilter{Page: 0, Limit: 500}.Normalized()
	if f.Page != 1 || f.Limit != MaxAlertPageSize {
		t.Fatalf("unexpected normalization: %+v", f)
	}
	page := NewAlertPage(nil, AlertFilter{Page: 2, Limit: 10}, 25, 3)
	if page.Pages != 3 || page.Alerts == nil || page.UnreadCount != 3 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if off := (AlertFilter{Page: 3, Limit: 10}).Offset(); off != 20 {
		t.Fatalf("unexpected offset %d", off)
	}
}

func TestUnavailableClassification(t *testing.T) {
	err := Unavailable("query expenses", errors.New("disk I/O error"))
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected data unavailable, got %v", err)
	}
	v := NewValidationError("amount", "bad")
	if got := Unavailable("op", v); got != error(v) {
		t.Fatalf("validation errors must pass through unchanged")
	}
	if Unavailable("op", nil) != nil {
		t.Fatalf("nil stays nil")
	}
}
