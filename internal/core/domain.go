package core

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	PaymentCash         PaymentType = "cash"
	PaymentCreditCard   PaymentType = "credit_card"
	PaymentDebitCard    PaymentType = "debit_card"
	PaymentBankTransfer PaymentType = "bank_transfer"
	PaymentUPI          PaymentType = "upi"
	PaymentOther        PaymentType = "other"
)

const (
	AlertBudgetWarning AlertType = "budget_warning"
	AlertOverspending  AlertType = "overspending"
	AlertGoalAchieved  AlertType = "goal_achieved"
	AlertAnomaly       AlertType = "anomaly"
	AlertReminder      AlertType = "reminder"
)

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

const (
	SeverityNone   Severity = ""
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type (
	PaymentType string
	AlertType   string
	Priority    string
	Severity    string

	// ExpenseRecord is a single spending transaction owned by UserID.
	ExpenseRecord struct {
		ID          string          `json:"id"`
		UserID      string          `json:"user_id"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		PaymentType PaymentType     `json:"payment_type"`
		OccurredAt  time.Time       `json:"occurred_at"`
		Notes       string          `json:"notes,omitempty"`
		Tags        []string        `json:"tags,omitempty"`
		CreatedAt   time.Time       `json:"created_at"`
		UpdatedAt   time.Time       `json:"updated_at"`
	}

	// BudgetProfile is read-only input to the evaluator.
	BudgetProfile struct {
		UserID        string          `json:"user_id"`
		MonthlyBudget decimal.Decimal `json:"monthly_budget"`
		MonthlyIncome decimal.Decimal `json:"monthly_income"`
	}

	// AlertRecord is a persisted notification. Only MarkAsRead mutates it.
	AlertRecord struct {
		ID        string         `json:"id"`
		UserID    string         `json:"user_id"`
		AlertType AlertType      `json:"alert_type"`
		Title     string         `json:"title"`
		Message   string         `json:"message"`
		Priority  Priority       `json:"priority"`
		IsRead    bool           `json:"is_read"`
		Metadata  map[string]any `json:"metadata"`
		DedupKey  string         `json:"-"`
		CreatedAt time.Time      `json:"created_at"`
		ReadAt    *time.Time     `json:"read_at"`
	}

	// AlertFilter narrows alert listings. Zero values mean "any".
	AlertFilter struct {
		AlertType AlertType
		Priority  Priority
		IsRead    *bool
		Start     time.Time
		End       time.Time
		Page      int
		Limit     int
	}

	// AlertPage is one page of alerts plus counters for the UI badge.
	AlertPage struct {
		Alerts      []AlertRecord `json:"alerts"`
		UnreadCount int           `json:"unread_count"`
		Page        int           `json:"page"`
		Limit       int           `json:"limit"`
		Total       int           `json:"total"`
		Pages       int           `json:"pages"`
	}
)

const (
	DefaultAlertPageSize = 20
	MaxAlertPageSize     = 100
	MaxCategoryLength    = 100
	maxNotesLength       = 500
	maxTitleLength       = 200
	maxMessageLength     = 1000
)

// NewID returns a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

func (p PaymentType) IsValid() bool {
	switch p {
	case PaymentCash, PaymentCreditCard, PaymentDebitCard, PaymentBankTransfer, PaymentUPI, PaymentOther:
		return true
	}
	return false
}

func (t AlertType) IsValid() bool {
	switch t {
	case AlertBudgetWarning, AlertOverspending, AlertGoalAchieved, AlertAnomaly, AlertReminder:
		return true
	}
	return false
}

func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Normalize fills defaults that callers are allowed to omit.
func (e *ExpenseRecord) Normalize() {
	e.Category = strings.TrimSpace(e.Category)
	e.Notes = strings.TrimSpace(e.Notes)
	if e.PaymentType == "" {
		e.PaymentType = PaymentOther
	}
	e.Tags = dedupeTags(e.Tags)
}

func (e ExpenseRecord) Validate() error {
	if strings.TrimSpace(e.UserID) == "" {
		return NewValidationError("user_id", "must not be empty")
	}
	if !e.Amount.IsPositive() {
		return NewValidationError("amount", "must be greater than zero")
	}
	if err := ValidateCategory(e.Category); err != nil {
		return err
	}
	if !e.PaymentType.IsValid() {
		return NewValidationError("payment_type", "unknown payment type "+string(e.PaymentType))
	}
	if e.OccurredAt.IsZero() {
		return NewValidationError("occurred_at", "must be set")
	}
	if len(e.Notes) > maxNotesLength {
		return NewValidationError("notes", "too long (max 500 characters)")
	}
	return nil
}

// ValidateCategory rejects blank names and names over MaxCategoryLength
// characters.
func ValidateCategory(category string) error {
	if strings.TrimSpace(category) == "" {
		return NewValidationError("category", "must not be empty")
	}
	if utf8.RuneCountInString(category) > MaxCategoryLength {
		return NewValidationError("category", "too long (max 100 characters)")
	}
	return nil
}

func (p BudgetProfile) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return NewValidationError("user_id", "must not be empty")
	}
	if p.MonthlyBudget.IsNegative() {
		return NewValidationError("monthly_budget", "must not be negative")
	}
	if p.MonthlyIncome.IsNegative() {
		return NewValidationError("monthly_income", "must not be negative")
	}
	return nil
}

// Validate rejects alerts that would be persisted with missing fields.
func (a AlertRecord) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return NewValidationError("user_id", "must not be empty")
	}
	if !a.AlertType.IsValid() {
		return NewValidationError("alert_type", "unknown alert type "+string(a.AlertType))
	}
	if n := len(strings.TrimSpace(a.Title)); n < 3 || n > maxTitleLength {
		return NewValidationError("title", "must be between 3 and 200 characters")
	}
	if n := len(strings.TrimSpace(a.Message)); n < 5 || n > maxMessageLength {
		return NewValidationError("message", "must be between 5 and 1000 characters")
	}
	if !a.Priority.IsValid() {
		return NewValidationError("priority", "unknown priority "+string(a.Priority))
	}
	if a.DedupKey == "" {
		return NewValidationError("dedup_key", "must not be empty")
	}
	return nil
}

// MarkAsRead moves the alert to the Read state. Already-read alerts keep
// their original ReadAt.
func (a *AlertRecord) MarkAsRead(now time.Time) bool {
	if a.IsRead {
		return false
	}
	a.IsRead = true
	t := now.UTC()
	a.ReadAt = &t
	return true
}

// Matches reports whether the alert passes every non-zero filter field.
func (f AlertFilter) Matches(a AlertRecord) bool {
	if f.AlertType != "" && a.AlertType != f.AlertType {
		return false
	}
	if f.Priority != "" && a.Priority != f.Priority {
		return false
	}
	if f.IsRead != nil && a.IsRead != *f.IsRead {
		return false
	}
	if !f.Start.IsZero() && a.CreatedAt.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && a.CreatedAt.After(f.End) {
		return false
	}
	return true
}

// Normalized clamps paging to sane bounds.
func (f AlertFilter) Normalized() AlertFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultAlertPageSize
	}
	if f.Limit > MaxAlertPageSize {
		f.Limit = MaxAlertPageSize
	}
	return f
}

func (f AlertFilter) Offset() int {
	f = f.Normalized()
	return (f.Page - 1) * f.Limit
}

// NewAlertPage computes paging counters for a filtered total.
func NewAlertPage(alerts []AlertRecord, f AlertFilter, total, unread int) AlertPage {
	f = f.Normalized()
	if alerts == nil {
		alerts = []AlertRecord{}
	}
	return AlertPage{
		Alerts:      alerts,
		UnreadCount: unread,
		Page:        f.Page,
		Limit:       f.Limit,
		Total:       total,
		Pages:       (total + f.Limit - 1) / f.Limit,
	}
}

func dedupeTags(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
