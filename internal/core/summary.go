package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Period is a half-open [Start, End) time interval.
type Period struct {
	Start time.Time `json:"start_date"`
	End   time.Time `json:"end_date"`
}

// Contains reports whether t falls inside [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return NewValidationError("period", "start and end are required")
	}
	if !p.End.After(p.Start) {
		return NewValidationError("period", "end must be after start")
	}
	return nil
}

// CategoryStat is derived on every query, never stored.
type CategoryStat struct {
	Category         string          `json:"category"`
	Total            decimal.Decimal `json:"total"`
	Percentage       decimal.Decimal `json:"percentage"`
	TransactionCount int             `json:"transaction_count"`
	Average          decimal.Decimal `json:"average"`
}

// PaymentTypeStat totals spending per payment method.
type PaymentTypeStat struct {
	PaymentType      PaymentType     `json:"payment_type"`
	Total            decimal.Decimal `json:"total"`
	TransactionCount int             `json:"transaction_count"`
}

// Statistics is the aggregate view of a period.
type Statistics struct {
	TotalSpent         decimal.Decimal   `json:"total_spent"`
	TotalTransactions  int               `json:"total_transactions"`
	AverageTransaction decimal.Decimal   `json:"average_transaction"`
	ByCategory         []CategoryStat    `json:"by_category"`
	ByPaymentType      []PaymentTypeStat `json:"by_payment_type"`
	Period             Period            `json:"period"`
}

// BudgetStatus is the outcome of the overrun rule.
type BudgetStatus struct {
	IsOverrunRisk bool            `json:"is_overrun_risk"`
	Severity      Severity        `json:"severity"`
	Message       string          `json:"message"`
	PercentUsed   decimal.Decimal `json:"percent_used"`
	TotalSpent    decimal.Decimal `json:"total_spent"`
	MonthlyBudget decimal.Decimal `json:"monthly_budget"`
	Remaining     decimal.Decimal `json:"remaining_budget"`

	// Month-end projection at the current daily rate. Informational only.
	ProjectedTotal        decimal.Decimal `json:"projected_total"`
	DaysRemaining         int             `json:"days_remaining"`
	RecommendedDailyLimit decimal.Decimal `json:"recommended_daily_limit"`
}

// AmountAnomaly is a single transaction flagged as a statistical outlier.
type AmountAnomaly struct {
	TransactionID string          `json:"transaction_id"`
	Category      string          `json:"category"`
	Amount        decimal.Decimal `json:"amount"`
	Expected      decimal.Decimal `json:"expected"`
	Deviation     decimal.Decimal `json:"deviation"`
	ZScore        float64         `json:"z_score"`
	Severity      Severity        `json:"severity"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// CategoryShift compares a category's spending so far this month with the
// same point of earlier months. It never raises an alert.
type CategoryShift struct {
	Category          string          `json:"category"`
	CurrentSpending   decimal.Decimal `json:"current_spending"`
	HistoricalAverage decimal.Decimal `json:"historical_average"`
	PercentChange     decimal.Decimal `json:"percent_change"`
	ZScore            float64         `json:"z_score"`
	Severity          Severity        `json:"severity"`
	Message           string          `json:"message"`
}

// FrequencyAnomaly is a day with unusually many transactions. It never
// raises an alert.
type FrequencyAnomaly struct {
	Date             string   `json:"date"`
	TransactionCount int      `json:"transaction_count"`
	ExpectedCount    float64  `json:"expected_count"`
	ZScore           float64  `json:"z_score"`
	Severity         Severity `json:"severity"`
	Message          string   `json:"message"`
}

// SkippedCategory records a category left unscored for lack of samples.
type SkippedCategory struct {
	Category string `json:"category"`
	Samples  int    `json:"samples"`
	Reason   string `json:"reason"`
}

// AnomalyResult is produced fresh per evaluation call.
type AnomalyResult struct {
	BudgetStatus       BudgetStatus       `json:"budget_status"`
	AmountAnomalies    []AmountAnomaly    `json:"amount_anomalies"`
	CategoryShifts     []CategoryShift    `json:"category_anomalies"`
	FrequencyAnomalies []FrequencyAnomaly `json:"frequency_anomalies"`
	Skipped            []SkippedCategory  `json:"skipped_categories,omitempty"`
	EvaluatedAt        time.Time          `json:"evaluated_at"`
}
