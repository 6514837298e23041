package analytics

import (
	"fmt"
	"strings"
	"time"

	"smartbudget/internal/core"

	"github.com/shopspring/decimal"
)

// noCategory stands in for the category slot of rules that are not
// category-scoped.
const noCategory = "-"

// maxLabelRunes bounds a category quoted in a title or message. Metadata
// and dedup keys keep the full name.
const maxLabelRunes = 40

func label(category string) string {
	r := []rune(category)
	if len(r) <= maxLabelRunes {
		return category
	}
	return string(r[:maxLabelRunes-1]) + "…"
}

// DedupKey identifies the condition an alert reports: at most one alert per
// key may exist.
func DedupKey(userID string, alertType core.AlertType, category string, at time.Time) string {
	if category == "" {
		category = noCategory
	}
	return strings.Join([]string{userID, string(alertType), category, core.DayKey(at)}, "|")
}

// BuildAlerts turns the rules that fired in result into alert records.
// Overrun risk fires for medium and high severity; amount anomalies only for
// high severity, one alert per category.
func BuildAlerts(userID string, result core.AnomalyResult, now time.Time) []core.AlertRecord {
	now = now.UTC()
	var alerts []core.AlertRecord

	bs := result.BudgetStatus
	if bs.IsOverrunRisk && bs.Severity != core.SeverityLow {
		alertType, priority, title := core.AlertBudgetWarning, core.PriorityMedium, "Budget Alert"
		if bs.Severity == core.SeverityHigh {
			alertType, priority, title = core.AlertOverspending, core.PriorityHigh, "Monthly Budget Exceeded"
		}
		alerts = append(alerts, core.AlertRecord{
			ID:        core.NewID(),
			UserID:    userID,
			AlertType: alertType,
			Title:     title,
			Message:   bs.Message,
			Priority:  priority,
			Metadata: map[string]any{
				"percent_used":   bs.PercentUsed.InexactFloat64(),
				"severity":       string(bs.Severity),
				"total_spent":    bs.TotalSpent.InexactFloat64(),
				"monthly_budget": bs.MonthlyBudget.InexactFloat64(),
			},
			DedupKey:  DedupKey(userID, alertType, "", now),
			CreatedAt: now,
		})
	}

	seen := map[string]bool{}
	for _, a := range result.AmountAnomalies {
		if a.Severity != core.SeverityHigh || seen[a.Category] {
			continue
		}
		seen[a.Category] = true
		alerts = append(alerts, core.AlertRecord{
			ID:        core.NewID(),
			UserID:    userID,
			AlertType: core.AlertAnomaly,
			Title:     "Unusual Spending Detected",
			Message: fmt.Sprintf("Unusual %s expense: %s (expected ~%s)",
				label(a.Category), a.Amount.StringFixed(2), a.Expected.StringFixed(2)),
			Priority: core.PriorityHigh,
			Metadata: map[string]any{
				"transaction_id": a.TransactionID,
				"category":       a.Category,
				"amount":         a.Amount.InexactFloat64(),
				"expected":       a.Expected.InexactFloat64(),
				"deviation":      a.Deviation.InexactFloat64(),
				"z_score":        a.ZScore,
			},
			DedupKey:  DedupKey(userID, core.AlertAnomaly, a.Category, now),
			CreatedAt: now,
		})
	}
	return alerts
}

// CategoryBudgetAlert returns a budget warning when spent reaches the warn
// tier of limit. ok is false when no alert is due or limit is not positive.
func (e *Evaluator) CategoryBudgetAlert(userID, category string, spent, limit decimal.Decimal, now time.Time) (core.AlertRecord, bool) {
	if !limit.IsPositive() {
		return core.AlertRecord{}, false
	}
	percent := spent.Div(limit).Mul(hundred)
	if percent.LessThan(decimal.NewFromFloat(e.th.CategoryWarnPercent)) {
		return core.AlertRecord{}, false
	}
	priority := core.PriorityMedium
	if percent.GreaterThanOrEqual(decimal.NewFromFloat(e.th.CategoryHighPercent)) {
		priority = core.PriorityHigh
	}
	now = now.UTC()
	return core.AlertRecord{
		ID:        core.NewID(),
		UserID:    userID,
		AlertType: core.AlertBudgetWarning,
		Title:     label(category) + " Budget Alert",
		Message: fmt.Sprintf("You have used %s%% of your %s budget (%s of %s)",
			percent.StringFixed(0), label(category), spent.StringFixed(2), limit.StringFixed(2)),
		Priority: priority,
		Metadata: map[string]any{
			"category":         category,
			"current_spending": spent.InexactFloat64(),
			"budget_limit":     limit.InexactFloat64(),
			"percent_used":     percent.Round(2).InexactFloat64(),
		},
		DedupKey:  DedupKey(userID, core.AlertBudgetWarning, category, now),
		CreatedAt: now,
	}, true
}
