package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"smartbudget/internal/core"

	"github.com/shopspring/decimal"
)

// Evaluator applies the budget overrun and amount outlier rules.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	th  Thresholds
	now func() time.Time
}

func NewEvaluator(th Thresholds) *Evaluator {
	return &Evaluator{th: th, now: time.Now}
}

func (e *Evaluator) Thresholds() Thresholds { return e.th }

// Evaluate scores history against its own distribution. history is the
// current period for the given profile.
func (e *Evaluator) Evaluate(history []core.ExpenseRecord, profile core.BudgetProfile) core.AnomalyResult {
	return e.EvaluateWindow(history, history, profile)
}

// EvaluateWindow checks the budget against current and scores each current
// transaction against the per-category distribution of baseline. baseline
// may include current; the records of baseline outside current are the
// history that category shifts compare against.
func (e *Evaluator) EvaluateWindow(current, baseline []core.ExpenseRecord, profile core.BudgetProfile) core.AnomalyResult {
	now := e.now().UTC()
	anomalies, skipped := e.AmountAnomalies(current, baseline)

	inCurrent := make(map[string]bool, len(current))
	for _, r := range current {
		inCurrent[r.ID] = true
	}
	historical := make([]core.ExpenseRecord, 0, len(baseline))
	for _, r := range baseline {
		if !inCurrent[r.ID] {
			historical = append(historical, r)
		}
	}

	return core.AnomalyResult{
		BudgetStatus:       ProjectBudget(e.BudgetStatus(TotalSpent(current), profile.MonthlyBudget), now),
		AmountAnomalies:    anomalies,
		CategoryShifts:     e.CategoryShifts(current, historical, now),
		FrequencyAnomalies: e.FrequencyAnomalies(current, baseline),
		Skipped:            skipped,
		EvaluatedAt:        now,
	}
}

// BudgetStatus computes the overrun tier. A zero budget yields zero percent
// and no risk.
func (e *Evaluator) BudgetStatus(spent, budget decimal.Decimal) core.BudgetStatus {
	status := core.BudgetStatus{
		PercentUsed:   decimal.Zero,
		TotalSpent:    spent,
		MonthlyBudget: budget,
		Remaining:     budget.Sub(spent),
	}
	if !budget.IsPositive() {
		status.Remaining = decimal.Zero
		status.Message = "No monthly budget configured"
		return status
	}

	percent := spent.Div(budget).Mul(hundred)
	status.PercentUsed = percent.Round(2)

	switch {
	case percent.GreaterThan(decimal.NewFromFloat(e.th.HighPercent)):
		status.Severity = core.SeverityHigh
	case percent.GreaterThan(decimal.NewFromFloat(e.th.MediumPercent)):
		status.Severity = core.SeverityMedium
	case percent.GreaterThan(decimal.NewFromFloat(e.th.OverrunPercent)):
		status.Severity = core.SeverityLow
	}
	status.IsOverrunRisk = status.Severity != core.SeverityNone

	if status.IsOverrunRisk {
		status.Message = fmt.Sprintf("You have used %s%% of your monthly budget (%s risk)",
			percent.StringFixed(1), status.Severity)
	} else {
		status.Message = fmt.Sprintf("Spending is within budget (%s%% used)", percent.StringFixed(1))
	}
	return status
}

type categorySample struct {
	amounts []float64
	mean    float64
	stddev  float64
}

// AmountAnomalies flags current transactions whose |z| exceeds the
// threshold. Categories with fewer than MinSamples baseline transactions are
// returned as skipped instead of scored.
func (e *Evaluator) AmountAnomalies(current, baseline []core.ExpenseRecord) ([]core.AmountAnomaly, []core.SkippedCategory) {
	samples := map[string]*categorySample{}
	for _, r := range baseline {
		s, ok := samples[r.Category]
		if !ok {
			s = &categorySample{}
			samples[r.Category] = s
		}
		s.amounts = append(s.amounts, r.Amount.InexactFloat64())
	}
	for _, s := range samples {
		s.mean, s.stddev = meanStdDev(s.amounts)
	}

	anomalies := []core.AmountAnomaly{}
	var skipped []core.SkippedCategory
	reported := map[string]bool{}

	for _, r := range current {
		s := samples[r.Category]
		n := 0
		if s != nil {
			n = len(s.amounts)
		}
		if n < e.th.MinSamples {
			if !reported[r.Category] {
				reported[r.Category] = true
				skipped = append(skipped, core.SkippedCategory{
					Category: r.Category,
					Samples:  n,
					Reason:   core.ErrInsufficientSample.Error(),
				})
			}
			continue
		}

		z := zScore(r.Amount.InexactFloat64(), s.mean, s.stddev)
		absZ := math.Abs(z)
		if absZ <= e.th.ZScore {
			continue
		}
		severity := core.SeverityMedium
		if absZ > e.th.HighZScore {
			severity = core.SeverityHigh
		}
		mean := decimal.NewFromFloat(s.mean)
		anomalies = append(anomalies, core.AmountAnomaly{
			TransactionID: r.ID,
			Category:      r.Category,
			Amount:        r.Amount,
			Expected:      mean.Round(2),
			Deviation:     r.Amount.Sub(mean).Round(2),
			ZScore:        z,
			Severity:      severity,
			OccurredAt:    r.OccurredAt,
		})
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		a, b := anomalies[i], anomalies[j]
		if za, zb := math.Abs(a.ZScore), math.Abs(b.ZScore); za != zb {
			return za > zb
		}
		if !a.OccurredAt.Equal(b.OccurredAt) {
			return a.OccurredAt.After(b.OccurredAt)
		}
		return a.TransactionID < b.TransactionID
	})
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Category < skipped[j].Category })

	return anomalies, skipped
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)))
}

// zScore is zero when the distribution has no spread. Float summation can
// leave a residue of a few ulps on identical amounts, hence the tolerance.
func zScore(x, mean, stddev float64) float64 {
	if math.IsNaN(stddev) || stddev <= 1e-9*math.Max(1, math.Abs(mean)) {
		return 0
	}
	return (x - mean) / stddev
}
