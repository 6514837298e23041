package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"smartbudget/internal/core"

	"github.com/shopspring/decimal"
)

// ProjectBudget fills the month-end projection of status as of asOf: the
// spending rate so far carried to the end of the calendar month, and the
// daily amount that would keep the rest of the month within budget.
func ProjectBudget(status core.BudgetStatus, asOf time.Time) core.BudgetStatus {
	asOf = asOf.UTC()
	start, end := core.MonthRange(asOf)
	daysInMonth := int(end.Sub(start).Hours() / 24)
	daysPassed := asOf.Day()

	status.ProjectedTotal = status.TotalSpent.
		Div(decimal.NewFromInt(int64(daysPassed))).
		Mul(decimal.NewFromInt(int64(daysInMonth))).
		Round(2)
	status.DaysRemaining = daysInMonth - daysPassed
	status.RecommendedDailyLimit = decimal.Zero
	if status.MonthlyBudget.IsPositive() && status.DaysRemaining > 0 {
		left := status.MonthlyBudget.Sub(status.TotalSpent)
		if left.IsPositive() {
			status.RecommendedDailyLimit = left.DivRound(decimal.NewFromInt(int64(status.DaysRemaining)), 2)
		}
	}
	return status
}

// CategoryShifts compares each category's spending in current with what
// historical shows for the same days of earlier calendar months (day 1
// through asOf's day). Months in historical with no spending in a category
// count as zero for it. Nothing is reported until historical holds
// ShiftMinHistory records over at least two months.
func (e *Evaluator) CategoryShifts(current, historical []core.ExpenseRecord, asOf time.Time) []core.CategoryShift {
	shifts := []core.CategoryShift{}
	if len(historical) < e.th.ShiftMinHistory {
		return shifts
	}
	cutoff := asOf.UTC().Day()

	months := map[string]bool{}
	totals := map[string]map[string]float64{}
	for _, r := range historical {
		at := r.OccurredAt.UTC()
		month := at.Format("2006-01")
		months[month] = true
		if _, ok := totals[r.Category]; !ok {
			totals[r.Category] = map[string]float64{}
		}
		if at.Day() <= cutoff {
			totals[r.Category][month] += r.Amount.InexactFloat64()
		}
	}
	if len(months) < 2 {
		return shifts
	}

	recent := map[string]decimal.Decimal{}
	for _, r := range current {
		recent[r.Category] = recent[r.Category].Add(r.Amount)
	}

	for category, byMonth := range totals {
		values := make([]float64, 0, len(months))
		for month := range months {
			values = append(values, byMonth[month])
		}
		mean, stddev := meanSampleStdDev(values)
		if mean <= 0 {
			continue
		}
		spent := recent[category]
		z := (spent.InexactFloat64() - mean) / (stddev + 1)
		if math.Abs(z) <= e.th.ZScore {
			continue
		}

		avg := decimal.NewFromFloat(mean)
		change := spent.Sub(avg).Div(avg).Mul(hundred)
		severity := core.SeverityMedium
		if change.Abs().GreaterThan(decimal.NewFromFloat(e.th.ShiftHighPercent)) {
			severity = core.SeverityHigh
		}
		direction := "increased"
		if change.IsNegative() {
			direction = "decreased"
		}
		shifts = append(shifts, core.CategoryShift{
			Category:          category,
			CurrentSpending:   spent.Round(2),
			HistoricalAverage: avg.Round(2),
			PercentChange:     change.Round(2),
			ZScore:            z,
			Severity:          severity,
			Message: fmt.Sprintf("%s spending %s by %s%% compared with earlier months",
				label(category), direction, change.Abs().StringFixed(1)),
		})
	}

	sort.Slice(shifts, func(i, j int) bool {
		a, b := shifts[i], shifts[j]
		if c := a.PercentChange.Abs().Cmp(b.PercentChange.Abs()); c != 0 {
			return c > 0
		}
		return a.Category < b.Category
	})
	return shifts
}

// FrequencyAnomalies flags days in current whose transaction count sits
// well above the daily count distribution of baseline. Only days with at
// least one transaction form the distribution, and at least MinSamples of
// them are needed.
func (e *Evaluator) FrequencyAnomalies(current, baseline []core.ExpenseRecord) []core.FrequencyAnomaly {
	anomalies := []core.FrequencyAnomaly{}

	daily := map[string]int{}
	for _, r := range baseline {
		daily[core.DayKey(r.OccurredAt)]++
	}
	if len(daily) < e.th.MinSamples {
		return anomalies
	}
	counts := make([]float64, 0, len(daily))
	for _, n := range daily {
		counts = append(counts, float64(n))
	}
	mean, stddev := meanSampleStdDev(counts)
	if stddev <= 0 {
		return anomalies
	}

	seen := map[string]bool{}
	for _, r := range current {
		day := core.DayKey(r.OccurredAt)
		if seen[day] {
			continue
		}
		seen[day] = true

		count := daily[day]
		z := (float64(count) - mean) / stddev
		if z <= e.th.ZScore {
			continue
		}
		severity := core.SeverityMedium
		if z > e.th.HighZScore {
			severity = core.SeverityHigh
		}
		anomalies = append(anomalies, core.FrequencyAnomaly{
			Date:             day,
			TransactionCount: count,
			ExpectedCount:    math.Round(mean*10) / 10,
			ZScore:           z,
			Severity:         severity,
			Message:          fmt.Sprintf("Unusual number of transactions on %s: %d (expected ~%.0f)", day, count, mean),
		})
	}

	sort.Slice(anomalies, func(i, j int) bool { return anomalies[i].Date < anomalies[j].Date })
	return anomalies
}

// meanSampleStdDev returns the mean and the sample (n-1) standard deviation.
// The deviation is zero for fewer than two values.
func meanSampleStdDev(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(xs)-1))
}
