package analytics

import (
	"sort"

	"smartbudget/internal/core"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Aggregate summarises the records whose OccurredAt falls in period.
// Categories are grouped by exact, case-sensitive name and ordered by
// descending total, then ascending name.
func Aggregate(records []core.ExpenseRecord, period core.Period) core.Statistics {
	stats := core.Statistics{
		TotalSpent:         decimal.Zero,
		AverageTransaction: decimal.Zero,
		ByCategory:         []core.CategoryStat{},
		ByPaymentType:      []core.PaymentTypeStat{},
		Period:             period,
	}

	byCat := map[string]*core.CategoryStat{}
	byPay := map[core.PaymentType]*core.PaymentTypeStat{}

	for _, r := range records {
		if !period.Contains(r.OccurredAt) {
			continue
		}
		stats.TotalSpent = stats.TotalSpent.Add(r.Amount)
		stats.TotalTransactions++

		cs, ok := byCat[r.Category]
		if !ok {
			cs = &core.CategoryStat{Category: r.Category, Total: decimal.Zero}
			byCat[r.Category] = cs
		}
		cs.Total = cs.Total.Add(r.Amount)
		cs.TransactionCount++

		pt := r.PaymentType
		if pt == "" {
			pt = core.PaymentOther
		}
		ps, ok := byPay[pt]
		if !ok {
			ps = &core.PaymentTypeStat{PaymentType: pt, Total: decimal.Zero}
			byPay[pt] = ps
		}
		ps.Total = ps.Total.Add(r.Amount)
		ps.TransactionCount++
	}

	if stats.TotalTransactions == 0 {
		return stats
	}

	stats.AverageTransaction = stats.TotalSpent.DivRound(decimal.NewFromInt(int64(stats.TotalTransactions)), 2)

	for _, cs := range byCat {
		cs.Average = cs.Total.DivRound(decimal.NewFromInt(int64(cs.TransactionCount)), 2)
		stats.ByCategory = append(stats.ByCategory, *cs)
	}
	sort.Slice(stats.ByCategory, func(i, j int) bool {
		a, b := stats.ByCategory[i], stats.ByCategory[j]
		if c := a.Total.Cmp(b.Total); c != 0 {
			return c > 0
		}
		return a.Category < b.Category
	})

	apportionPercentages(stats.ByCategory, stats.TotalSpent)

	for _, ps := range byPay {
		stats.ByPaymentType = append(stats.ByPaymentType, *ps)
	}
	sort.Slice(stats.ByPaymentType, func(i, j int) bool {
		a, b := stats.ByPaymentType[i], stats.ByPaymentType[j]
		if c := a.Total.Cmp(b.Total); c != 0 {
			return c > 0
		}
		return a.PaymentType < b.PaymentType
	})

	return stats
}

var percentStep = decimal.New(1, -1)

// apportionPercentages sets each category's share of total to one decimal
// place using largest remainders: every share is within 0.1 of its exact
// value and the shares add up to exactly 100.0. Ties go to the earlier
// entry of cats.
func apportionPercentages(cats []core.CategoryStat, total decimal.Decimal) {
	if len(cats) == 0 || !total.IsPositive() {
		return
	}
	type share struct {
		idx int
		rem decimal.Decimal
	}
	shares := make([]share, len(cats))
	sum := decimal.Zero
	for i := range cats {
		exact := cats[i].Total.Div(total).Mul(hundred)
		floor := exact.Truncate(1)
		cats[i].Percentage = floor
		sum = sum.Add(floor)
		shares[i] = share{idx: i, rem: exact.Sub(floor)}
	}

	missing := int(hundred.Sub(sum).Div(percentStep).Round(0).IntPart())
	sort.SliceStable(shares, func(a, b int) bool { return shares[a].rem.GreaterThan(shares[b].rem) })
	for k := 0; k < missing && k < len(shares); k++ {
		i := shares[k].idx
		cats[i].Percentage = cats[i].Percentage.Add(percentStep)
	}
}

// TotalSpent sums every record regardless of date.
func TotalSpent(records []core.ExpenseRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}
