package analytics

import (
	"fmt"
	"testing"
	"time"

	"smartbudget/internal/core"

	"github.com/shopspring/decimal"
)

var (
	periodStart = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	march       = core.Period{Start: periodStart, End: periodEnd}
)

func rec(id, category, amount string, day int) core.ExpenseRecord {
	return core.ExpenseRecord{
		ID:          id,
		UserID:      "u1",
		Amount:      decimal.RequireFromString(amount),
		Category:    category,
		PaymentType: core.PaymentCash,
		OccurredAt:  periodStart.AddDate(0, 0, day),
	}
}

func TestAggregateEmpty(t *testing.T) {
	stats := Aggregate(nil, march)
	if !stats.TotalSpent.IsZero() || stats.TotalTransactions != 0 {
		t.Fatalf("expected zero totals, got %+v", stats)
	}
	if !stats.AverageTransaction.Equal(decimal.Zero) {
		t.Fatalf("average must be exactly zero, got %s", stats.AverageTransaction)
	}
	if stats.ByCategory == nil || len(stats.ByCategory) != 0 {
		t.Fatalf("expected empty by_category, got %v", stats.ByCategory)
	}
}

func TestAggregateFiltersHalfOpenPeriod(t *testing.T) {
	records := []core.ExpenseRecord{
		rec("in-first", "Food", "10", 0),
		rec("before", "Food", "99", -1),
		{ID: "at-end", UserID: "u1", Amount: decimal.NewFromInt(50), Category: "Food", OccurredAt: periodEnd},
	}
	stats := Aggregate(records, march)
	if stats.TotalTransactions != 1 || stats.TotalSpent.String() != "10" {
		t.Fatalf("expected only the in-period record, got %+v", stats)
	}
}

func TestAggregateTotalsAndOrdering(t *testing.T) {
	records := []core.ExpenseRecord{
		rec("1", "Food", "30", 1),
		rec("2", "food", "10", 2),
		rec("3", "Travel", "30", 3),
		rec("4", "Bills", "20", 4),
		rec("5", "Bills", "10.50", 5),
	}
	stats := Aggregate(records, march)

	if stats.TotalSpent.String() != "100.5" {
		t.Fatalf("unexpected total %s", stats.TotalSpent)
	}
	if stats.AverageTransaction.String() != "20.1" {
		t.Fatalf("unexpected average %s", stats.AverageTransaction)
	}

	want := []string{"Bills", "Food", "Travel", "food"}
	if len(stats.ByCategory) != len(want) {
		t.Fatalf("unexpected categories %+v", stats.ByCategory)
	}
	for i, name := range want {
		if stats.ByCategory[i].Category != name {
			t.Fatalf("position %d: want %s got %s", i, name, stats.ByCategory[i].Category)
		}
	}
	bills := stats.ByCategory[0]
	if bills.TransactionCount != 2 || bills.Percentage.String() != "30.3" || bills.Average.String() != "15.25" {
		t.Fatalf("unexpected bills stat %+v", bills)
	}
}

func TestAggregatePercentagesSumToHundred(t *testing.T) {
	cases := map[string][]string{
		"thirds":            {"1", "1", "1"},
		"exact":             {"10", "20", "30", "40"},
		"tiny share":        {"0.01", "99.99"},
		"mixed":             {"3.33", "3.33", "3.34", "7", "11", "13.13"},
		"fourteen equal":    repeat("10.00", 14),
		"thirty equal":      repeat("1", 30),
		"seven of sevenths": repeat("7", 7),
	}
	tenth := decimal.RequireFromString("0.1")
	for name, amounts := range cases {
		t.Run(name, func(t *testing.T) {
			var records []core.ExpenseRecord
			for j, a := range amounts {
				records = append(records, rec(fmt.Sprint(j), fmt.Sprintf("C%02d", j), a, j%28))
			}
			stats := Aggregate(records, march)
			sum := decimal.Zero
			for _, c := range stats.ByCategory {
				sum = sum.Add(c.Percentage)
				exact := c.Total.Div(stats.TotalSpent).Mul(decimal.NewFromInt(100))
				if c.Percentage.Sub(exact).Abs().GreaterThanOrEqual(tenth) {
					t.Fatalf("%s: %s is not within 0.1 of %s", c.Category, c.Percentage, exact)
				}
			}
			if !sum.Equal(decimal.NewFromInt(100)) {
				t.Fatalf("percentages sum to %s", sum)
			}
		})
	}
}

func TestAggregatePercentageTiesFollowOrdering(t *testing.T) {
	stats := Aggregate([]core.ExpenseRecord{
		rec("1", "B", "1", 1),
		rec("2", "A", "1", 2),
		rec("3", "C", "1", 3),
	}, march)
	got := []string{}
	for _, c := range stats.ByCategory {
		got = append(got, c.Category+"="+c.Percentage.String())
	}
	if fmt.Sprint(got) != "[A=33.4 B=33.3 C=33.3]" {
		t.Fatalf("unexpected shares %v", got)
	}
}

func TestAggregateByPaymentType(t *testing.T) {
	r1 := rec("1", "Food", "10", 1)
	r2 := rec("2", "Food", "5", 2)
	r2.PaymentType = core.PaymentCreditCard
	r3 := rec("3", "Food", "1", 3)
	r3.PaymentType = ""
	stats := Aggregate([]core.ExpenseRecord{r1, r2, r3}, march)
	if len(stats.ByPaymentType) != 3 {
		t.Fatalf("unexpected payment breakdown %+v", stats.ByPaymentType)
	}
	if stats.ByPaymentType[0].PaymentType != core.PaymentCash || stats.ByPaymentType[2].PaymentType != core.PaymentOther {
		t.Fatalf("unexpected ordering %+v", stats.ByPaymentType)
	}
}
