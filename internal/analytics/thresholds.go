// Package analytics holds the pure statistics and anomaly rules. Nothing in
// this package performs I/O; services feed it records and persist what it
// returns.
package analytics

import (
	"fmt"
	"strings"
)

// Thresholds are the policy constants of the evaluator. They are loaded
// from configuration; DefaultThresholds mirrors the observed behaviour.
type Thresholds struct {
	// Budget tiers, in percent of the monthly budget.
	OverrunPercent float64
	MediumPercent  float64
	HighPercent    float64

	// Outlier detection.
	ZScore     float64
	HighZScore float64
	MinSamples int

	// Per-category budget warnings (CheckCategoryBudgets).
	CategoryWarnPercent float64
	CategoryHighPercent float64

	// Category spending shifts against earlier months.
	ShiftMinHistory  int
	ShiftHighPercent float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		OverrunPercent:      75,
		MediumPercent:       90,
		HighPercent:         100,
		ZScore:              2.5,
		HighZScore:          3.5,
		MinSamples:          5,
		CategoryWarnPercent: 80,
		CategoryHighPercent: 90,
		ShiftMinHistory:     10,
		ShiftHighPercent:    50,
	}
}

// Validate checks that the tiers are ordered and the sample floor is usable.
func (t Thresholds) Validate() error {
	var errs []string
	if t.OverrunPercent <= 0 {
		errs = append(errs, fmt.Sprintf("overrun percent %.1f must be positive", t.OverrunPercent))
	}
	if !(t.OverrunPercent < t.MediumPercent && t.MediumPercent < t.HighPercent) {
		errs = append(errs, fmt.Sprintf("budget tiers must be increasing (got %.1f, %.1f, %.1f)",
			t.OverrunPercent, t.MediumPercent, t.HighPercent))
	}
	if t.ZScore <= 0 {
		errs = append(errs, fmt.Sprintf("z-score threshold %.2f must be positive", t.ZScore))
	}
	if t.HighZScore < t.ZScore {
		errs = append(errs, fmt.Sprintf("high z-score %.2f must not be below threshold %.2f", t.HighZScore, t.ZScore))
	}
	if t.MinSamples < 2 {
		errs = append(errs, fmt.Sprintf("minimum sample size %d must be at least 2", t.MinSamples))
	}
	if t.CategoryWarnPercent <= 0 || t.CategoryHighPercent < t.CategoryWarnPercent {
		errs = append(errs, fmt.Sprintf("category budget tiers invalid (got %.1f, %.1f)",
			t.CategoryWarnPercent, t.CategoryHighPercent))
	}
	if t.ShiftMinHistory < 2 {
		errs = append(errs, fmt.Sprintf("category shift history %d must be at least 2", t.ShiftMinHistory))
	}
	if t.ShiftHighPercent <= 0 {
		errs = append(errs, fmt.Sprintf("category shift high percent %.1f must be positive", t.ShiftHighPercent))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid thresholds: %s", strings.Join(errs, "; "))
	}
	return nil
}
