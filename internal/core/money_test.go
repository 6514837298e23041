package core

import (
	"errors"
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"0", "", false},
		{"0.001", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("%q expected validation error, got %v", tc.in, err)
			}
		}
	}
}

func TestParseBudget(t *testing.T) {
	if d, err := ParseBudget("monthly_budget", ""); err != nil || !d.IsZero() {
		t.Fatalf("empty budget should be zero, got %s err=%v", d, err)
	}
	if d, err := ParseBudget("monthly_budget", "1000,5"); err != nil || d.String() != "1000.5" {
		t.Fatalf("unexpected budget %s err=%v", d, err)
	}
	if _, err := ParseBudget("monthly_budget", "-1"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for negative budget, got %v", err)
	}
}

func TestMonthRange(t *testing.T) {
	start, end := MonthRange(time.Date(2024, 2, 17, 13, 4, 0, 0, time.UTC))
	if !start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", start)
	}
	if !end.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %v", end)
	}
}

func TestDayKey(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	got := DayKey(time.Date(2024, 5, 1, 1, 0, 0, 0, loc))
	if got != "2024-04-30" {
		t.Fatalf("expected UTC day, got %s", got)
	}
}
