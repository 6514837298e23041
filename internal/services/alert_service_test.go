package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"smartbudget/internal/core"
	"smartbudget/internal/memory"

	"github.com/shopspring/decimal"
)

func TestEvaluate_BudgetTiers(t *testing.T) {
	tests := []struct {
		name     string
		spent    []string
		wantType core.AlertType
		wantNone bool
	}{
		{name: "within budget", spent: []string{"300", "200"}, wantNone: true},
		{name: "low risk does not alert", spent: []string{"500", "300"}, wantNone: true},
		{name: "medium risk warns", spent: []string{"500", "450"}, wantType: core.AlertBudgetWarning},
		{name: "high risk overspends", spent: []string{"700", "500"}, wantType: core.AlertOverspending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			setBudget(t, store, "u1", "1000")
			seedExpenses(t, store, "u1", "Rent", 2, tt.spent...)

			ev, err := newAlertService(store, nil).Evaluate(context.Background(), "u1")
			if err != nil {
				t.Fatalf("Evaluate: %v", err)
			}
			if tt.wantNone {
				if len(ev.Created) != 0 {
					t.Fatalf("expected no alerts, got %+v", ev.Created)
				}
				return
			}
			if len(ev.Created) != 1 || ev.Created[0].AlertType != tt.wantType {
				t.Fatalf("expected one %s alert, got %+v", tt.wantType, ev.Created)
			}
		})
	}
}

func TestEvaluate_IsIdempotentPerDay(t *testing.T) {
	store := memory.New()
	setBudget(t, store, "u1", "1000")
	seedExpenses(t, store, "u1", "Rent", 2, "1200")
	pub := &recordingPublisher{}
	svc := newAlertService(store, pub)

	first, err := svc.Evaluate(context.Background(), "u1")
	if err != nil || len(first.Created) != 1 {
		t.Fatalf("first evaluate: created=%d err=%v", len(first.Created), err)
	}
	second, err := svc.Evaluate(context.Background(), "u1")
	if err != nil || len(second.Created) != 0 {
		t.Fatalf("second evaluate must create nothing: created=%d err=%v", len(second.Created), err)
	}
	if !second.Result.BudgetStatus.IsOverrunRisk {
		t.Fatal("second evaluation should still report the risk")
	}
	if len(pub.alerts) != 1 {
		t.Fatalf("expected one alert event, got %d", len(pub.alerts))
	}

	svc.now = func() time.Time { return fixedNow.Add(24 * time.Hour) }
	next, err := svc.Evaluate(context.Background(), "u1")
	if err != nil || len(next.Created) != 1 {
		t.Fatalf("a new day may alert again: created=%d err=%v", len(next.Created), err)
	}
}

func TestEvaluate_ConcurrentCallsCreateOneAlert(t *testing.T) {
	store := memory.New()
	setBudget(t, store, "u1", "100")
	seedExpenses(t, store, "u1", "Food", 3, "150")
	svc := newAlertService(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Evaluate(context.Background(), "u1"); err != nil {
				t.Errorf("Evaluate: %v", err)
			}
		}()
	}
	wg.Wait()

	if n, _ := svc.UnreadCount(context.Background(), "u1"); n != 1 {
		t.Fatalf("expected exactly one alert, got %d", n)
	}
}

func TestEvaluate_AnomalyAlert(t *testing.T) {
	store := memory.New()
	setBudget(t, store, "u1", "0")
	for i := 0; i < 20; i++ {
		seedExpenses(t, store, "u1", "Food", 1+i%15, "10")
	}
	seedExpenses(t, store, "u1", "Food", 18, "100")

	ev, err := newAlertService(store, nil).Evaluate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(ev.Result.AmountAnomalies) != 1 || ev.Result.AmountAnomalies[0].Severity != core.SeverityHigh {
		t.Fatalf("expected one high anomaly, got %+v", ev.Result.AmountAnomalies)
	}
	if len(ev.Created) != 1 || ev.Created[0].AlertType != core.AlertAnomaly {
		t.Fatalf("expected one anomaly alert, got %+v", ev.Created)
	}
	if ev.Result.BudgetStatus.IsOverrunRisk {
		t.Fatal("zero budget must not report overrun risk")
	}
}

func TestEvaluate_LookbackBaseline(t *testing.T) {
	store := memory.New()
	setBudget(t, store, "u1", "0")
	for i := 0; i < 12; i++ {
		_, err := store.CreateExpense(context.Background(), core.ExpenseRecord{
			UserID:     "u1",
			Amount:     decimal.NewFromInt(10),
			Category:   "Food",
			OccurredAt: time.Date(2025, 2, 1+i, 9, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	seedExpenses(t, store, "u1", "Food", 5, "80")

	res, err := newAlertService(store, nil).Analyze(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.AmountAnomalies) != 1 {
		t.Fatalf("February history should make March's 80 an outlier, got %+v", res.AmountAnomalies)
	}
	if !res.BudgetStatus.TotalSpent.Equal(decimal.NewFromInt(80)) {
		t.Fatalf("budget must only count the current month, got %s", res.BudgetStatus.TotalSpent)
	}
}

func TestEvaluate_MissingProfileUsesDefaultBudget(t *testing.T) {
	store := memory.New()
	seedExpenses(t, store, "u1", "Food", 3, "95")
	svc := newAlertService(store, nil)
	svc.opts.DefaultBudget = decimal.NewFromInt(100)

	ev, err := svc.Evaluate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Result.BudgetStatus.Severity != core.SeverityMedium || len(ev.Created) != 1 {
		t.Fatalf("expected a medium warning from the default budget, got %+v", ev)
	}
}

func TestEvaluate_StoreFailureWritesNothing(t *testing.T) {
	tests := []struct {
		name  string
		store *failingStore
	}{
		{"store error", &failingStore{Store: memory.New(), err: errors.New("disk I/O error")}},
		{"store timeout", &failingStore{Store: memory.New(), block: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBudget(t, tt.store.Store, "u1", "100")
			seedExpenses(t, tt.store.Store, "u1", "Food", 3, "500")
			svc := newAlertService(tt.store, nil)
			svc.opts.StoreTimeout = 20 * time.Millisecond

			_, err := svc.Evaluate(context.Background(), "u1")
			if !errors.Is(err, core.ErrDataUnavailable) {
				t.Fatalf("expected data unavailable, got %v", err)
			}
			if n, _ := tt.store.UnreadCount(context.Background(), "u1"); n != 0 {
				t.Fatalf("no alert may be written, got %d", n)
			}
		})
	}
}

func TestEvaluate_CommittedAlertsSurviveLateDeadline(t *testing.T) {
	store := memory.New()
	setBudget(t, store, "u1", "100")
	seedExpenses(t, store, "u1", "Food", 3, "150")
	pub := &recordingPublisher{}
	svc := newAlertService(lateCommitStore{store}, pub)
	svc.opts.StoreTimeout = 20 * time.Millisecond

	ev, err := svc.Evaluate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("committed alerts must not be reported as a failure: %v", err)
	}
	if len(ev.Created) != 1 || len(pub.alerts) != 1 {
		t.Fatalf("created=%d published=%d, want 1 and 1", len(ev.Created), len(pub.alerts))
	}
}

func TestEvaluate_LongStoredCategoryStillAlerts(t *testing.T) {
	store := memory.New()
	setBudget(t, store, "u1", "1000")
	small := make([]string, 20)
	for i := range small {
		small[i] = "10"
	}
	seedExpenses(t, store, "u1", "Misc", 3, small...)
	seedExpenses(t, store, "u1", "Misc", 4, "1000")

	ev, err := newAlertService(renamingStore{Store: store, category: strings.Repeat("é", 600)}, nil).Evaluate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	types := map[core.AlertType]bool{}
	for _, a := range ev.Created {
		types[a.AlertType] = true
	}
	if len(ev.Created) != 2 || !types[core.AlertOverspending] || !types[core.AlertAnomaly] {
		t.Fatalf("expected overspending and anomaly alerts, got %+v", ev.Created)
	}
}

func TestCheckCategoryBudgets_RejectsLongLimitName(t *testing.T) {
	limits := map[string]decimal.Decimal{strings.Repeat("x", core.MaxCategoryLength+1): decimal.NewFromInt(10)}
	_, err := newAlertService(memory.New(), nil).CheckCategoryBudgets(context.Background(), "u1", limits)
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEvaluate_RejectsEmptyUser(t *testing.T) {
	_, err := newAlertService(memory.New(), nil).Evaluate(context.Background(), "")
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEvaluate_PublishFailureIsNotFatal(t *testing.T) {
	store := memory.New()
	setBudget(t, store, "u1", "100")
	seedExpenses(t, store, "u1", "Food", 3, "150")
	ev, err := newAlertService(store, &recordingPublisher{fail: true}).Evaluate(context.Background(), "u1")
	if err != nil || len(ev.Created) != 1 {
		t.Fatalf("publish failure must not fail the evaluation: created=%d err=%v", len(ev.Created), err)
	}
}

func TestAlertLifecycleThroughService(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	setBudget(t, store, "u1", "100")
	seedExpenses(t, store, "u1", "Food", 3, "150")
	svc := newAlertService(store, nil)

	ev, err := svc.Evaluate(ctx, "u1")
	if err != nil || len(ev.Created) != 1 {
		t.Fatalf("Evaluate: %v", err)
	}
	id := ev.Created[0].ID

	page, err := svc.List(ctx, "u1", core.AlertFilter{})
	if err != nil || page.Total != 1 || page.UnreadCount != 1 || page.Limit != core.DefaultAlertPageSize {
		t.Fatalf("unexpected page %+v err=%v", page, err)
	}

	first, err := svc.MarkAsRead(ctx, "u1", id)
	if err != nil || !first.IsRead {
		t.Fatalf("MarkAsRead: %+v err=%v", first, err)
	}
	svc.now = func() time.Time { return fixedNow.Add(time.Hour) }
	again, err := svc.MarkAsRead(ctx, "u1", id)
	if err != nil || !again.ReadAt.Equal(*first.ReadAt) {
		t.Fatalf("second MarkAsRead must keep read_at: %+v err=%v", again, err)
	}

	if _, err := svc.Get(ctx, "u2", id); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("other user must get not found, got %v", err)
	}
	if err := svc.Delete(ctx, "u1", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.List(ctx, "u1", core.AlertFilter{AlertType: "bogus"}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("unknown alert type filter should be rejected, got %v", err)
	}
}

func TestCheckCategoryBudgets(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seedExpenses(t, store, "u1", "Food", 3, "85")
	seedExpenses(t, store, "u1", "Travel", 4, "95")
	seedExpenses(t, store, "u1", "Fun", 5, "10")
	svc := newAlertService(store, nil)

	limits := map[string]decimal.Decimal{
		"Food":   decimal.NewFromInt(100),
		"Travel": decimal.NewFromInt(100),
		"Fun":    decimal.NewFromInt(100),
		"Empty":  decimal.NewFromInt(0),
		"travel": decimal.NewFromInt(100),
	}
	check, err := svc.CheckCategoryBudgets(ctx, "u1", limits)
	if err != nil {
		t.Fatalf("CheckCategoryBudgets: %v", err)
	}
	created := check.Created
	if len(created) != 2 || created[0].Title != "Food Budget Alert" || created[1].Priority != core.PriorityHigh {
		t.Fatalf("unexpected alerts %+v", created)
	}

	if got := check.Suggestions; len(got) != 1 || got["travel"] != "Travel" {
		t.Fatalf("expected a suggestion for the lower-case limit only, got %v", got)
	}

	again, err := svc.CheckCategoryBudgets(ctx, "u1", limits)
	if err != nil || len(again.Created) != 0 {
		t.Fatalf("second check on the same day must not duplicate: %d err=%v", len(again.Created), err)
	}

	if _, err := svc.CheckCategoryBudgets(ctx, "u1", map[string]decimal.Decimal{"Food": decimal.NewFromInt(-1)}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("negative limit should be rejected, got %v", err)
	}
}

func TestCreateManualAlert(t *testing.T) {
	svc := newAlertService(memory.New(), nil)
	a, err := svc.Create(context.Background(), core.AlertRecord{
		UserID:    "u1",
		AlertType: core.AlertReminder,
		Title:     "Pay rent",
		Message:   "Rent is due on Friday",
	})
	if err != nil || a.Priority != core.PriorityMedium || a.ID == "" {
		t.Fatalf("unexpected alert %+v err=%v", a, err)
	}
	if _, err := svc.Create(context.Background(), core.AlertRecord{UserID: "u1", AlertType: core.AlertReminder, Title: "x", Message: "short"}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("short title should be rejected, got %v", err)
	}
}
