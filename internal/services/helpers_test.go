package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartbudget/internal/analytics"
	"smartbudget/internal/core"
	"smartbudget/internal/memory"
	"smartbudget/internal/ports"

	"github.com/shopspring/decimal"
)

var fixedNow = time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu          sync.Mutex
	evaluations []string
	alerts      []core.AlertRecord
	fail        bool
}

func (p *recordingPublisher) PublishEvaluationRequest(_ context.Context, userID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.evaluations = append(p.evaluations, userID)
	return nil
}

func (p *recordingPublisher) PublishAlertCreated(_ context.Context, a core.AlertRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("broker down")
	}
	p.alerts = append(p.alerts, a)
	return nil
}

// failingStore answers every expense query with err, or blocks until the
// context ends when block is set.
type failingStore struct {
	*memory.Store
	err   error
	block bool
}

func (f *failingStore) QueryExpenses(ctx context.Context, userID string, start, end time.Time) ([]core.ExpenseRecord, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.Store.QueryExpenses(ctx, userID, start, end)
}

// lateCommitStore commits alert batches and then stalls until the caller's
// deadline passes before reporting success.
type lateCommitStore struct {
	*memory.Store
}

func (s lateCommitStore) InsertAlerts(ctx context.Context, alerts []core.AlertRecord) ([]core.AlertRecord, error) {
	created, err := s.Store.InsertAlerts(ctx, alerts)
	if err != nil {
		return nil, err
	}
	<-ctx.Done()
	return created, nil
}

// renamingStore reports every stored expense under category, standing in
// for rows written before category names were length-checked.
type renamingStore struct {
	*memory.Store
	category string
}

func (s renamingStore) QueryExpenses(ctx context.Context, userID string, start, end time.Time) ([]core.ExpenseRecord, error) {
	records, err := s.Store.QueryExpenses(ctx, userID, start, end)
	for i := range records {
		records[i].Category = s.category
	}
	return records, err
}

func seedExpenses(t *testing.T, s *memory.Store, userID, category string, day int, amounts ...string) {
	t.Helper()
	for _, a := range amounts {
		_, err := s.CreateExpense(context.Background(), core.ExpenseRecord{
			UserID:     userID,
			Amount:     decimal.RequireFromString(a),
			Category:   category,
			OccurredAt: time.Date(2025, 3, day, 9, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("seed expense: %v", err)
		}
	}
}

func setBudget(t *testing.T, s *memory.Store, userID, budget string) {
	t.Helper()
	err := s.PutProfile(context.Background(), core.BudgetProfile{
		UserID:        userID,
		MonthlyBudget: decimal.RequireFromString(budget),
	})
	if err != nil {
		t.Fatalf("put profile: %v", err)
	}
}

func newAlertService(store ports.Store, pub Publisher) *AlertService {
	svc := NewAlertService(store, analytics.NewEvaluator(analytics.DefaultThresholds()), pub, AlertOptions{
		StoreTimeout:  time.Second,
		Lookback:      60 * 24 * time.Hour,
		DefaultBudget: decimal.Zero,
	})
	svc.now = func() time.Time { return fixedNow }
	return svc
}
