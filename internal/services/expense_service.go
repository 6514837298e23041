package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"smartbudget/internal/analytics"
	"smartbudget/internal/cache"
	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/ports"
)

// ExpenseService orchestrates expense writes and the statistics view.
// Every write invalidates the user's cached statistics and asks the worker
// to re-evaluate the user.
type ExpenseService struct {
	store     ports.ExpenseStore
	publisher Publisher
	stats     cache.Cache[core.Statistics]
	timeout   time.Duration
	now       func() time.Time
}

// NewExpenseService wires the service. publisher and stats may be nil.
func NewExpenseService(store ports.ExpenseStore, publisher Publisher, stats cache.Cache[core.Statistics], timeout time.Duration) *ExpenseService {
	return &ExpenseService{
		store:     store,
		publisher: publisher,
		stats:     stats,
		timeout:   timeout,
		now:       time.Now,
	}
}

// Create saves the expense and publishes an evaluation request.
func (s *ExpenseService) Create(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	e.ID = ""
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}

	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	saved, err := s.store.CreateExpense(sctx, e)
	err = storeErr("save expense", err)
	cancel()
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("create expense: %w", err)
	}
	slog.DebugContext(ctx, "Expense saved", log.NewFields().
		WithExpense(saved).
		WithOperation(log.OpCreate).
		WithComponent(log.ComponentExpense).
		ToSlice()...)

	s.afterWrite(ctx, saved.UserID, "expense_created")
	return saved, nil
}

func (s *ExpenseService) Update(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}

	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	saved, err := s.store.UpdateExpense(sctx, e)
	err = storeErr("update expense", err)
	cancel()
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("update expense: %w", err)
	}

	s.afterWrite(ctx, saved.UserID, "expense_updated")
	return saved, nil
}

func (s *ExpenseService) Delete(ctx context.Context, userID, id string) error {
	sctx, cancel := withStoreTimeout(ctx, s.timeout)
	err := storeErr("delete expense", s.store.DeleteExpense(sctx, userID, id))
	cancel()
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.afterWrite(ctx, userID, "expense_deleted")
	return nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id string) (core.ExpenseRecord, error) {
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	e, err := s.store.GetExpense(ctx, userID, id)
	return e, storeErr("get expense", err)
}

// List returns the user's expenses in period, oldest first.
func (s *ExpenseService) List(ctx context.Context, userID string, period core.Period) ([]core.ExpenseRecord, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if err := period.Validate(); err != nil {
		return nil, err
	}
	ctx, cancel := withStoreTimeout(ctx, s.timeout)
	defer cancel()
	records, err := s.store.QueryExpenses(ctx, userID, period.Start, period.End)
	return records, storeErr("query expenses", err)
}

// Statistics aggregates the user's spending in period. Results are cached
// until the next write by the same user.
func (s *ExpenseService) Statistics(ctx context.Context, userID string, period core.Period) (core.Statistics, error) {
	if err := requireUser(userID); err != nil {
		return core.Statistics{}, err
	}
	if err := period.Validate(); err != nil {
		return core.Statistics{}, err
	}

	key := statsKey(userID, period)
	if s.stats != nil {
		if st, ok := s.stats.Get(key); ok {
			return st, nil
		}
	}

	records, err := s.List(ctx, userID, period)
	if err != nil {
		return core.Statistics{}, fmt.Errorf("statistics: %w", err)
	}
	st := analytics.Aggregate(records, period)
	if s.stats != nil {
		s.stats.Set(key, st)
	}
	return st, nil
}

// CurrentMonth returns the calendar month containing now, in UTC.
func (s *ExpenseService) CurrentMonth() core.Period {
	start, end := core.MonthRange(s.now())
	return core.Period{Start: start, End: end}
}

func (s *ExpenseService) afterWrite(ctx context.Context, userID, reason string) {
	if s.stats != nil {
		s.stats.DeletePrefix(userID + "|")
	}
	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP client not available, skipping evaluation request", "user_id", userID)
		return
	}
	if err := s.publisher.PublishEvaluationRequest(ctx, userID, reason); err != nil {
		slog.ErrorContext(ctx, "Failed to publish evaluation request",
			"user_id", userID,
			"reason", reason,
			"error", err)
	}
}

func statsKey(userID string, p core.Period) string {
	return fmt.Sprintf("%s|%d|%d", userID, p.Start.UTC().UnixNano(), p.End.UTC().UnixNano())
}
