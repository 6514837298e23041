package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"smartbudget/internal/analytics"
	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/ports"

	"github.com/shopspring/decimal"
)

// AlertOptions tune AlertService.
type AlertOptions struct {
	StoreTimeout  time.Duration
	Lookback      time.Duration
	DefaultBudget decimal.Decimal
}

// Evaluation is the outcome of one Evaluate call: the analysis and the
// alerts that were newly stored by it.
type Evaluation struct {
	Result  core.AnomalyResult `json:"result"`
	Created []core.AlertRecord `json:"alerts_created"`
}

// AlertService runs the evaluator against stored data and manages the alert
// lifecycle.
type AlertService struct {
	alerts    ports.AlertStore
	expenses  ports.ExpenseStore
	profiles  ports.ProfileStore
	evaluator *analytics.Evaluator
	publisher Publisher
	opts      AlertOptions
	locks     userLocks
	logger    *log.StructuredLogger
	now       func() time.Time
}

func NewAlertService(store ports.Store, evaluator *analytics.Evaluator, publisher Publisher, opts AlertOptions) *AlertService {
	return &AlertService{
		alerts:    store,
		expenses:  store,
		profiles:  store,
		evaluator: evaluator,
		publisher: publisher,
		opts:      opts,
		logger:    log.NewStructuredLogger(log.FromContext(context.Background()).WithComponent(log.ComponentAlert)),
		now:       time.Now,
	}
}

// Profile returns the user's budget profile, falling back to the default
// budget when none is stored.
func (s *AlertService) Profile(ctx context.Context, userID string) (core.BudgetProfile, error) {
	if err := requireUser(userID); err != nil {
		return core.BudgetProfile{}, err
	}
	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.profile(ctx, userID)
}

func (s *AlertService) profile(ctx context.Context, userID string) (core.BudgetProfile, error) {
	p, err := s.profiles.GetProfile(ctx, userID)
	if errors.Is(err, core.ErrNotFound) {
		return core.BudgetProfile{UserID: userID, MonthlyBudget: s.opts.DefaultBudget, MonthlyIncome: decimal.Zero}, nil
	}
	if err := storeErr("load profile", err); err != nil {
		return core.BudgetProfile{}, err
	}
	if err := p.Validate(); err != nil {
		return core.BudgetProfile{}, err
	}
	return p, nil
}

// SaveProfile validates and stores p.
func (s *AlertService) SaveProfile(ctx context.Context, p core.BudgetProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return storeErr("save profile", s.profiles.PutProfile(ctx, p))
}

// Analyze evaluates the current month without writing anything.
func (s *AlertService) Analyze(ctx context.Context, userID string) (core.AnomalyResult, error) {
	if err := requireUser(userID); err != nil {
		return core.AnomalyResult{}, err
	}
	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return s.analyze(ctx, userID, s.now().UTC())
}

func (s *AlertService) analyze(ctx context.Context, userID string, now time.Time) (core.AnomalyResult, error) {
	profile, err := s.profile(ctx, userID)
	if err != nil {
		return core.AnomalyResult{}, err
	}

	monthStart, monthEnd := core.MonthRange(now)
	history, err := s.expenses.QueryExpenses(ctx, userID, monthStart.Add(-s.opts.Lookback), monthEnd)
	if err := storeErr("query expenses", err); err != nil {
		return core.AnomalyResult{}, err
	}

	current := make([]core.ExpenseRecord, 0, len(history))
	for _, e := range history {
		if !e.OccurredAt.Before(monthStart) {
			current = append(current, e)
		}
	}
	return s.evaluator.EvaluateWindow(current, history, profile), nil
}

// Evaluate analyses the user's current month and stores the alerts whose
// rules fired. Candidates are validated before anything is written and the
// batch insert is atomic, so a failure leaves no partial state. Repeated
// calls on the same day create no duplicates.
func (s *AlertService) Evaluate(ctx context.Context, userID string) (Evaluation, error) {
	if err := requireUser(userID); err != nil {
		return Evaluation{}, err
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	now := s.now().UTC()
	result, err := s.analyze(ctx, userID, now)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", userID, err)
	}

	candidates := analytics.BuildAlerts(userID, result, now)
	for _, a := range candidates {
		if err := a.Validate(); err != nil {
			return Evaluation{}, fmt.Errorf("evaluate %s: %w", userID, err)
		}
	}

	created, err := s.alerts.InsertAlerts(ctx, candidates)
	if err := storeErr("store alerts", err); err != nil {
		return Evaluation{}, fmt.Errorf("evaluate %s: %w", userID, err)
	}

	s.announce(ctx, created)
	s.logger.LogEvaluation(ctx, userID, result, len(created))
	return Evaluation{Result: result, Created: created}, nil
}

// BudgetCheck is the outcome of CheckCategoryBudgets. Suggestions maps limit
// names without any spending this month to a similarly named category that
// has some.
type BudgetCheck struct {
	Created     []core.AlertRecord `json:"alerts_created"`
	Suggestions map[string]string  `json:"suggestions,omitempty"`
}

// CheckCategoryBudgets compares this month's spending per category against
// limits and stores a budget warning for each category at or above the
// warning tier. One warning per category per day.
func (s *AlertService) CheckCategoryBudgets(ctx context.Context, userID string, limits map[string]decimal.Decimal) (BudgetCheck, error) {
	if err := requireUser(userID); err != nil {
		return BudgetCheck{}, err
	}
	for category, limit := range limits {
		if err := core.ValidateCategory(category); err != nil {
			return BudgetCheck{}, err
		}
		if limit.IsNegative() {
			return BudgetCheck{}, core.NewValidationError("limit", "must not be negative for "+category)
		}
	}

	unlock := s.locks.lock(userID)
	defer unlock()

	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	now := s.now().UTC()
	start, end := core.MonthRange(now)
	records, err := s.expenses.QueryExpenses(ctx, userID, start, end)
	if err := storeErr("query expenses", err); err != nil {
		return BudgetCheck{}, err
	}

	spent := map[string]decimal.Decimal{}
	var spentNames []string
	for _, r := range records {
		if _, ok := spent[r.Category]; !ok {
			spentNames = append(spentNames, r.Category)
		}
		spent[r.Category] = spent[r.Category].Add(r.Amount)
	}

	categories := make([]string, 0, len(limits))
	for c := range limits {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	var candidates []core.AlertRecord
	for _, c := range categories {
		if a, ok := s.evaluator.CategoryBudgetAlert(userID, c, spent[c], limits[c], now); ok {
			candidates = append(candidates, a)
		}
	}

	created, err := s.alerts.InsertAlerts(ctx, candidates)
	if err := storeErr("store alerts", err); err != nil {
		return BudgetCheck{}, err
	}
	s.announce(ctx, created)

	check := BudgetCheck{Created: created}
	if created == nil {
		check.Created = []core.AlertRecord{}
	}
	if sugg := analytics.SuggestCategories(categories, spentNames); len(sugg) > 0 {
		check.Suggestions = sugg
	}
	return check, nil
}

// Create stores a user-authored alert such as a reminder.
func (s *AlertService) Create(ctx context.Context, a core.AlertRecord) (core.AlertRecord, error) {
	a.ID = core.NewID()
	a.IsRead, a.ReadAt = false, nil
	a.CreatedAt = s.now().UTC()
	if a.Priority == "" {
		a.Priority = core.PriorityMedium
	}
	a.DedupKey = "manual|" + a.ID
	if err := a.Validate(); err != nil {
		return core.AlertRecord{}, err
	}

	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	if _, _, err := s.alerts.InsertAlert(ctx, a); err != nil {
		return core.AlertRecord{}, storeErr("create alert", err)
	}
	s.announce(ctx, []core.AlertRecord{a})
	return a, nil
}

// List returns one page of the user's alerts with the unread badge count.
func (s *AlertService) List(ctx context.Context, userID string, f core.AlertFilter) (core.AlertPage, error) {
	if err := requireUser(userID); err != nil {
		return core.AlertPage{}, err
	}
	if f.AlertType != "" && !f.AlertType.IsValid() {
		return core.AlertPage{}, core.NewValidationError("alert_type", "unknown alert type "+string(f.AlertType))
	}
	if f.Priority != "" && !f.Priority.IsValid() {
		return core.AlertPage{}, core.NewValidationError("priority", "unknown priority "+string(f.Priority))
	}
	f = f.Normalized()

	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()

	alerts, total, err := s.alerts.ListAlerts(ctx, userID, f)
	if err := storeErr("list alerts", err); err != nil {
		return core.AlertPage{}, err
	}
	unread, err := s.alerts.UnreadCount(ctx, userID)
	if err := storeErr("count unread alerts", err); err != nil {
		return core.AlertPage{}, err
	}
	return core.NewAlertPage(alerts, f, total, unread), nil
}

func (s *AlertService) Get(ctx context.Context, userID, id string) (core.AlertRecord, error) {
	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	a, err := s.alerts.GetAlert(ctx, userID, id)
	return a, storeErr("get alert", err)
}

// MarkAsRead is idempotent: an already-read alert keeps its read_at.
func (s *AlertService) MarkAsRead(ctx context.Context, userID, id string) (core.AlertRecord, error) {
	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	a, err := s.alerts.MarkAlertRead(ctx, userID, id, s.now())
	return a, storeErr("mark alert read", err)
}

func (s *AlertService) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	n, err := s.alerts.MarkAllAlertsRead(ctx, userID, s.now())
	return n, storeErr("mark all alerts read", err)
}

func (s *AlertService) UnreadCount(ctx context.Context, userID string) (int, error) {
	if err := requireUser(userID); err != nil {
		return 0, err
	}
	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	n, err := s.alerts.UnreadCount(ctx, userID)
	return n, storeErr("count unread alerts", err)
}

// Delete removes an alert on explicit user request.
func (s *AlertService) Delete(ctx context.Context, userID, id string) error {
	ctx, cancel := withStoreTimeout(ctx, s.opts.StoreTimeout)
	defer cancel()
	return storeErr("delete alert", s.alerts.DeleteAlert(ctx, userID, id))
}

// announce logs and publishes newly created alerts. Publish failures are
// logged only; the alerts are already stored. The store deadline does not
// apply here since the publisher bounds its own calls.
func (s *AlertService) announce(ctx context.Context, created []core.AlertRecord) {
	ctx = context.WithoutCancel(ctx)
	for _, a := range created {
		s.logger.LogAlertCreated(ctx, a)
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.PublishAlertCreated(ctx, a); err != nil {
			slog.WarnContext(ctx, "Failed to publish alert created event",
				"alert_id", a.ID,
				"user_id", a.UserID,
				"error", err)
		}
	}
}
