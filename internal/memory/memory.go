package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"smartbudget/internal/core"

	"github.com/shopspring/decimal"
)

// Store keeps expenses, alerts and budget profiles in process memory.
// Every method holds the mutex, which makes alert inserts idempotent on the
// dedup key.
type Store struct {
	mu       sync.Mutex
	expenses map[string]core.ExpenseRecord
	alerts   map[string]core.AlertRecord
	byKey    map[string]string
	profiles map[string]core.BudgetProfile
	now      func() time.Time
}

func New() *Store {
	return &Store{
		expenses: map[string]core.ExpenseRecord{},
		alerts:   map[string]core.AlertRecord{},
		byKey:    map[string]string{},
		profiles: map[string]core.BudgetProfile{},
		now:      time.Now,
	}
}

// NewFromFiles seeds budget profiles from base/seed_profiles.txt, one
// "user_id,monthly_budget[,monthly_income]" per line. Missing or malformed
// lines are skipped.
func NewFromFiles(base string) *Store {
	s := New()
	for _, line := range readLines(filepath.Join(base, "seed_profiles.txt")) {
		p, err := parseProfileLine(line)
		if err != nil {
			continue
		}
		s.profiles[p.UserID] = p
	}
	return s
}

func (s *Store) Close() error { return nil }

// CreateExpense assigns an ID when missing and stamps the timestamps.
func (s *Store) CreateExpense(_ context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = core.NewID()
	}
	if _, ok := s.expenses[e.ID]; ok {
		return core.ExpenseRecord{}, core.NewValidationError("id", "already exists")
	}
	now := s.now().UTC()
	e.OccurredAt = e.OccurredAt.UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	s.expenses[e.ID] = e
	return e, nil
}

func (s *Store) UpdateExpense(_ context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.expenses[e.ID]
	if !ok || old.UserID != e.UserID {
		return core.ExpenseRecord{}, fmt.Errorf("expense %s: %w", e.ID, core.ErrNotFound)
	}
	e.OccurredAt = e.OccurredAt.UTC()
	e.CreatedAt = old.CreatedAt
	e.UpdatedAt = s.now().UTC()
	s.expenses[e.ID] = e
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	delete(s.expenses, id)
	return nil
}

func (s *Store) GetExpense(_ context.Context, userID, id string) (core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok || e.UserID != userID {
		return core.ExpenseRecord{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return e, nil
}

func (s *Store) QueryExpenses(_ context.Context, userID string, start, end time.Time) ([]core.ExpenseRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	period := core.Period{Start: start, End: end}
	out := []core.ExpenseRecord{}
	for _, e := range s.expenses {
		if e.UserID == userID && period.Contains(e.OccurredAt) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) InsertAlert(_ context.Context, a core.AlertRecord) (string, bool, error) {
	if err := a.Validate(); err != nil {
		return "", false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, created := s.insertLocked(a)
	return id, created, nil
}

// InsertAlerts validates the whole batch before touching the map.
func (s *Store) InsertAlerts(_ context.Context, alerts []core.AlertRecord) ([]core.AlertRecord, error) {
	for _, a := range alerts {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	created := []core.AlertRecord{}
	for _, a := range alerts {
		id, ok := s.insertLocked(a)
		if ok {
			created = append(created, s.alerts[id])
		}
	}
	return created, nil
}

func (s *Store) insertLocked(a core.AlertRecord) (string, bool) {
	if id, ok := s.byKey[a.DedupKey]; ok {
		return id, false
	}
	if a.ID == "" {
		a.ID = core.NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	a.Metadata = cloneMetadata(a.Metadata)
	s.alerts[a.ID] = a
	s.byKey[a.DedupKey] = a.ID
	return a.ID, true
}

func (s *Store) GetAlert(_ context.Context, userID, id string) (core.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.UserID != userID {
		return core.AlertRecord{}, fmt.Errorf("alert %s: %w", id, core.ErrNotFound)
	}
	return a, nil
}

// ListAlerts returns newest alerts first.
func (s *Store) ListAlerts(_ context.Context, userID string, f core.AlertFilter) ([]core.AlertRecord, int, error) {
	f = f.Normalized()
	s.mu.Lock()
	var matched []core.AlertRecord
	for _, a := range s.alerts {
		if a.UserID == userID && f.Matches(a) {
			matched = append(matched, a)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	total := len(matched)
	lo := f.Offset()
	if lo > total {
		lo = total
	}
	hi := lo + f.Limit
	if hi > total {
		hi = total
	}
	return append([]core.AlertRecord{}, matched[lo:hi]...), total, nil
}

func (s *Store) UnreadCount(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.alerts {
		if a.UserID == userID && !a.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Store) MarkAlertRead(_ context.Context, userID, id string, at time.Time) (core.AlertRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.UserID != userID {
		return core.AlertRecord{}, fmt.Errorf("alert %s: %w", id, core.ErrNotFound)
	}
	if a.MarkAsRead(at) {
		s.alerts[id] = a
	}
	return a, nil
}

func (s *Store) MarkAllAlertsRead(_ context.Context, userID string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, a := range s.alerts {
		if a.UserID == userID && a.MarkAsRead(at) {
			s.alerts[id] = a
			n++
		}
	}
	return n, nil
}

// DeleteAlert removes the alert but keeps its dedup key reserved, so a
// dismissed condition does not fire again the same day.
func (s *Store) DeleteAlert(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok || a.UserID != userID {
		return fmt.Errorf("alert %s: %w", id, core.ErrNotFound)
	}
	delete(s.alerts, id)
	return nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (core.BudgetProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return core.BudgetProfile{}, fmt.Errorf("profile %s: %w", userID, core.ErrNotFound)
	}
	return p, nil
}

func (s *Store) PutProfile(_ context.Context, p core.BudgetProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

// ListUserIDs returns every user with a profile or an expense, sorted.
func (s *Store) ListUserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[string]struct{}{}
	for id := range s.profiles {
		seen[id] = struct{}{}
	}
	for _, e := range s.expenses {
		seen[e.UserID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func cloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func parseProfileLine(line string) (core.BudgetProfile, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 2 {
		return core.BudgetProfile{}, fmt.Errorf("expected user_id,budget: %q", line)
	}
	p := core.BudgetProfile{UserID: strings.TrimSpace(parts[0]), MonthlyIncome: decimal.Zero}
	var err error
	if p.MonthlyBudget, err = core.ParseBudget("monthly_budget", parts[1]); err != nil {
		return core.BudgetProfile{}, err
	}
	if len(parts) > 2 {
		if p.MonthlyIncome, err = core.ParseBudget("monthly_income", parts[2]); err != nil {
			return core.BudgetProfile{}, err
		}
	}
	return p, p.Validate()
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
