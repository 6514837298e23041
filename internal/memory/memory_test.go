package memory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"smartbudget/internal/core"
	"smartbudget/internal/ports"

	"github.com/shopspring/decimal"
)

var _ ports.Store = (*Store)(nil)

func alert(user, key string) core.AlertRecord {
	return core.AlertRecord{
		UserID:    user,
		AlertType: core.AlertOverspending,
		Title:     "Monthly Budget Exceeded",
		Message:   "You have used 120.0% of your monthly budget (high risk)",
		Priority:  core.PriorityHigh,
		DedupKey:  key,
	}
}

func TestExpenseCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()
	e, err := s.CreateExpense(ctx, core.ExpenseRecord{
		UserID:     "u1",
		Amount:     decimal.RequireFromString("12.50"),
		Category:   " Food ",
		OccurredAt: time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if e.ID == "" || e.Category != "Food" || e.PaymentType != core.PaymentOther {
		t.Fatalf("unexpected record %+v", e)
	}

	if _, err := s.GetExpense(ctx, "u2", e.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("other users must not see the record, got %v", err)
	}

	e.Amount = decimal.NewFromInt(20)
	if _, err := s.UpdateExpense(ctx, e); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.QueryExpenses(ctx, "u1", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC))
	if len(got) != 1 || !got[0].Amount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected query result %+v", got)
	}

	if err := s.DeleteExpense(ctx, "u1", e.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteExpense(ctx, "u1", e.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete should be not found, got %v", err)
	}
}

func TestCreateExpenseRejectsInvalid(t *testing.T) {
	_, err := New().CreateExpense(context.Background(), core.ExpenseRecord{UserID: "u1", Category: "Food", OccurredAt: time.Now()})
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInsertAlertIsIdempotentOnKey(t *testing.T) {
	ctx := context.Background()
	s := New()
	id1, created, err := s.InsertAlert(ctx, alert("u1", "k1"))
	if err != nil || !created {
		t.Fatalf("first insert: created=%v err=%v", created, err)
	}
	id2, created, err := s.InsertAlert(ctx, alert("u1", "k1"))
	if err != nil || created || id2 != id1 {
		t.Fatalf("second insert must be a no-op: id=%s created=%v err=%v", id2, created, err)
	}
	if n, _ := s.UnreadCount(ctx, "u1"); n != 1 {
		t.Fatalf("expected one alert, got %d", n)
	}
}

func TestConcurrentInsertsKeepOneAlert(t *testing.T) {
	ctx := context.Background()
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.InsertAlerts(ctx, []core.AlertRecord{alert("u1", "same")})
		}()
	}
	wg.Wait()
	_, total, _ := s.ListAlerts(ctx, "u1", core.AlertFilter{})
	if total != 1 {
		t.Fatalf("expected exactly one alert, got %d", total)
	}
}

func TestInsertAlertsRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	s := New()
	bad := alert("u1", "k2")
	bad.Title = "x"
	if _, err := s.InsertAlerts(ctx, []core.AlertRecord{alert("u1", "k1"), bad}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if n, _ := s.UnreadCount(ctx, "u1"); n != 0 {
		t.Fatalf("nothing should be written, got %d alerts", n)
	}
}

func TestListAlertsPagingAndFilter(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		a := alert("u1", fmt.Sprintf("k%d", i))
		a.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if i%5 == 0 {
			a.AlertType = core.AlertAnomaly
		}
		if _, _, err := s.InsertAlert(ctx, a); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	page, total, _ := s.ListAlerts(ctx, "u1", core.AlertFilter{Page: 2, Limit: 10})
	if total != 25 || len(page) != 10 {
		t.Fatalf("unexpected page size=%d total=%d", len(page), total)
	}
	if !page[0].CreatedAt.Equal(base.Add(14 * time.Hour)) {
		t.Fatalf("expected newest-first ordering, got %s", page[0].CreatedAt)
	}

	anomalies, total, _ := s.ListAlerts(ctx, "u1", core.AlertFilter{AlertType: core.AlertAnomaly})
	if total != 5 || len(anomalies) != 5 {
		t.Fatalf("expected 5 anomaly alerts, got %d", total)
	}

	last, _, _ := s.ListAlerts(ctx, "u1", core.AlertFilter{Page: 9})
	if len(last) != 0 {
		t.Fatalf("page past the end should be empty, got %d", len(last))
	}
}

func TestMarkReadKeepsFirstTimestamp(t *testing.T) {
	ctx := context.Background()
	s := New()
	id, _, _ := s.InsertAlert(ctx, alert("u1", "k1"))
	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	a, err := s.MarkAlertRead(ctx, "u1", id, first)
	if err != nil || !a.IsRead || !a.ReadAt.Equal(first) {
		t.Fatalf("unexpected first mark: %+v err=%v", a, err)
	}
	a, err = s.MarkAlertRead(ctx, "u1", id, first.Add(time.Hour))
	if err != nil || !a.ReadAt.Equal(first) {
		t.Fatalf("second mark must keep read_at, got %+v err=%v", a, err)
	}
	if _, err := s.MarkAlertRead(ctx, "u2", id, first); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("other user must get not found, got %v", err)
	}
}

func TestMarkAllAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.InsertAlert(ctx, alert("u1", "k1"))
	id, _, _ := s.InsertAlert(ctx, alert("u1", "k2"))
	s.InsertAlert(ctx, alert("u2", "k3"))

	n, _ := s.MarkAllAlertsRead(ctx, "u1", time.Now())
	if n != 2 {
		t.Fatalf("expected 2 marked, got %d", n)
	}
	if c, _ := s.UnreadCount(ctx, "u2"); c != 1 {
		t.Fatalf("other user's alerts must stay unread, got %d", c)
	}

	if err := s.DeleteAlert(ctx, "u1", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, created, _ := s.InsertAlert(ctx, alert("u1", "k2")); created {
		t.Fatalf("deleted alert key must stay reserved")
	}
}

func TestNewFromFilesSeedsProfiles(t *testing.T) {
	dir := t.TempDir()
	if len(mustUsers(t, NewFromFiles(dir))) != 0 {
		t.Fatalf("expected no profiles when the seed file is missing")
	}

	content := "# user,budget,income\nalice,1000,2500\nbob,abc\n\ncarol, 300\n"
	if err := os.WriteFile(filepath.Join(dir, "seed_profiles.txt"), []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	s := NewFromFiles(dir)
	users := mustUsers(t, s)
	if len(users) != 2 || users[0] != "alice" || users[1] != "carol" {
		t.Fatalf("unexpected users %v", users)
	}
	p, err := s.GetProfile(context.Background(), "alice")
	if err != nil || !p.MonthlyBudget.Equal(decimal.NewFromInt(1000)) || !p.MonthlyIncome.Equal(decimal.NewFromInt(2500)) {
		t.Fatalf("unexpected profile %+v err=%v", p, err)
	}
	if _, err := s.GetProfile(context.Background(), "bob"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("malformed line must be skipped, got %v", err)
	}
}

func mustUsers(t *testing.T, s *Store) []string {
	t.Helper()
	ids, err := s.ListUserIDs(context.Background())
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	return ids
}
