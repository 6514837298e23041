package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"smartbudget/internal/core"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteRepository implements the expense, alert and profile ports on a
// single SQLite file. Timestamps are stored as UTC unix nanoseconds and money
// as decimal strings.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer connection avoids SQLITE_BUSY between our own goroutines.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers within ctx.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return core.Unavailable("ping", r.db.PingContext(ctx))
}

const expenseColumns = `id, user_id, amount, category, payment_type, occurred_at, notes, tags, created_at, updated_at`

func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}
	if e.ID == "" {
		e.ID = core.NewID()
	}
	now := r.now().UTC()
	e.OccurredAt = e.OccurredAt.UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	tags, err := encodeTags(e.Tags)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO expenses (`+expenseColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Amount.String(), e.Category, string(e.PaymentType),
		e.OccurredAt.UnixNano(), e.Notes, tags, now.UnixNano(), now.UnixNano())
	if err != nil {
		return core.ExpenseRecord{}, core.Unavailable("create expense", err)
	}

	slog.DebugContext(ctx, "Expense saved to SQLite",
		"id", e.ID,
		"user_id", e.UserID,
		"category", e.Category,
		"amount", e.Amount.String())
	return e, nil
}

func (r *SQLiteRepository) UpdateExpense(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error) {
	e.Normalize()
	if err := e.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}
	tags, err := encodeTags(e.Tags)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	now := r.now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE expenses
		SET amount = ?, category = ?, payment_type = ?, occurred_at = ?, notes = ?, tags = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		e.Amount.String(), e.Category, string(e.PaymentType), e.OccurredAt.UTC().UnixNano(),
		e.Notes, tags, now.UnixNano(), e.ID, e.UserID)
	if err != nil {
		return core.ExpenseRecord{}, core.Unavailable("update expense", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ExpenseRecord{}, fmt.Errorf("expense %s: %w", e.ID, core.ErrNotFound)
	}
	return r.GetExpense(ctx, e.UserID, e.ID)
}

func (r *SQLiteRepository) DeleteExpense(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return core.Unavailable("delete expense", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) GetExpense(ctx context.Context, userID, id string) (core.ExpenseRecord, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ExpenseRecord{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.ExpenseRecord{}, core.Unavailable("get expense", err)
	}
	return e, nil
}

func (r *SQLiteRepository) QueryExpenses(ctx context.Context, userID string, start, end time.Time) ([]core.ExpenseRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+expenseColumns+`
		FROM expenses
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at, id`,
		userID, start.UTC().UnixNano(), end.UTC().UnixNano())
	if err != nil {
		return nil, core.Unavailable("query expenses", err)
	}
	defer rows.Close()

	out := []core.ExpenseRecord{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, core.Unavailable("scan expense", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Unavailable("query expenses", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, userID string) (core.BudgetProfile, error) {
	var budget, income string
	err := r.db.QueryRowContext(ctx,
		`SELECT monthly_budget, monthly_income FROM budget_profiles WHERE user_id = ?`, userID).
		Scan(&budget, &income)
	if errors.Is(err, sql.ErrNoRows) {
		return core.BudgetProfile{}, fmt.Errorf("profile %s: %w", userID, core.ErrNotFound)
	}
	if err != nil {
		return core.BudgetProfile{}, core.Unavailable("get profile", err)
	}
	p := core.BudgetProfile{UserID: userID}
	if p.MonthlyBudget, err = decimal.NewFromString(budget); err != nil {
		return core.BudgetProfile{}, fmt.Errorf("decode monthly_budget for %s: %w", userID, err)
	}
	if p.MonthlyIncome, err = decimal.NewFromString(income); err != nil {
		return core.BudgetProfile{}, fmt.Errorf("decode monthly_income for %s: %w", userID, err)
	}
	return p, nil
}

func (r *SQLiteRepository) PutProfile(ctx context.Context, p core.BudgetProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO budget_profiles (user_id, monthly_budget, monthly_income, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			monthly_budget = excluded.monthly_budget,
			monthly_income = excluded.monthly_income,
			updated_at = excluded.updated_at`,
		p.UserID, p.MonthlyBudget.String(), p.MonthlyIncome.String(), r.now().UTC().UnixNano())
	return core.Unavailable("put profile", err)
}

// ListUserIDs returns every user with a profile or an expense.
func (r *SQLiteRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM budget_profiles
		UNION
		SELECT user_id FROM expenses
		ORDER BY 1`)
	if err != nil {
		return nil, core.Unavailable("list users", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, core.Unavailable("scan user", err)
		}
		ids = append(ids, id)
	}
	return ids, core.Unavailable("list users", rows.Err())
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (core.ExpenseRecord, error) {
	var (
		e                          core.ExpenseRecord
		amount, payment, tags      string
		occurred, created, updated int64
	)
	if err := s.Scan(&e.ID, &e.UserID, &amount, &e.Category, &payment, &occurred, &e.Notes, &tags, &created, &updated); err != nil {
		return core.ExpenseRecord{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("decode amount of %s: %w", e.ID, err)
	}
	e.Amount = d
	e.PaymentType = core.PaymentType(payment)
	e.OccurredAt = fromNanos(occurred)
	e.CreatedAt = fromNanos(created)
	e.UpdatedAt = fromNanos(updated)
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("decode tags of %s: %w", e.ID, err)
	}
	if len(e.Tags) == 0 {
		e.Tags = nil
	}
	return e, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
