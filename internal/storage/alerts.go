package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"smartbudget/internal/core"
)

const alertColumns = `id, user_id, alert_type, title, message, priority, is_read, metadata, dedup_key, created_at, read_at`

const insertAlertSQL = `
	INSERT INTO alerts (` + alertColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, NULL)
	ON CONFLICT(dedup_key) DO NOTHING`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertAlert stores a unless an alert with the same dedup key exists, in
// which case the existing id is returned with created=false.
func (r *SQLiteRepository) InsertAlert(ctx context.Context, a core.AlertRecord) (string, bool, error) {
	if err := a.Validate(); err != nil {
		return "", false, err
	}
	id, created, err := r.insertAlert(ctx, r.db, &a)
	if err != nil {
		return "", false, core.Unavailable("insert alert", err)
	}
	return id, created, nil
}

// InsertAlerts writes the batch in one transaction. Either every new alert
// is stored or none is.
func (r *SQLiteRepository) InsertAlerts(ctx context.Context, alerts []core.AlertRecord) ([]core.AlertRecord, error) {
	for _, a := range alerts {
		if err := a.Validate(); err != nil {
			return nil, err
		}
	}
	created := []core.AlertRecord{}
	if len(alerts) == 0 {
		return created, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, core.Unavailable("begin alert batch", err)
	}
	defer tx.Rollback()

	for i := range alerts {
		a := alerts[i]
		_, ok, err := r.insertAlert(ctx, tx, &a)
		if err != nil {
			return nil, core.Unavailable("insert alert batch", err)
		}
		if ok {
			created = append(created, a)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, core.Unavailable("commit alert batch", err)
	}

	slog.DebugContext(ctx, "Alert batch stored", "candidates", len(alerts), "created", len(created))
	return created, nil
}

func (r *SQLiteRepository) insertAlert(ctx context.Context, ex execer, a *core.AlertRecord) (string, bool, error) {
	if a.ID == "" {
		a.ID = core.NewID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}
	a.CreatedAt = a.CreatedAt.UTC()
	meta, err := encodeMetadata(a.Metadata)
	if err != nil {
		return "", false, err
	}

	res, err := ex.ExecContext(ctx, insertAlertSQL,
		a.ID, a.UserID, string(a.AlertType), a.Title, a.Message, string(a.Priority),
		meta, a.DedupKey, a.CreatedAt.UnixNano())
	if err != nil {
		return "", false, err
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return a.ID, true, nil
	}

	var existing string
	if err := ex.QueryRowContext(ctx, `SELECT id FROM alerts WHERE dedup_key = ?`, a.DedupKey).Scan(&existing); err != nil {
		return "", false, fmt.Errorf("lookup existing alert: %w", err)
	}
	return existing, false, nil
}

func (r *SQLiteRepository) GetAlert(ctx context.Context, userID, id string) (core.AlertRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, id, userID)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AlertRecord{}, fmt.Errorf("alert %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.AlertRecord{}, core.Unavailable("get alert", err)
	}
	return a, nil
}

// ListAlerts returns one page of the user's alerts, newest first, and the
// number of alerts matching f.
func (r *SQLiteRepository) ListAlerts(ctx context.Context, userID string, f core.AlertFilter) ([]core.AlertRecord, int, error) {
	f = f.Normalized()
	where, args := alertWhere(userID, f)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, core.Unavailable("count alerts", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE `+where+` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, core.Unavailable("list alerts", err)
	}
	defer rows.Close()

	out := []core.AlertRecord{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, 0, core.Unavailable("scan alert", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, core.Unavailable("list alerts", err)
	}
	return out, total, nil
}

func alertWhere(userID string, f core.AlertFilter) (string, []any) {
	conds := []string{"user_id = ?", "deleted_at IS NULL"}
	args := []any{userID}
	if f.AlertType != "" {
		conds = append(conds, "alert_type = ?")
		args = append(args, string(f.AlertType))
	}
	if f.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if f.IsRead != nil {
		conds = append(conds, "is_read = ?")
		args = append(args, boolToInt(*f.IsRead))
	}
	if !f.Start.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Start.UTC().UnixNano())
	}
	if !f.End.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.End.UTC().UnixNano())
	}
	return strings.Join(conds, " AND "), args
}

func (r *SQLiteRepository) UnreadCount(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE user_id = ? AND is_read = 0 AND deleted_at IS NULL`, userID).Scan(&n)
	if err != nil {
		return 0, core.Unavailable("count unread alerts", err)
	}
	return n, nil
}

// MarkAlertRead only touches unread rows, so read_at keeps its first value.
func (r *SQLiteRepository) MarkAlertRead(ctx context.Context, userID, id string, at time.Time) (core.AlertRecord, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET is_read = 1, read_at = ?
		WHERE id = ? AND user_id = ? AND is_read = 0 AND deleted_at IS NULL`,
		at.UTC().UnixNano(), id, userID)
	if err != nil {
		return core.AlertRecord{}, core.Unavailable("mark alert read", err)
	}
	return r.GetAlert(ctx, userID, id)
}

func (r *SQLiteRepository) MarkAllAlertsRead(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET is_read = 1, read_at = ?
		WHERE user_id = ? AND is_read = 0 AND deleted_at IS NULL`,
		at.UTC().UnixNano(), userID)
	if err != nil {
		return 0, core.Unavailable("mark all alerts read", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// DeleteAlert hides the alert; the row stays so its dedup key is not reused.
func (r *SQLiteRepository) DeleteAlert(ctx context.Context, userID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET deleted_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		r.now().UTC().UnixNano(), id, userID)
	if err != nil {
		return core.Unavailable("delete alert", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func scanAlert(s scanner) (core.AlertRecord, error) {
	var (
		a                         core.AlertRecord
		alertType, priority, meta string
		isRead                    int
		created                   int64
		readAt                    sql.NullInt64
	)
	err := s.Scan(&a.ID, &a.UserID, &alertType, &a.Title, &a.Message, &priority,
		&isRead, &meta, &a.DedupKey, &created, &readAt)
	if err != nil {
		return core.AlertRecord{}, err
	}
	a.AlertType = core.AlertType(alertType)
	a.Priority = core.Priority(priority)
	a.IsRead = isRead == 1
	a.CreatedAt = fromNanos(created)
	if readAt.Valid {
		t := fromNanos(readAt.Int64)
		a.ReadAt = &t
	}
	if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
		return core.AlertRecord{}, fmt.Errorf("decode metadata of %s: %w", a.ID, err)
	}
	return a, nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
