// Package ports declares the outbound interfaces the services depend on.
// internal/storage and internal/memory implement all of them.
package ports

import (
	"context"
	"time"

	"smartbudget/internal/core"
)

type (
	// ExpenseStore persists expense records. Query returns the user's records
	// with OccurredAt in [start, end), oldest first.
	ExpenseStore interface {
		CreateExpense(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error)
		UpdateExpense(ctx context.Context, e core.ExpenseRecord) (core.ExpenseRecord, error)
		DeleteExpense(ctx context.Context, userID, id string) error
		GetExpense(ctx context.Context, userID, id string) (core.ExpenseRecord, error)
		QueryExpenses(ctx context.Context, userID string, start, end time.Time) ([]core.ExpenseRecord, error)
	}

	// AlertStore persists alerts. Inserts are idempotent on DedupKey: a second
	// insert with an existing key is a no-op reported as created=false.
	AlertStore interface {
		InsertAlert(ctx context.Context, a core.AlertRecord) (id string, created bool, err error)
		// InsertAlerts writes the batch atomically and returns the records
		// that were actually created.
		InsertAlerts(ctx context.Context, alerts []core.AlertRecord) ([]core.AlertRecord, error)
		GetAlert(ctx context.Context, userID, id string) (core.AlertRecord, error)
		ListAlerts(ctx context.Context, userID string, f core.AlertFilter) (alerts []core.AlertRecord, total int, err error)
		UnreadCount(ctx context.Context, userID string) (int, error)
		MarkAlertRead(ctx context.Context, userID, id string, at time.Time) (core.AlertRecord, error)
		MarkAllAlertsRead(ctx context.Context, userID string, at time.Time) (int, error)
		DeleteAlert(ctx context.Context, userID, id string) error
	}

	// ProfileStore holds budget profiles. GetProfile returns core.ErrNotFound
	// when the user has none.
	ProfileStore interface {
		GetProfile(ctx context.Context, userID string) (core.BudgetProfile, error)
		PutProfile(ctx context.Context, p core.BudgetProfile) error
		ListUserIDs(ctx context.Context) ([]string, error)
	}

	// Store bundles every port; both backends satisfy it.
	Store interface {
		ExpenseStore
		AlertStore
		ProfileStore
		Close() error
	}

	// AlertExporter copies newly created alerts to an external log.
	AlertExporter interface {
		ExportAlerts(ctx context.Context, alerts []core.AlertRecord) error
	}
)
