// Package worker runs alert evaluations outside the request path: on demand
// from AMQP evaluation requests and periodically for every known user.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"smartbudget/internal/amqp"
	"smartbudget/internal/core"
	"smartbudget/internal/log"
	"smartbudget/internal/ports"
	"smartbudget/internal/services"

	"golang.org/x/sync/errgroup"
)

// Evaluator is the part of services.AlertService the worker drives.
type Evaluator interface {
	Evaluate(ctx context.Context, userID string) (services.Evaluation, error)
}

// UserLister enumerates the users a sweep visits.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

// Config holds the sweep schedule.
type Config struct {
	// SweepInterval is how often every user is re-evaluated (default: 1h)
	SweepInterval time.Duration

	// Concurrency bounds parallel evaluations within one sweep (default: 4)
	Concurrency int
}

func DefaultConfig() Config {
	return Config{
		SweepInterval: time.Hour,
		Concurrency:   4,
	}
}

// SweepResult summarises one pass over all users.
type SweepResult struct {
	Users         int
	Evaluated     int
	Failed        int
	AlertsCreated int
}

// EvaluationWorker evaluates users and exports the alerts it creates.
type EvaluationWorker struct {
	alerts   Evaluator
	users    UserLister
	exporter ports.AlertExporter
	config   Config
	logger   *log.StructuredLogger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewEvaluationWorker wires the worker. exporter may be nil.
func NewEvaluationWorker(alerts Evaluator, users UserLister, exporter ports.AlertExporter, config Config) *EvaluationWorker {
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultConfig().SweepInterval
	}
	if config.Concurrency < 1 {
		config.Concurrency = DefaultConfig().Concurrency
	}
	return &EvaluationWorker{
		alerts:   alerts,
		users:    users,
		exporter: exporter,
		config:   config,
		logger:   log.NewStructuredLogger(log.FromContext(context.Background()).WithComponent(log.ComponentWorker)),
	}
}

// HandleEvaluationRequest processes one evaluation request from AMQP.
// Validation failures are marked permanent so the delivery is dropped;
// everything else, DataUnavailable included, is left to be requeued.
func (w *EvaluationWorker) HandleEvaluationRequest(ctx context.Context, msg *amqp.EvaluationRequest) error {
	slog.InfoContext(ctx, "Processing evaluation request",
		"user_id", msg.UserID,
		"reason", msg.Reason)

	created, err := w.evaluate(ctx, msg.UserID)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			return amqp.Permanent(err)
		}
		return err
	}

	slog.InfoContext(ctx, "Evaluation request processed",
		"user_id", msg.UserID,
		"alerts_created", created)
	return nil
}

// Sweep evaluates every known user with bounded parallelism. A failing user
// is logged and counted; it does not stop the sweep.
func (w *EvaluationWorker) Sweep(ctx context.Context) (SweepResult, error) {
	users, err := w.users.ListUserIDs(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list users: %w", core.Unavailable("list users", err))
	}

	var evaluated, failed, alerts atomic.Int64
	var g errgroup.Group
	g.SetLimit(w.config.Concurrency)

	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n, err := w.evaluate(ctx, userID)
			if err != nil {
				failed.Add(1)
				return nil
			}
			evaluated.Add(1)
			alerts.Add(int64(n))
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Users:         len(users),
		Evaluated:     int(evaluated.Load()),
		Failed:        int(failed.Load()),
		AlertsCreated: int(alerts.Load()),
	}
	slog.InfoContext(ctx, "Sweep completed",
		log.FieldOperation, log.OpSweep,
		"users", res.Users,
		"evaluated", res.Evaluated,
		"failed", res.Failed,
		"alerts_created", res.AlertsCreated)
	return res, ctx.Err()
}

func (w *EvaluationWorker) evaluate(ctx context.Context, userID string) (int, error) {
	ev, err := w.alerts.Evaluate(ctx, userID)
	if err != nil {
		w.logger.LogError(ctx, "Evaluation failed", err, "", log.OpEvaluate,
			log.NewFields().WithUser(userID))
		return 0, err
	}
	w.export(ctx, ev.Created)
	return len(ev.Created), nil
}

// export copies new alerts to the external log. Failures are logged only:
// the alerts are already stored and the log is best effort.
func (w *EvaluationWorker) export(ctx context.Context, created []core.AlertRecord) {
	if w.exporter == nil || len(created) == 0 {
		return
	}
	if err := w.exporter.ExportAlerts(ctx, created); err != nil {
		slog.WarnContext(ctx, "Failed to export alerts",
			log.FieldOperation, log.OpExport,
			"count", len(created),
			"error", err)
	}
}

// Start launches the sweep loop. Returns an error if already running.
func (w *EvaluationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("evaluation worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx, w.stopCh, w.doneCh)

	slog.InfoContext(ctx, "Evaluation sweep started",
		"interval", w.config.SweepInterval,
		"concurrency", w.config.Concurrency)
	return nil
}

// Stop signals the loop and waits for the current sweep to finish.
func (w *EvaluationWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Evaluation sweep stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Evaluation sweep stop timed out")
		return ctx.Err()
	}
}

func (w *EvaluationWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *EvaluationWorker) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.SweepInterval)
	defer ticker.Stop()

	// Sweep immediately on startup to catch requests lost while down.
	w.sweepOnce(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweepOnce(ctx)
		}
	}
}

func (w *EvaluationWorker) sweepOnce(ctx context.Context) {
	if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Sweep failed", "error", err)
	}
}
