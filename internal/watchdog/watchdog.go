// Package watchdog periodically sweeps the shared store for
// executions, details, and tasks whose states have drifted out of the
// invariants the strategy-run worker, execution orchestrator, and
// dispatcher are supposed to maintain, and fails the affected subtree.
//
// Grounded on strategy_task_watcher.py's three handle_N cases: a
// running execution stuck on a task nobody is making progress on, a
// queued execution with children that have moved on without it, and a
// terminal execution that still has non-terminal children.
package watchdog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/nitinkhare/patterncore/internal/metrics"
	"github.com/nitinkhare/patterncore/internal/store"
)

// caseDuration records how long each sweep case takes, replacing the
// source's per-phase elapsed-time log lines with scrapeable metrics.
var caseDuration = promauto.With(metrics.Registry).NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "patterncore",
	Subsystem: "watchdog",
	Name:      "sweep_case_duration_seconds",
	Help:      "Duration of each watchdog sweep case.",
	Buckets:   prometheus.DefBuckets,
}, []string{"case"})

// Config tunes the zombie-detection grace period.
type Config struct {
	// BufferSeconds is how long a non-terminal task may sit untouched
	// past its own scheduled time (day of execution plus time-of-day)
	// before its execution is declared a zombie.
	BufferSeconds int
}

// DefaultConfig matches the reference 1800s-poll / 600s-buffer
// deployment.
var DefaultConfig = Config{BufferSeconds: 600}

// Watchdog sweeps the store for the three drift cases and fails
// affected subtrees top-down.
type Watchdog struct {
	store  store.Store
	cfg    Config
	logger *logrus.Entry
}

// New builds a Watchdog.
func New(st store.Store, cfg Config, logger *logrus.Entry) *Watchdog {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Watchdog{store: st, cfg: cfg, logger: logger.WithField("component", "watchdog")}
}

// Tick implements loop.Tick: run all three cases in order, each timed
// independently.
func (w *Watchdog) Tick(ctx context.Context) error {
	if err := w.timedCase(ctx, "zombie_running_execution", w.sweepZombieExecutions); err != nil {
		return err
	}
	if err := w.timedCase(ctx, "queued_parent_nonqueued_child", w.sweepQueuedParentSkew); err != nil {
		return err
	}
	if err := w.timedCase(ctx, "terminal_parent_nonterminal_child", w.sweepTerminalParentSkew); err != nil {
		return err
	}
	return nil
}

func (w *Watchdog) timedCase(ctx context.Context, name string, fn func(context.Context) error) error {
	timer := prometheus.NewTimer(caseDuration.WithLabelValues(name))
	defer timer.ObserveDuration()
	return fn(ctx)
}

// sweepZombieExecutions finds non-terminal tasks whose scheduled time
// (day of execution plus time-of-day, not creation time) has passed
// BufferSeconds ago and fails the execution each one belongs to. A
// running execution making progress keeps creating or completing
// tasks; one that stalls leaves a queued or running task behind, past
// its own due time, with nobody claiming it. This case is scoped to a
// running execution whose owning detail is itself running — a stale
// task under a queued or already-terminal parent belongs to
// sweepQueuedParentSkew or sweepTerminalParentSkew instead.
func (w *Watchdog) sweepZombieExecutions(ctx context.Context) error {
	cutoff := time.Now().Add(-time.Duration(w.cfg.BufferSeconds) * time.Second)
	tasks, err := w.store.ListNonTerminalTasksScheduledBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("watchdog: list stale tasks: %w", err)
	}

	seen := make(map[uuid.UUID]bool)
	for _, task := range tasks {
		detail, err := w.store.GetExecutionDetail(ctx, task.ExecutionDetailID)
		if err != nil {
			w.logger.WithError(err).WithField("task_id", task.ID).Error("failed to resolve detail for stale task")
			continue
		}
		if detail.Status != store.StatusRunning {
			continue
		}
		if seen[detail.ExecutionID] {
			continue
		}
		seen[detail.ExecutionID] = true

		exec, err := w.store.GetStrategyExecution(ctx, detail.ExecutionID)
		if err != nil {
			w.logger.WithError(err).WithField("execution_id", detail.ExecutionID).Error("failed to resolve execution for stale task")
			continue
		}
		if exec.Status != store.StatusRunning {
			continue
		}

		w.logger.WithFields(logrus.Fields{
			"execution_id":  detail.ExecutionID,
			"task_id":       task.ID,
			"scheduled_for": task.ScheduledTime(),
			"overdue_by":    time.Since(task.ScheduledTime()),
		}).Warn("zombie execution detected: task stalled past its scheduled time")
		w.failExecutionTree(ctx, detail.ExecutionID)
	}
	return nil
}

// sweepQueuedParentSkew fails every queued execution that has a detail
// or task which has already moved past queued — a worker touched a
// child before the execution itself was claimed, which should never
// happen under correct CAS discipline.
func (w *Watchdog) sweepQueuedParentSkew(ctx context.Context) error {
	executions, err := w.store.ListStrategyExecutionsByStatus(ctx, store.StatusQueued)
	if err != nil {
		return fmt.Errorf("watchdog: list queued executions: %w", err)
	}
	for _, exec := range executions {
		details, err := w.store.ListExecutionDetails(ctx, exec.ID)
		if err != nil {
			w.logger.WithError(err).WithField("execution_id", exec.ID).Error("failed to list details")
			continue
		}
		skewed := false
		for _, detail := range details {
			if detail.Status != store.StatusQueued {
				skewed = true
				break
			}
			tasks, err := w.store.ListTasksForDetail(ctx, detail.ID)
			if err != nil {
				w.logger.WithError(err).WithField("detail_id", detail.ID).Error("failed to list tasks")
				continue
			}
			for _, task := range tasks {
				if task.Status != store.StatusQueued {
					skewed = true
					break
				}
			}
			if skewed {
				break
			}
		}
		if skewed {
			w.logger.WithField("execution_id", exec.ID).Warn("queued execution has a non-queued child, failing subtree")
			w.failExecutionTree(ctx, exec.ID)
		}
	}
	return nil
}

// sweepTerminalParentSkew fails any non-terminal detail or task left
// dangling under an execution that has already completed or failed.
// The execution itself is left alone; only its stray children move.
func (w *Watchdog) sweepTerminalParentSkew(ctx context.Context) error {
	executions, err := w.store.ListStrategyExecutionsByStatus(ctx, store.StatusCompleted, store.StatusFailed)
	if err != nil {
		return fmt.Errorf("watchdog: list terminal executions: %w", err)
	}
	for _, exec := range executions {
		details, err := w.store.ListNonTerminalDetailsForExecution(ctx, exec.ID)
		if err != nil {
			w.logger.WithError(err).WithField("execution_id", exec.ID).Error("failed to list non-terminal details")
			continue
		}
		if len(details) == 0 {
			continue
		}
		w.logger.WithField("execution_id", exec.ID).Warn("terminal execution has non-terminal children, failing them")
		for _, detail := range details {
			w.failDetailSubtree(ctx, detail)
		}
	}
	return nil
}

// CancelExecution fails a single execution and its whole subtree on
// demand, outside of any sweep. Unlike the sweep cases, a caller asking
// to cancel a specific execution wants to know whether anything
// actually happened, so this surfaces the top-level lookup and
// transition errors instead of only logging them.
func (w *Watchdog) CancelExecution(ctx context.Context, executionID uuid.UUID) error {
	exec, err := w.store.GetStrategyExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("watchdog: load execution: %w", err)
	}
	if exec.Status.Terminal() {
		return fmt.Errorf("watchdog: execution %s is already %s", executionID, exec.Status)
	}
	if err := w.store.TransitionExecutionStatus(ctx, executionID, exec.Status, store.StatusFailed); err != nil {
		return fmt.Errorf("watchdog: transition execution to failed: %w", err)
	}

	details, err := w.store.ListNonTerminalDetailsForExecution(ctx, executionID)
	if err != nil {
		return fmt.Errorf("watchdog: list non-terminal details: %w", err)
	}
	for _, detail := range details {
		w.failDetailSubtree(ctx, detail)
	}
	return nil
}

// failExecutionTree is the top-down cascade shared by both cases that
// fail a whole execution: claim the execution itself (best effort — a
// concurrent failure or completion is not an error, just a race this
// sweep lost) then fail every non-terminal detail underneath it. It is
// idempotent: running it again against an already-failed subtree finds
// nothing non-terminal left and does nothing.
func (w *Watchdog) failExecutionTree(ctx context.Context, executionID uuid.UUID) {
	exec, err := w.store.GetStrategyExecution(ctx, executionID)
	if err != nil {
		w.logger.WithError(err).WithField("execution_id", executionID).Error("failed to load execution")
		return
	}
	if !exec.Status.Terminal() {
		if err := w.store.TransitionExecutionStatus(ctx, executionID, exec.Status, store.StatusFailed); err != nil && err != store.ErrCASConflict {
			w.logger.WithError(err).WithField("execution_id", executionID).Error("failed to transition execution to failed")
		}
	}

	details, err := w.store.ListNonTerminalDetailsForExecution(ctx, executionID)
	if err != nil {
		w.logger.WithError(err).WithField("execution_id", executionID).Error("failed to list non-terminal details")
		return
	}
	for _, detail := range details {
		w.failDetailSubtree(ctx, detail)
	}
}

func (w *Watchdog) failDetailSubtree(ctx context.Context, detail store.StrategyExecutionDetail) {
	if !detail.Status.Terminal() {
		if err := w.store.TransitionDetailStatus(ctx, detail.ID, detail.Status, store.StatusFailed); err != nil && err != store.ErrCASConflict {
			w.logger.WithError(err).WithField("detail_id", detail.ID).Error("failed to transition detail to failed")
		}
	}

	tasks, err := w.store.ListNonTerminalTasksForDetail(ctx, detail.ID)
	if err != nil {
		w.logger.WithError(err).WithField("detail_id", detail.ID).Error("failed to list non-terminal tasks")
		return
	}
	now := time.Now()
	for _, task := range tasks {
		if err := w.store.FailTask(ctx, task.ID, now, "failed by watchdog sweep"); err != nil && err != store.ErrCASConflict {
			w.logger.WithError(err).WithField("task_id", task.ID).Error("failed to fail task")
		}
	}
}
