// Package execorch materialises the initial buy-task chain for a
// StrategyExecution the moment it leaves "queued": one root task per
// StrategyExecutionDetail, anchored to the next business day and the
// detail's mined entry time-of-day. No further tasks are created
// here — the dispatcher chains the rest forward as each task
// completes.
package execorch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/nitinkhare/patterncore/internal/calendar"
	"github.com/nitinkhare/patterncore/internal/store"
)

// Orchestrator claims queued StrategyExecutions and materialises their
// detail root tasks.
type Orchestrator struct {
	store    store.Store
	calendar *calendar.Calendar
	logger   *logrus.Entry
}

// New builds an Orchestrator.
func New(st store.Store, cal *calendar.Calendar, logger *logrus.Entry) *Orchestrator {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{store: st, calendar: cal, logger: logger.WithField("component", "execorch")}
}

// Tick implements loop.Tick: claim every queued execution and
// materialise its detail root tasks before returning.
func (o *Orchestrator) Tick(ctx context.Context) error {
	executions, err := o.store.ListQueuedStrategyExecutions(ctx)
	if err != nil {
		return fmt.Errorf("execorch: list queued executions: %w", err)
	}
	for _, exec := range executions {
		o.processExecution(ctx, exec)
	}
	return nil
}

func (o *Orchestrator) processExecution(ctx context.Context, exec store.StrategyExecution) {
	log := o.logger.WithField("execution_id", exec.ID)

	if err := o.store.TransitionExecutionStatus(ctx, exec.ID, store.StatusQueued, store.StatusRunning); err != nil {
		if err != store.ErrCASConflict {
			log.WithError(err).Error("failed to claim execution")
		}
		return
	}
	log.Info("execution claimed, materialising task chains")

	details, err := o.store.ListExecutionDetails(ctx, exec.ID)
	if err != nil {
		log.WithError(err).Error("failed to list execution details")
		o.failExecution(ctx, exec.ID, log)
		return
	}

	for _, detail := range details {
		if err := o.materialiseDetail(ctx, exec, detail); err != nil {
			log.WithError(err).WithField("detail_id", detail.ID).Error("failed to materialise detail")
			o.failExecution(ctx, exec.ID, log)
			return
		}
	}
}

func (o *Orchestrator) materialiseDetail(ctx context.Context, exec store.StrategyExecution, detail store.StrategyExecutionDetail) error {
	if err := o.store.TransitionDetailStatus(ctx, detail.ID, store.StatusQueued, store.StatusRunning); err != nil {
		if err == store.ErrCASConflict {
			return nil
		}
		return fmt.Errorf("transition detail to running: %w", err)
	}

	result, err := o.store.GetStrategyResult(ctx, detail.ResultID)
	if err != nil {
		return fmt.Errorf("get result %s: %w", detail.ResultID, err)
	}

	today := time.Now().In(calendar.IST)
	dayOfExecution, err := o.calendar.NextBusinessDay(today, result.Exchange)
	if err != nil {
		return fmt.Errorf("resolve next business day: %w", err)
	}

	timestampOfExecution, err := calendar.SecondsSinceMidnight(result.X)
	if err != nil {
		return fmt.Errorf("parse entry time %q: %w", result.X, err)
	}

	task := &store.StrategyExecutionTask{
		ExecutionDetailID:    detail.ID,
		PreviousTaskID:       store.RootTaskID,
		OrderType:            store.OrderBuy,
		DayOfExecution:       dayOfExecution,
		TimestampOfExecution: timestampOfExecution,
		CurrentMoney:         moneyForDetail(exec, detail),
		CurrentShares:        0,
		DaysRemaining:        result.ContinuousDays,
		X:                    result.X,
		Y:                    result.Y,
		Symbol:               result.Symbol,
		Exchange:             result.Exchange,
		SimulateMode:         exec.Mode == store.ModeSimulate,
		Status:               store.StatusQueued,
	}
	if err := o.store.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("create root task: %w", err)
	}
	return nil
}

// moneyForDetail computes total_money * weight_percent / 100, or zero
// when the execution carries no explicit notional (simulate mode with
// nothing supplied).
func moneyForDetail(exec store.StrategyExecution, detail store.StrategyExecutionDetail) decimal.Decimal {
	if exec.TotalMoney == nil {
		return decimal.Zero
	}
	weight := decimal.NewFromFloat(detail.WeightPercent).Div(decimal.NewFromInt(100))
	return exec.TotalMoney.Mul(weight)
}

// failExecution cascades a materialisation failure top-down: the
// execution and every one of its details move to failed, and any task
// a partially-materialised detail already produced is failed too.
func (o *Orchestrator) failExecution(ctx context.Context, executionID uuid.UUID, log *logrus.Entry) {
	if err := o.store.TransitionExecutionStatus(ctx, executionID, store.StatusRunning, store.StatusFailed); err != nil && err != store.ErrCASConflict {
		log.WithError(err).Error("failed to mark execution failed")
	}

	details, err := o.store.ListNonTerminalDetailsForExecution(ctx, executionID)
	if err != nil {
		log.WithError(err).Error("failed to list details during failure cascade")
		return
	}
	for _, detail := range details {
		if err := o.store.TransitionDetailStatus(ctx, detail.ID, detail.Status, store.StatusFailed); err != nil && err != store.ErrCASConflict {
			log.WithError(err).WithField("detail_id", detail.ID).Error("failed to mark detail failed")
		}
		tasks, err := o.store.ListNonTerminalTasksForDetail(ctx, detail.ID)
		if err != nil {
			log.WithError(err).WithField("detail_id", detail.ID).Error("failed to list tasks during failure cascade")
			continue
		}
		for _, task := range tasks {
			if err := o.store.FailTask(ctx, task.ID, time.Now(), "execution materialisation failed"); err != nil && err != store.ErrCASConflict {
				log.WithError(err).WithField("task_id", task.ID).Error("failed to mark task failed")
			}
		}
	}
}
