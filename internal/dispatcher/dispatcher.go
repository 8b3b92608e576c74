// Package dispatcher places broker orders for due tasks and chains
// each completed task into its successor, advancing a
// StrategyExecutionDetail's buy/sell cycle one leg at a time.
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nitinkhare/patterncore/internal/broker"
	"github.com/nitinkhare/patterncore/internal/calendar"
	"github.com/nitinkhare/patterncore/internal/store"
)

// Config tunes the dispatcher's due-task window and concurrency.
type Config struct {
	// BufferSeconds widens the lower bound of the due-task window to
	// absorb scheduler jitter: a queued task stays due for up to Buffer
	// seconds after its timestamp_of_execution has passed.
	BufferSeconds int
	// LookaheadSeconds widens the upper bound, normally the poll
	// interval itself so a tick never misses a task scheduled to fire
	// before the next tick starts.
	LookaheadSeconds int
	// TaskLimit bounds how many due tasks one tick dispatches.
	TaskLimit int
}

// DefaultConfig matches the reference 10-second poll / 170-second
// buffer deployment.
var DefaultConfig = Config{BufferSeconds: 170, LookaheadSeconds: 10, TaskLimit: 10}

// Dispatcher is the single-consumer loop that places orders for due
// tasks and chains the buy/sell cycle forward. It needs no holiday
// calendar of its own: due-task windows compare against the calendar
// day already baked into each task's day_of_execution, and the sell
// chain advances by civil day, not trading day.
type Dispatcher struct {
	store  store.Store
	broker broker.Broker
	cfg    Config
	outage *outageTracker
	logger *logrus.Entry
}

// New builds a Dispatcher. broker is expected to already be wrapped
// with a circuit breaker (broker.NewCircuitBreakerBroker) by the
// caller; the dispatcher layers its own tick-level outage tracker on
// top to decide whether to skip a tick entirely.
func New(st store.Store, b broker.Broker, cfg Config, logger *logrus.Entry) *Dispatcher {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "dispatcher")
	return &Dispatcher{
		store:  st,
		broker: b,
		cfg:    cfg,
		outage: newOutageTracker(DefaultOutageSettings, logger),
		logger: logger,
	}
}

// Tick implements loop.Tick.
func (d *Dispatcher) Tick(ctx context.Context) error {
	if d.outage.isTripped() {
		return nil
	}

	now := time.Now().In(calendar.IST)
	nowSecs := calendar.SecondsSinceMidnightOf(now)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, calendar.IST)

	fromSecs := nowSecs - d.cfg.BufferSeconds
	toSecs := nowSecs + d.cfg.LookaheadSeconds

	tasks, err := d.store.GetDueTasks(ctx, today, fromSecs, toSecs, d.cfg.TaskLimit)
	if err != nil {
		return fmt.Errorf("dispatcher: get due tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() error {
			d.processTask(gctx, task)
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) processTask(ctx context.Context, task store.StrategyExecutionTask) {
	log := d.logger.WithFields(logrus.Fields{"task_id": task.ID, "symbol": task.Symbol, "order_type": task.OrderType})

	if err := d.store.TransitionTaskStatus(ctx, task.ID, store.StatusQueued, store.StatusRunning); err != nil {
		if err != store.ErrCASConflict {
			log.WithError(err).Error("failed to claim task")
		}
		return
	}

	result, err := d.placeOrder(ctx, task)
	if err != nil || !result.Success {
		errMsg := errText(result, err)
		d.outage.recordFailure(errMsg)
		if ferr := d.store.FailTask(ctx, task.ID, time.Now(), errMsg); ferr != nil && ferr != store.ErrCASConflict {
			log.WithError(ferr).Error("failed to mark task failed")
		}
		log.WithField("error", errMsg).Warn("order placement failed, task failed without chaining")
		return
	}
	d.outage.recordSuccess()

	if err := d.store.CreateTaskOutput(ctx, toTaskOutput(task.ID, result)); err != nil {
		log.WithError(err).Error("failed to record task output")
	}
	if err := d.store.CompleteTask(ctx, task.ID, time.Now(), result.PricePerShare); err != nil {
		log.WithError(err).Error("failed to mark task completed")
		return
	}

	if err := d.chainForward(ctx, task, result); err != nil {
		log.WithError(err).Error("failed to chain task forward")
	}
}

func (d *Dispatcher) placeOrder(ctx context.Context, task store.StrategyExecutionTask) (*broker.OrderResult, error) {
	req := broker.OrderRequest{
		Symbol:   task.Symbol,
		Exchange: task.Exchange,
		Product:  broker.ProductCashAndCarry,
		Kind:     broker.OrderKindMarket,
		Variety:  broker.VarietyRegular,
	}
	switch task.OrderType {
	case store.OrderBuy:
		req.Side = broker.Buy
		req.Money, _ = task.CurrentMoney.Float64()
	case store.OrderSell:
		req.Side = broker.Sell
		req.Quantity = task.CurrentShares
	default:
		return nil, fmt.Errorf("dispatcher: unknown order type %q", task.OrderType)
	}
	return d.broker.PlaceOrder(ctx, req)
}

// chainForward implements the buy -> sell -> next-buy cascade, and the
// terminal sell that completes a detail (and possibly its execution).
func (d *Dispatcher) chainForward(ctx context.Context, task store.StrategyExecutionTask, result *broker.OrderResult) error {
	switch task.OrderType {
	case store.OrderBuy:
		return d.chainSell(ctx, task, result)
	case store.OrderSell:
		if task.DaysRemaining > 1 {
			return d.chainNextBuy(ctx, task, result)
		}
		return d.completeDetail(ctx, task)
	default:
		return nil
	}
}

func (d *Dispatcher) chainSell(ctx context.Context, task store.StrategyExecutionTask, result *broker.OrderResult) error {
	timestamp, err := calendar.SecondsSinceMidnight(task.Y)
	if err != nil {
		return fmt.Errorf("parse exit time %q: %w", task.Y, err)
	}
	taskID := task.ID
	sell := &store.StrategyExecutionTask{
		ExecutionDetailID:    task.ExecutionDetailID,
		PreviousTaskID:       &taskID,
		OrderType:            store.OrderSell,
		DayOfExecution:       task.DayOfExecution,
		TimestampOfExecution: timestamp,
		CurrentMoney:         decimal.Zero,
		CurrentShares:        result.SharesBought,
		DaysRemaining:        task.DaysRemaining,
		X:                    task.X,
		Y:                    task.Y,
		Symbol:               task.Symbol,
		Exchange:             task.Exchange,
		SimulateMode:         task.SimulateMode,
		Status:               store.StatusQueued,
	}
	return d.store.CreateTask(ctx, sell)
}

// chainNextBuy advances the chain to the following calendar day per
// the pinned choice of calendar-day (not business-day) rollover: the
// source always steps by one civil day regardless of weekends or
// holidays. A buy that lands on a weekend or holiday keeps that date;
// nothing here moves it to a trading day.
func (d *Dispatcher) chainNextBuy(ctx context.Context, task store.StrategyExecutionTask, result *broker.OrderResult) error {
	timestamp, err := calendar.SecondsSinceMidnight(task.X)
	if err != nil {
		return fmt.Errorf("parse entry time %q: %w", task.X, err)
	}
	taskID := task.ID
	buy := &store.StrategyExecutionTask{
		ExecutionDetailID:    task.ExecutionDetailID,
		PreviousTaskID:       &taskID,
		OrderType:            store.OrderBuy,
		DayOfExecution:       task.DayOfExecution.AddDate(0, 0, 1),
		TimestampOfExecution: timestamp,
		CurrentMoney:         decimal.NewFromFloat(result.TotalAmount),
		CurrentShares:        0,
		DaysRemaining:        task.DaysRemaining - 1,
		X:                    task.X,
		Y:                    task.Y,
		Symbol:               task.Symbol,
		Exchange:             task.Exchange,
		SimulateMode:         task.SimulateMode,
		Status:               store.StatusQueued,
	}
	return d.store.CreateTask(ctx, buy)
}

func (d *Dispatcher) completeDetail(ctx context.Context, task store.StrategyExecutionTask) error {
	detail, err := d.store.GetExecutionDetail(ctx, task.ExecutionDetailID)
	if err != nil {
		return fmt.Errorf("get detail %s: %w", task.ExecutionDetailID, err)
	}
	if err := d.store.TransitionDetailStatus(ctx, detail.ID, detail.Status, store.StatusCompleted); err != nil && err != store.ErrCASConflict {
		return fmt.Errorf("complete detail %s: %w", detail.ID, err)
	}

	siblings, err := d.store.ListExecutionDetails(ctx, detail.ExecutionID)
	if err != nil {
		return fmt.Errorf("list sibling details for %s: %w", detail.ExecutionID, err)
	}
	for _, sibling := range siblings {
		if sibling.Status != store.StatusCompleted {
			return nil
		}
	}

	exec, err := d.store.GetStrategyExecution(ctx, detail.ExecutionID)
	if err != nil {
		return fmt.Errorf("get execution %s: %w", detail.ExecutionID, err)
	}
	if err := d.store.TransitionExecutionStatus(ctx, exec.ID, exec.Status, store.StatusCompleted); err != nil && err != store.ErrCASConflict {
		return fmt.Errorf("complete execution %s: %w", exec.ID, err)
	}
	return nil
}

func toTaskOutput(taskID uuid.UUID, result *broker.OrderResult) *store.StrategyExecutionTaskOutput {
	shares := result.SharesBought
	if shares == 0 {
		shares = result.SharesSold
	}
	return &store.StrategyExecutionTaskOutput{
		TaskID:            taskID,
		OrderID:           result.OrderID,
		Shares:            shares,
		PricePerShare:     result.PricePerShare,
		TotalAmount:       decimal.NewFromFloat(result.TotalAmount),
		MoneyProvided:     decimal.NewFromFloat(result.MoneyProvided),
		MoneyRemaining:    decimal.NewFromFloat(result.MoneyRemaining),
		OrderTimestamp:    result.OrderTimestamp,
		ExchangeTimestamp: result.ExchangeTimestamp,
	}
}

func errText(result *broker.OrderResult, err error) string {
	if err != nil {
		return err.Error()
	}
	if result != nil && result.Error != "" {
		return result.Error
	}
	return "order placement failed"
}
