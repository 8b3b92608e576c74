// Package store defines the six persisted entities the strategy-run
// worker, execution orchestrator, dispatcher, and watchdog share, and
// the CAS-based Store interface used to read and transition them.
//
// The bar table is deliberately absent here — it belongs to the
// ingester and is exposed to the core read-only through
// internal/bars, not through this package.
package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nitinkhare/patterncore/internal/calendar"
)

// Status is the shared state-machine value for StrategyRun,
// StrategyExecution, StrategyExecutionDetail, and
// StrategyExecutionTask: queued -> running -> completed|failed.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// Mode distinguishes a StrategyExecution that places real orders from
// one that only simulates fills.
type Mode string

const (
	ModeSimulate Mode = "simulate"
	ModeReal     Mode = "real"
)

// OrderType is buy or sell, matching StrategyExecutionTask.order_type.
type OrderType string

const (
	OrderBuy  OrderType = "buy"
	OrderSell OrderType = "sell"
)

// RootTaskID marks a root task: its previous_task_id is -1, meaning
// "no predecessor", stored as a nil *uuid.UUID.
var RootTaskID *uuid.UUID = nil

// StrategyRun is one user configuration's mining job.
type StrategyRun struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Config    []byte // immutable configuration blob, JSON-encoded
	Status    Status
}

// StrategyResult is one mined (symbol, exchange, vertical_gap,
// horizontal_gap, continuous_days, x, y) candidate, appended only
// while its parent run is running.
type StrategyResult struct {
	ID             uuid.UUID
	RunID          uuid.UUID
	Symbol         string
	Exchange       string
	VerticalGap    float64
	HorizontalGap  float64
	ContinuousDays int
	X, Y           string
	ExceedProb     float64
	ProfitDays     int
	Average        float64
	TotalCount     int
	Highest        float64
	P5, P10, P20, P40, P50 float64
	CreatedAt      time.Time
}

// StrategyExecution is one user-submitted "deploy these patterns" job.
type StrategyExecution struct {
	ID         uuid.UUID
	RunID      uuid.UUID
	Mode       Mode
	TotalMoney *decimal.Decimal // nil iff Mode == ModeSimulate and no explicit notional was supplied
	Status     Status
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// StrategyExecutionDetail binds one mined result to a capital weight
// within a StrategyExecution. Weights across all details of one
// execution sum to 100 (+/- 0.01).
type StrategyExecutionDetail struct {
	ID            uuid.UUID
	ExecutionID   uuid.UUID
	ResultID      uuid.UUID
	WeightPercent float64
	Status        Status
}

// StrategyExecutionTask is the unit of work the dispatcher places
// against the broker.
type StrategyExecutionTask struct {
	ID                   uuid.UUID
	ExecutionDetailID    uuid.UUID
	PreviousTaskID       *uuid.UUID // nil for the chain root
	OrderType            OrderType
	DayOfExecution       time.Time // calendar date, no time component
	TimestampOfExecution int       // seconds since midnight, exchange-local
	CurrentMoney         decimal.Decimal
	CurrentShares        int
	DaysRemaining        int
	X, Y                 string
	Symbol               string
	Exchange             string
	SimulateMode         bool
	Status               Status
	PriceDuringOrder     *float64
	ErrorMessage         string
	CreatedAt            time.Time
	ExecutedAt           *time.Time
}

// ScheduledTime combines DayOfExecution's calendar date with
// TimestampOfExecution's seconds-since-midnight into the instant the
// task is actually due, in exchange-local (IST) time. This is the
// value zombie detection compares against, not CreatedAt: a task
// created today but scheduled for next business day is not stale just
// because it has sat untouched since creation.
func (t StrategyExecutionTask) ScheduledTime() time.Time {
	d := t.DayOfExecution.In(calendar.IST)
	midnight := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, calendar.IST)
	return midnight.Add(time.Duration(t.TimestampOfExecution) * time.Second)
}

// StrategyExecutionTaskOutput is 1:1 with a completed task.
type StrategyExecutionTaskOutput struct {
	ID                uuid.UUID
	TaskID            uuid.UUID
	OrderID           string
	Shares            int // shares bought (buy) or sold (sell)
	PricePerShare     float64
	TotalAmount       decimal.Decimal
	MoneyProvided     decimal.Decimal
	MoneyRemaining    decimal.Decimal
	OrderTimestamp    time.Time
	ExchangeTimestamp time.Time
}
