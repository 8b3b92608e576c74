package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrCASConflict is returned by a transition method when the row was
// not in the expected source status — another worker won the race.
// Callers treat it as "skip", not as an error worth logging loudly.
var ErrCASConflict = errors.New("store: compare-and-set conflict")

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("store: not found")

// Store is the shared persistence surface for the strategy-run
// worker, execution orchestrator, dispatcher, and watchdog. Every
// status transition is compare-and-set: it only succeeds if the row
// is currently in the expected `from` status, making the four worker
// loops safe to run as N > 1 replicas.
type Store interface {
	// StrategyRun
	CreateStrategyRun(ctx context.Context, run *StrategyRun) error
	ListQueuedStrategyRuns(ctx context.Context) ([]StrategyRun, error)
	TransitionRunStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	GetStrategyRun(ctx context.Context, id uuid.UUID) (*StrategyRun, error)

	// StrategyResult
	SaveStrategyResultsBatch(ctx context.Context, results []StrategyResult) error
	ListStrategyResults(ctx context.Context, runID uuid.UUID) ([]StrategyResult, error)
	GetStrategyResult(ctx context.Context, id uuid.UUID) (*StrategyResult, error)

	// StrategyExecution
	CreateStrategyExecution(ctx context.Context, exec *StrategyExecution) error
	ListQueuedStrategyExecutions(ctx context.Context) ([]StrategyExecution, error)
	TransitionExecutionStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	GetStrategyExecution(ctx context.Context, id uuid.UUID) (*StrategyExecution, error)
	ListRunningStrategyExecutions(ctx context.Context) ([]StrategyExecution, error)
	ListStrategyExecutionsByStatus(ctx context.Context, statuses ...Status) ([]StrategyExecution, error)

	// StrategyExecutionDetail
	CreateStrategyExecutionDetails(ctx context.Context, details []StrategyExecutionDetail) error
	ListExecutionDetails(ctx context.Context, executionID uuid.UUID) ([]StrategyExecutionDetail, error)
	GetExecutionDetail(ctx context.Context, id uuid.UUID) (*StrategyExecutionDetail, error)
	TransitionDetailStatus(ctx context.Context, id uuid.UUID, from, to Status) error

	// StrategyExecutionTask
	CreateTask(ctx context.Context, task *StrategyExecutionTask) error
	TransitionTaskStatus(ctx context.Context, id uuid.UUID, from, to Status) error
	CompleteTask(ctx context.Context, id uuid.UUID, executedAt time.Time, priceDuringOrder float64) error
	FailTask(ctx context.Context, id uuid.UUID, executedAt time.Time, errMsg string) error
	GetDueTasks(ctx context.Context, day time.Time, fromSecs, toSecs, limit int) ([]StrategyExecutionTask, error)
	ListTasksForDetail(ctx context.Context, detailID uuid.UUID) ([]StrategyExecutionTask, error)
	GetTask(ctx context.Context, id uuid.UUID) (*StrategyExecutionTask, error)

	// StrategyExecutionTaskOutput
	CreateTaskOutput(ctx context.Context, out *StrategyExecutionTaskOutput) error

	// Watchdog support queries.
	ListNonTerminalTasksScheduledBefore(ctx context.Context, cutoff time.Time) ([]StrategyExecutionTask, error)
	ListNonTerminalDetailsForExecution(ctx context.Context, executionID uuid.UUID) ([]StrategyExecutionDetail, error)
	ListNonTerminalTasksForDetail(ctx context.Context, detailID uuid.UUID) ([]StrategyExecutionTask, error)

	Ping(ctx context.Context) error
}
