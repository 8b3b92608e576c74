package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests for the worker
// loops built on top of this package. It enforces the same
// compare-and-set semantics as PostgresStore so loop logic under test
// behaves identically against either implementation.
type MemoryStore struct {
	mu sync.Mutex

	runs       map[uuid.UUID]StrategyRun
	results    map[uuid.UUID]StrategyResult
	executions map[uuid.UUID]StrategyExecution
	details    map[uuid.UUID]StrategyExecutionDetail
	tasks      map[uuid.UUID]StrategyExecutionTask
	outputs    map[uuid.UUID]StrategyExecutionTaskOutput
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:       make(map[uuid.UUID]StrategyRun),
		results:    make(map[uuid.UUID]StrategyResult),
		executions: make(map[uuid.UUID]StrategyExecution),
		details:    make(map[uuid.UUID]StrategyExecutionDetail),
		tasks:      make(map[uuid.UUID]StrategyExecutionTask),
		outputs:    make(map[uuid.UUID]StrategyExecutionTaskOutput),
	}
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) CreateStrategyRun(_ context.Context, run *StrategyRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = StatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *MemoryStore) ListQueuedStrategyRuns(context.Context) ([]StrategyRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StrategyRun
	for _, r := range m.runs {
		if r.Status == StatusQueued {
			out = append(out, r)
		}
	}
	sortRunsByCreatedAt(out)
	return out, nil
}

func (m *MemoryStore) GetStrategyRun(_ context.Context, id uuid.UUID) (*StrategyRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) TransitionRunStatus(_ context.Context, id uuid.UUID, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.Status != from {
		return ErrCASConflict
	}
	r.Status = to
	m.runs[id] = r
	return nil
}

func (m *MemoryStore) SaveStrategyResultsBatch(_ context.Context, results []StrategyResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range results {
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		m.results[r.ID] = r
	}
	return nil
}

func (m *MemoryStore) ListStrategyResults(_ context.Context, runID uuid.UUID) ([]StrategyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StrategyResult
	for _, r := range m.results {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetStrategyResult(_ context.Context, id uuid.UUID) (*StrategyResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) CreateStrategyExecution(_ context.Context, exec *StrategyExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exec.ID == uuid.Nil {
		exec.ID = uuid.New()
	}
	if exec.Status == "" {
		exec.Status = StatusQueued
	}
	now := time.Now().UTC()
	if exec.CreatedAt.IsZero() {
		exec.CreatedAt = now
	}
	exec.UpdatedAt = now
	m.executions[exec.ID] = *exec
	return nil
}

func (m *MemoryStore) ListQueuedStrategyExecutions(ctx context.Context) ([]StrategyExecution, error) {
	return m.ListStrategyExecutionsByStatus(ctx, StatusQueued)
}

func (m *MemoryStore) ListRunningStrategyExecutions(ctx context.Context) ([]StrategyExecution, error) {
	return m.ListStrategyExecutionsByStatus(ctx, StatusRunning)
}

func (m *MemoryStore) ListStrategyExecutionsByStatus(_ context.Context, statuses ...Status) ([]StrategyExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	var out []StrategyExecution
	for _, e := range m.executions {
		if want[e.Status] {
			out = append(out, e)
		}
	}
	sortExecutionsByCreatedAt(out)
	return out, nil
}

func (m *MemoryStore) GetStrategyExecution(_ context.Context, id uuid.UUID) (*StrategyExecution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (m *MemoryStore) TransitionExecutionStatus(_ context.Context, id uuid.UUID, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok || e.Status != from {
		return ErrCASConflict
	}
	e.Status = to
	e.UpdatedAt = time.Now().UTC()
	m.executions[id] = e
	return nil
}

func (m *MemoryStore) CreateStrategyExecutionDetails(_ context.Context, details []StrategyExecutionDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range details {
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		if d.Status == "" {
			d.Status = StatusQueued
		}
		m.details[d.ID] = d
	}
	return nil
}

func (m *MemoryStore) ListExecutionDetails(_ context.Context, executionID uuid.UUID) ([]StrategyExecutionDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StrategyExecutionDetail
	for _, d := range m.details {
		if d.ExecutionID == executionID {
			out = append(out, d)
		}
	}
	sortDetailsByID(out)
	return out, nil
}

func (m *MemoryStore) GetExecutionDetail(_ context.Context, id uuid.UUID) (*StrategyExecutionDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *MemoryStore) TransitionDetailStatus(_ context.Context, id uuid.UUID, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.details[id]
	if !ok || d.Status != from {
		return ErrCASConflict
	}
	d.Status = to
	m.details[id] = d
	return nil
}

func (m *MemoryStore) ListNonTerminalDetailsForExecution(_ context.Context, executionID uuid.UUID) ([]StrategyExecutionDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StrategyExecutionDetail
	for _, d := range m.details {
		if d.ExecutionID == executionID && !d.Status.Terminal() {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateTask(_ context.Context, task *StrategyExecutionTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = StatusQueued
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	m.tasks[task.ID] = *task
	return nil
}

func (m *MemoryStore) GetTask(_ context.Context, id uuid.UUID) (*StrategyExecutionTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *MemoryStore) ListTasksForDetail(_ context.Context, detailID uuid.UUID) ([]StrategyExecutionTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StrategyExecutionTask
	for _, t := range m.tasks {
		if t.ExecutionDetailID == detailID {
			out = append(out, t)
		}
	}
	sortTasksByCreatedAt(out)
	return out, nil
}

func (m *MemoryStore) GetDueTasks(_ context.Context, day time.Time, fromSecs, toSecs, limit int) ([]StrategyExecutionTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StrategyExecutionTask
	for _, t := range m.tasks {
		if t.Status != StatusQueued {
			continue
		}
		if !sameDate(t.DayOfExecution, day) {
			continue
		}
		if t.TimestampOfExecution < fromSecs || t.TimestampOfExecution > toSecs {
			continue
		}
		out = append(out, t)
	}
	sortTasksByCreatedAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListNonTerminalTasksScheduledBefore(_ context.Context, cutoff time.Time) ([]StrategyExecutionTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StrategyExecutionTask
	for _, t := range m.tasks {
		if !t.Status.Terminal() && t.ScheduledTime().Before(cutoff) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListNonTerminalTasksForDetail(_ context.Context, detailID uuid.UUID) ([]StrategyExecutionTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StrategyExecutionTask
	for _, t := range m.tasks {
		if t.ExecutionDetailID == detailID && !t.Status.Terminal() {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *MemoryStore) TransitionTaskStatus(_ context.Context, id uuid.UUID, from, to Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != from {
		return ErrCASConflict
	}
	t.Status = to
	m.tasks[id] = t
	return nil
}

func (m *MemoryStore) CompleteTask(_ context.Context, id uuid.UUID, executedAt time.Time, priceDuringOrder float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != StatusRunning {
		return ErrCASConflict
	}
	t.Status = StatusCompleted
	t.ExecutedAt = &executedAt
	t.PriceDuringOrder = &priceDuringOrder
	m.tasks[id] = t
	return nil
}

func (m *MemoryStore) FailTask(_ context.Context, id uuid.UUID, executedAt time.Time, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status.Terminal() {
		return ErrCASConflict
	}
	t.Status = StatusFailed
	t.ExecutedAt = &executedAt
	t.ErrorMessage = errMsg
	m.tasks[id] = t
	return nil
}

func (m *MemoryStore) CreateTaskOutput(_ context.Context, out *StrategyExecutionTaskOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	m.outputs[out.ID] = *out
	return nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func sortRunsByCreatedAt(runs []StrategyRun) {
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0 && runs[j].CreatedAt.Before(runs[j-1].CreatedAt); j-- {
			runs[j], runs[j-1] = runs[j-1], runs[j]
		}
	}
}

func sortExecutionsByCreatedAt(execs []StrategyExecution) {
	for i := 1; i < len(execs); i++ {
		for j := i; j > 0 && execs[j].CreatedAt.Before(execs[j-1].CreatedAt); j-- {
			execs[j], execs[j-1] = execs[j-1], execs[j]
		}
	}
}

func sortTasksByCreatedAt(tasks []StrategyExecutionTask) {
	for i := 1; i < len(tasks); i++ {
		for j := i; j > 0 && tasks[j].CreatedAt.Before(tasks[j-1].CreatedAt); j-- {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
		}
	}
}

func sortDetailsByID(details []StrategyExecutionDetail) {
	for i := 1; i < len(details); i++ {
		for j := i; j > 0 && details[j].ID.String() < details[j-1].ID.String(); j-- {
			details[j], details[j-1] = details[j-1], details[j]
		}
	}
}
