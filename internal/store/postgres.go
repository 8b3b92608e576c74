package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresStore implements Store against a Postgres schema holding
// the six workflow tables. Bar storage lives in a separate table
// owned by the ingester; this type never touches it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool. DSN parsing and
// pool sizing are the composition root's concern, not this package's.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- StrategyRun ---

func (s *PostgresStore) CreateStrategyRun(ctx context.Context, run *StrategyRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = StatusQueued
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO strategy_runs (id, created_at, config, status) VALUES ($1, $2, $3, $4)`,
		run.ID, run.CreatedAt, run.Config, string(run.Status))
	if err != nil {
		return fmt.Errorf("store: create strategy run: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListQueuedStrategyRuns(ctx context.Context) ([]StrategyRun, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, created_at, config, status FROM strategy_runs WHERE status = $1 ORDER BY created_at ASC`,
		string(StatusQueued))
	if err != nil {
		return nil, fmt.Errorf("store: list queued strategy runs: %w", err)
	}
	defer rows.Close()

	var out []StrategyRun
	for rows.Next() {
		var r StrategyRun
		var status string
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Config, &status); err != nil {
			return nil, fmt.Errorf("store: scan strategy run: %w", err)
		}
		r.Status = Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetStrategyRun(ctx context.Context, id uuid.UUID) (*StrategyRun, error) {
	var r StrategyRun
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, config, status FROM strategy_runs WHERE id = $1`, id,
	).Scan(&r.ID, &r.CreatedAt, &r.Config, &status)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get strategy run: %w", err)
	}
	r.Status = Status(status)
	return &r, nil
}

func (s *PostgresStore) TransitionRunStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	return casUpdate(ctx, s.pool, "strategy_runs", id, from, to)
}

// --- StrategyResult ---

// SaveStrategyResultsBatch inserts a batch of mined candidates in a
// single transaction.
func (s *PostgresStore) SaveStrategyResultsBatch(ctx context.Context, results []StrategyResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: save strategy results: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range results {
		r := &results[i]
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO strategy_results
				(id, run_id, symbol, exchange, vertical_gap, horizontal_gap, continuous_days,
				 x, y, exceed_prob, profit_days, average, total_count, highest, p5, p10, p20, p40, p50, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
			r.ID, r.RunID, r.Symbol, r.Exchange, r.VerticalGap, r.HorizontalGap, r.ContinuousDays,
			r.X, r.Y, r.ExceedProb, r.ProfitDays, r.Average, r.TotalCount, r.Highest,
			r.P5, r.P10, r.P20, r.P40, r.P50, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("store: save strategy results: insert: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: save strategy results: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListStrategyResults(ctx context.Context, runID uuid.UUID) ([]StrategyResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, symbol, exchange, vertical_gap, horizontal_gap, continuous_days,
		       x, y, exceed_prob, profit_days, average, total_count, highest, p5, p10, p20, p40, p50, created_at
		FROM strategy_results WHERE run_id = $1`, runID)
	if err != nil {
		return nil, fmt.Errorf("store: list strategy results: %w", err)
	}
	defer rows.Close()

	var out []StrategyResult
	for rows.Next() {
		var r StrategyResult
		if err := rows.Scan(&r.ID, &r.RunID, &r.Symbol, &r.Exchange, &r.VerticalGap, &r.HorizontalGap, &r.ContinuousDays,
			&r.X, &r.Y, &r.ExceedProb, &r.ProfitDays, &r.Average, &r.TotalCount, &r.Highest,
			&r.P5, &r.P10, &r.P20, &r.P40, &r.P50, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan strategy result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetStrategyResult(ctx context.Context, id uuid.UUID) (*StrategyResult, error) {
	var r StrategyResult
	err := s.pool.QueryRow(ctx, `
		SELECT id, run_id, symbol, exchange, vertical_gap, horizontal_gap, continuous_days,
		       x, y, exceed_prob, profit_days, average, total_count, highest, p5, p10, p20, p40, p50, created_at
		FROM strategy_results WHERE id = $1`, id,
	).Scan(&r.ID, &r.RunID, &r.Symbol, &r.Exchange, &r.VerticalGap, &r.HorizontalGap, &r.ContinuousDays,
		&r.X, &r.Y, &r.ExceedProb, &r.ProfitDays, &r.Average, &r.TotalCount, &r.Highest,
		&r.P5, &r.P10, &r.P20, &r.P40, &r.P50, &r.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get strategy result: %w", err)
	}
	return &r, nil
}

// --- StrategyExecution ---

func (s *PostgresStore) CreateStrategyExecution(ctx context.Context, exec *StrategyExecution) error {
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

	var totalMoney *string
	if exec.TotalMoney != nil {
		money := exec.TotalMoney.String()
		totalMoney = &money
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO strategy_executions (id, run_id, mode, total_money, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		exec.ID, exec.RunID, string(exec.Mode), totalMoney, string(exec.Status), exec.CreatedAt, exec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create strategy execution: %w", err)
	}
	return nil
}

func scanExecution(row pgx.Row) (*StrategyExecution, error) {
	var e StrategyExecution
	var mode, status string
	var totalMoney *string
	if err := row.Scan(&e.ID, &e.RunID, &mode, &totalMoney, &status, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Mode = Mode(mode)
	e.Status = Status(status)
	if totalMoney != nil {
		d, err := decimal.NewFromString(*totalMoney)
		if err != nil {
			return nil, fmt.Errorf("parse total_money: %w", err)
		}
		e.TotalMoney = &d
	}
	return &e, nil
}

const executionColumns = "id, run_id, mode, total_money, status, created_at, updated_at"

func (s *PostgresStore) GetStrategyExecution(ctx context.Context, id uuid.UUID) (*StrategyExecution, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+executionColumns+` FROM strategy_executions WHERE id = $1`, id)
	e, err := scanExecution(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get strategy execution: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) ListQueuedStrategyExecutions(ctx context.Context) ([]StrategyExecution, error) {
	return s.listExecutionsByStatus(ctx, StatusQueued)
}

func (s *PostgresStore) ListRunningStrategyExecutions(ctx context.Context) ([]StrategyExecution, error) {
	return s.listExecutionsByStatus(ctx, StatusRunning)
}

func (s *PostgresStore) ListStrategyExecutionsByStatus(ctx context.Context, statuses ...Status) ([]StrategyExecution, error) {
	return s.listExecutionsByStatus(ctx, statuses...)
}

func (s *PostgresStore) listExecutionsByStatus(ctx context.Context, statuses ...Status) ([]StrategyExecution, error) {
	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+executionColumns+` FROM strategy_executions WHERE status = ANY($1) ORDER BY created_at ASC`, strs)
	if err != nil {
		return nil, fmt.Errorf("store: list strategy executions: %w", err)
	}
	defer rows.Close()

	var out []StrategyExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan strategy execution: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TransitionExecutionStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE strategy_executions SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("store: transition execution status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCASConflict
	}
	return nil
}

// --- StrategyExecutionDetail ---

func (s *PostgresStore) CreateStrategyExecutionDetails(ctx context.Context, details []StrategyExecutionDetail) error {
	if len(details) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: create execution details: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range details {
		d := &details[i]
		if d.ID == uuid.Nil {
			d.ID = uuid.New()
		}
		if d.Status == "" {
			d.Status = StatusQueued
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO strategy_execution_details (id, execution_id, result_id, weight_percent, status)
			VALUES ($1,$2,$3,$4,$5)`,
			d.ID, d.ExecutionID, d.ResultID, d.WeightPercent, string(d.Status))
		if err != nil {
			return fmt.Errorf("store: create execution details: insert: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: create execution details: commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListExecutionDetails(ctx context.Context, executionID uuid.UUID) ([]StrategyExecutionDetail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, execution_id, result_id, weight_percent, status FROM strategy_execution_details WHERE execution_id = $1 ORDER BY id ASC`,
		executionID)
	if err != nil {
		return nil, fmt.Errorf("store: list execution details: %w", err)
	}
	defer rows.Close()

	var out []StrategyExecutionDetail
	for rows.Next() {
		var d StrategyExecutionDetail
		var status string
		if err := rows.Scan(&d.ID, &d.ExecutionID, &d.ResultID, &d.WeightPercent, &status); err != nil {
			return nil, fmt.Errorf("store: scan execution detail: %w", err)
		}
		d.Status = Status(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetExecutionDetail(ctx context.Context, id uuid.UUID) (*StrategyExecutionDetail, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, execution_id, result_id, weight_percent, status FROM strategy_execution_details WHERE id = $1`, id)
	var d StrategyExecutionDetail
	var status string
	if err := row.Scan(&d.ID, &d.ExecutionID, &d.ResultID, &d.WeightPercent, &status); err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: get execution detail: %w", err)
	}
	d.Status = Status(status)
	return &d, nil
}

func (s *PostgresStore) TransitionDetailStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	return casUpdate(ctx, s.pool, "strategy_execution_details", id, from, to)
}

func (s *PostgresStore) ListNonTerminalDetailsForExecution(ctx context.Context, executionID uuid.UUID) ([]StrategyExecutionDetail, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, execution_id, result_id, weight_percent, status
		FROM strategy_execution_details
		WHERE execution_id = $1 AND status NOT IN ($2, $3)`,
		executionID, string(StatusCompleted), string(StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("store: list non-terminal details: %w", err)
	}
	defer rows.Close()

	var out []StrategyExecutionDetail
	for rows.Next() {
		var d StrategyExecutionDetail
		var status string
		if err := rows.Scan(&d.ID, &d.ExecutionID, &d.ResultID, &d.WeightPercent, &status); err != nil {
			return nil, fmt.Errorf("store: scan execution detail: %w", err)
		}
		d.Status = Status(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- StrategyExecutionTask ---

func (s *PostgresStore) CreateTask(ctx context.Context, task *StrategyExecutionTask) error {
	if task.ID == uuid.Nil {
		task.ID = uuid.New()
	}
	if task.Status == "" {
		task.Status = StatusQueued
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO strategy_execution_tasks
			(id, execution_detail_id, previous_task_id, order_type, day_of_execution, timestamp_of_execution,
			 current_money, current_shares, days_remaining, x, y, symbol, exchange, simulate_mode,
			 status, price_during_order, error_message, created_at, executed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		task.ID, task.ExecutionDetailID, task.PreviousTaskID, string(task.OrderType), task.DayOfExecution, task.TimestampOfExecution,
		task.CurrentMoney.String(), task.CurrentShares, task.DaysRemaining, task.X, task.Y, task.Symbol, task.Exchange, task.SimulateMode,
		string(task.Status), task.PriceDuringOrder, task.ErrorMessage, task.CreatedAt, task.ExecutedAt)
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	return nil
}

const taskColumns = `id, execution_detail_id, previous_task_id, order_type, day_of_execution, timestamp_of_execution,
	current_money, current_shares, days_remaining, x, y, symbol, exchange, simulate_mode,
	status, price_during_order, error_message, created_at, executed_at`

func scanTask(row pgx.Row) (*StrategyExecutionTask, error) {
	var t StrategyExecutionTask
	var orderType, status, money string
	if err := row.Scan(&t.ID, &t.ExecutionDetailID, &t.PreviousTaskID, &orderType, &t.DayOfExecution, &t.TimestampOfExecution,
		&money, &t.CurrentShares, &t.DaysRemaining, &t.X, &t.Y, &t.Symbol, &t.Exchange, &t.SimulateMode,
		&status, &t.PriceDuringOrder, &t.ErrorMessage, &t.CreatedAt, &t.ExecutedAt); err != nil {
		return nil, err
	}
	t.OrderType = OrderType(orderType)
	t.Status = Status(status)
	d, err := decimal.NewFromString(money)
	if err != nil {
		return nil, fmt.Errorf("parse current_money: %w", err)
	}
	t.CurrentMoney = d
	return &t, nil
}

func (s *PostgresStore) GetTask(ctx context.Context, id uuid.UUID) (*StrategyExecutionTask, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM strategy_execution_tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get task: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) ListTasksForDetail(ctx context.Context, detailID uuid.UUID) ([]StrategyExecutionTask, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+taskColumns+` FROM strategy_execution_tasks WHERE execution_detail_id = $1 ORDER BY created_at ASC`, detailID)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks for detail: %w", err)
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

// GetDueTasks implements the dispatcher's time-windowed poll: status
// queued, day_of_execution = day, timestamp_of_execution in
// [fromSecs, toSecs], limit rows, ordered by created_at.
func (s *PostgresStore) GetDueTasks(ctx context.Context, day time.Time, fromSecs, toSecs, limit int) ([]StrategyExecutionTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM strategy_execution_tasks
		WHERE status = $1 AND day_of_execution = $2
		  AND timestamp_of_execution BETWEEN $3 AND $4
		ORDER BY created_at ASC
		LIMIT $5`,
		string(StatusQueued), day, fromSecs, toSecs, limit)
	if err != nil {
		return nil, fmt.Errorf("store: get due tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

func (s *PostgresStore) ListNonTerminalTasksScheduledBefore(ctx context.Context, cutoff time.Time) ([]StrategyExecutionTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM strategy_execution_tasks
		WHERE status IN ($1, $2)
		  AND (day_of_execution::timestamp AT TIME ZONE 'Asia/Kolkata') + make_interval(secs => timestamp_of_execution) < $3`,
		string(StatusQueued), string(StatusRunning), cutoff)
	if err != nil {
		return nil, fmt.Errorf("store: list stale non-terminal tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

func (s *PostgresStore) ListNonTerminalTasksForDetail(ctx context.Context, detailID uuid.UUID) ([]StrategyExecutionTask, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+taskColumns+`
		FROM strategy_execution_tasks
		WHERE execution_detail_id = $1 AND status NOT IN ($2, $3)`,
		detailID, string(StatusCompleted), string(StatusFailed))
	if err != nil {
		return nil, fmt.Errorf("store: list non-terminal tasks for detail: %w", err)
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

func scanTaskRows(rows pgx.Rows) ([]StrategyExecutionTask, error) {
	var out []StrategyExecutionTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TransitionTaskStatus(ctx context.Context, id uuid.UUID, from, to Status) error {
	return casUpdate(ctx, s.pool, "strategy_execution_tasks", id, from, to)
}

func (s *PostgresStore) CompleteTask(ctx context.Context, id uuid.UUID, executedAt time.Time, priceDuringOrder float64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE strategy_execution_tasks
		SET status = $1, executed_at = $2, price_during_order = $3
		WHERE id = $4 AND status = $5`,
		string(StatusCompleted), executedAt, priceDuringOrder, id, string(StatusRunning))
	if err != nil {
		return fmt.Errorf("store: complete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCASConflict
	}
	return nil
}

func (s *PostgresStore) FailTask(ctx context.Context, id uuid.UUID, executedAt time.Time, errMsg string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE strategy_execution_tasks
		SET status = $1, executed_at = $2, error_message = $3
		WHERE id = $4 AND status IN ($5, $6)`,
		string(StatusFailed), executedAt, errMsg, id, string(StatusQueued), string(StatusRunning))
	if err != nil {
		return fmt.Errorf("store: fail task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCASConflict
	}
	return nil
}

// --- StrategyExecutionTaskOutput ---

func (s *PostgresStore) CreateTaskOutput(ctx context.Context, out *StrategyExecutionTaskOutput) error {
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO strategy_execution_task_outputs
			(id, task_id, order_id, shares, price_per_share, total_amount, money_provided, money_remaining,
			 order_timestamp, exchange_timestamp)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		out.ID, out.TaskID, out.OrderID, out.Shares, out.PricePerShare,
		out.TotalAmount.String(), out.MoneyProvided.String(), out.MoneyRemaining.String(),
		out.OrderTimestamp, out.ExchangeTimestamp)
	if err != nil {
		return fmt.Errorf("store: create task output: %w", err)
	}
	return nil
}

// casUpdate is the shared compare-and-set helper behind every simple
// status transition: `UPDATE ... SET status = to WHERE id = id AND
// status = from`.
func casUpdate(ctx context.Context, pool *pgxpool.Pool, table string, id uuid.UUID, from, to Status) error {
	tag, err := pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET status = $1 WHERE id = $2 AND status = $3`, table),
		string(to), id, string(from))
	if err != nil {
		return fmt.Errorf("store: transition %s status: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCASConflict
	}
	return nil
}
