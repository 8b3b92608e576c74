package bars

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nitinkhare/patterncore/internal/calendar"
)

// PostgresStore implements Store against a bars table owned by the
// ingester. The core only ever reads it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool. Connection
// lifecycle (DSN parsing, pool sizing) belongs to the composition
// root, not here.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const getBarsQuery = `
SELECT record_time, open, high, low, close, volume
FROM bars
WHERE symbol = $1 AND exchange = $2 AND granularity = $3
  AND record_time >= $4 AND record_time <= $5
ORDER BY record_time ASC
`

func (s *PostgresStore) GetBars(ctx context.Context, symbol, exchange string, granularity Granularity, from, to time.Time, limit int) ([]Bar, error) {
	query := getBarsQuery
	args := []any{symbol, exchange, string(granularity), from.UTC(), to.UTC()}
	if limit > 0 {
		query += " LIMIT $6"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bars: get bars for %s/%s/%s: %w", symbol, exchange, granularity, err)
	}
	defer rows.Close()

	var out []Bar
	for rows.Next() {
		var b Bar
		var recordTime time.Time
		if err := rows.Scan(&recordTime, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("bars: scan row: %w", err)
		}
		b.Symbol = symbol
		b.Exchange = exchange
		b.Granularity = granularity
		b.RecordTime = recordTime.In(localZoneForExchange(exchange))
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bars: iterate rows: %w", err)
	}
	return out, nil
}

// localZoneForExchange returns the timezone bars are normalised to
// before being handed to callers. NSE and BSE both trade in IST; this
// indirection exists so a future exchange with a different zone does
// not require touching the query path.
func localZoneForExchange(exchange string) *time.Location {
	return calendar.IST
}
