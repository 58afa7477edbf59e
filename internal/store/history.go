// Package store persists emitted rest cycles to Postgres (history) and Redis
// (live dashboard state).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sweeney/rest-monitor/internal/logic"
)

// DB is the subset of *pgxpool.Pool used by History.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schema = `
	CREATE TABLE IF NOT EXISTS rest_cycles (
		vehicle_id  TEXT        NOT NULL,
		start_time  TIMESTAMPTZ NOT NULL,
		end_time    TIMESTAMPTZ NOT NULL,
		start_range DOUBLE PRECISION NOT NULL,
		end_range   DOUBLE PRECISION NOT NULL,
		start_soc   DOUBLE PRECISION NOT NULL,
		end_soc     DOUBLE PRECISION NOT NULL,
		latitude    DOUBLE PRECISION NOT NULL,
		longitude   DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (vehicle_id, start_time)
	)
`

// History is the rest cycle archive for one vehicle.
type History struct {
	db        DB
	vehicleID string
	close     func()
}

// NewHistory connects to databaseURL, checks the connection and creates the
// table if needed.
func NewHistory(ctx context.Context, databaseURL, vehicleID string) (*History, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	h := &History{db: pool, vehicleID: vehicleID, close: pool.Close}
	if err := h.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return h, nil
}

// NewHistoryWithDB wraps an existing connection.
func NewHistoryWithDB(db DB, vehicleID string) *History {
	return &History{db: db, vehicleID: vehicleID}
}

// Close releases the connection pool, if History owns one.
func (h *History) Close() {
	if h.close != nil {
		h.close()
	}
}

// EnsureSchema creates the rest_cycles table if it does not exist.
func (h *History) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create rest_cycles table: %w", err)
	}
	return nil
}

// InsertCycle archives c. A cycle with the same start time is only stored
// once; inserted reports whether a row was written.
func (h *History) InsertCycle(ctx context.Context, c logic.RestCycle) (inserted bool, err error) {
	query := `
		INSERT INTO rest_cycles
			(vehicle_id, start_time, end_time, start_range, end_range,
			 start_soc, end_soc, latitude, longitude)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`
	tag, err := h.db.Exec(
		ctx,
		query,
		h.vehicleID,
		c.StartTime.UTC(),
		c.EndTime.UTC(),
		c.StartRange,
		c.EndRange,
		c.StartSOC,
		c.EndSOC,
		c.Latitude,
		c.Longitude,
	)
	if err != nil {
		return false, fmt.Errorf("insert rest cycle %s: %w", c.StartTime.UTC().Format(time.RFC3339), err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecentCycles returns up to limit cycles, newest first.
func (h *History) RecentCycles(ctx context.Context, limit int) ([]logic.RestCycle, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT start_time, end_time, start_range, end_range,
		       start_soc, end_soc, latitude, longitude
		FROM rest_cycles
		WHERE vehicle_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`
	rows, err := h.db.Query(ctx, query, h.vehicleID, limit)
	if err != nil {
		return nil, fmt.Errorf("query rest cycles: %w", err)
	}

	cycles, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (logic.RestCycle, error) {
		var c logic.RestCycle
		err := row.Scan(
			&c.StartTime,
			&c.EndTime,
			&c.StartRange,
			&c.EndRange,
			&c.StartSOC,
			&c.EndSOC,
			&c.Latitude,
			&c.Longitude,
		)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan rest cycles: %w", err)
	}
	return cycles, nil
}
