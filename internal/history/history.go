// Package history records monitor events in Postgres so long unattended runs
// can be audited afterwards.
package history

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jpalmerr/parkwatch/internal/store"
)

//go:embed schema.sql
var schemaSQL string

const (
	pingTimeout  = 3 * time.Second
	writeTimeout = 3 * time.Second
)

// Recorder writes [store.Event] rows to Postgres.
type Recorder struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL string) (*Recorder, error) {
	if databaseURL == "" {
		return nil, errors.New("history: database URL is empty")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("history: parse database URL: %w", err)
	}
	cfg.MaxConns = 2
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: connect: %w", err)
	}

	r := &Recorder{pool: pool}
	if err := r.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history: migrate: %w", err)
	}
	return r, nil
}

// Migrate creates the events table if it does not exist.
func (r *Recorder) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schemaSQL)
	return err
}

// Ping checks the connection.
func (r *Recorder) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return r.pool.Ping(ctx)
}

// Record inserts one event.
func (r *Recorder) Record(ctx context.Context, e store.Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO monitor_events
			(run_id, target, from_state, state, attempt, result, fault, status_text, reason, delay_ms, elapsed_ms, error, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, e.RunID, e.Target, e.From, e.State, e.Attempt, e.Result, e.Fault, e.Text, e.Reason, e.DelayMs, e.ElapsedMs, e.Error, e.At.UTC())
	return err
}

// Recent returns up to limit events of runID, oldest first.
func (r *Recorder) Recent(ctx context.Context, runID string, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT run_id, to_char(target, 'YYYY-MM-DD'), from_state, state, attempt, result, fault,
		       status_text, reason, delay_ms, elapsed_ms, error, at
		FROM (
			SELECT * FROM monitor_events WHERE run_id=$1 ORDER BY at DESC, id DESC LIMIT $2
		) recent
		ORDER BY at, id
	`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.Event
	for rows.Next() {
		var e store.Event
		if err := rows.Scan(&e.RunID, &e.Target, &e.From, &e.State, &e.Attempt, &e.Result, &e.Fault,
			&e.Text, &e.Reason, &e.DelayMs, &e.ElapsedMs, &e.Error, &e.At); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Close releases the pool.
func (r *Recorder) Close() {
	r.pool.Close()
}
