// Package db provides a pgxpool-based connection pool with prepared statement
// registration, health checking and schema migration.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/burrito-league/internal/config"
)

//go:embed schema.sql
var schemaSQL string

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Migrate applies the embedded schema. Every statement is IF NOT EXISTS so
// repeated runs are no-ops.
func Migrate(ctx context.Context, dbURL string) error {
	// Plain connection: the pool's AfterConnect would fail to prepare
	// statements against tables that do not exist yet.
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Schema returns the embedded DDL.
func Schema() string { return schemaSQL }

// registerPreparedStatements registers the statements the API and poller use
// on the hot path. Batch inserts go through CopyFrom instead.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Poll runs
		"insert_poll_run": `INSERT INTO poll_runs (id, polled_at, chapters_polled, chapters_successful, was_rate_limited, source)
			VALUES ($1, $2, $3, $4, $5, $6)`,
		"latest_poll_run": `SELECT id, polled_at, chapters_polled, chapters_successful, was_rate_limited, source
			FROM poll_runs ORDER BY polled_at DESC LIMIT 1`,
		"count_poll_runs": "SELECT COUNT(*) FROM poll_runs",

		// Snapshots
		"latest_snapshots_for_segments": `SELECT DISTINCT ON (segment_id) ` + snapshotColumns + `
			FROM segment_snapshots WHERE segment_id = ANY($1)
			ORDER BY segment_id, polled_at DESC`,
		"recent_snapshots": `SELECT ` + snapshotColumns + `
			FROM segment_snapshots ORDER BY polled_at DESC LIMIT $1`,
		"segment_history": `SELECT ` + snapshotColumns + `
			FROM segment_snapshots WHERE segment_id = $1 ORDER BY polled_at DESC LIMIT $2`,

		// Coordinates
		"all_coordinates": "SELECT city, state, country, lat, lng, source FROM chapter_coordinates",
		"upsert_coordinate": `INSERT INTO chapter_coordinates (city, state, country, lat, lng, source, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (city, state, country)
			DO UPDATE SET lat = EXCLUDED.lat, lng = EXCLUDED.lng, source = EXCLUDED.source, updated_at = NOW()`,

		// Notifications
		"notify_poll_completed": "SELECT pg_notify('poll_completed', $1)",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}

// snapshotColumns is the column list every snapshot read scans, in order.
const snapshotColumns = `id, poll_run_id, segment_id, city, state, country, display_location,
	total_efforts, total_athletes, total_distance,
	male_leader_name, male_leader_efforts, male_leader_pic,
	female_leader_name, female_leader_efforts, female_leader_pic,
	polled_at`
