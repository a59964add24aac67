package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/ws-greeter/internal/config"
)

// Schema creates the frames table. Safe to run repeatedly.
const Schema = `
CREATE TABLE IF NOT EXISTS frames (
	frame_id  UUID PRIMARY KEY,
	conn_id   UUID NOT NULL,
	direction TEXT NOT NULL,
	seq       BIGINT NOT NULL,
	payload   BYTEA NOT NULL,
	at_us     BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS frames_conn_seq_idx ON frames (conn_id, direction, seq);
`

// Connect creates a connection pool and verifies it with a ping.
func Connect(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	connStr := BuildConnString(cfg)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// EnsureSchema applies Schema.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
