package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = 30 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS polls (
		id BIGSERIAL PRIMARY KEY,
		title TEXT UNIQUE NOT NULL,
		chat_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		options TEXT[] NOT NULL,
		is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
		allows_multiple_answers BOOLEAN NOT NULL DEFAULT FALSE,
		weekdays TEXT[] NOT NULL,
		send_time TIME NOT NULL,
		skip_dates TEXT[] NOT NULL DEFAULT '{}',
		block_answer_delta_hours INT NOT NULL DEFAULT 24,
		created_by BIGINT NOT NULL DEFAULT 0,
		last_send_date DATE,
		message_id INT,
		is_blocked BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		chat_id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		is_group BOOLEAN NOT NULL DEFAULT FALSE,
		added_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// Migrate creates the poll and chat tables and brings the River job tables up to date.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, st := range schema {
		if _, err := pool.Exec(ctx, st); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("migrate river: %w", err)
	}
	return nil
}
