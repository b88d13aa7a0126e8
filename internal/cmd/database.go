package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"github.com/sheridanzzz/CamTag-WebApp/internal/dbconfig"
)

// openDatabases opens both Postgres handles: a pgx pool for the game store
// and a database/sql handle for the outbox, whose LISTEN/NOTIFY relay needs
// lib/pq.
func openDatabases(ctx context.Context, cfg dbconfig.Config) (*pgxpool.Pool, *sql.DB, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("open sql handle: %w", err)
	}
	if err := db.PingContext(pingCtx); err != nil {
		pool.Close()
		db.Close()
		return nil, nil, fmt.Errorf("ping sql handle: %w", err)
	}

	return pool, db, nil
}
