package db

import (
	"context"
	"time"

	"zerosum_client/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens the journal pool and pings it. An empty dsn disables the
// journal and returns nil.
func Connect(ctx context.Context, dsn string) *pgxpool.Pool {
	if dsn == "" {
		logger.Info("DATABASE_URL not set, event journal disabled")
		return nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Fatal("failed to create database pool", "error", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Fatal("failed to ping database", "error", err)
	}

	logger.Info("database connected")
	return pool
}
