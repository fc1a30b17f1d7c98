package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Options selects a backing store. DatabaseURL wins over SQLitePath; with
// neither set state lives in memory. RedisURL only applies on top of
// PostgreSQL.
type Options struct {
	DatabaseURL string
	RedisURL    string
	SQLitePath  string
	CacheTTL    time.Duration
}

// Open builds the store described by opts. The returned cleanup releases
// every connection Open made and is never nil.
func Open(ctx context.Context, opts Options) (Store, func(), error) {
	var cleanup []func()
	closeAll := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}

	switch {
	case opts.DatabaseURL != "":
		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, closeAll, fmt.Errorf("connect postgres: %w", err)
		}
		cleanup = append(cleanup, pool.Close)
		pg := NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			closeAll()
			return nil, func() {}, err
		}
		slog.Info("connected to PostgreSQL")

		var st Store = pg
		if opts.RedisURL != "" {
			ropt, err := redis.ParseURL(opts.RedisURL)
			if err != nil {
				closeAll()
				return nil, func() {}, fmt.Errorf("invalid REDIS_URL: %w", err)
			}
			rdb := redis.NewClient(ropt)
			cleanup = append(cleanup, func() { rdb.Close() })
			st = NewCachedStore(st, rdb, opts.CacheTTL)
			slog.Info("Redis cache enabled", "ttl", opts.CacheTTL.String())
		}
		return st, closeAll, nil

	case opts.SQLitePath != "":
		sq, err := NewSQLiteStore(ctx, opts.SQLitePath)
		if err != nil {
			return nil, closeAll, err
		}
		cleanup = append(cleanup, func() { sq.Close() })
		slog.Info("using SQLite store", "path", opts.SQLitePath)
		return sq, closeAll, nil

	default:
		slog.Warn("no database configured, using in-memory store (data will not persist)")
		return NewMemoryStore(), closeAll, nil
	}
}
