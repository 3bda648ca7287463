package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as database/sql driver

	"interview-backend/internal/shared/telemetry"
)

// Profile names a process shape with its own pool sizing.
type Profile string

const (
	// ProfileServer is a long-running API or worker process.
	ProfileServer Profile = "server"
	// ProfileLambda is one Lambda execution environment handling one event at a time.
	ProfileLambda Profile = "lambda"
	// ProfileMigrate is a short-lived CLI run.
	ProfileMigrate Profile = "migrate"
)

// Options controls database pool and connectivity behavior.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
}

var profiles = map[Profile]Options{
	// A recovery cycle or pipeline run holds at most one connection at a time.
	ProfileLambda:  {MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxIdleTime: 30 * time.Second, ConnMaxLifetime: 15 * time.Minute, PingTimeout: 3 * time.Second},
	ProfileServer:  {MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxIdleTime: 2 * time.Minute, ConnMaxLifetime: time.Hour, PingTimeout: 5 * time.Second},
	ProfileMigrate: {MaxOpenConns: 1, MaxIdleConns: 1, ConnMaxIdleTime: 2 * time.Minute, ConnMaxLifetime: time.Hour, PingTimeout: 5 * time.Second},
}

// Defaults returns the pool settings for p; unknown profiles get the server settings.
func Defaults(p Profile) Options {
	if opts, ok := profiles[p]; ok {
		return opts
	}
	return profiles[ProfileServer]
}

// IsLambdaRuntime reports whether the current process is running in AWS Lambda.
func IsLambdaRuntime() bool {
	return strings.TrimSpace(os.Getenv("AWS_LAMBDA_FUNCTION_NAME")) != ""
}

// RuntimeProfile picks the lambda or server profile for this process.
func RuntimeProfile() Profile {
	if IsLambdaRuntime() {
		return ProfileLambda
	}
	return ProfileServer
}

// OptionsFromEnv overrides defaults with DB_* env vars if present.
func OptionsFromEnv(defaults Options) Options {
	opts := defaults
	envOverride("DB_MAX_OPEN_CONNS", strconv.Atoi, &opts.MaxOpenConns)
	envOverride("DB_MAX_IDLE_CONNS", strconv.Atoi, &opts.MaxIdleConns)
	envOverride("DB_CONN_MAX_LIFETIME", time.ParseDuration, &opts.ConnMaxLifetime)
	envOverride("DB_CONN_MAX_IDLE_TIME", time.ParseDuration, &opts.ConnMaxIdleTime)
	envOverride("DB_PING_TIMEOUT", time.ParseDuration, &opts.PingTimeout)
	return opts
}

func envOverride[T any](key string, parse func(string) (T, error), dst *T) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, err := parse(raw)
	if err != nil {
		telemetry.Warn("db.env.invalid", map[string]any{"key": key, "error": err})
		return
	}
	*dst = v
}

var openDB = sql.Open

// Connect opens a pgx-backed *sql.DB, applies opts and pings it. Callers
// share the returned pool.
func Connect(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	pool, err := openDB("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	configure(pool, opts)

	timeout := opts.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := pool.PingContext(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	stats := pool.Stats()
	telemetry.Info("db.pool.opened", map[string]any{
		"max_open": stats.MaxOpenConnections,
		"open":     stats.OpenConnections,
		"idle":     stats.Idle,
	})
	return pool, nil
}

// shared holds the process-wide pool. The mutex is held across Connect so
// concurrent cold starts dial once; a failed dial leaves it empty for retry.
var shared struct {
	mu   sync.Mutex
	pool *sql.DB
}

// Shared returns the process-wide pool, connecting on first use so warm
// Lambda invocations reuse it.
func Shared(ctx context.Context, databaseURL string, opts Options) (*sql.DB, error) {
	shared.mu.Lock()
	defer shared.mu.Unlock()
	if shared.pool != nil {
		telemetry.Debug("db.pool.reuse", nil)
		return shared.pool, nil
	}
	pool, err := Connect(ctx, databaseURL, opts)
	if err != nil {
		return nil, err
	}
	shared.pool = pool
	telemetry.Info("db.pool.cold_start", nil)
	return pool, nil
}

func configure(pool *sql.DB, opts Options) {
	fallback := profiles[ProfileServer]
	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = fallback.MaxOpenConns
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = fallback.MaxIdleConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = fallback.ConnMaxLifetime
	}
	pool.SetMaxOpenConns(opts.MaxOpenConns)
	pool.SetMaxIdleConns(opts.MaxIdleConns)
	pool.SetConnMaxLifetime(opts.ConnMaxLifetime)
	if opts.ConnMaxIdleTime > 0 {
		pool.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
}
