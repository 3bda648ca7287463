package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type nopDriver struct{}

func (d nopDriver) Open(name string) (driver.Conn, error) {
	return nopConn{}, nil
}

type nopConn struct{}

func (nopConn) Prepare(query string) (driver.Stmt, error) { return nopStmt{}, nil }
func (nopConn) Close() error                              { return nil }
func (nopConn) Begin() (driver.Tx, error)                 { return nopTx{}, nil }
func (nopConn) Ping(ctx context.Context) error            { return nil }

type nopStmt struct{}

func (nopStmt) Close() error                                    { return nil }
func (nopStmt) NumInput() int                                   { return -1 }
func (nopStmt) Exec(args []driver.Value) (driver.Result, error) { return nopResult{}, nil }
func (nopStmt) Query(args []driver.Value) (driver.Rows, error)  { return nopRows{}, nil }

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

type nopResult struct{}

func (nopResult) LastInsertId() (int64, error) { return 0, nil }
func (nopResult) RowsAffected() (int64, error) { return 0, nil }

type nopRows struct{}

func (nopRows) Columns() []string              { return []string{} }
func (nopRows) Close() error                   { return nil }
func (nopRows) Next(dest []driver.Value) error { return driver.ErrBadConn }

var registerTestDriverOnce sync.Once

func ensureTestDriverRegistered() {
	registerTestDriverOnce.Do(func() {
		sql.Register("dbtest", nopDriver{})
	})
}

func withTestDriver(t *testing.T) func() {
	t.Helper()
	ensureTestDriverRegistered()
	prev := openDB
	openDB = func(name, dsn string) (*sql.DB, error) {
		return sql.Open("dbtest", dsn)
	}
	return func() {
		openDB = prev
	}
}

func resetShared() {
	shared.mu.Lock()
	if shared.pool != nil {
		shared.pool.Close()
	}
	shared.pool = nil
	shared.mu.Unlock()
}

func TestSharedReturnsSamePool(t *testing.T) {
	restore := withTestDriver(t)
	defer restore()
	resetShared()
	defer resetShared()

	var wg sync.WaitGroup
	pools := make([]*sql.DB, 4)
	for i := range pools {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pools[i], _ = Shared(context.Background(), "ignored", Defaults(ProfileLambda))
		}(i)
	}
	wg.Wait()
	for i, p := range pools {
		if p == nil || p != pools[0] {
			t.Fatalf("pool %d differs: %p vs %p", i, p, pools[0])
		}
	}
	if got := pools[0].Stats().MaxOpenConnections; got != 2 {
		t.Fatalf("expected lambda pool size 2, got %d", got)
	}
}

func TestOptionsFromEnvAppliesOverrides(t *testing.T) {
	restore := withTestDriver(t)
	defer restore()

	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_MAX_IDLE_CONNS", "3")
	t.Setenv("DB_CONN_MAX_LIFETIME", "20m")
	t.Setenv("DB_CONN_MAX_IDLE_TIME", "45s")
	t.Setenv("DB_PING_TIMEOUT", "1s")

	opts := OptionsFromEnv(Defaults(ProfileServer))
	pool, err := Connect(context.Background(), "ignored", opts)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer pool.Close()

	if got := pool.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("expected MaxOpenConnections=7, got %d", got)
	}
	want := Options{MaxOpenConns: 7, MaxIdleConns: 3, ConnMaxLifetime: 20 * time.Minute, ConnMaxIdleTime: 45 * time.Second, PingTimeout: time.Second}
	if opts != want {
		t.Fatalf("unexpected options: %+v", opts)
	}
}

func TestOptionsFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "many")
	t.Setenv("DB_PING_TIMEOUT", "soon")
	if got := OptionsFromEnv(Defaults(ProfileMigrate)); got != Defaults(ProfileMigrate) {
		t.Fatalf("expected defaults, got %+v", got)
	}
}

func TestDefaultsFallBackToServer(t *testing.T) {
	if Defaults("unknown") != Defaults(ProfileServer) {
		t.Fatalf("expected server defaults for unknown profile")
	}
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	if RuntimeProfile() != ProfileServer {
		t.Fatalf("expected server profile")
	}
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "recovery")
	if RuntimeProfile() != ProfileLambda {
		t.Fatalf("expected lambda profile")
	}
}

func TestSharedRetriesAfterFailure(t *testing.T) {
	var calls int32
	prev := openDB
	openDB = func(name, dsn string) (*sql.DB, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, driver.ErrBadConn
		}
		ensureTestDriverRegistered()
		return sql.Open("dbtest", dsn)
	}
	defer func() {
		openDB = prev
	}()
	resetShared()
	defer resetShared()

	if _, err := Shared(context.Background(), "ignored", Defaults(ProfileLambda)); err == nil {
		t.Fatalf("expected first call to fail")
	}
	pool, err := Shared(context.Background(), "ignored", Defaults(ProfileLambda))
	if err != nil || pool == nil {
		t.Fatalf("expected second call to succeed: %v", err)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatalf("expected at least one migration")
	}
	data, err := migrationFiles.ReadFile("migrations/" + entries[0].Name())
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if !strings.Contains(string(data), "-- +goose Up") {
		t.Fatalf("migration missing goose annotations")
	}
}

func TestMigrateRejectsUnknownCommand(t *testing.T) {
	restore := withTestDriver(t)
	defer restore()
	database, err := openDB("pgx", "ignored")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer database.Close()
	if err := Migrate(context.Background(), database, "sideways"); err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
