package session

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	_ "modernc.org/sqlite"             // register the sqlite driver

	"docstore/pkg/domain"
)

const (
	defaultSQLitePath  = "./docstore.db"
	defaultPostgresDSN = "postgres://localhost/docstore?sslmode=disable"
	defaultSchema      = "public"
)

var (
	sqlOpen = sqlx.Open
	openMu  sync.Mutex
)

// Open selects a backend using environment variables. Defaults to sqlite when
// unset.
//
//	DOCSTORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	DOCSTORE_SQLITE_PATH: path to sqlite file (default ./docstore.db)
//	DOCSTORE_POSTGRES_DSN: postgres DSN when driver=postgres
//	DOCSTORE_SCHEMA: schema name for postgres (default public)
func Open(ctx context.Context) (*Context, error) {
	driver := os.Getenv("DOCSTORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		path := os.Getenv("DOCSTORE_SQLITE_PATH")
		if path == "" {
			path = defaultSQLitePath
		}
		return openSQL(ctx, DriverSQLite, "sqlite", path, "")
	case DriverPostgres:
		dsn := os.Getenv("DOCSTORE_POSTGRES_DSN")
		if dsn == "" {
			dsn = defaultPostgresDSN
		}
		schema := os.Getenv("DOCSTORE_SCHEMA")
		if schema == "" {
			schema = defaultSchema
		}
		return openSQL(ctx, DriverPostgres, "pgx", dsn, schema)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}

// NewMemory returns a map-backed context with no durable storage.
func NewMemory() *Context {
	return &Context{
		driver:     DriverMemory,
		serializer: domain.JSONSerializer{},
		sequences:  &memorySequences{},
		mem:        newMemoryStore(),
	}
}

func openSQL(ctx context.Context, driver Driver, driverName, dsn, schema string) (*Context, error) {
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := &Context{
		driver:     driver,
		db:         db,
		schema:     schema,
		serializer: domain.JSONSerializer{},
	}
	s.sequences = &dbSequences{session: s}
	return s, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sqlx.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
