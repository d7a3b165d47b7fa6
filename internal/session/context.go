// Package session provides the ambient schema/session context storage
// handlers are activated against: the database handle, schema name,
// serializer and sequence allocator, plus batch execution and row loading.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"docstore/pkg/domain"
)

// Driver identifies a concrete storage backend.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Context is the live schema/session state handlers resolve their storage
// arguments against. It is safe for concurrent use once opened.
type Context struct {
	driver     Driver
	db         *sqlx.DB
	schema     string
	serializer domain.Serializer
	sequences  domain.SequenceAllocator
	mem        *memoryStore
}

// Driver returns the backend this context is bound to.
func (s *Context) Driver() Driver { return s.driver }

// Schema returns the database schema name; empty for schemaless backends.
func (s *Context) Schema() string { return s.schema }

// DB exposes the underlying database handle for integration testing hooks.
func (s *Context) DB() *sqlx.DB { return s.db }

// Close releases the underlying database handle.
func (s *Context) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ResolveArgument maps a storage argument's resolution rule to its live value.
func (s *Context) ResolveArgument(m *domain.MappingDescriptor, arg domain.StorageArgument) (any, error) {
	switch arg.Kind {
	case domain.ArgMapping:
		return m, nil
	case domain.ArgSchemaName:
		return s.schema, nil
	case domain.ArgSerializer:
		return s.serializer, nil
	case domain.ArgSequences:
		return s.sequences, nil
	case domain.ArgHierarchy:
		h := m.Hierarchy()
		if h == nil {
			return nil, &domain.PreconditionError{Mapping: m.DisplayName(), Detail: "hierarchy argument extracted for a flat mapping"}
		}
		return h, nil
	default:
		return nil, fmt.Errorf("unknown storage argument kind %q", arg.Kind)
	}
}

// ExecuteBatch applies every staged upsert within one transaction. A unique
// violation on the identity column is reported as ErrDuplicateIdentity.
func (s *Context) ExecuteBatch(ctx context.Context, batch *domain.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	if s.driver == DriverMemory {
		return s.mem.apply(batch.Ops())
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, op := range batch.Ops() {
		if _, err := tx.ExecContext(ctx, tx.Rebind(op.SQL), op.Args...); err != nil {
			return fmt.Errorf("upsert %s: %w", op.Table, classify(err))
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Load fetches one document row by identity and hydrates it through the
// handler. Missing rows map to ErrNotFound.
func (s *Context) Load(ctx context.Context, h domain.StorageHandler, id any) (any, error) {
	m := h.Mapping()
	if s.driver == DriverMemory {
		row, ok := s.mem.row(m.TableName(), id, m.Hierarchy() != nil)
		if !ok {
			return nil, fmt.Errorf("load %s %v: %w", m.TableName(), id, domain.ErrNotFound)
		}
		return h.Hydrate(row)
	}

	columns := "id, doc"
	if m.Hierarchy() != nil {
		columns = "id, doc, doc_type"
	}
	query := s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", columns, s.qualified(m.TableName())))
	row := s.db.QueryRowContext(ctx, query, id)
	doc, err := h.Hydrate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("load %s %v: %w", m.TableName(), id, domain.ErrNotFound)
		}
		return nil, err
	}
	return doc, nil
}

func (s *Context) qualified(table string) string {
	if s.schema == "" {
		return table
	}
	return s.schema + "." + table
}

// classify maps driver-level failures onto the domain error vocabulary.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateIdentity, pgErr.Detail)
	}
	return err
}
