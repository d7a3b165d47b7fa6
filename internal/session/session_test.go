package session

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"docstore/pkg/domain"
)

type memo struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type counter struct {
	ID    int64 `json:"id"`
	Value int   `json:"value"`
}

func handlerFor[T any](t *testing.T, s *Context, opts ...domain.MappingOption) domain.StorageHandler {
	t.Helper()
	m, err := domain.Define[T](opts...)
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	var args domain.ResolvedArguments
	for _, spec := range m.StorageArguments() {
		value, err := s.ResolveArgument(m, spec)
		if err != nil {
			t.Fatalf("resolve %s: %v", spec.Name, err)
		}
		args = append(args, domain.ResolvedArgument{Spec: spec, Value: value})
	}
	h, err := domain.NewHandler[T](m, args)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return h
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Setenv("DOCSTORE_STORAGE_DRIVER", "oracle")
	if _, err := Open(context.Background()); err == nil {
		t.Fatalf("expected rejection of unknown driver")
	}
}

func TestOpenMemoryDriver(t *testing.T) {
	t.Setenv("DOCSTORE_STORAGE_DRIVER", string(DriverMemory))
	s, err := Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if s.Driver() != DriverMemory {
		t.Fatalf("driver = %s", s.Driver())
	}
}

func TestOpenSurfacesDriverFailure(t *testing.T) {
	t.Setenv("DOCSTORE_STORAGE_DRIVER", string(DriverSQLite))
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sqlx.DB, error) {
		return nil, errors.New("driver unavailable")
	})
	defer restore()

	_, err := Open(context.Background())
	if err == nil || !strings.Contains(err.Error(), "open sqlite") {
		t.Fatalf("err = %v", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemory()
	h := handlerFor[memo](t, s)

	doc := &memo{Text: "remember"}
	if _, _, err := h.AssignIdentity(context.Background(), doc); err != nil {
		t.Fatalf("assign: %v", err)
	}
	var batch domain.Batch
	if err := h.AppendUpsert(&batch, doc); err != nil {
		t.Fatalf("append upsert: %v", err)
	}
	if err := s.ExecuteBatch(context.Background(), &batch); err != nil {
		t.Fatalf("execute batch: %v", err)
	}

	got, err := s.Load(context.Background(), h, doc.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded := got.(*memo)
	if loaded.ID != doc.ID || loaded.Text != "remember" {
		t.Fatalf("loaded = %+v", loaded)
	}

	// Re-upserting the same identity replaces the row.
	doc.Text = "replaced"
	var second domain.Batch
	if err := h.AppendUpsert(&second, doc); err != nil {
		t.Fatalf("append upsert: %v", err)
	}
	if err := s.ExecuteBatch(context.Background(), &second); err != nil {
		t.Fatalf("execute batch: %v", err)
	}
	got, err = s.Load(context.Background(), h, doc.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.(*memo).Text != "replaced" {
		t.Fatalf("upsert did not replace: %+v", got)
	}
}

type badge struct {
	ID    uuid.UUID `json:"id"`
	Owner string    `json:"owner"`
}

func TestMemoryRoundTripUUIDIdentity(t *testing.T) {
	s := NewMemory()
	h := handlerFor[badge](t, s)

	doc := &badge{Owner: "ops"}
	if _, _, err := h.AssignIdentity(context.Background(), doc); err != nil {
		t.Fatalf("assign: %v", err)
	}
	var batch domain.Batch
	if err := h.AppendUpsert(&batch, doc); err != nil {
		t.Fatalf("append upsert: %v", err)
	}
	if err := s.ExecuteBatch(context.Background(), &batch); err != nil {
		t.Fatalf("execute batch: %v", err)
	}

	got, err := s.Load(context.Background(), h, doc.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	loaded := got.(*badge)
	if loaded.ID != doc.ID || loaded.Owner != "ops" {
		t.Fatalf("loaded = %+v", loaded)
	}
}

func TestMemoryLoadMissingRow(t *testing.T) {
	s := NewMemory()
	h := handlerFor[memo](t, s)

	if _, err := s.Load(context.Background(), h, "absent"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMemorySequencesPerEntity(t *testing.T) {
	seq := &memorySequences{}
	for want := int64(1); want <= 3; want++ {
		got, err := seq.Next(context.Background(), "counter")
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got != want {
			t.Fatalf("counter sequence = %d, want %d", got, want)
		}
	}
	got, err := seq.Next(context.Background(), "other")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != 1 {
		t.Fatalf("entities share a counter: got %d", got)
	}
}

func TestSequenceIdentityOverMemory(t *testing.T) {
	s := NewMemory()
	h := handlerFor[counter](t, s)

	first := &counter{Value: 10}
	second := &counter{Value: 20}
	if _, _, err := h.AssignIdentity(context.Background(), first); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if _, _, err := h.AssignIdentity(context.Background(), second); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("sequence identities = %d, %d", first.ID, second.ID)
	}
}

func TestResolveArgumentHierarchyOnFlatMapping(t *testing.T) {
	s := NewMemory()
	m, err := domain.Define[memo]()
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	_, err = s.ResolveArgument(m, domain.StorageArgument{Name: "hierarchy", Kind: domain.ArgHierarchy})
	var pre *domain.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("err = %v, want *PreconditionError", err)
	}
}

func TestScannerRowAssign(t *testing.T) {
	row := scannerRow{"abc", []byte(`{"x":1}`)}
	var id string
	var payload []byte
	if err := row.Scan(&id, &payload); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if id != "abc" || string(payload) != `{"x":1}` {
		t.Fatalf("scanned %q %q", id, payload)
	}
	if err := row.Scan(&id); err == nil {
		t.Fatalf("expected destination count mismatch")
	}
}

func TestDocumentDDL(t *testing.T) {
	mkMapping := func(t *testing.T, opts ...domain.MappingOption) *domain.MappingDescriptor {
		t.Helper()
		m, err := domain.Define[counter](opts...)
		if err != nil {
			t.Fatalf("define: %v", err)
		}
		return m
	}

	t.Run("sqlite", func(t *testing.T) {
		s := &Context{driver: DriverSQLite}
		ddl := s.documentDDL([]*domain.MappingDescriptor{mkMapping(t)})
		for _, want := range []string{
			"CREATE TABLE IF NOT EXISTS counter",
			"id INTEGER PRIMARY KEY",
			"doc BLOB NOT NULL",
			"docstore_sequences",
		} {
			if !strings.Contains(ddl, want) {
				t.Fatalf("sqlite ddl missing %q:\n%s", want, ddl)
			}
		}
		if strings.Contains(ddl, "CREATE SCHEMA") {
			t.Fatalf("sqlite ddl must not create schemas:\n%s", ddl)
		}
	})

	t.Run("postgres hierarchy", func(t *testing.T) {
		s := &Context{driver: DriverPostgres, schema: "app"}
		m := mkMapping(t, domain.WithHierarchy(&domain.Hierarchy{Root: "things"}))
		ddl := s.documentDDL([]*domain.MappingDescriptor{m})
		for _, want := range []string{
			"CREATE SCHEMA IF NOT EXISTS app",
			"CREATE TABLE IF NOT EXISTS app.things",
			"id BIGINT PRIMARY KEY",
			"doc JSONB NOT NULL",
			"doc_type TEXT NOT NULL",
		} {
			if !strings.Contains(ddl, want) {
				t.Fatalf("postgres ddl missing %q:\n%s", want, ddl)
			}
		}
	})
}

func TestSplitStatements(t *testing.T) {
	ddl := `-- document tables
CREATE TABLE a (
	id TEXT PRIMARY KEY
);

CREATE TABLE b (id TEXT PRIMARY KEY);
CREATE INDEX idx ON b (id)`

	stmts := SplitStatements(ddl)
	if len(stmts) != 3 {
		t.Fatalf("got %d statements: %q", len(stmts), stmts)
	}
	if !strings.HasPrefix(stmts[0], "CREATE TABLE a") {
		t.Fatalf("first statement = %q", stmts[0])
	}
	if stmts[2] != "CREATE INDEX idx ON b (id)" {
		t.Fatalf("unterminated tail = %q", stmts[2])
	}
	for _, stmt := range stmts {
		if strings.Contains(stmt, "--") {
			t.Fatalf("comment survived splitting: %q", stmt)
		}
	}
}

func TestMemoryApplyRejectsMalformedOp(t *testing.T) {
	store := newMemoryStore()
	err := store.apply([]domain.Op{{Table: "memo", Args: []any{"id-only"}}})
	if err == nil {
		t.Fatalf("expected malformed op rejection")
	}
	err = store.apply([]domain.Op{{Table: "memo", Args: []any{"id", 42}}})
	if err == nil || !strings.Contains(err.Error(), "payload") {
		t.Fatalf("err = %v", err)
	}
}
