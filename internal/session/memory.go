package session

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"docstore/pkg/domain"
)

// memoryStore keeps document rows in maps, keyed by table and rendered
// identity. It backs the memory driver for tests and ephemeral use.
type memoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]memoryRow
}

type memoryRow struct {
	id      any
	payload []byte
	docType string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tables: map[string]map[string]memoryRow{}}
}

// apply mirrors the SQL upsert semantics: ops carry (id, payload) or
// (id, payload, doc_type) argument lists and replace any existing row.
func (m *memoryStore) apply(ops []domain.Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		if len(op.Args) < 2 {
			return fmt.Errorf("upsert %s: malformed op with %d args", op.Table, len(op.Args))
		}
		payload, ok := op.Args[1].([]byte)
		if !ok {
			return fmt.Errorf("upsert %s: payload is %T, want []byte", op.Table, op.Args[1])
		}
		row := memoryRow{id: op.Args[0], payload: append([]byte(nil), payload...)}
		if len(op.Args) > 2 {
			if alias, ok := op.Args[2].(string); ok {
				row.docType = alias
			}
		}
		table := m.tables[op.Table]
		if table == nil {
			table = map[string]memoryRow{}
			m.tables[op.Table] = table
		}
		table[fmt.Sprintf("%v", op.Args[0])] = row
	}
	return nil
}

// row returns a scanner over the stored row for id, shaped like the SQL
// column list handlers hydrate from.
func (m *memoryStore) row(table string, id any, hierarchy bool) (domain.RowScanner, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.tables[table][fmt.Sprintf("%v", id)]
	if !ok {
		return nil, false
	}
	values := []any{row.id, row.payload}
	if hierarchy {
		values = append(values, row.docType)
	}
	return scannerRow(values), true
}

// scannerRow adapts a fixed value list to the RowScanner surface.
type scannerRow []any

func (r scannerRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("scan expects %d destinations, got %d", len(r), len(dest))
	}
	for i, value := range r {
		if err := assign(dest[i], value); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, value any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		if scanner, ok := dest.(sql.Scanner); ok {
			return scanner.Scan(value)
		}
		return fmt.Errorf("destination is %T, want a pointer", dest)
	}
	slot := dv.Elem()
	v := reflect.ValueOf(value)
	switch {
	case !v.IsValid():
		slot.SetZero()
	case v.Type().AssignableTo(slot.Type()):
		// Stored values keep their Go type, so a direct assignment must win
		// over sql.Scanner: uuid.UUID's scanner only accepts text forms.
		slot.Set(v)
	case v.Type().ConvertibleTo(slot.Type()):
		slot.Set(v.Convert(slot.Type()))
	default:
		if scanner, ok := dest.(sql.Scanner); ok {
			return scanner.Scan(value)
		}
		return fmt.Errorf("cannot store %T into %s", value, slot.Type())
	}
	return nil
}

// memorySequences allocates identities from an in-process counter per entity.
type memorySequences struct {
	mu       sync.Mutex
	counters map[string]*atomic.Int64
}

func (m *memorySequences) Next(_ context.Context, entity string) (int64, error) {
	m.mu.Lock()
	if m.counters == nil {
		m.counters = map[string]*atomic.Int64{}
	}
	counter := m.counters[entity]
	if counter == nil {
		counter = &atomic.Int64{}
		m.counters[entity] = counter
	}
	m.mu.Unlock()
	return counter.Add(1), nil
}
