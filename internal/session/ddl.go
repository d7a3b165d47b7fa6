package session

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/uuid"

	"docstore/pkg/domain"
)

var uuidType = reflect.TypeOf(uuid.UUID{})

// EnsureDocumentTables applies the document-table DDL for every mapping in
// the batch, plus the shared sequence table when any mapping allocates
// sequence identities. No-op for the memory driver.
func (s *Context) EnsureDocumentTables(ctx context.Context, mappings []*domain.MappingDescriptor) error {
	if s.driver == DriverMemory {
		return nil
	}
	for _, stmt := range SplitStatements(s.documentDDL(mappings)) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

func (s *Context) documentDDL(mappings []*domain.MappingDescriptor) string {
	type table struct {
		idType    string
		hierarchy bool
	}
	tables := map[string]table{}
	needSequences := false
	for _, m := range mappings {
		t := tables[m.TableName()]
		t.idType = s.identityColumn(m)
		t.hierarchy = t.hierarchy || m.Hierarchy() != nil
		tables[m.TableName()] = t
		if m.Strategy().Kind() == domain.StrategySequence {
			needSequences = true
		}
	}

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	if s.driver == DriverPostgres && s.schema != "" {
		fmt.Fprintf(&b, "CREATE SCHEMA IF NOT EXISTS %s;\n", s.schema)
	}
	for _, name := range names {
		t := tables[name]
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", s.qualified(name))
		fmt.Fprintf(&b, "\tid %s PRIMARY KEY,\n", t.idType)
		b.WriteString("\tdoc " + s.payloadColumn())
		if t.hierarchy {
			b.WriteString(",\n\tdoc_type TEXT NOT NULL")
		}
		b.WriteString("\n);\n")
	}
	if needSequences {
		b.WriteString("CREATE TABLE IF NOT EXISTS docstore_sequences (\n\tentity TEXT PRIMARY KEY,\n\tvalue BIGINT NOT NULL\n);\n")
	}
	return b.String()
}

func (s *Context) identityColumn(m *domain.MappingDescriptor) string {
	member := m.Identity().GoType
	switch {
	case member == uuidType:
		if s.driver == DriverPostgres {
			return "UUID"
		}
		return "TEXT"
	case member != nil && isIntKind(member.Kind()):
		if s.driver == DriverSQLite {
			return "INTEGER"
		}
		return "BIGINT"
	default:
		return "TEXT"
	}
}

func isIntKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func (s *Context) payloadColumn() string {
	if s.driver == DriverPostgres {
		return "JSONB NOT NULL"
	}
	return "BLOB NOT NULL"
}

// SplitStatements breaks the document-table DDL script into individually
// executable statements. Each statement ends on a line whose trimmed text
// ends with ';'; blank lines and "--" comments are skipped. The generated
// DDL never embeds semicolons inside literals, so no SQL lexing is needed.
func SplitStatements(script string) []string {
	var stmts []string
	var current []string
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current = append(current, line)
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSpace(strings.Join(current, "\n")))
			current = nil
		}
	}
	if len(current) > 0 {
		stmts = append(stmts, strings.TrimSpace(strings.Join(current, "\n")))
	}
	return stmts
}
