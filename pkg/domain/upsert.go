package domain

import (
	"encoding/json"
	"fmt"
)

// Op is one staged insert-or-update statement with its ordered arguments.
type Op struct {
	Table string
	SQL   string
	Args  []any
}

// Batch accumulates upsert operations staged by storage handlers. All state is
// parameter-scoped; a Batch is built per call and handed to the session for
// execution.
type Batch struct {
	ops []Op
}

// Append stages one operation.
func (b *Batch) Append(op Op) { b.ops = append(b.ops, op) }

// Ops returns the staged operations in insertion order.
func (b *Batch) Ops() []Op { return b.ops }

// Len reports the number of staged operations.
func (b *Batch) Len() int { return len(b.ops) }

// RowScanner is the single-row read surface handlers hydrate from. *sql.Row,
// *sql.Rows and sqlx rows all satisfy it.
type RowScanner interface {
	Scan(dest ...any) error
}

// Serializer converts documents to and from their stored payload form.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer stores documents as JSON payloads.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// UpsertSource supplies the persistence-batching behavior for a mapping: the
// executable statement used at runtime, and the method source embedded
// verbatim into a synthesized storage type.
type UpsertSource interface {
	// SQL returns the insert-or-update statement for the mapped table.
	// Placeholders use '?' and are rebound per dialect by the session.
	SQL(schema, table string, hierarchy bool) string
	// MethodBody returns the full persistence-batching method for the
	// synthesized type named typeName over document reference docRef.
	MethodBody(typeName, docRef string) string
}

// DefaultUpsert is the stock upsert source: one row per document keyed by
// identity, JSON payload, discriminator column for hierarchies.
type DefaultUpsert struct{}

func (DefaultUpsert) SQL(schema, table string, hierarchy bool) string {
	target := table
	if schema != "" {
		target = schema + "." + table
	}
	if hierarchy {
		return fmt.Sprintf("INSERT INTO %s (id, doc, doc_type) VALUES (?, ?, ?) ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, doc_type = EXCLUDED.doc_type", target)
	}
	return fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (?, ?) ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc", target)
}

func (DefaultUpsert) MethodBody(typeName, docRef string) string {
	return fmt.Sprintf(`// AppendUpsert stages the insert-or-update parameters for one document.
func (s *%[1]s) AppendUpsert(batch *domain.Batch, doc *%[2]s) error {
	payload, err := s.serializer.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %[1]s document: %%w", err)
	}
	id, err := s.Retrieve(doc)
	if err != nil {
		return err
	}
	batch.Append(s.upsertOp(s.schemaName, id, payload))
	return nil
}
`, typeName, docRef)
}
