package domain

import (
	"context"
	"fmt"
	"reflect"
)

// Assigner is the identity-assignment capability specialized to one document
// type. Synthesized storage types assert it at compile time; the type resolver
// reads the document type out of that assertion.
type Assigner[T any] interface {
	Assign(ctx context.Context, doc *T) (id any, assigned bool, err error)
	AssignExplicit(doc *T, id any) error
	Retrieve(doc *T) (any, error)
}

// StorageHandler is the full capability set of a specialized storage handler:
// identity assignment, identity retrieval and mutation, persistence-batch
// production, and result hydration. Handlers are immutable after activation
// and safe for concurrent use; all per-call state flows through parameters.
type StorageHandler interface {
	Mapping() *MappingDescriptor
	DocumentType() reflect.Type
	// AssignIdentity ensures the document carries an identity, generating one
	// via the mapping's strategy when absent. The flag reports whether a new
	// identity was generated.
	AssignIdentity(ctx context.Context, doc any) (id any, assigned bool, err error)
	// SetIdentity unconditionally writes the supplied identity into the
	// document, converting when the types are compatible.
	SetIdentity(doc any, id any) error
	// Identity returns the document's current identity without mutation. The
	// document is accepted as an opaque value and must downcast to the
	// specialized type.
	Identity(doc any) (any, error)
	// AppendUpsert stages the document's insert-or-update parameters.
	AppendUpsert(batch *Batch, doc any) error
	// Hydrate builds a document instance from one result row.
	Hydrate(scan RowScanner) (any, error)
}

// Handler is the specialized storage handler for document type T. The
// specialization work (identity member lookup, strategy selection) happens
// once at descriptor definition time; method calls perform no descriptor
// branching.
type Handler[T any] struct {
	mapping    *MappingDescriptor
	schemaName string
	serializer Serializer
	sequences  SequenceAllocator
	hierarchy  *Hierarchy
	env        StrategyEnv
}

var _ StorageHandler = (*Handler[struct{ ID string }])(nil)

// NewHandler activates a handler for T from its resolved argument list. The
// list must match the mapping's extracted StorageArguments by position and
// kind; divergence is a precondition violation, not a recoverable condition.
func NewHandler[T any](m *MappingDescriptor, args ResolvedArguments) (*Handler[T], error) {
	want := m.StorageArguments()
	if len(args) != len(want) {
		return nil, &PreconditionError{
			Mapping: m.DisplayName(),
			Detail:  fmt.Sprintf("resolved %d storage arguments, synthesis extracted %d", len(args), len(want)),
		}
	}
	h := &Handler[T]{mapping: m}
	for i, arg := range args {
		if arg.Spec.Kind != want[i].Kind || arg.Spec.Name != want[i].Name {
			return nil, &PreconditionError{
				Mapping: m.DisplayName(),
				Detail:  fmt.Sprintf("storage argument %d is %s/%s, synthesis extracted %s/%s", i, arg.Spec.Name, arg.Spec.Kind, want[i].Name, want[i].Kind),
			}
		}
		if err := h.bind(arg); err != nil {
			return nil, err
		}
	}
	h.env = StrategyEnv{Sequences: h.sequences, Entity: m.TableName()}
	return h, nil
}

func (h *Handler[T]) bind(arg ResolvedArgument) error {
	mismatch := func() error {
		return &PreconditionError{
			Mapping: h.mapping.DisplayName(),
			Detail:  fmt.Sprintf("storage argument %s resolved to incompatible value %T", arg.Spec.Name, arg.Value),
		}
	}
	switch arg.Spec.Kind {
	case ArgMapping:
		m, ok := arg.Value.(*MappingDescriptor)
		if !ok || m != h.mapping {
			return mismatch()
		}
	case ArgSchemaName:
		s, ok := arg.Value.(string)
		if !ok {
			return mismatch()
		}
		h.schemaName = s
	case ArgSerializer:
		s, ok := arg.Value.(Serializer)
		if !ok {
			return mismatch()
		}
		h.serializer = s
	case ArgSequences:
		s, ok := arg.Value.(SequenceAllocator)
		if !ok {
			return mismatch()
		}
		h.sequences = s
	case ArgHierarchy:
		hy, ok := arg.Value.(*Hierarchy)
		if !ok {
			return mismatch()
		}
		h.hierarchy = hy
	default:
		return mismatch()
	}
	return nil
}

// Mapping returns the originating mapping descriptor.
func (h *Handler[T]) Mapping() *MappingDescriptor { return h.mapping }

// DocumentType returns the specialized document type.
func (h *Handler[T]) DocumentType() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Assign returns the document's identity, generating one through the mapping's
// strategy when the identity member is zero. The flag reports whether a new
// identity was produced.
func (h *Handler[T]) Assign(ctx context.Context, doc *T) (any, bool, error) {
	if doc == nil {
		return nil, false, fmt.Errorf("assign identity: nil document")
	}
	slot := h.identitySlot(doc)
	if !slot.IsZero() {
		return slot.Interface(), false, nil
	}
	id, err := h.mapping.strategy.Generate(ctx, h.env, doc)
	if err != nil {
		return nil, false, err
	}
	if err := writeIdentity(slot, id); err != nil {
		return nil, false, fmt.Errorf("assign identity for %s: %w", h.mapping.DisplayName(), err)
	}
	return slot.Interface(), true, nil
}

// AssignExplicit writes the supplied identity into the document, converting
// when the value is type-compatible with the identity member.
func (h *Handler[T]) AssignExplicit(doc *T, id any) error {
	if doc == nil {
		return fmt.Errorf("assign identity: nil document")
	}
	if err := writeIdentity(h.identitySlot(doc), id); err != nil {
		return fmt.Errorf("assign identity for %s: %w", h.mapping.DisplayName(), err)
	}
	return nil
}

// Retrieve returns the document's current identity without mutation.
func (h *Handler[T]) Retrieve(doc *T) (any, error) {
	if doc == nil {
		return nil, fmt.Errorf("retrieve identity: nil document")
	}
	return h.identitySlot(doc).Interface(), nil
}

// AssignIdentity is the opaque form of Assign.
func (h *Handler[T]) AssignIdentity(ctx context.Context, doc any) (any, bool, error) {
	typed, err := h.downcast(doc)
	if err != nil {
		return nil, false, err
	}
	return h.Assign(ctx, typed)
}

// SetIdentity is the opaque form of AssignExplicit.
func (h *Handler[T]) SetIdentity(doc any, id any) error {
	typed, err := h.downcast(doc)
	if err != nil {
		return err
	}
	return h.AssignExplicit(typed, id)
}

// Identity returns the identity of an opaque document value, which must be of
// the specialized document type.
func (h *Handler[T]) Identity(doc any) (any, error) {
	switch v := doc.(type) {
	case *T:
		return h.Retrieve(v)
	case T:
		return h.Retrieve(&v)
	default:
		return nil, fmt.Errorf("document is %T, handler is specialized for %s", doc, h.DocumentType())
	}
}

// AppendUpsert stages the document's insert-or-update parameters into batch.
// The identity must already be assigned.
func (h *Handler[T]) AppendUpsert(batch *Batch, doc any) error {
	typed, err := h.downcast(doc)
	if err != nil {
		return err
	}
	slot := h.identitySlot(typed)
	if slot.IsZero() {
		return fmt.Errorf("upsert %s: identity not assigned", h.mapping.DisplayName())
	}
	payload, err := h.serializer.Marshal(typed)
	if err != nil {
		return fmt.Errorf("marshal %s document: %w", h.mapping.DisplayName(), err)
	}
	op := Op{
		Table: h.mapping.TableName(),
		SQL:   h.mapping.upsert.SQL(h.schemaName, h.mapping.TableName(), h.hierarchy != nil),
		Args:  []any{slot.Interface(), payload},
	}
	if h.hierarchy != nil {
		op.Args = append(op.Args, h.hierarchy.AliasFor(h.mapping.DisplayName()))
	}
	batch.Append(op)
	return nil
}

// Hydrate builds a document from one result row of shape (id, doc) or, for
// hierarchies, (id, doc, doc_type).
func (h *Handler[T]) Hydrate(scan RowScanner) (any, error) {
	doc := new(T)
	var payload []byte
	dest := []any{h.identitySlot(doc).Addr().Interface(), &payload}
	var alias string
	if h.hierarchy != nil {
		dest = append(dest, &alias)
	}
	if err := scan.Scan(dest...); err != nil {
		return nil, fmt.Errorf("scan %s row: %w", h.mapping.DisplayName(), err)
	}
	if len(payload) > 0 {
		if err := h.serializer.Unmarshal(payload, doc); err != nil {
			return nil, fmt.Errorf("decode %s document: %w", h.mapping.DisplayName(), err)
		}
	}
	return doc, nil
}

func (h *Handler[T]) downcast(doc any) (*T, error) {
	typed, ok := doc.(*T)
	if !ok {
		return nil, fmt.Errorf("document is %T, handler is specialized for *%s", doc, h.DocumentType())
	}
	if typed == nil {
		return nil, fmt.Errorf("nil document for %s", h.mapping.DisplayName())
	}
	return typed, nil
}

func (h *Handler[T]) identitySlot(doc *T) reflect.Value {
	return reflect.ValueOf(doc).Elem().FieldByIndex(h.mapping.identity.index)
}

// writeIdentity stores id into the identity slot, applying a type-compatible
// conversion when needed.
func writeIdentity(slot reflect.Value, id any) error {
	v := reflect.ValueOf(id)
	if !v.IsValid() {
		return fmt.Errorf("identity value is nil")
	}
	if v.Type() != slot.Type() {
		if !v.Type().ConvertibleTo(slot.Type()) {
			return fmt.Errorf("identity value %T is not convertible to %s", id, slot.Type())
		}
		v = v.Convert(slot.Type())
	}
	slot.Set(v)
	return nil
}
