// Package domain holds the contracts of the document storage layer: mapping
// descriptors, identity strategies, storage arguments, the storage handler
// capability set, and the error taxonomy of the build pipeline.
package domain

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
)

// Constructor activates one specialized storage handler from its resolved
// ordered argument list. Every mapping registers exactly one.
type Constructor func(ctx context.Context, args ResolvedArguments) (StorageHandler, error)

// MappingDescriptor describes how one document type maps to identity, storage
// arguments and hierarchy. Descriptors are immutable once handed to the batch
// builder.
type MappingDescriptor struct {
	docType     reflect.Type
	pkgPath     string
	displayName string
	tableName   string
	identity    IdentityMember
	strategy    IdentityStrategy
	hierarchy   *Hierarchy
	upsert      UpsertSource
	ctors       []Constructor
}

// MappingOption adjusts descriptor construction.
type MappingOption func(*mappingConfig)

type mappingConfig struct {
	identityName string
	strategy     StrategyKind
	hasStrategy  bool
	tableName    string
	hierarchy    *Hierarchy
	upsert       UpsertSource
}

// WithIdentityMember selects the identity field by name (default "ID").
func WithIdentityMember(name string) MappingOption {
	return func(c *mappingConfig) { c.identityName = name }
}

// WithStrategy overrides the identity-assignment strategy.
func WithStrategy(kind StrategyKind) MappingOption {
	return func(c *mappingConfig) { c.strategy = kind; c.hasStrategy = true }
}

// WithTable overrides the derived table name.
func WithTable(name string) MappingOption {
	return func(c *mappingConfig) { c.tableName = name }
}

// WithHierarchy marks the mapping as part of a persisted type hierarchy.
func WithHierarchy(h *Hierarchy) MappingOption {
	return func(c *mappingConfig) { c.hierarchy = h }
}

// WithUpsertSource overrides the upsert statement/method source.
func WithUpsertSource(u UpsertSource) MappingOption {
	return func(c *mappingConfig) { c.upsert = u }
}

// Define builds the mapping descriptor for document type T and registers its
// sole handler constructor. T must be a struct with an addressable identity
// field.
func Define[T any](opts ...MappingOption) (*MappingDescriptor, error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Struct {
		return nil, &PreconditionError{Mapping: t.String(), Detail: "document type must be a struct"}
	}

	m, err := describe(t.PkgPath(), t.Name(), t, opts)
	if err != nil {
		return nil, err
	}
	m.ctors = append(m.ctors, func(_ context.Context, args ResolvedArguments) (StorageHandler, error) {
		return NewHandler[T](m, args)
	})
	return m, nil
}

// DefineNamed builds a descriptor from names alone, without a live Go type.
// Such descriptors drive ahead-of-time synthesis; they carry no constructor
// and cannot be activated.
func DefineNamed(pkgPath, displayName string, opts ...MappingOption) (*MappingDescriptor, error) {
	if displayName == "" {
		return nil, &PreconditionError{Mapping: pkgPath, Detail: "document type name is required"}
	}
	return describe(pkgPath, displayName, nil, opts)
}

func describe(pkgPath, displayName string, t reflect.Type, opts []MappingOption) (*MappingDescriptor, error) {
	cfg := mappingConfig{identityName: "ID"}
	for _, opt := range opts {
		opt(&cfg)
	}

	member := IdentityMember{Name: cfg.identityName}
	if t != nil {
		field, ok := t.FieldByName(cfg.identityName)
		if !ok {
			return nil, &PreconditionError{Mapping: displayName, Detail: fmt.Sprintf("identity member %s not found", cfg.identityName)}
		}
		if field.PkgPath != "" {
			// reflect cannot write unexported fields; fail here instead of
			// panicking on the first assignment.
			return nil, &PreconditionError{Mapping: displayName, Detail: fmt.Sprintf("identity member %s is not exported", cfg.identityName)}
		}
		member.GoType = field.Type
		member.index = field.Index
	}

	kind := cfg.strategy
	if !cfg.hasStrategy {
		kind = defaultStrategy(member.GoType)
	}
	strategy, err := StrategyFor(kind, member)
	if err != nil {
		return nil, &PreconditionError{Mapping: displayName, Detail: err.Error()}
	}

	table := cfg.tableName
	if table == "" {
		table = strcase.ToSnake(SanitizeName(displayName))
	}
	if cfg.hierarchy != nil && cfg.hierarchy.Root != "" {
		table = cfg.hierarchy.Root
	}

	upsert := cfg.upsert
	if upsert == nil {
		upsert = DefaultUpsert{}
	}

	return &MappingDescriptor{
		docType:     t,
		pkgPath:     pkgPath,
		displayName: displayName,
		tableName:   table,
		identity:    member,
		strategy:    strategy,
		hierarchy:   cfg.hierarchy,
		upsert:      upsert,
	}, nil
}

func defaultStrategy(memberType reflect.Type) StrategyKind {
	if memberType == nil {
		return StrategyUUID
	}
	switch memberType.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		return StrategySequence
	default:
		return StrategyUUID
	}
}

// DocumentType returns the mapped Go type, or nil for name-only descriptors.
func (m *MappingDescriptor) DocumentType() reflect.Type { return m.docType }

// PackagePath returns the document type's declaring package path.
func (m *MappingDescriptor) PackagePath() string { return m.pkgPath }

// DisplayName returns the document type's display name, generic brackets
// included.
func (m *MappingDescriptor) DisplayName() string { return m.displayName }

// TableName returns the backing table for documents of this mapping.
func (m *MappingDescriptor) TableName() string { return m.tableName }

// Identity returns the identity member descriptor.
func (m *MappingDescriptor) Identity() IdentityMember { return m.identity }

// Strategy returns the selected identity-assignment strategy.
func (m *MappingDescriptor) Strategy() IdentityStrategy { return m.strategy }

// Hierarchy returns the hierarchy metadata, or nil for flat mappings.
func (m *MappingDescriptor) Hierarchy() *Hierarchy { return m.hierarchy }

// Upsert returns the upsert statement/method source.
func (m *MappingDescriptor) Upsert() UpsertSource { return m.upsert }

// Reference returns the canonical document type identity used to match built
// storage types back to their descriptor.
func (m *MappingDescriptor) Reference() string {
	if m.pkgPath == "" {
		return m.displayName
	}
	return m.pkgPath + "." + m.displayName
}

// Constructors returns the registered handler constructors. Exactly one is
// expected at activation time.
func (m *MappingDescriptor) Constructors() []Constructor { return m.ctors }

// RegisterConstructor adds a handler constructor. It is part of descriptor
// wiring and must not be called after the descriptor enters a build batch.
func (m *MappingDescriptor) RegisterConstructor(c Constructor) { m.ctors = append(m.ctors, c) }

// SanitizeName strips the characters a display name may carry that are not
// valid in a synthesized identifier: generic brackets, package qualifiers and
// pointer markers. Box[Widget] becomes BoxWidget; qualified type arguments
// keep only their base name.
func SanitizeName(display string) string {
	var out strings.Builder
	var token strings.Builder
	for _, r := range display {
		switch r {
		case '.', '/':
			// Qualifier boundary: everything accumulated so far was a
			// package path segment, not part of the type name.
			token.Reset()
		case '[', ']', ',', ' ', '*', '-':
			out.WriteString(token.String())
			token.Reset()
		default:
			token.WriteRune(r)
		}
	}
	out.WriteString(token.String())
	return out.String()
}
