package synthesis

import (
	"fmt"
	"go/format"
	"path"
	"sort"
	"strconv"
	"strings"

	"docstore/pkg/domain"
)

// DefaultPackageName is the package the aggregated unit is emitted into.
const DefaultPackageName = "storagegen"

// DomainImport is the persistence layer's own package, always present in the
// aggregated unit's import set.
const DomainImport = "docstore/pkg/domain"

// Unit is the combined buildable representation of all synthesized
// definitions in one batch, plus the closed set of imports they require. It
// lives for one build call and is discarded once the builder consumes it.
type Unit struct {
	FileName    string
	PackageName string
	Imports     []string
	Definitions []Definition
	Source      []byte
}

// Aggregate synthesizes every mapping in the batch and combines the results
// into one compilable unit. Output is deterministic: definitions are ordered
// by synthesized name and the import set is de-duplicated and sorted, so the
// same mapping set always yields the same unit regardless of input order.
func Aggregate(mappings []*domain.MappingDescriptor, pkgName string) (*Unit, error) {
	if len(mappings) == 0 {
		return nil, fmt.Errorf("aggregate: no mappings in batch")
	}
	if pkgName == "" {
		pkgName = DefaultPackageName
	}

	ordered := make([]*domain.MappingDescriptor, len(mappings))
	copy(ordered, mappings)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Reference() < ordered[j].Reference()
	})

	refs := newReferenceTable()
	defs := make([]Definition, 0, len(ordered))
	for _, m := range ordered {
		defs = append(defs, synthesize(m, refs))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by docstore/internal/synthesis. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "// Package %s holds the specialized storage handlers for one build batch.\n", pkgName)
	fmt.Fprintf(&b, "package %s\n\n", pkgName)
	writeImports(&b, refs)
	writeBaseShapes(&b)
	for _, def := range defs {
		b.WriteString(def.Source)
	}

	source := []byte(b.String())
	if formatted, err := format.Source(source); err == nil {
		source = formatted
	}
	// A formatting failure is left for the builder, which reports every
	// diagnostic for the unformatted unit verbatim.

	return &Unit{
		FileName:    pkgName + "_storage.go",
		PackageName: pkgName,
		Imports:     refs.paths(),
		Definitions: defs,
		Source:      source,
	}, nil
}

func writeImports(b *strings.Builder, refs *referenceTable) {
	b.WriteString("import (\n")
	b.WriteString("\t\"context\"\n")
	b.WriteString("\t\"fmt\"\n\n")
	for _, p := range refs.paths() {
		alias := refs.alias(p)
		if alias == path.Base(p) {
			fmt.Fprintf(b, "\t%q\n", p)
		} else {
			fmt.Fprintf(b, "\t%s %q\n", alias, p)
		}
	}
	b.WriteString(")\n\n")
}

func writeBaseShapes(b *strings.Builder) {
	b.WriteString(`// flatStorage is the base shape for single-type document mappings.
type flatStorage struct {
	mapping *domain.MappingDescriptor
}

func newFlatStorage(mapping *domain.MappingDescriptor) flatStorage {
	return flatStorage{mapping: mapping}
}

func (b flatStorage) upsertOp(schema string, id any, payload []byte) domain.Op {
	return domain.Op{
		Table: b.mapping.TableName(),
		SQL:   b.mapping.Upsert().SQL(schema, b.mapping.TableName(), false),
		Args:  []any{id, payload},
	}
}

// hierarchyStorage is the base shape for mappings persisted as part of a type
// hierarchy; it carries the hierarchy metadata alongside the mapping.
type hierarchyStorage struct {
	mapping   *domain.MappingDescriptor
	hierarchy *domain.Hierarchy
}

func newHierarchyStorage(mapping *domain.MappingDescriptor, hierarchy *domain.Hierarchy) hierarchyStorage {
	return hierarchyStorage{mapping: mapping, hierarchy: hierarchy}
}

func (b hierarchyStorage) upsertOp(schema string, id any, payload []byte) domain.Op {
	return domain.Op{
		Table: b.mapping.TableName(),
		SQL:   b.mapping.Upsert().SQL(schema, b.mapping.TableName(), true),
		Args:  []any{id, payload, b.hierarchy.AliasFor(b.mapping.DisplayName())},
	}
}

`)
}

// referenceTable assigns stable import aliases for the document packages a
// unit references.
type referenceTable struct {
	aliases map[string]string
	taken   map[string]bool
}

func newReferenceTable() *referenceTable {
	r := &referenceTable{aliases: map[string]string{}, taken: map[string]bool{}}
	r.aliases[DomainImport] = "domain"
	r.taken["domain"] = true
	return r
}

func (r *referenceTable) alias(importPath string) string {
	if alias, ok := r.aliases[importPath]; ok {
		return alias
	}
	base := path.Base(importPath)
	alias := base
	for n := 2; r.taken[alias]; n++ {
		alias = base + strconv.Itoa(n)
	}
	r.aliases[importPath] = alias
	r.taken[alias] = true
	return alias
}

// paths returns the import set, de-duplicated and lexicographically sorted.
func (r *referenceTable) paths() []string {
	out := make([]string, 0, len(r.aliases))
	for p := range r.aliases {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// docRef renders the in-unit reference for a mapping's document type,
// registering the declaring package (and the packages of any generic type
// arguments) in the import set.
func (r *referenceTable) docRef(m *domain.MappingDescriptor) string {
	display := m.DisplayName()
	pkgPath := m.PackagePath()
	if pkgPath == "" {
		return display
	}

	open := strings.IndexByte(display, '[')
	if open < 0 {
		return r.alias(pkgPath) + "." + display
	}

	root := r.alias(pkgPath) + "." + display[:open]
	var out strings.Builder
	out.WriteString(root)
	var token strings.Builder
	flush := func() {
		if token.Len() > 0 {
			out.WriteString(r.qualify(token.String()))
			token.Reset()
		}
	}
	for _, ch := range display[open:] {
		switch ch {
		case '[', ']':
			flush()
			out.WriteRune(ch)
		case ',':
			// go/printer renders type argument lists with a space after the
			// comma; the recorded DocRef must match that form exactly.
			flush()
			out.WriteString(", ")
		case ' ':
			flush()
		default:
			token.WriteRune(ch)
		}
	}
	flush()
	return out.String()
}

// qualify maps a fully qualified type argument (pkg/path.Name) to its aliased
// in-unit form.
func (r *referenceTable) qualify(token string) string {
	idx := strings.LastIndexByte(token, '.')
	if idx < 0 {
		return token
	}
	return r.alias(token[:idx]) + "." + token[idx+1:]
}
