// Package synthesis emits the specialized storage-type source for a batch of
// mapping descriptors and aggregates it into one buildable unit.
package synthesis

import (
	"fmt"
	"strings"

	"docstore/pkg/domain"
)

// Definition is the synthesized source for one mapping: the specialized type,
// its constructor, its identity methods and its persistence-batching method.
type Definition struct {
	Mapping   *domain.MappingDescriptor
	TypeName  string
	DocRef    string
	Hierarchy bool
	Arguments []domain.StorageArgument
	Source    string
}

// synthesize emits the full specialized-implementation definition for one
// mapping. Pure text construction; malformed descriptors surface upstream or
// at build time.
func synthesize(m *domain.MappingDescriptor, refs *referenceTable) Definition {
	typeName := domain.SanitizeName(m.DisplayName()) + "Storage"
	docRef := refs.docRef(m)
	args := m.StorageArguments()
	hierarchy := m.Hierarchy() != nil

	var b strings.Builder
	writeTypeDecl(&b, typeName, docRef, args, hierarchy)
	writeConstructor(&b, typeName, args, hierarchy)
	writeIdentityMethods(&b, m, typeName, docRef)
	b.WriteString(m.Upsert().MethodBody(typeName, docRef))
	writeHydrate(&b, m, typeName, docRef, hierarchy)

	return Definition{
		Mapping:   m,
		TypeName:  typeName,
		DocRef:    docRef,
		Hierarchy: hierarchy,
		Arguments: args,
		Source:    b.String(),
	}
}

// baseField reports whether an argument is forwarded to the base shape rather
// than stored as a field on the specialized type.
func baseField(kind domain.ArgumentKind) bool {
	return kind == domain.ArgMapping || kind == domain.ArgHierarchy
}

func writeTypeDecl(b *strings.Builder, typeName, docRef string, args []domain.StorageArgument, hierarchy bool) {
	base := "flatStorage"
	if hierarchy {
		base = "hierarchyStorage"
	}
	fmt.Fprintf(b, "// %s is the storage handler specialized for %s.\n", typeName, docRef)
	fmt.Fprintf(b, "type %s struct {\n", typeName)
	fmt.Fprintf(b, "\t%s\n", base)
	for _, arg := range args {
		if baseField(arg.Kind) {
			continue
		}
		fmt.Fprintf(b, "\t%s %s\n", arg.Name, arg.TypeName)
	}
	b.WriteString("}\n\n")
	fmt.Fprintf(b, "var _ domain.Assigner[%s] = (*%s)(nil)\n\n", docRef, typeName)
}

func writeConstructor(b *strings.Builder, typeName string, args []domain.StorageArgument, hierarchy bool) {
	params := make([]string, 0, len(args))
	for _, arg := range args {
		params = append(params, arg.Name+" "+arg.TypeName)
	}
	fmt.Fprintf(b, "// New%s wires a %s from its resolved storage arguments.\n", typeName, typeName)
	fmt.Fprintf(b, "func New%s(%s) *%s {\n", typeName, strings.Join(params, ", "), typeName)
	fmt.Fprintf(b, "\ts := &%s{\n", typeName)
	for _, arg := range args {
		if baseField(arg.Kind) {
			continue
		}
		fmt.Fprintf(b, "\t\t%s: %s,\n", arg.Name, arg.Name)
	}
	b.WriteString("\t}\n")
	if hierarchy {
		b.WriteString("\ts.hierarchyStorage = newHierarchyStorage(mapping, hierarchy)\n")
	} else {
		b.WriteString("\ts.flatStorage = newFlatStorage(mapping)\n")
	}
	b.WriteString("\treturn s\n}\n\n")
}

func writeIdentityMethods(b *strings.Builder, m *domain.MappingDescriptor, typeName, docRef string) {
	member := m.Identity().Name
	seqRef := "nil"
	if m.Strategy().Kind() == domain.StrategySequence {
		seqRef = "s.sequences"
	}

	fmt.Fprintf(b, "// Assign returns the document identity, generating one when absent.\n")
	fmt.Fprintf(b, "func (s *%s) Assign(ctx context.Context, doc *%s) (any, bool, error) {\n", typeName, docRef)
	fmt.Fprintf(b, "\treturn domain.AssignValue(ctx, s.mapping, %s, doc, &doc.%s)\n}\n\n", seqRef, member)

	fmt.Fprintf(b, "// AssignExplicit unconditionally writes id into the document.\n")
	fmt.Fprintf(b, "func (s *%s) AssignExplicit(doc *%s, id any) error {\n", typeName, docRef)
	fmt.Fprintf(b, "\treturn domain.SetValue(&doc.%s, id)\n}\n\n", member)

	fmt.Fprintf(b, "// Retrieve returns the current document identity without mutation.\n")
	fmt.Fprintf(b, "func (s *%s) Retrieve(doc *%s) (any, error) {\n", typeName, docRef)
	fmt.Fprintf(b, "\treturn doc.%s, nil\n}\n\n", member)

	fmt.Fprintf(b, "// Identity accepts the document as an opaque value.\n")
	fmt.Fprintf(b, "func (s *%s) Identity(doc any) (any, error) {\n", typeName)
	fmt.Fprintf(b, "\ttyped, ok := doc.(*%s)\n", docRef)
	b.WriteString("\tif !ok {\n")
	fmt.Fprintf(b, "\t\treturn nil, fmt.Errorf(\"document is %%T, storage is specialized for *%s\", doc)\n", docRef)
	b.WriteString("\t}\n")
	fmt.Fprintf(b, "\treturn typed.%s, nil\n}\n\n", member)
}

func writeHydrate(b *strings.Builder, m *domain.MappingDescriptor, typeName, docRef string, hierarchy bool) {
	member := m.Identity().Name
	fmt.Fprintf(b, "// Hydrate builds a document instance from one result row.\n")
	fmt.Fprintf(b, "func (s *%s) Hydrate(scan domain.RowScanner) (*%s, error) {\n", typeName, docRef)
	fmt.Fprintf(b, "\tdoc := new(%s)\n", docRef)
	b.WriteString("\tvar payload []byte\n")
	if hierarchy {
		b.WriteString("\tvar docType string\n")
		fmt.Fprintf(b, "\tif err := scan.Scan(&doc.%s, &payload, &docType); err != nil {\n", member)
	} else {
		fmt.Fprintf(b, "\tif err := scan.Scan(&doc.%s, &payload); err != nil {\n", member)
	}
	b.WriteString("\t\treturn nil, err\n\t}\n")
	b.WriteString("\tif err := s.serializer.Unmarshal(payload, doc); err != nil {\n\t\treturn nil, err\n\t}\n")
	b.WriteString("\treturn doc, nil\n}\n\n")
}
