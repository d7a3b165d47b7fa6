// Package resolve discovers the concrete storage types a built unit declares
// and determines which document type each one specializes.
package resolve

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/printer"
	"go/token"
	"sort"

	"docstore/internal/compile"
	"docstore/internal/synthesis"
	"docstore/pkg/domain"
)

// capabilitySet lists the methods a concrete storage type must implement.
var capabilitySet = []string{
	"Assign",
	"AssignExplicit",
	"Retrieve",
	"Identity",
	"AppendUpsert",
	"Hydrate",
}

// ResolvedType is one discovered storage type together with the document type
// it specializes.
type ResolvedType struct {
	TypeName string
	DocRef   string
}

// Resolve scans the built unit for concrete types implementing the storage
// capability set. The specialized document type is read from the type's
// identity-assignment assertion, which carries exactly one type argument; a
// candidate without an unambiguous assertion is a resolution error and
// indicates a synthesis/build mismatch.
func Resolve(out *compile.Output) ([]ResolvedType, error) {
	methods := methodSets(out.File)
	assertions := assignerAssertions(out)

	var resolved []ResolvedType
	for _, t := range out.Types {
		if !implementsCapabilitySet(methods[t.Name]) {
			continue
		}
		refs := assertions[t.Name]
		switch len(refs) {
		case 1:
			resolved = append(resolved, ResolvedType{TypeName: t.Name, DocRef: refs[0]})
		case 0:
			return nil, &domain.ResolutionError{TypeName: t.Name, Detail: "no identity-assignment capability declares its document type"}
		default:
			return nil, &domain.ResolutionError{TypeName: t.Name, Detail: fmt.Sprintf("identity-assignment capability is ambiguous (%d document types)", len(refs))}
		}
	}
	sort.Slice(resolved, func(i, j int) bool { return resolved[i].TypeName < resolved[j].TypeName })
	return resolved, nil
}

func implementsCapabilitySet(set map[string]bool) bool {
	for _, name := range capabilitySet {
		if !set[name] {
			return false
		}
	}
	return true
}

// methodSets indexes method names by receiver type name.
func methodSets(file *ast.File) map[string]map[string]bool {
	out := map[string]map[string]bool{}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || len(fn.Recv.List) == 0 {
			continue
		}
		recv := receiverName(fn.Recv.List[0].Type)
		if recv == "" {
			continue
		}
		if out[recv] == nil {
			out[recv] = map[string]bool{}
		}
		out[recv][fn.Name.Name] = true
	}
	return out
}

func receiverName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.StarExpr:
		return receiverName(t.X)
	case *ast.Ident:
		return t.Name
	case *ast.IndexExpr:
		return receiverName(t.X)
	default:
		return ""
	}
}

// assignerAssertions maps each concrete type name to the document type
// arguments of its domain.Assigner compile-time assertions.
func assignerAssertions(out *compile.Output) map[string][]string {
	found := map[string][]string{}
	for _, decl := range out.File.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.VAR {
			continue
		}
		for _, spec := range gen.Specs {
			vs, ok := spec.(*ast.ValueSpec)
			if !ok || len(vs.Names) != 1 || vs.Names[0].Name != "_" || len(vs.Values) != 1 {
				continue
			}
			docRef, ok := assignerArgument(out, vs.Type)
			if !ok {
				continue
			}
			typeName, ok := assertedType(vs.Values[0])
			if !ok {
				continue
			}
			found[typeName] = append(found[typeName], docRef)
		}
	}
	return found
}

// assignerArgument extracts T from a domain.Assigner[T] type expression.
func assignerArgument(out *compile.Output, expr ast.Expr) (string, bool) {
	idx, ok := expr.(*ast.IndexExpr)
	if !ok {
		return "", false
	}
	sel, ok := idx.X.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Assigner" {
		return "", false
	}
	pkg, ok := sel.X.(*ast.Ident)
	if !ok || out.Aliases[pkg.Name] != synthesis.DomainImport {
		return "", false
	}
	return renderExpr(out.Fset, idx.Index), true
}

// assertedType extracts TypeName from a (*TypeName)(nil) assertion value.
func assertedType(expr ast.Expr) (string, bool) {
	call, ok := expr.(*ast.CallExpr)
	if !ok || len(call.Args) != 1 {
		return "", false
	}
	if ident, ok := call.Args[0].(*ast.Ident); !ok || ident.Name != "nil" {
		return "", false
	}
	paren, ok := call.Fun.(*ast.ParenExpr)
	if !ok {
		return "", false
	}
	star, ok := paren.X.(*ast.StarExpr)
	if !ok {
		return "", false
	}
	ident, ok := star.X.(*ast.Ident)
	if !ok {
		return "", false
	}
	return ident.Name, true
}

func renderExpr(fset *token.FileSet, expr ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, expr); err != nil {
		return ""
	}
	return buf.String()
}
