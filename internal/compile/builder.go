// Package compile turns an aggregated synthesis unit into a verified set of
// concrete storage type declarations. A failure anywhere degrades the whole
// unit: all mappings build together, so diagnostics abort the entire batch.
package compile

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/scanner"
	"go/token"
	"sort"
	"strconv"
	"strings"

	"docstore/internal/synthesis"
	"docstore/pkg/domain"
)

// DefaultReferences is the fixed set of type libraries every build declares:
// the persistence layer itself, the database driver, the data-reader layer and
// the cancellation primitives. Document packages are added per batch.
func DefaultReferences() []string {
	return []string{
		"docstore",
		"github.com/jackc/pgx/v5",
		"github.com/jmoiron/sqlx",
	}
}

// TypeDecl is one concrete type declared by a built unit.
type TypeDecl struct {
	Name string
	Spec *ast.TypeSpec
}

// Output is the result of building one unit. It is owned by the builder for
// the duration of the build call; callers retain only the type declarations.
type Output struct {
	Fset    *token.FileSet
	File    *ast.File
	Types   []TypeDecl
	Aliases map[string]string // import alias -> path
	Unit    *synthesis.Unit
}

// Builder verifies aggregated units against a declared reference set.
type Builder struct {
	references []string
}

// NewBuilder creates a builder declaring the given external references on top
// of the default set.
func NewBuilder(extra ...string) *Builder {
	refs := append(DefaultReferences(), extra...)
	sort.Strings(refs)
	return &Builder{references: refs}
}

// Build parses and verifies the unit. On any diagnostic it returns a
// BuildError carrying every finding verbatim; no partial output is produced.
func (b *Builder) Build(unit *synthesis.Unit) (*Output, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, unit.FileName, unit.Source, parser.AllErrors|parser.ParseComments)
	if err != nil {
		return nil, &domain.BuildError{Unit: unit.FileName, Diagnostics: parseDiagnostics(err)}
	}

	var diags []domain.Diagnostic
	aliases := map[string]string{}
	for _, imp := range file.Imports {
		impPath, _ := strconv.Unquote(imp.Path.Value)
		alias := importAlias(imp, impPath)
		aliases[alias] = impPath
		if !b.covered(impPath) {
			diags = append(diags, domain.Diagnostic{
				Message:  fmt.Sprintf("import %q is not covered by a declared reference", impPath),
				Location: fset.Position(imp.Pos()).String(),
			})
		}
	}

	types := collectTypes(file)
	diags = append(diags, collisionDiagnostics(fset, unit, types)...)

	if len(diags) > 0 {
		return nil, &domain.BuildError{Unit: unit.FileName, Diagnostics: diags}
	}
	return &Output{Fset: fset, File: file, Types: types, Aliases: aliases, Unit: unit}, nil
}

func parseDiagnostics(err error) []domain.Diagnostic {
	list, ok := err.(scanner.ErrorList)
	if !ok {
		return []domain.Diagnostic{{Message: err.Error()}}
	}
	diags := make([]domain.Diagnostic, 0, len(list))
	for _, e := range list {
		diags = append(diags, domain.Diagnostic{Message: e.Msg, Location: e.Pos.String()})
	}
	return diags
}

// covered reports whether an import path is resolvable: prefixed by a
// declared reference, or a single-segment dotless path ("context", "fmt"),
// which is all the standard library the synthesizer ever emits. Deeper
// dotless paths must be declared so an unknown module cannot slip through as
// pseudo-stdlib.
func (b *Builder) covered(impPath string) bool {
	for _, ref := range b.references {
		if impPath == ref || strings.HasPrefix(impPath, ref+"/") {
			return true
		}
	}
	return !strings.Contains(impPath, "/") && !strings.Contains(impPath, ".")
}

func importAlias(imp *ast.ImportSpec, impPath string) string {
	if imp.Name != nil {
		return imp.Name.Name
	}
	if idx := strings.LastIndexByte(impPath, '/'); idx >= 0 {
		return impPath[idx+1:]
	}
	return impPath
}

func collectTypes(file *ast.File) []TypeDecl {
	var out []TypeDecl
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts, ok := spec.(*ast.TypeSpec)
			if !ok {
				continue
			}
			if _, isStruct := ts.Type.(*ast.StructType); !isStruct {
				continue
			}
			out = append(out, TypeDecl{Name: ts.Name.Name, Spec: ts})
		}
	}
	return out
}

// collisionDiagnostics reports sanitized-name collisions: two document types
// whose display names reduce to the same synthesized identifier.
func collisionDiagnostics(fset *token.FileSet, unit *synthesis.Unit, types []TypeDecl) []domain.Diagnostic {
	byName := map[string][]string{}
	for _, def := range unit.Definitions {
		byName[def.TypeName] = append(byName[def.TypeName], def.Mapping.Reference())
	}

	var diags []domain.Diagnostic
	seen := map[string]token.Pos{}
	for _, t := range types {
		if prev, ok := seen[t.Name]; ok {
			msg := fmt.Sprintf("duplicate declaration of %s", t.Name)
			if owners := byName[t.Name]; len(owners) > 1 {
				msg = fmt.Sprintf("document types %s collide on synthesized name %s", strings.Join(owners, " and "), t.Name)
			}
			diags = append(diags, domain.Diagnostic{
				Message:  msg,
				Location: fset.Position(prev).String(),
			})
			continue
		}
		seen[t.Name] = t.Spec.Pos()
	}
	return diags
}
