package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"docstore/internal/compile"
	"docstore/internal/synthesis"
	"docstore/pkg/domain"
)

type manifestDoc struct {
	Package  string        `json:"package"`
	Mappings []mappingSpec `json:"mappings"`
}

type mappingSpec struct {
	Package   string         `json:"package"`
	Name      string         `json:"name"`
	Identity  *identitySpec  `json:"identity"`
	Strategy  string         `json:"strategy"`
	Table     string         `json:"table"`
	Hierarchy *hierarchySpec `json:"hierarchy"`
}

type identitySpec struct {
	Member string `json:"member"`
}

type hierarchySpec struct {
	Root    string            `json:"root"`
	Aliases map[string]string `json:"aliases"`
}

func runGenerate(stdout io.Writer, manifestPath, outPath, pkgName string) error {
	doc, err := loadManifest(manifestPath)
	if err != nil {
		return err
	}
	if pkgName == "" {
		pkgName = doc.Package
	}

	mappings, err := descriptors(doc)
	if err != nil {
		return err
	}

	unit, err := synthesis.Aggregate(mappings, pkgName)
	if err != nil {
		return err
	}

	refs := make([]string, 0, len(mappings))
	for _, m := range mappings {
		refs = append(refs, m.PackagePath())
	}
	if _, err := compile.NewBuilder(refs...).Build(unit); err != nil {
		return err
	}

	if err := os.WriteFile(outPath, unit.Source, 0o644); err != nil {
		return fmt.Errorf("write generated unit: %w", err)
	}
	fmt.Fprintf(stdout, "generated %s from %s\n", outPath, manifestPath)
	return nil
}

func loadManifest(path string) (manifestDoc, error) {
	//nolint:gosec // generator intentionally reads a caller-provided manifest path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return manifestDoc{}, fmt.Errorf("read manifest: %w", err)
	}
	var doc manifestDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return manifestDoc{}, fmt.Errorf("parse manifest: %w", err)
	}
	if len(doc.Mappings) == 0 {
		return manifestDoc{}, fmt.Errorf("manifest %s declares no mappings", path)
	}
	return doc, nil
}

func descriptors(doc manifestDoc) ([]*domain.MappingDescriptor, error) {
	out := make([]*domain.MappingDescriptor, 0, len(doc.Mappings))
	for _, spec := range doc.Mappings {
		var opts []domain.MappingOption
		if spec.Identity != nil && spec.Identity.Member != "" {
			opts = append(opts, domain.WithIdentityMember(spec.Identity.Member))
		}
		if spec.Strategy != "" {
			opts = append(opts, domain.WithStrategy(domain.StrategyKind(spec.Strategy)))
		}
		if spec.Table != "" {
			opts = append(opts, domain.WithTable(spec.Table))
		}
		if spec.Hierarchy != nil {
			opts = append(opts, domain.WithHierarchy(&domain.Hierarchy{
				Root:    spec.Hierarchy.Root,
				Aliases: spec.Hierarchy.Aliases,
			}))
		}
		m, err := domain.DefineNamed(spec.Package, spec.Name, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
