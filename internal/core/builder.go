// Package core orchestrates the storage-handler build pipeline: synthesis,
// aggregation, building, resolution and activation run in strict sequence,
// and any failure aborts the whole batch before a single handler escapes.
package core

import (
	"context"
	"fmt"
	"time"

	"docstore/internal/activate"
	"docstore/internal/compile"
	"docstore/internal/resolve"
	"docstore/internal/session"
	"docstore/internal/synthesis"
	"docstore/pkg/domain"
)

// BatchBuilder builds every storage handler for one mapping batch. Builders
// hold no state across calls; independent batches may build concurrently.
type BatchBuilder struct {
	session *session.Context
	logger  Logger
	pkgName string
}

// BuilderOption adjusts batch builder construction.
type BuilderOption func(*BatchBuilder)

// WithLogger overrides the builder's logger.
func WithLogger(l Logger) BuilderOption {
	return func(b *BatchBuilder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithPackageName overrides the aggregated unit's package name.
func WithPackageName(name string) BuilderOption {
	return func(b *BatchBuilder) { b.pkgName = name }
}

// NewBatchBuilder wires a builder against the given session context.
func NewBatchBuilder(sess *session.Context, opts ...BuilderOption) *BatchBuilder {
	b := &BatchBuilder{
		session: sess,
		logger:  noopLogger{},
		pkgName: synthesis.DefaultPackageName,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BuildBatch produces one ready storage handler per mapping. There is no
// partial-success mode: every mapping builds into one unit, so the first
// failure abandons the batch and no handlers are returned.
func (b *BatchBuilder) BuildBatch(ctx context.Context, mappings []*domain.MappingDescriptor) ([]domain.StorageHandler, error) {
	start := time.Now()
	handlers, err := b.buildBatch(ctx, mappings)
	buildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		buildsTotal.WithLabelValues("failure").Inc()
		b.logger.Error("storage batch build failed", "mappings", len(mappings), "error", err)
		return nil, err
	}
	buildsTotal.WithLabelValues("success").Inc()
	handlersBuilt.Add(float64(len(handlers)))
	b.logger.Info("storage batch built", "handlers", len(handlers), "duration", time.Since(start))
	return handlers, nil
}

func (b *BatchBuilder) buildBatch(ctx context.Context, mappings []*domain.MappingDescriptor) ([]domain.StorageHandler, error) {
	unit, err := synthesis.Aggregate(mappings, b.pkgName)
	if err != nil {
		return nil, err
	}
	b.logger.Debug("synthesized unit", "file", unit.FileName, "definitions", len(unit.Definitions))

	builder := compile.NewBuilder(documentPackages(mappings)...)
	out, err := builder.Build(unit)
	if err != nil {
		return nil, err
	}

	resolved, err := resolve.Resolve(out)
	if err != nil {
		return nil, err
	}

	handlers, err := activate.Activate(ctx, resolved, unit, b.session)
	if err != nil {
		return nil, err
	}
	if len(handlers) != len(mappings) {
		return nil, fmt.Errorf("built %d handlers for %d mappings", len(handlers), len(mappings))
	}
	return handlers, nil
}

// documentPackages returns the distinct declaring packages of the mapped
// document types, each of which must be resolvable during the build.
func documentPackages(mappings []*domain.MappingDescriptor) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range mappings {
		p := m.PackagePath()
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
