package core

import (
	"context"
	"errors"
	"testing"

	"docstore/internal/session"
	"docstore/pkg/domain"
)

type article struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type order struct {
	ID    int64 `json:"id"`
	Total int   `json:"total"`
}

type captureLogger struct {
	msgs []string
}

func (c *captureLogger) Debug(msg string, _ ...any) { c.msgs = append(c.msgs, msg) }
func (c *captureLogger) Info(msg string, _ ...any)  { c.msgs = append(c.msgs, msg) }
func (c *captureLogger) Warn(msg string, _ ...any)  { c.msgs = append(c.msgs, msg) }
func (c *captureLogger) Error(msg string, _ ...any) { c.msgs = append(c.msgs, msg) }

func (c *captureLogger) has(msg string) bool {
	for _, m := range c.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func defineBatch(t *testing.T) []*domain.MappingDescriptor {
	t.Helper()
	articles, err := domain.Define[article]()
	if err != nil {
		t.Fatalf("define article: %v", err)
	}
	orders, err := domain.Define[order]()
	if err != nil {
		t.Fatalf("define order: %v", err)
	}
	return []*domain.MappingDescriptor{articles, orders}
}

func TestBuildBatchProducesOneHandlerPerMapping(t *testing.T) {
	logger := &captureLogger{}
	b := NewBatchBuilder(session.NewMemory(), WithLogger(logger))

	handlers, err := b.BuildBatch(context.Background(), defineBatch(t))
	if err != nil {
		t.Fatalf("build batch: %v", err)
	}
	if len(handlers) != 2 {
		t.Fatalf("built %d handlers, want 2", len(handlers))
	}

	set := NewHandlerSet(handlers)
	if _, ok := set.For(&article{}); !ok {
		t.Fatalf("no handler for article")
	}
	if _, ok := set.For(order{}); !ok {
		t.Fatalf("no handler for order value")
	}
	if !logger.has("storage batch built") {
		t.Fatalf("success not logged: %v", logger.msgs)
	}
}

type brokenUpsert struct{}

func (brokenUpsert) SQL(string, string, bool) string { return "" }

func (brokenUpsert) MethodBody(typeName, _ string) string {
	return "func (s *" + typeName + ") AppendUpsert( {{ not go\n"
}

func TestBuildBatchIsAtomic(t *testing.T) {
	mappings := defineBatch(t)
	broken, err := domain.Define[article](domain.WithUpsertSource(brokenUpsert{}))
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	// One malformed mapping poisons the shared unit.
	mappings = append(mappings[1:], broken)

	logger := &captureLogger{}
	b := NewBatchBuilder(session.NewMemory(), WithLogger(logger))
	handlers, err := b.BuildBatch(context.Background(), mappings)
	if err == nil {
		t.Fatalf("expected batch failure")
	}
	var build *domain.BuildError
	if !errors.As(err, &build) {
		t.Fatalf("err = %T (%v), want *BuildError", err, err)
	}
	if len(handlers) != 0 {
		t.Fatalf("failed batch leaked %d handlers", len(handlers))
	}
	if !logger.has("storage batch build failed") {
		t.Fatalf("failure not logged: %v", logger.msgs)
	}
}

func TestBuildBatchRejectsEmpty(t *testing.T) {
	b := NewBatchBuilder(session.NewMemory())
	if _, err := b.BuildBatch(context.Background(), nil); err == nil {
		t.Fatalf("expected rejection of an empty batch")
	}
}

func TestHandlerSetFor(t *testing.T) {
	b := NewBatchBuilder(session.NewMemory())
	handlers, err := b.BuildBatch(context.Background(), defineBatch(t))
	if err != nil {
		t.Fatalf("build batch: %v", err)
	}
	set := NewHandlerSet(handlers)
	if set.Len() != 2 {
		t.Fatalf("set size = %d", set.Len())
	}
	if _, ok := set.For(nil); ok {
		t.Fatalf("nil document matched a handler")
	}
	if _, ok := set.For("not a document"); ok {
		t.Fatalf("foreign type matched a handler")
	}
}
