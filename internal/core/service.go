package core

import (
	"context"
	"fmt"
	"reflect"

	"docstore/internal/session"
	"docstore/pkg/domain"
)

// HandlerSet indexes activated storage handlers by document type.
type HandlerSet struct {
	byType map[reflect.Type]domain.StorageHandler
}

// NewHandlerSet builds the index. Handler sets are immutable once built.
func NewHandlerSet(handlers []domain.StorageHandler) *HandlerSet {
	byType := make(map[reflect.Type]domain.StorageHandler, len(handlers))
	for _, h := range handlers {
		byType[h.DocumentType()] = h
	}
	return &HandlerSet{byType: byType}
}

// For returns the handler specialized for the document's type. The document
// may be a value or a pointer.
func (s *HandlerSet) For(doc any) (domain.StorageHandler, bool) {
	t := reflect.TypeOf(doc)
	if t == nil {
		return nil, false
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	h, ok := s.byType[t]
	return h, ok
}

// Len reports the number of indexed handlers.
func (s *HandlerSet) Len() int { return len(s.byType) }

// Service exposes document store/load operations over a built handler set.
type Service struct {
	session  *session.Context
	handlers *HandlerSet
	logger   Logger
}

// NewService wires a service over the session and its activated handlers.
func NewService(sess *session.Context, handlers *HandlerSet, opts ...ServiceOption) *Service {
	s := &Service{session: sess, handlers: handlers, logger: noopLogger{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServiceOption adjusts service construction.
type ServiceOption func(*Service)

// WithServiceLogger overrides the service logger.
func WithServiceLogger(l Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store assigns identities where needed, stages one upsert per document and
// applies the whole batch in a single transaction.
func (s *Service) Store(ctx context.Context, docs ...any) error {
	batch := &domain.Batch{}
	for _, doc := range docs {
		h, ok := s.handlers.For(doc)
		if !ok {
			return fmt.Errorf("no storage handler for document type %T", doc)
		}
		id, assigned, err := h.AssignIdentity(ctx, doc)
		if err != nil {
			return err
		}
		if assigned {
			s.logger.Debug("assigned document identity", "type", h.DocumentType().String(), "id", id)
		}
		if err := h.AppendUpsert(batch, doc); err != nil {
			return err
		}
	}
	return s.session.ExecuteBatch(ctx, batch)
}

// Load fetches the document of type T with the given identity.
func Load[T any](ctx context.Context, s *Service, id any) (*T, error) {
	var probe T
	h, ok := s.handlers.For(probe)
	if !ok {
		return nil, fmt.Errorf("no storage handler for document type %T", probe)
	}
	doc, err := s.session.Load(ctx, h, id)
	if err != nil {
		return nil, err
	}
	typed, ok := doc.(*T)
	if !ok {
		return nil, fmt.Errorf("hydrated %T, want *%s", doc, h.DocumentType())
	}
	return typed, nil
}
