package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// StrategyKind selects an identity-assignment policy for a mapping.
type StrategyKind string

const (
	StrategyUUID     StrategyKind = "uuid"     // generated v4 UUID
	StrategyAssigned StrategyKind = "assigned" // identity supplied by the caller
	StrategySequence StrategyKind = "sequence" // backed by a database sequence
	StrategyHash     StrategyKind = "hash"     // deterministic content hash
)

// IdentityMember describes the identity field of a document type.
type IdentityMember struct {
	Name   string
	GoType reflect.Type
	index  []int
}

// SequenceAllocator hands out monotonically increasing identity values for an
// entity. Implementations live in the session layer.
type SequenceAllocator interface {
	Next(ctx context.Context, entity string) (int64, error)
}

// StrategyEnv carries the runtime collaborators an identity strategy may need.
type StrategyEnv struct {
	Sequences SequenceAllocator
	Entity    string
}

// IdentityStrategy produces a new identity value for a document that lacks
// one. The variant is selected once per mapping; no further branching happens
// per call.
type IdentityStrategy interface {
	Kind() StrategyKind
	Generate(ctx context.Context, env StrategyEnv, doc any) (any, error)
}

// StrategyFor returns the strategy variant for kind, shaped to the identity
// member's Go type.
func StrategyFor(kind StrategyKind, member IdentityMember) (IdentityStrategy, error) {
	switch kind {
	case StrategyUUID:
		return uuidStrategy{member: member}, nil
	case StrategyAssigned:
		return assignedStrategy{}, nil
	case StrategySequence:
		return sequenceStrategy{}, nil
	case StrategyHash:
		return hashStrategy{member: member}, nil
	default:
		return nil, fmt.Errorf("unknown identity strategy %q", kind)
	}
}

type uuidStrategy struct {
	member IdentityMember
}

func (uuidStrategy) Kind() StrategyKind { return StrategyUUID }

func (s uuidStrategy) Generate(context.Context, StrategyEnv, any) (any, error) {
	id := uuid.New()
	if s.member.GoType != nil && s.member.GoType.Kind() == reflect.String {
		return id.String(), nil
	}
	return id, nil
}

type assignedStrategy struct{}

func (assignedStrategy) Kind() StrategyKind { return StrategyAssigned }

func (assignedStrategy) Generate(context.Context, StrategyEnv, any) (any, error) {
	return nil, ErrIdentityRequired
}

type sequenceStrategy struct{}

func (sequenceStrategy) Kind() StrategyKind { return StrategySequence }

func (sequenceStrategy) Generate(ctx context.Context, env StrategyEnv, _ any) (any, error) {
	if env.Sequences == nil {
		return nil, fmt.Errorf("sequence strategy for %s: no sequence allocator in session", env.Entity)
	}
	next, err := env.Sequences.Next(ctx, env.Entity)
	if err != nil {
		return nil, fmt.Errorf("allocate sequence for %s: %w", env.Entity, err)
	}
	return next, nil
}

type hashStrategy struct {
	member IdentityMember
}

func (hashStrategy) Kind() StrategyKind { return StrategyHash }

// Generate derives the identity from the document content, so equal documents
// always hash to the same identity.
func (s hashStrategy) Generate(_ context.Context, _ StrategyEnv, doc any) (any, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("hash document: %w", err)
	}
	sum := xxhash.Sum64(payload)
	if s.member.GoType != nil && s.member.GoType.Kind() == reflect.String {
		return fmt.Sprintf("%016x", sum), nil
	}
	return int64(sum), nil //nolint:gosec // identity space intentionally wraps
}
