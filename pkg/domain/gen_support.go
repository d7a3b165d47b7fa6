package domain

import (
	"context"
	"fmt"
	"reflect"
)

// AssignValue is the identity-assignment entry point for synthesized storage
// types: it returns the value in slot when present, otherwise generates one
// through the mapping's strategy and stores it.
func AssignValue[ID comparable](ctx context.Context, m *MappingDescriptor, seq SequenceAllocator, doc any, slot *ID) (any, bool, error) {
	var zero ID
	if *slot != zero {
		return *slot, false, nil
	}
	id, err := m.strategy.Generate(ctx, StrategyEnv{Sequences: seq, Entity: m.TableName()}, doc)
	if err != nil {
		return nil, false, err
	}
	typed, err := ConvertIdentity[ID](id)
	if err != nil {
		return nil, false, fmt.Errorf("assign identity for %s: %w", m.DisplayName(), err)
	}
	*slot = typed
	return typed, true, nil
}

// SetValue writes id into slot, converting when the types are compatible.
func SetValue[ID any](slot *ID, id any) error {
	typed, err := ConvertIdentity[ID](id)
	if err != nil {
		return err
	}
	*slot = typed
	return nil
}

// ConvertIdentity applies a type-compatible conversion of id to ID.
func ConvertIdentity[ID any](id any) (ID, error) {
	var out ID
	if typed, ok := id.(ID); ok {
		return typed, nil
	}
	target := reflect.TypeOf(&out).Elem()
	v := reflect.ValueOf(id)
	if !v.IsValid() {
		return out, fmt.Errorf("identity value is nil")
	}
	if !v.Type().ConvertibleTo(target) {
		return out, fmt.Errorf("identity value %T is not convertible to %s", id, target)
	}
	reflect.ValueOf(&out).Elem().Set(v.Convert(target))
	return out, nil
}
