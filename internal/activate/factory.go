// Package activate matches built storage types back to their mapping
// descriptors and instantiates each one with live activation arguments.
package activate

import (
	"context"
	"fmt"

	"docstore/internal/resolve"
	"docstore/internal/synthesis"
	"docstore/pkg/domain"
)

// ArgumentResolver obtains runtime values for storage arguments from the
// ambient schema/session context.
type ArgumentResolver interface {
	ResolveArgument(m *domain.MappingDescriptor, arg domain.StorageArgument) (any, error)
}

// Activate produces one storage handler per resolved type. Each type must
// match exactly one mapping by document type identity, the activation argument
// list must equal the synthesis-time list, and the mapping must register
// exactly one constructor. Any fault aborts the batch; a partially activated
// handler is never returned.
func Activate(ctx context.Context, resolved []resolve.ResolvedType, unit *synthesis.Unit, res ArgumentResolver) ([]domain.StorageHandler, error) {
	claims := map[string]int{}
	for _, r := range resolved {
		claims[r.DocRef]++
	}
	for _, def := range unit.Definitions {
		if n := claims[def.DocRef]; n != 1 {
			return nil, &domain.MappingMismatchError{DocumentType: def.DocRef, Matches: n}
		}
	}

	handlers := make([]domain.StorageHandler, 0, len(resolved))
	for _, r := range resolved {
		def, ok := definitionFor(unit, r.DocRef)
		if !ok {
			return nil, &domain.MappingMismatchError{DocumentType: r.DocRef, Matches: 0}
		}
		h, err := activateOne(ctx, r, def, res)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

func definitionFor(unit *synthesis.Unit, docRef string) (synthesis.Definition, bool) {
	for _, def := range unit.Definitions {
		if def.DocRef == docRef {
			return def, true
		}
	}
	return synthesis.Definition{}, false
}

func activateOne(ctx context.Context, r resolve.ResolvedType, def synthesis.Definition, res ArgumentResolver) (domain.StorageHandler, error) {
	m := def.Mapping

	// The extractor must hand back the exact list synthesis saw; divergence
	// is a defect in the mapping, not a runtime condition.
	want := m.StorageArguments()
	if len(want) != len(def.Arguments) {
		return nil, &domain.PreconditionError{
			Mapping: m.DisplayName(),
			Detail:  fmt.Sprintf("extractor produced %d arguments at activation, %d at synthesis", len(want), len(def.Arguments)),
		}
	}
	args := make(domain.ResolvedArguments, 0, len(want))
	for i, arg := range want {
		if arg != def.Arguments[i] {
			return nil, &domain.PreconditionError{
				Mapping: m.DisplayName(),
				Detail:  fmt.Sprintf("argument %d diverged between synthesis (%s/%s) and activation (%s/%s)", i, def.Arguments[i].Name, def.Arguments[i].Kind, arg.Name, arg.Kind),
			}
		}
		value, err := res.ResolveArgument(m, arg)
		if err != nil {
			return nil, &domain.ActivationError{TypeName: r.TypeName, Err: err}
		}
		args = append(args, domain.ResolvedArgument{Spec: arg, Value: value})
	}

	ctors := m.Constructors()
	switch len(ctors) {
	case 1:
	case 0:
		return nil, &domain.ActivationError{TypeName: r.TypeName, Err: fmt.Errorf("mapping registers no constructor")}
	default:
		return nil, &domain.ActivationError{TypeName: r.TypeName, Err: fmt.Errorf("mapping registers %d constructors, expected exactly one", len(ctors))}
	}

	h, err := ctors[0](ctx, args)
	if err != nil {
		return nil, &domain.ActivationError{TypeName: r.TypeName, Err: err}
	}
	if h == nil {
		return nil, &domain.ActivationError{TypeName: r.TypeName, Err: fmt.Errorf("constructor returned no handler")}
	}
	return h, nil
}
