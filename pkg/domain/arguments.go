package domain

// ArgumentKind is the resolution rule for a storage argument: it names which
// part of the ambient schema/session context supplies the runtime value.
type ArgumentKind string

const (
	ArgMapping    ArgumentKind = "mapping"    // the originating mapping descriptor
	ArgSchemaName ArgumentKind = "schema"     // database schema name
	ArgSerializer ArgumentKind = "serializer" // document serializer
	ArgSequences  ArgumentKind = "sequences"  // sequence allocator
	ArgHierarchy  ArgumentKind = "hierarchy"  // hierarchy metadata
)

// StorageArgument is one named, typed constructor argument of a specialized
// storage type. The same ordered list drives both the synthesized constructor
// signature and argument resolution at activation time; the two must never
// diverge.
type StorageArgument struct {
	Name     string
	TypeName string
	Kind     ArgumentKind
}

// ResolvedArgument pairs an argument spec with its live value.
type ResolvedArgument struct {
	Spec  StorageArgument
	Value any
}

// ResolvedArguments is the ordered activation argument list for one handler.
type ResolvedArguments []ResolvedArgument

// Value returns the resolved value for the named argument.
func (ra ResolvedArguments) Value(name string) (any, bool) {
	for _, a := range ra {
		if a.Spec.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}

// StorageArguments returns the ordered argument list a specialized storage
// type for this mapping requires. The order is a function of the mapping
// alone, so extraction at synthesis time and at activation time always agree.
func (m *MappingDescriptor) StorageArguments() []StorageArgument {
	args := []StorageArgument{
		{Name: "mapping", TypeName: "*domain.MappingDescriptor", Kind: ArgMapping},
		{Name: "schemaName", TypeName: "string", Kind: ArgSchemaName},
		{Name: "serializer", TypeName: "domain.Serializer", Kind: ArgSerializer},
	}
	if m.strategy.Kind() == StrategySequence {
		args = append(args, StorageArgument{Name: "sequences", TypeName: "domain.SequenceAllocator", Kind: ArgSequences})
	}
	if m.hierarchy != nil {
		args = append(args, StorageArgument{Name: "hierarchy", TypeName: "*domain.Hierarchy", Kind: ArgHierarchy})
	}
	return args
}
