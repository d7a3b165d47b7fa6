package domain

// Hierarchy describes a set of document types persisted in one table with a
// discriminator column. Root names the shared table; Aliases maps each
// member type's display name to its stored discriminator value.
type Hierarchy struct {
	Root    string
	Aliases map[string]string
}

// AliasFor returns the discriminator value stored for the given document type
// display name. Unregistered members fall back to the display name itself.
func (h *Hierarchy) AliasFor(displayName string) string {
	if h == nil {
		return ""
	}
	if alias, ok := h.Aliases[displayName]; ok {
		return alias
	}
	return displayName
}
