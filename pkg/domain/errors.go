package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the storage pipeline.
var (
	// ErrIdentityRequired is returned by the assigned identity strategy when a
	// document arrives without an identity value.
	ErrIdentityRequired = errors.New("document identity must be supplied by the caller")
	// ErrDuplicateIdentity reports an upsert that collided on the identity column.
	ErrDuplicateIdentity = errors.New("duplicate document identity")
	// ErrNotFound reports a missing document during a load.
	ErrNotFound = errors.New("document not found")
)

// PreconditionError reports a malformed or inconsistent mapping descriptor.
// It is not recoverable inside the storage pipeline and aborts the batch.
type PreconditionError struct {
	Mapping string
	Detail  string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("mapping %s: %s", e.Mapping, e.Detail)
}

// Diagnostic is a single build finding: the message verbatim plus an opaque
// location reference.
type Diagnostic struct {
	Message  string
	Location string
}

func (d Diagnostic) String() string {
	if d.Location == "" {
		return d.Message
	}
	return d.Location + ": " + d.Message
}

// BuildError reports that the aggregated unit failed to build. It carries
// every diagnostic encountered; the whole batch is abandoned.
type BuildError struct {
	Unit        string
	Diagnostics []Diagnostic
}

func (e *BuildError) Error() string {
	msgs := make([]string, 0, len(e.Diagnostics))
	for _, d := range e.Diagnostics {
		msgs = append(msgs, d.String())
	}
	return fmt.Sprintf("build %s failed with %d diagnostic(s): %s", e.Unit, len(e.Diagnostics), strings.Join(msgs, "; "))
}

// ResolutionError reports a built type that does not expose the identity
// assignment capability unambiguously. It indicates a synthesis defect, not
// bad input.
type ResolutionError struct {
	TypeName string
	Detail   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %s", e.TypeName, e.Detail)
}

// MappingMismatchError reports that zero or multiple built types claim the
// same document type.
type MappingMismatchError struct {
	DocumentType string
	Matches      int
}

func (e *MappingMismatchError) Error() string {
	if e.Matches == 0 {
		return fmt.Sprintf("no built storage type claims document type %s", e.DocumentType)
	}
	return fmt.Sprintf("%d built storage types claim document type %s", e.Matches, e.DocumentType)
}

// ActivationError reports a failed handler activation and names the offending
// type.
type ActivationError struct {
	TypeName string
	Err      error
}

func (e *ActivationError) Error() string {
	return fmt.Sprintf("activate %s: %v", e.TypeName, e.Err)
}

func (e *ActivationError) Unwrap() error { return e.Err }
