package flexconfig

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors classifying remote load failures. Store implementations
// wrap their SDK errors with one of these so the loader and callers can match
// them with errors.Is.
var (
	// ErrSourceUnavailable reports a network, auth or service failure while
	// talking to the backing store.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrEntryNotFound reports a required entry that does not exist.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrMalformedValue reports an entry whose payload could not be decoded.
	ErrMalformedValue = errors.New("malformed value")
	// ErrVersionStageNotFound reports a requested version stage that does not
	// exist for an entry.
	ErrVersionStageNotFound = errors.New("version stage not found")
)

// SourceError attaches the identity of the originating source (and entry,
// when the failure is entry scoped) to a load failure.
type SourceError struct {
	Source string
	Entry  string
	Err    error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("flexconfig: source %s: %v", e.Source, e.Err)
	}
	return fmt.Sprintf("flexconfig: source %s (%s): %v", e.Source, e.Entry, e.Err)
}

// Unwrap exposes the underlying error to errors.Is and errors.As.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// LoadErrors groups the entry failures an optional source tolerated during a
// single load.
type LoadErrors struct {
	Source  string
	entries []*SourceError
}

// Error implements the error interface.
func (g *LoadErrors) Error() string {
	if g == nil || len(g.entries) == 0 {
		return ""
	}
	parts := make([]string, len(g.entries))
	for i, e := range g.entries {
		parts[i] = e.Error()
	}
	return "flexconfig: skipped entries: " + strings.Join(parts, "; ")
}

// Entries returns a copy of the recorded entry failures.
func (g *LoadErrors) Entries() []*SourceError {
	if g == nil {
		return nil
	}
	out := make([]*SourceError, len(g.entries))
	copy(out, g.entries)
	return out
}

// Has reports whether any failure was recorded.
func (g *LoadErrors) Has() bool {
	return g != nil && len(g.entries) > 0
}

// Unwrap exposes the recorded failures to errors.Is and errors.As.
func (g *LoadErrors) Unwrap() []error {
	if g == nil {
		return nil
	}
	out := make([]error, len(g.entries))
	for i, e := range g.entries {
		out[i] = e
	}
	return out
}

// FieldError aggregates a failed struct field binding.
type FieldError struct {
	FieldPath string
	Key       string
	Err       error
}

// Error implements the error interface.
func (f FieldError) Error() string {
	if f.Key == "" {
		return fmt.Sprintf("%s: %v", f.FieldPath, f.Err)
	}
	return fmt.Sprintf("%s (%s): %v", f.FieldPath, f.Key, f.Err)
}

// Unwrap exposes the underlying error.
func (f FieldError) Unwrap() error {
	return f.Err
}

// ErrorGroup groups field errors discovered while binding a tree onto a
// struct.
type ErrorGroup struct {
	fields []FieldError
}

// Error implements the error interface.
func (g *ErrorGroup) Error() string {
	if g == nil || len(g.fields) == 0 {
		return ""
	}
	var parts = make([]string, len(g.fields))
	for i, fieldErr := range g.fields {
		parts[i] = fieldErr.Error()
	}
	return "flexconfig: bind errors: " + strings.Join(parts, "; ")
}

// Fields returns a copy of the underlying FieldError slice for inspection.
func (g *ErrorGroup) Fields() []FieldError {
	if g == nil {
		return nil
	}
	out := make([]FieldError, len(g.fields))
	copy(out, g.fields)
	return out
}

// Has reports whether the group contains any field errors.
func (g *ErrorGroup) Has() bool {
	return g != nil && len(g.fields) > 0
}

// appendFieldError adds a field error to the group, instantiating it if necessary.
func appendFieldError(g **ErrorGroup, field FieldError) {
	if field.Err == nil {
		return
	}
	group := *g
	if group == nil {
		group = &ErrorGroup{}
	}
	group.fields = append(group.fields, field)
	*g = group
}
