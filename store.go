package flexconfig

import (
	"context"
	"strings"
)

// EntryKind describes how a remote entry's payload is shaped.
type EntryKind int

const (
	// KindPlain is an ordinary string value.
	KindPlain EntryKind = iota
	// KindList is a delimited list of strings.
	KindList
	// KindSecure is an encrypted value delivered in plain text.
	KindSecure
	// KindBinary is an opaque byte payload.
	KindBinary
)

// String returns the kind name.
func (k EntryKind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindList:
		return "list"
	case KindSecure:
		return "secure"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// RemoteEntry is the provider-agnostic record a Store returns.
type RemoteEntry struct {
	// Name is the store-native entry name, relative to the store root.
	Name string
	// Value holds the textual payload. For KindBinary entries it is the
	// base64 text when Binary is nil.
	Value string
	// Binary holds raw bytes for KindBinary entries.
	Binary []byte
	Kind   EntryKind
	// Enabled is false for entries that are deleted, disabled or scheduled
	// for deletion.
	Enabled bool
	// VersionStage names the version the payload belongs to, if known.
	VersionStage string
	// Resolved reports whether the payload is present. Listings that only
	// return metadata leave it false and the loader fetches the value.
	Resolved bool
	// Null marks an entry whose value is explicitly null.
	Null bool
}

// Store is the contract a remote configuration backend implements.
type Store interface {
	// Name identifies the store in errors and logs (ARN, URI, mount path).
	Name() string
	// Separator is the store-native hierarchy separator replaced by ":".
	Separator() string
	// ListEntries streams every entry page by page. Implementations must
	// drain all pages before returning nil.
	ListEntries(ctx context.Context, page func([]RemoteEntry) error) error
	// GetEntryValue fetches a single entry, optionally at versionStage.
	GetEntryValue(ctx context.Context, name, versionStage string) (RemoteEntry, error)
}

// StagedStore is implemented by stores that keep named versions of entries.
type StagedStore interface {
	Store
	SupportsVersionStages() bool
}

func supportsStages(s Store) bool {
	staged, ok := s.(StagedStore)
	return ok && staged.SupportsVersionStages()
}

// CanonicalKey converts a store-native name into a flat key by trimming
// leading and trailing separators and replacing the remaining ones with ":".
func CanonicalKey(name, separator string) string {
	if separator == "" || separator == KeyDelimiter {
		return strings.Trim(name, KeyDelimiter)
	}
	for strings.HasPrefix(name, separator) {
		name = strings.TrimPrefix(name, separator)
	}
	for strings.HasSuffix(name, separator) {
		name = strings.TrimSuffix(name, separator)
	}
	return strings.ReplaceAll(name, separator, KeyDelimiter)
}
