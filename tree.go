package flexconfig

import (
	"strconv"
	"strings"
)

// Tree is a read-only hierarchical view over a Snapshot rooted at a path.
// Trees are cheap values; they pin the snapshot they were created from, so a
// reader keeps a consistent view while a source reloads.
//
// Navigation never fails. Child and Index return a Tree even for paths that
// hold no data; use Exists, Lookup or LookupIndex to detect absence.
//
// When a path is both a leaf and a branch, the leaf value wins for scalar
// reads and the branch remains navigable.
//
// Navigation (Child, Index, Section, Lookup) matches segments case
// insensitively. Keys that differ only in case share one node, named and
// valued by the first of them in insertion order; the others are reachable
// only through Get, which is the exact, case-sensitive lookup.
type Tree struct {
	snap *Snapshot
	path string
}

// NewTree returns the root view of snap.
func NewTree(snap *Snapshot) Tree {
	if snap == nil {
		snap = EmptySnapshot()
	}
	return Tree{snap: snap}
}

// Snapshot returns the snapshot backing t.
func (t Tree) Snapshot() *Snapshot {
	if t.snap == nil {
		return EmptySnapshot()
	}
	return t.snap
}

// Path returns the full flat key of the node; empty for the root.
func (t Tree) Path() string {
	return t.path
}

// Key returns the last path segment.
func (t Tree) Key() string {
	if i := strings.LastIndex(t.path, KeyDelimiter); i >= 0 {
		return t.path[i+1:]
	}
	return t.path
}

// Root returns the root view of the same snapshot.
func (t Tree) Root() Tree {
	return Tree{snap: t.snap}
}

// Get looks up the exact key relative to t. An empty key yields no value.
func (t Tree) Get(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	v, ok := t.Snapshot().Get(joinKey(t.path, key))
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// Value returns the leaf value stored at t. Null values and branch-only nodes
// report false.
func (t Tree) Value() (string, bool) {
	if t.path == "" {
		return "", false
	}
	v, ok := t.snap.lookupFold(t.path)
	if !ok || v == nil {
		return "", false
	}
	return *v, true
}

// String returns the leaf value, or "" when t is absent or branch-only.
func (t Tree) String() string {
	v, _ := t.Value()
	return v
}

// IsLeaf reports whether a key equals t's path, including null values.
func (t Tree) IsLeaf() bool {
	if t.path == "" {
		return false
	}
	_, ok := t.snap.lookupFold(t.path)
	return ok
}

// IsBranch reports whether any key lies below t.
func (t Tree) IsBranch() bool {
	return len(t.snap.childSegments(t.path)) > 0
}

// Exists reports whether t is a leaf or a branch.
func (t Tree) Exists() bool {
	return t.IsLeaf() || t.IsBranch()
}

// Lookup resolves an immediate child by case-insensitive name. An empty name
// returns the root view.
func (t Tree) Lookup(name string) (Tree, bool) {
	if name == "" {
		return t.Root(), true
	}
	for _, segment := range t.snap.childSegments(t.path) {
		if strings.EqualFold(segment, name) {
			return Tree{snap: t.snap, path: joinKey(t.path, segment)}, true
		}
	}
	return Tree{}, false
}

// Child is the total form of Lookup: a missing child yields an empty node at
// the requested path.
func (t Tree) Child(name string) Tree {
	if c, ok := t.Lookup(name); ok {
		return c
	}
	return Tree{snap: t.snap, path: joinKey(t.path, name)}
}

// LookupIndex resolves the child named by the decimal form of i. Negative
// indices are looked up literally.
func (t Tree) LookupIndex(i int) (Tree, bool) {
	return t.Lookup(strconv.Itoa(i))
}

// Index is the total form of LookupIndex.
func (t Tree) Index(i int) Tree {
	return t.Child(strconv.Itoa(i))
}

// Section walks a colon-delimited path of child names.
func (t Tree) Section(path string) Tree {
	if path == "" {
		return t
	}
	node := t
	for _, segment := range strings.Split(path, KeyDelimiter) {
		node = node.Child(segment)
	}
	return node
}

// Children returns the immediate children of t in first-seen order.
func (t Tree) Children() []Tree {
	segments := t.snap.childSegments(t.path)
	out := make([]Tree, len(segments))
	for i, segment := range segments {
		out[i] = Tree{snap: t.snap, path: joinKey(t.path, segment)}
	}
	return out
}

// Keys returns the names of the immediate children of t.
func (t Tree) Keys() []string {
	segments := t.snap.childSegments(t.path)
	out := make([]string, len(segments))
	copy(out, segments)
	return out
}

// Len reports the number of consecutive indexed children starting at 0.
func (t Tree) Len() int {
	n := 0
	for {
		if _, ok := t.LookupIndex(n); !ok {
			return n
		}
		n++
	}
}
