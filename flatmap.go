package flexconfig

import (
	"strings"
	"sync"
)

// KeyDelimiter separates path segments in flat keys.
const KeyDelimiter = ":"

// FlatMap is an insertion-ordered map of colon-delimited keys to optional
// string values. A nil value represents JSON null. FlatMap is not safe for
// concurrent mutation; publish it with Snapshot once it is complete.
type FlatMap struct {
	keys   []string
	values map[string]*string
}

// NewFlatMap returns an empty FlatMap.
func NewFlatMap() *FlatMap {
	return &FlatMap{values: make(map[string]*string)}
}

// Set stores value under key. Re-setting an existing key keeps its original
// position in Keys.
func (m *FlatMap) Set(key string, value *string) {
	if m.values == nil {
		m.values = make(map[string]*string)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
}

// SetString stores a non-null value.
func (m *FlatMap) SetString(key, value string) {
	m.Set(key, &value)
}

// Get returns the value stored under key and whether the key exists.
func (m *FlatMap) Get(key string) (*string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Len reports the number of entries.
func (m *FlatMap) Len() int {
	return len(m.keys)
}

// Keys returns a copy of the keys in insertion order.
func (m *FlatMap) Keys() []string {
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Snapshot hands the accumulated entries over to an immutable Snapshot and
// resets m.
func (m *FlatMap) Snapshot() *Snapshot {
	s := &Snapshot{keys: m.keys, values: m.values}
	if s.values == nil {
		s.values = make(map[string]*string)
	}
	m.keys = nil
	m.values = nil
	return s
}

// Snapshot is an immutable flat map representing one successful load. It is
// safe for concurrent readers.
type Snapshot struct {
	keys   []string
	values map[string]*string

	once     sync.Once
	children map[string][]string
	folded   map[string]string
}

var emptySnapshot = NewFlatMap().Snapshot()

// EmptySnapshot returns a shared snapshot without entries.
func EmptySnapshot() *Snapshot {
	return emptySnapshot
}

// Get returns the raw value stored under key. The pointer is nil for null
// values.
func (s *Snapshot) Get(key string) (*string, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

// Len reports the number of entries.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}

// Keys returns a copy of the keys in insertion order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Range calls fn for every entry in insertion order until fn returns false.
func (s *Snapshot) Range(fn func(key string, value *string) bool) {
	if s == nil {
		return
	}
	for _, k := range s.keys {
		if !fn(k, s.values[k]) {
			return
		}
	}
}

// Map copies the non-null entries into a plain map.
func (s *Snapshot) Map() map[string]string {
	out := make(map[string]string, s.Len())
	s.Range(func(k string, v *string) bool {
		if v != nil {
			out[k] = *v
		}
		return true
	})
	return out
}

// lookupFold resolves key case-insensitively, preferring an exact match.
func (s *Snapshot) lookupFold(key string) (*string, bool) {
	if v, ok := s.Get(key); ok {
		return v, true
	}
	if s == nil {
		return nil, false
	}
	s.once.Do(s.buildIndex)
	actual, ok := s.folded[strings.ToLower(key)]
	if !ok {
		return nil, false
	}
	return s.values[actual], true
}

// childSegments returns the distinct first segments found after
// parent + KeyDelimiter, in first-seen order. The root parent is "".
func (s *Snapshot) childSegments(parent string) []string {
	if s == nil {
		return nil
	}
	s.once.Do(s.buildIndex)
	return s.children[strings.ToLower(parent)]
}

func (s *Snapshot) buildIndex() {
	index := make(map[string][]string)
	folded := make(map[string]string, len(s.keys))
	seen := make(map[string]struct{})
	for _, key := range s.keys {
		if _, ok := folded[strings.ToLower(key)]; !ok {
			folded[strings.ToLower(key)] = key
		}
		parent := ""
		rest := key
		for {
			segment, tail, more := strings.Cut(rest, KeyDelimiter)
			id := strings.ToLower(parent) + "\x00" + strings.ToLower(segment)
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				lp := strings.ToLower(parent)
				index[lp] = append(index[lp], segment)
			}
			if !more {
				break
			}
			parent = joinKey(parent, segment)
			rest = tail
		}
	}
	s.children = index
	s.folded = folded
}

func joinKey(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + KeyDelimiter + segment
}
