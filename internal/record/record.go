package record

import (
	"sort"

	"github.com/google/uuid"
)

// Record is the stored field map of one normalized object. Records are
// treated as immutable snapshots: merging produces a new Record.
type Record struct {
	Key    string
	Fields map[string]Value
	// MutationID tags records written by an optimistic update. uuid.Nil for
	// records that came from ordinary writes.
	MutationID uuid.UUID
}

// New returns an empty record for key.
func New(key string) *Record {
	return &Record{Key: key, Fields: make(map[string]Value)}
}

// FieldKeys returns the record's field keys in sorted order.
func (r *Record) FieldKeys() []string {
	keys := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field returns the value stored under fieldKey.
func (r *Record) Field(fieldKey string) (Value, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.Fields[fieldKey]
	return v, ok
}

// Typename returns the stored __typename, if any.
func (r *Record) Typename() (string, bool) {
	v, ok := r.Field("__typename")
	if !ok {
		return "", false
	}
	s, ok := v.(String)
	return string(s), ok && s != ""
}

// Clone returns a shallow copy with its own field map. Values are shared;
// they are never mutated in place.
func (r *Record) Clone() *Record {
	out := &Record{Key: r.Key, Fields: make(map[string]Value, len(r.Fields)), MutationID: r.MutationID}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	return out
}

// ReferencedKeys returns the keys of all records referenced from any field,
// at any nesting depth, without duplicates.
func (r *Record) ReferencedKeys() []string {
	var refs []string
	for _, k := range r.FieldKeys() {
		refs = References(refs, r.Fields[k])
	}
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		out = append(out, ref)
	}
	return out
}

// FieldID returns the qualified identifier used in change sets.
func FieldID(recordKey, fieldKey string) string {
	return recordKey + "." + fieldKey
}

// ChangeSet is a set of qualified field identifiers "<recordKey>.<fieldKey>".
type ChangeSet map[string]struct{}

// NewChangeSet returns a change set holding ids.
func NewChangeSet(ids ...string) ChangeSet {
	cs := make(ChangeSet, len(ids))
	for _, id := range ids {
		cs[id] = struct{}{}
	}
	return cs
}

func (cs ChangeSet) Add(recordKey, fieldKey string) {
	cs[FieldID(recordKey, fieldKey)] = struct{}{}
}

func (cs ChangeSet) Contains(id string) bool {
	_, ok := cs[id]
	return ok
}

// Union adds every id in other to cs.
func (cs ChangeSet) Union(other ChangeSet) {
	for id := range other {
		cs[id] = struct{}{}
	}
}

func (cs ChangeSet) Len() int { return len(cs) }

// Clone returns a copy of cs that can be changed independently.
func (cs ChangeSet) Clone() ChangeSet {
	out := make(ChangeSet, len(cs))
	for id := range cs {
		out[id] = struct{}{}
	}
	return out
}

// Sorted returns the ids in lexical order.
func (cs ChangeSet) Sorted() []string {
	out := make([]string, 0, len(cs))
	for id := range cs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
