package record

// Merger combines an incoming record into an existing one with the same key
// and reports the fields whose value changed.
type Merger interface {
	// Merge must not modify existing or incoming. existing may be nil.
	Merge(existing, incoming *Record) (*Record, ChangeSet)
}

// MergerFunc adapts a function to Merger.
type MergerFunc func(existing, incoming *Record) (*Record, ChangeSet)

func (f MergerFunc) Merge(existing, incoming *Record) (*Record, ChangeSet) {
	return f(existing, incoming)
}

// DefaultMerger replaces fields one by one, last write wins. A field counts
// as changed when it was absent or its value differs structurally. Fields
// only present in existing are preserved, so merging the same data twice
// yields an empty change set.
var DefaultMerger Merger = MergerFunc(mergeReplace)

func mergeReplace(existing, incoming *Record) (*Record, ChangeSet) {
	return mergeWith(existing, incoming, func(_, in Value) Value { return in })
}

// ListAppendMerger appends the elements of incoming list fields that the
// existing list does not already hold, instead of replacing the list. Other
// fields follow DefaultMerger.
var ListAppendMerger Merger = MergerFunc(mergeAppend)

func mergeAppend(existing, incoming *Record) (*Record, ChangeSet) {
	return mergeWith(existing, incoming, func(old, in Value) Value {
		ol, ok1 := old.(List)
		il, ok2 := in.(List)
		if !ok1 || !ok2 {
			return in
		}
		out := append(List(nil), ol...)
	next:
		for _, item := range il {
			for _, have := range ol {
				if Equal(have, item) {
					continue next
				}
			}
			out = append(out, item)
		}
		return out
	})
}

func mergeWith(existing, incoming *Record, combine func(old, in Value) Value) (*Record, ChangeSet) {
	changed := make(ChangeSet)
	if existing == nil {
		out := incoming.Clone()
		for k := range incoming.Fields {
			changed.Add(incoming.Key, k)
		}
		return out, changed
	}

	out := existing.Clone()
	out.MutationID = incoming.MutationID
	for k, in := range incoming.Fields {
		old, ok := existing.Fields[k]
		if !ok {
			out.Fields[k] = in
			changed.Add(existing.Key, k)
			continue
		}
		next := combine(old, in)
		if Equal(old, next) {
			continue
		}
		out.Fields[k] = next
		changed.Add(existing.Key, k)
	}
	return out, changed
}
