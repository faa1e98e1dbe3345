package denormalizer

import (
	"github.com/hanpama/gqlcache/internal/normalizer"
	"github.com/hanpama/gqlcache/internal/record"
	"github.com/hanpama/gqlcache/internal/selection"
)

// ResolveInfo is what a Resolver sees of one collected field.
type ResolveInfo struct {
	Field          *selection.Field
	FieldKey       string
	Arguments      map[string]any
	ParentKey      string
	ParentTypename string
	// Fields of the parent record, or of the embedded composite being read.
	Fields map[string]record.Value
}

// Resolver produces the stored value of a field. ok is false when the value
// is not in the cache.
type Resolver interface {
	Resolve(info ResolveInfo) (v record.Value, ok bool, err error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(info ResolveInfo) (record.Value, bool, error)

func (f ResolverFunc) Resolve(info ResolveInfo) (record.Value, bool, error) { return f(info) }

// DefaultResolver looks the field key up in the parent's fields.
var DefaultResolver Resolver = ResolverFunc(func(info ResolveInfo) (record.Value, bool, error) {
	v, ok := info.Fields[info.FieldKey]
	return v, ok, nil
})

// FieldPolicy derives the cache key of a field's value from its arguments.
type FieldPolicy struct {
	// KeyArgs name the arguments that hold the id. Several are joined with ":".
	KeyArgs []string
	// Typename prefixes the key. Defaults to the field's declared type.
	Typename string
}

// FieldPolicyResolver answers fields listed in Policies, keyed by
// "ParentType.field", with references built from the field's arguments. This
// reads entities that were written through some other field, e.g.
// droid(id: "2001") after hero returned Droid:2001. Other fields, and fields
// whose key arguments are unbound, go to Next.
type FieldPolicyResolver struct {
	Policies map[string]FieldPolicy
	Next     Resolver
}

func (r FieldPolicyResolver) Resolve(info ResolveInfo) (record.Value, bool, error) {
	next := r.Next
	if next == nil {
		next = DefaultResolver
	}
	policy, ok := r.Policies[info.ParentTypename+"."+info.Field.Name]
	if !ok || len(policy.KeyArgs) == 0 {
		return next.Resolve(info)
	}
	typename := policy.Typename
	if typename == "" {
		typename = info.Field.Type
	}
	if typename == "" {
		return next.Resolve(info)
	}

	// A single list-valued key argument reads a list of entities.
	if len(policy.KeyArgs) == 1 {
		if ids, isList := info.Arguments[policy.KeyArgs[0]].([]any); isList {
			out := make(record.List, len(ids))
			for i, id := range ids {
				s, ok := normalizer.FormatID(id)
				if !ok {
					return next.Resolve(info)
				}
				out[i] = record.Reference(typename + ":" + s)
			}
			return out, true, nil
		}
	}

	key := typename
	for _, name := range policy.KeyArgs {
		s, ok := normalizer.FormatID(info.Arguments[name])
		if !ok {
			return next.Resolve(info)
		}
		key += ":" + s
	}
	return record.Reference(key), true, nil
}
