package normalizer

import (
	"encoding/json"
	"strconv"

	"github.com/hanpama/gqlcache/internal/selection"
)

// CacheKey identifies a normalized object.
type CacheKey string

const (
	// NoKey asks the normalizer to embed the object inline in its parent
	// instead of creating a record for it.
	NoKey CacheKey = "\x00"

	QueryRootKey        = "QUERY_ROOT"
	MutationRootKey     = "MUTATION_ROOT"
	SubscriptionRootKey = "SUBSCRIPTION_ROOT"
)

// RootKey returns the record key that holds the root fields of an operation
// of the given kind.
func RootKey(kind selection.OperationKind) string {
	switch kind {
	case selection.KindMutation:
		return MutationRootKey
	case selection.KindSubscription:
		return SubscriptionRootKey
	default:
		return QueryRootKey
	}
}

// KeyContext describes where an object was found.
type KeyContext struct {
	Field     *selection.Field
	Arguments map[string]any
	// Path is the key the object is stored under when the generator
	// declines: the nearest keyed ancestor's key followed by field keys and
	// list indices, as in "QUERY_ROOT.planets.0".
	Path string
}

// KeyGenerator derives the cache key of an object. It must be a pure
// function of its inputs. Returning "" declines, and the object is stored
// under its path from the nearest keyed ancestor; returning NoKey embeds it.
type KeyGenerator interface {
	KeyFor(obj map[string]any, ctx KeyContext) CacheKey
}

// KeyGeneratorFunc adapts a function to KeyGenerator.
type KeyGeneratorFunc func(obj map[string]any, ctx KeyContext) CacheKey

func (f KeyGeneratorFunc) KeyFor(obj map[string]any, ctx KeyContext) CacheKey { return f(obj, ctx) }

// IDKeyGenerator keys objects as "<typename>:<id>" using the first of
// IDFields that holds a string or number. Objects without a typename or id
// are declined.
type IDKeyGenerator struct {
	IDFields []string
}

// DefaultKeyGenerator keys objects by their "id" field.
var DefaultKeyGenerator KeyGenerator = IDKeyGenerator{IDFields: []string{"id"}}

func (g IDKeyGenerator) KeyFor(obj map[string]any, _ KeyContext) CacheKey {
	typename, _ := obj["__typename"].(string)
	if typename == "" {
		return ""
	}
	for _, name := range g.IDFields {
		if id, ok := FormatID(obj[name]); ok {
			return CacheKey(typename + ":" + id)
		}
	}
	return ""
}

// FormatID renders a string or number as the id part of a cache key.
func FormatID(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, x != ""
	case json.Number:
		return x.String(), true
	case float64:
		if x == float64(int64(x)) {
			return strconv.FormatInt(int64(x), 10), true
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	default:
		return "", false
	}
}

// EmbedTypes embeds objects of the listed types (value objects without an
// identity of their own) and defers to Next for everything else.
type EmbedTypes struct {
	Types map[string]bool
	Next  KeyGenerator
}

func (e EmbedTypes) KeyFor(obj map[string]any, ctx KeyContext) CacheKey {
	if typename, _ := obj["__typename"].(string); e.Types[typename] {
		return NoKey
	}
	next := e.Next
	if next == nil {
		next = DefaultKeyGenerator
	}
	return next.KeyFor(obj, ctx)
}
