package denormalizer

import (
	"context"
	"log/slog"

	"github.com/hanpama/gqlcache/internal/record"
	"github.com/hanpama/gqlcache/internal/selection"
)

// RecordLoader loads records in batches. Keys that are not stored are left
// out of the result; order does not matter.
type RecordLoader interface {
	LoadRecords(ctx context.Context, keys []string) ([]*record.Record, error)
}

// LoaderFunc adapts a function to RecordLoader.
type LoaderFunc func(ctx context.Context, keys []string) ([]*record.Record, error)

func (f LoaderFunc) LoadRecords(ctx context.Context, keys []string) ([]*record.Record, error) {
	return f(ctx, keys)
}

// PendingReference is one unit of work: fill the response at Path with the
// record at Key, read under Selections.
type PendingReference struct {
	Key        string
	Path       Path
	Selections selection.Set
	// Typename is used when the record stores none; only set for the root.
	Typename string
}

type Options struct {
	Resolver Resolver
	Oracle   selection.SupertypesOracle
	Logger   *slog.Logger
}

type Denormalizer struct {
	resolver Resolver
	oracle   selection.SupertypesOracle
	logger   *slog.Logger
}

func New(opts Options) *Denormalizer {
	d := &Denormalizer{resolver: opts.Resolver, oracle: opts.Oracle, logger: opts.Logger}
	if d.resolver == nil {
		d.resolver = DefaultResolver
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Request describes one read.
type Request struct {
	RootKey   string
	Operation *selection.Operation
	Variables map[string]any
	// AllowMissingRoot reads an absent root record as an empty object.
	AllowMissingRoot bool
}

// placeholder stands for the object that will be materialized at path.
type placeholder struct {
	path string
}

type readState struct {
	*Denormalizer
	ctx       context.Context
	loader    RecordLoader
	collector *selection.Collector
	vars      map[string]any
	// objects materialized so far, by response path
	objects map[string]map[string]any
	// references discovered for the next level
	next []PendingReference
}

// Read rebuilds the response data selected by req.Operation from the record
// at req.RootKey.
func (d *Denormalizer) Read(ctx context.Context, loader RecordLoader, req Request) (map[string]any, error) {
	op := req.Operation
	vars := op.Variables(req.Variables)
	state := &readState{
		Denormalizer: d,
		ctx:          ctx,
		loader:       loader,
		collector:    &selection.Collector{Oracle: d.oracle, Fragments: op.Fragments, Variables: vars},
		vars:         vars,
		objects:      make(map[string]map[string]any),
	}

	frontier := []PendingReference{{Key: req.RootKey, Path: Path{}, Selections: op.Selections, Typename: op.RootTypename}}
	for depth := 0; len(frontier) > 0; depth++ {
		records, err := state.loadFrontier(frontier)
		if err != nil {
			return nil, err
		}
		d.logger.Debug("loaded records", "depth", depth, "pending", len(frontier), "loaded", len(records))

		for _, pending := range frontier {
			rec := records[pending.Key]
			if rec == nil {
				if depth > 0 || !req.AllowMissingRoot {
					return nil, &CacheMissError{Key: pending.Key}
				}
				rec = record.New(pending.Key)
			}
			if err := state.materialize(pending, rec); err != nil {
				return nil, err
			}
		}
		frontier, state.next = state.next, nil
	}

	root := state.objects[Path{}.String()]
	state.substitute(root)
	return root, nil
}

// loadFrontier issues the single storage call of one level.
func (s *readState) loadFrontier(frontier []PendingReference) (map[string]*record.Record, error) {
	seen := make(map[string]bool, len(frontier))
	keys := make([]string, 0, len(frontier))
	for _, pending := range frontier {
		if !seen[pending.Key] {
			seen[pending.Key] = true
			keys = append(keys, pending.Key)
		}
	}
	loaded, err := s.loader.LoadRecords(s.ctx, keys)
	if err != nil {
		return nil, err
	}
	records := make(map[string]*record.Record, len(loaded))
	for _, r := range loaded {
		if r != nil {
			records[r.Key] = r
		}
	}
	return records, nil
}

func (s *readState) materialize(pending PendingReference, rec *record.Record) error {
	typename, ok := rec.Typename()
	if !ok {
		if pending.Typename == "" {
			return &CacheMissError{Key: rec.Key, FieldKey: "__typename"}
		}
		typename = pending.Typename
	}
	obj, err := s.resolveObject(rec.Key, typename, rec.Fields, pending.Selections, pending.Path)
	if err != nil {
		return err
	}
	s.objects[pending.Path.String()] = obj
	return nil
}

// resolveObject reads the collected fields of one record or composite.
func (s *readState) resolveObject(key, typename string, fields map[string]record.Value, set selection.Set, path Path) (map[string]any, error) {
	collected := s.collector.Collect(set, typename)
	out := make(map[string]any, len(collected))
	for _, cf := range collected {
		field := cf.Field()
		fieldKey, err := selection.FieldKey(field, s.vars)
		if err != nil {
			return nil, err
		}
		v, ok, err := s.resolver.Resolve(ResolveInfo{
			Field:          field,
			FieldKey:       fieldKey,
			Arguments:      selection.ResolveArguments(field, s.vars),
			ParentKey:      key,
			ParentTypename: typename,
			Fields:         fields,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &CacheMissError{Key: key, FieldKey: fieldKey}
		}
		fieldPath := appendPath(path, cf.ResponseName)
		if _, isNull := v.(record.Null); isNull && field.NonNull {
			return nil, &MissingValueError{Key: key, FieldKey: fieldKey, Path: fieldPath}
		}
		value, err := s.resolveValue(key, v, cf.Selections(), fieldPath)
		if err != nil {
			return nil, err
		}
		out[cf.ResponseName] = value
	}
	return out, nil
}

func (s *readState) resolveValue(key string, v record.Value, set selection.Set, path Path) (any, error) {
	switch x := v.(type) {
	case nil, record.Null:
		return nil, nil
	case record.List:
		out := make([]any, len(x))
		for i, item := range x {
			iv, err := s.resolveValue(key, item, set, appendPath(path, i))
			if err != nil {
				return nil, err
			}
			out[i] = iv
		}
		return out, nil
	case record.Composite:
		if len(set) == 0 {
			return record.ToGo(x), nil
		}
		typename := ""
		if t, ok := x["__typename"].(record.String); ok {
			typename = string(t)
		}
		return s.resolveObject(key, typename, x, set, path)
	case record.Reference:
		if len(set) == 0 {
			return nil, &TypeMismatchError{Path: path, Want: "leaf value", Got: record.Kind(x)}
		}
		s.next = append(s.next, PendingReference{Key: string(x), Path: path, Selections: set})
		return placeholder{path: path.String()}, nil
	default:
		if len(set) > 0 {
			return nil, &TypeMismatchError{Path: path, Want: "object", Got: record.Kind(x)}
		}
		return record.ToGo(x), nil
	}
}

// substitute replaces placeholders in v, top-down, with the objects
// materialized at their paths.
func (s *readState) substitute(v any) any {
	switch x := v.(type) {
	case placeholder:
		return s.substitute(s.objects[x.path])
	case map[string]any:
		for k, item := range x {
			x[k] = s.substitute(item)
		}
		return x
	case []any:
		for i, item := range x {
			x[i] = s.substitute(item)
		}
		return x
	default:
		return v
	}
}
