// Package normalizer flattens GraphQL response data into records keyed by
// cache key, linked to each other by references.
package normalizer

import (
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strconv"

	"github.com/hanpama/gqlcache/internal/record"
	"github.com/hanpama/gqlcache/internal/selection"
)

// Options configures a Normalizer. Zero values select the defaults.
type Options struct {
	KeyGenerator KeyGenerator
	Merger       record.Merger
	Oracle       selection.SupertypesOracle
	Logger       *slog.Logger
}

// Normalizer turns response data into records.
type Normalizer struct {
	keys   KeyGenerator
	merger record.Merger
	oracle selection.SupertypesOracle
	logger *slog.Logger
}

func New(opts Options) *Normalizer {
	n := &Normalizer{keys: opts.KeyGenerator, merger: opts.Merger, oracle: opts.Oracle, logger: opts.Logger}
	if n.keys == nil {
		n.keys = DefaultKeyGenerator
	}
	if n.merger == nil {
		n.merger = record.DefaultMerger
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	return n
}

// Normalize flattens data, selected by op, into records. The object at the
// root of data is stored under rootKey. Objects that occur more than once in
// data are merged into one record. The change set holds every field written.
func (n *Normalizer) Normalize(op *selection.Operation, rootKey string, data map[string]any, vars map[string]any) (map[string]*record.Record, record.ChangeSet, error) {
	vars = op.Variables(vars)
	p := &pass{
		Normalizer: n,
		collector:  &selection.Collector{Oracle: n.oracle, Fragments: op.Fragments, Variables: vars},
		vars:       vars,
		records:    make(map[string]*record.Record),
		changed:    make(record.ChangeSet),
	}
	if err := p.buildRecord(data, rootKey, op.RootTypename, op.Selections); err != nil {
		return nil, nil, err
	}
	return p.records, p.changed, nil
}

type pass struct {
	*Normalizer
	collector *selection.Collector
	vars      map[string]any
	records   map[string]*record.Record
	changed   record.ChangeSet
}

func (p *pass) buildRecord(obj map[string]any, key, fallbackTypename string, set selection.Set) error {
	fields, err := p.buildFields(obj, key, fallbackTypename, set)
	if err != nil {
		return err
	}
	merged, changed := p.merger.Merge(p.records[key], &record.Record{Key: key, Fields: fields})
	p.records[key] = merged
	p.changed.Union(changed)
	return nil
}

// buildFields converts the selected entries of obj into stored fields.
// Entries the selection does not ask for are dropped.
func (p *pass) buildFields(obj map[string]any, path, fallbackTypename string, set selection.Set) (map[string]record.Value, error) {
	typename, _ := obj["__typename"].(string)
	if typename == "" {
		typename = fallbackTypename
	}

	collected := p.collector.Collect(set, typename)
	byName := make(map[string]selection.CollectedField, len(collected))
	for _, cf := range collected {
		byName[cf.ResponseName] = cf
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make(map[string]record.Value, len(collected))
	for _, name := range names {
		cf, ok := byName[name]
		if !ok {
			p.logger.Debug("dropping unselected field", "path", path, "field", name, "typename", typename)
			continue
		}
		field := cf.Field()
		fieldKey, err := selection.FieldKey(field, p.vars)
		if err != nil {
			return nil, err
		}
		value, err := p.fieldValue(obj[name], field, cf.Selections(), path+"."+fieldKey)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", path, fieldKey, err)
		}
		fields[fieldKey] = value
	}
	return fields, nil
}

func (p *pass) fieldValue(v any, field *selection.Field, set selection.Set, path string) (record.Value, error) {
	switch x := v.(type) {
	case nil:
		return record.Null{}, nil
	case []any:
		out := make(record.List, len(x))
		for i, item := range x {
			iv, err := p.fieldValue(item, field, set, path+"."+strconv.Itoa(i))
			if err != nil {
				return nil, err
			}
			out[i] = iv
		}
		return out, nil
	case map[string]any:
		if len(set) == 0 {
			return record.FromGo(x)
		}
		return p.objectValue(x, field, set, path)
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Slice {
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return p.fieldValue(items, field, set, path)
	}
	return record.FromGo(v)
}

func (p *pass) objectValue(obj map[string]any, field *selection.Field, set selection.Set, path string) (record.Value, error) {
	key := p.keys.KeyFor(obj, KeyContext{
		Field:     field,
		Arguments: selection.ResolveArguments(field, p.vars),
		Path:      path,
	})
	switch key {
	case NoKey:
		fields, err := p.buildFields(obj, path, "", set)
		if err != nil {
			return nil, err
		}
		return record.Composite(fields), nil
	case "":
		key = CacheKey(path)
	}
	if err := p.buildRecord(obj, string(key), "", set); err != nil {
		return nil, err
	}
	return record.Reference(key), nil
}
