// Package store is the thread-safe entry point of the normalized cache. It
// writes response data into a NormalizedCache, keeps optimistic updates in
// layers above it, reads data back through the combined view and publishes
// the fields each change touched.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hanpama/gqlcache/internal/denormalizer"
	"github.com/hanpama/gqlcache/internal/eventbus"
	"github.com/hanpama/gqlcache/internal/events"
	"github.com/hanpama/gqlcache/internal/normalizer"
	"github.com/hanpama/gqlcache/internal/normcache"
	"github.com/hanpama/gqlcache/internal/record"
	"github.com/hanpama/gqlcache/internal/reqid"
	"github.com/hanpama/gqlcache/internal/selection"
)

// ErrDisposed is returned by every operation on a disposed store.
var ErrDisposed = errors.New("store: disposed")

// layer holds the records of one optimistic update.
type layer struct {
	mutationID uuid.UUID
	records    map[string]*record.Record
}

// Store composes the normalizer, the denormalizer and a base cache with a
// stack of optimistic layers. The topmost layer holding a field wins; fields
// no layer holds fall through to the base cache.
//
// Writes are serialized. Change sets are published after the write is
// committed and in commit order. Subscribers run synchronously and must not
// write to the store from their handler.
type Store struct {
	mu       sync.RWMutex
	cache    normcache.NormalizedCache
	layers   []*layer
	disposed bool

	normalizer   *normalizer.Normalizer
	denormalizer *denormalizer.Denormalizer
	merger       record.Merger
	logger       *slog.Logger
	bus          *eventbus.Bus

	// pubMu is taken before mu is released so that publication keeps commit
	// order.
	pubMu       sync.Mutex
	watchMu     sync.Mutex
	watchers    map[uint64]*watcher
	watchSeq    uint64
	watchClosed bool
}

// New returns a store over cache.
func New(cache normcache.NormalizedCache, opts ...Option) *Store {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.merger == nil {
		cfg.merger = record.DefaultMerger
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.bus == nil {
		cfg.bus = eventbus.New()
	}
	return &Store{
		cache: cache,
		normalizer: normalizer.New(normalizer.Options{
			KeyGenerator: cfg.keys,
			Merger:       cfg.merger,
			Oracle:       cfg.oracle,
			Logger:       cfg.logger,
		}),
		denormalizer: denormalizer.New(denormalizer.Options{
			Resolver: cfg.resolver,
			Oracle:   cfg.oracle,
			Logger:   cfg.logger,
		}),
		merger:   cfg.merger,
		logger:   cfg.logger,
		bus:      cfg.bus,
		watchers: make(map[uint64]*watcher),
	}
}

// WriteOperation normalizes data, the response to op, into the base cache.
func (s *Store) WriteOperation(ctx context.Context, op *selection.Operation, data, vars map[string]any) (record.ChangeSet, error) {
	return s.write(ctx, op, normalizer.RootKey(op.Kind), data, vars, uuid.Nil)
}

// WriteFragment normalizes data, selected by frag, into the base cache under
// key.
func (s *Store) WriteFragment(ctx context.Context, frag *selection.Operation, key string, data, vars map[string]any) (record.ChangeSet, error) {
	return s.write(ctx, frag, key, data, vars, uuid.Nil)
}

// WriteOptimisticUpdates writes data into the layer of mutationID, creating
// it on top of the stack when it does not exist yet. The change set holds the
// fields whose visible value changed.
func (s *Store) WriteOptimisticUpdates(ctx context.Context, op *selection.Operation, data, vars map[string]any, mutationID uuid.UUID) (record.ChangeSet, error) {
	if mutationID == uuid.Nil {
		return nil, errors.New("store: optimistic update needs a mutation id")
	}
	return s.write(ctx, op, normalizer.RootKey(op.Kind), data, vars, mutationID)
}

// WriteOptimisticFragment is WriteOptimisticUpdates for fragment data stored
// under key.
func (s *Store) WriteOptimisticFragment(ctx context.Context, frag *selection.Operation, key string, data, vars map[string]any, mutationID uuid.UUID) (record.ChangeSet, error) {
	if mutationID == uuid.Nil {
		return nil, errors.New("store: optimistic update needs a mutation id")
	}
	return s.write(ctx, frag, key, data, vars, mutationID)
}

func (s *Store) write(ctx context.Context, op *selection.Operation, rootKey string, data, vars map[string]any, mutationID uuid.UUID) (record.ChangeSet, error) {
	ctx, _ = reqid.Ensure(ctx)
	start := time.Now()
	eventbus.Publish(ctx, s.bus, events.WriteStart{Operation: op.Name, RootKey: rootKey, MutationID: mutationID})

	changed, n, err := s.commitWrite(ctx, op, rootKey, data, vars, mutationID)

	eventbus.Publish(ctx, s.bus, events.WriteFinish{
		Operation:  op.Name,
		RootKey:    rootKey,
		MutationID: mutationID,
		Records:    n,
		Changed:    changed.Len(),
		Err:        err,
		Duration:   time.Since(start),
	})
	if err != nil {
		return nil, err
	}
	return changed, nil
}

// commitWrite normalizes and commits under the write lock, then publishes.
func (s *Store) commitWrite(ctx context.Context, op *selection.Operation, rootKey string, data, vars map[string]any, mutationID uuid.UUID) (record.ChangeSet, int, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, 0, ErrDisposed
	}

	records, _, err := s.normalizer.Normalize(op, rootKey, data, vars)
	if err != nil {
		s.mu.Unlock()
		return nil, 0, fmt.Errorf("normalize %s: %w", rootKey, err)
	}
	recs := sortedRecords(records)

	var changed record.ChangeSet
	if mutationID == uuid.Nil {
		changed, err = s.cache.MergeAll(ctx, recs, s.merger)
	} else {
		changed, err = s.mergeOptimistic(ctx, recs, mutationID)
	}
	if err != nil {
		s.mu.Unlock()
		return nil, 0, err
	}

	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	s.logger.Debug("records written",
		"root", rootKey,
		"records", len(recs),
		"changed", changed.Len(),
		"mutation_id", mutationID)
	s.publish(ctx, changed, mutationID)
	return changed, len(recs), nil
}

func (s *Store) mergeOptimistic(ctx context.Context, recs []*record.Record, mutationID uuid.UUID) (record.ChangeSet, error) {
	var touched []fieldRef
	for _, r := range recs {
		for _, fk := range r.FieldKeys() {
			touched = append(touched, fieldRef{key: r.Key, field: fk})
		}
	}
	before, err := s.visible(ctx, touched)
	if err != nil {
		return nil, err
	}

	staged := make(map[string]*record.Record)
	l := s.layer(mutationID)
	if l != nil {
		for k, r := range l.records {
			staged[k] = r
		}
	}
	for _, r := range recs {
		tagged := r.Clone()
		tagged.MutationID = mutationID
		merged, _ := s.merger.Merge(staged[r.Key], tagged)
		staged[r.Key] = merged
	}

	// The staged records are swapped in to read the new view; restore puts
	// the previous layer state back when that read fails.
	var restore func()
	if l == nil {
		s.layers = append(s.layers, &layer{mutationID: mutationID, records: staged})
		restore = func() { s.layers = s.layers[:len(s.layers)-1] }
	} else {
		previous := l.records
		l.records = staged
		restore = func() { l.records = previous }
	}
	after, err := s.visible(ctx, touched)
	if err != nil {
		restore()
		return nil, err
	}
	return diff(touched, before, after), nil
}

// RollbackOptimisticUpdates discards the layer of mutationID. The change set
// holds the fields whose visible value changed as a result; fields still
// held by a layer above or below keep that layer's value.
func (s *Store) RollbackOptimisticUpdates(ctx context.Context, mutationID uuid.UUID) (record.ChangeSet, error) {
	ctx, _ = reqid.Ensure(ctx)
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrDisposed
	}

	idx := -1
	for i, l := range s.layers {
		if l.mutationID == mutationID {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		eventbus.Publish(ctx, s.bus, events.RollbackFinish{MutationID: mutationID})
		return record.NewChangeSet(), nil
	}

	var touched []fieldRef
	for _, key := range sortedKeys(s.layers[idx].records) {
		for _, fk := range s.layers[idx].records[key].FieldKeys() {
			touched = append(touched, fieldRef{key: key, field: fk})
		}
	}
	before, err := s.visible(ctx, touched)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	removed := s.layers[idx]
	s.layers = append(s.layers[:idx:idx], s.layers[idx+1:]...)
	after, err := s.visible(ctx, touched)
	if err != nil {
		// put the layer back so that a failed load leaves the view unchanged
		s.layers = append(s.layers[:idx:idx], append([]*layer{removed}, s.layers[idx:]...)...)
		s.mu.Unlock()
		return nil, err
	}
	changed := diff(touched, before, after)

	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	s.logger.Debug("optimistic layer rolled back", "mutation_id", mutationID, "changed", changed.Len())
	eventbus.Publish(ctx, s.bus, events.RollbackFinish{MutationID: mutationID, Found: true, Changed: changed.Len()})
	s.publish(ctx, changed, mutationID)
	return changed, nil
}

// ReadOperation rebuilds the data of op from the combined view.
func (s *Store) ReadOperation(ctx context.Context, op *selection.Operation, vars map[string]any) (map[string]any, error) {
	return s.read(ctx, denormalizer.Request{
		RootKey:          normalizer.RootKey(op.Kind),
		Operation:        op,
		Variables:        vars,
		AllowMissingRoot: true,
	})
}

// ReadFragment rebuilds the data selected by frag from the record at key.
func (s *Store) ReadFragment(ctx context.Context, frag *selection.Operation, key string, vars map[string]any) (map[string]any, error) {
	return s.read(ctx, denormalizer.Request{RootKey: key, Operation: frag, Variables: vars})
}

func (s *Store) read(ctx context.Context, req denormalizer.Request) (map[string]any, error) {
	ctx, _ = reqid.Ensure(ctx)
	start := time.Now()
	eventbus.Publish(ctx, s.bus, events.ReadStart{Operation: req.Operation.Name, RootKey: req.RootKey})

	data, err := s.readLocked(ctx, req)

	eventbus.Publish(ctx, s.bus, events.ReadFinish{
		Operation: req.Operation.Name,
		RootKey:   req.RootKey,
		Err:       err,
		Duration:  time.Since(start),
	})
	return data, err
}

func (s *Store) readLocked(ctx context.Context, req denormalizer.Request) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disposed {
		return nil, ErrDisposed
	}
	return s.denormalizer.Read(ctx, viewLoader{s}, req)
}

// Publish notifies subscribers of changed. It is fire-and-forget.
func (s *Store) Publish(ctx context.Context, changed record.ChangeSet) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.publish(ctx, changed, uuid.Nil)
}

// publish hands out copies of changed: the caller keeps its own set, and
// no subscriber or watcher shares a set with another.
func (s *Store) publish(ctx context.Context, changed record.ChangeSet, mutationID uuid.UUID) {
	if changed.Len() == 0 {
		return
	}
	eventbus.Publish(ctx, s.bus, events.RecordsChanged{Changed: changed.Clone(), MutationID: mutationID})
	s.notifyWatchers(changed)
}

// Subscribe calls h with every published change set. Each call gets its own
// copy of the set.
func (s *Store) Subscribe(h func(context.Context, events.RecordsChanged)) (unsubscribe func()) {
	return eventbus.Subscribe(s.bus, func(ctx context.Context, e events.RecordsChanged) {
		e.Changed = e.Changed.Clone()
		h(ctx, e)
	})
}

// Remove deletes key from the base cache and from every optimistic layer,
// and publishes the fields of key that were visible. With cascade, records
// only reachable through key are removed from the base cache as well; nothing
// can read them afterwards, so their fields are not published. When the base
// cache fails, nothing is removed.
func (s *Store) Remove(ctx context.Context, key string, cascade bool) (bool, error) {
	ctx, _ = reqid.Ensure(ctx)
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return false, ErrDisposed
	}
	visible, err := s.view(ctx, []string{key})
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	removed, err := s.cache.Remove(ctx, key, cascade)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	for _, l := range s.layers {
		if _, ok := l.records[key]; ok {
			delete(l.records, key)
			removed = true
		}
	}
	changed := record.NewChangeSet()
	if r := visible[key]; r != nil {
		for _, fk := range r.FieldKeys() {
			changed.Add(key, fk)
		}
	}

	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	s.publish(ctx, changed, uuid.Nil)
	return removed, nil
}

// ClearAll drops every record and every optimistic layer.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	s.layers = nil
	return s.cache.ClearAll(ctx)
}

// Dispose clears the store and closes all watch channels. Later calls fail
// with ErrDisposed.
func (s *Store) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.layers = nil
	err := s.cache.ClearAll(ctx)
	s.mu.Unlock()

	s.closeWatchers()
	return err
}

// LayerSnapshot is the content of one optimistic layer.
type LayerSnapshot struct {
	MutationID uuid.UUID
	Records    map[string]*record.Record
}

// Snapshot is the content of a store, bottom layer first.
type Snapshot struct {
	Base   map[string]*record.Record
	Layers []LayerSnapshot
}

// Dump returns the records of the base cache and of each optimistic layer.
func (s *Store) Dump(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.disposed {
		return nil, ErrDisposed
	}
	base, err := s.cache.Dump(ctx)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{Base: base}
	for _, l := range s.layers {
		records := make(map[string]*record.Record, len(l.records))
		for k, r := range l.records {
			records[k] = r
		}
		snap.Layers = append(snap.Layers, LayerSnapshot{MutationID: l.mutationID, Records: records})
	}
	return snap, nil
}

// Restore replaces the base cache and drops all optimistic layers, then
// loads records, typically a Snapshot.Base taken earlier.
func (s *Store) Restore(ctx context.Context, records map[string]*record.Record) error {
	ctx, _ = reqid.Ensure(ctx)
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	s.layers = nil
	if err := s.cache.ClearAll(ctx); err != nil {
		s.mu.Unlock()
		return err
	}
	changed, err := s.cache.MergeAll(ctx, sortedRecords(records), s.merger)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.pubMu.Lock()
	s.mu.Unlock()
	defer s.pubMu.Unlock()

	s.logger.Debug("records restored", "records", len(records))
	s.publish(ctx, changed, uuid.Nil)
	return nil
}

func (s *Store) layer(mutationID uuid.UUID) *layer {
	for _, l := range s.layers {
		if l.mutationID == mutationID {
			return l
		}
	}
	return nil
}

// view returns the combined records of keys: the base record with each
// layer's fields laid over it, bottom to top. Callers hold mu.
func (s *Store) view(ctx context.Context, keys []string) (map[string]*record.Record, error) {
	base, err := s.cache.LoadRecords(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]*record.Record, len(keys))
	for _, r := range base {
		out[r.Key] = r
	}
	for _, l := range s.layers {
		for _, key := range keys {
			if r, ok := l.records[key]; ok {
				out[key] = overlay(out[key], r)
			}
		}
	}
	return out, nil
}

func overlay(below, above *record.Record) *record.Record {
	if below == nil {
		return above
	}
	out := below.Clone()
	for k, v := range above.Fields {
		out.Fields[k] = v
	}
	out.MutationID = above.MutationID
	return out
}

// viewLoader serves the denormalizer from the combined view.
type viewLoader struct{ s *Store }

func (v viewLoader) LoadRecords(ctx context.Context, keys []string) ([]*record.Record, error) {
	records, err := v.s.view(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]*record.Record, 0, len(records))
	for _, key := range keys {
		if r, ok := records[key]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type fieldRef struct {
	key   string
	field string
}

// visible returns the values of fields in the combined view, by field id.
// Absent fields have no entry.
func (s *Store) visible(ctx context.Context, fields []fieldRef) (map[string]record.Value, error) {
	seen := make(map[string]bool)
	var keys []string
	for _, f := range fields {
		if !seen[f.key] {
			seen[f.key] = true
			keys = append(keys, f.key)
		}
	}
	records, err := s.view(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]record.Value, len(fields))
	for _, f := range fields {
		if v, ok := records[f.key].Field(f.field); ok {
			out[record.FieldID(f.key, f.field)] = v
		}
	}
	return out, nil
}

func diff(fields []fieldRef, before, after map[string]record.Value) record.ChangeSet {
	changed := record.NewChangeSet()
	for _, f := range fields {
		id := record.FieldID(f.key, f.field)
		b, hadBefore := before[id]
		a, hasAfter := after[id]
		if hadBefore != hasAfter || (hadBefore && !record.Equal(b, a)) {
			changed[id] = struct{}{}
		}
	}
	return changed
}

func sortedKeys(records map[string]*record.Record) []string {
	keys := make([]string, 0, len(records))
	for k := range records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRecords(records map[string]*record.Record) []*record.Record {
	out := make([]*record.Record, 0, len(records))
	for _, k := range sortedKeys(records) {
		out = append(out, records[k])
	}
	return out
}
