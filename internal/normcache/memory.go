package normcache

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/hanpama/gqlcache/internal/record"
)

type entry struct {
	rec       *record.Record
	size      int
	expiresAt time.Time
}

// MemoryCache keeps records in least-recently-used order, bounded by entry
// count and by the estimated size of its records. Loads that miss, and every
// write, go on to the next cache when one is chained.
type MemoryCache struct {
	mu          sync.Mutex
	lru         *simplelru.LRU[string, *entry]
	size        int
	maxSize     int
	maxEntries  int
	expireAfter time.Duration
	now         func() time.Time
	logger      *slog.Logger
	next        NormalizedCache
}

type Option func(*MemoryCache)

// WithMaxSizeBytes bounds the summed size estimate of all records.
func WithMaxSizeBytes(n int) Option {
	return func(c *MemoryCache) { c.maxSize = n }
}

func WithMaxEntries(n int) Option {
	return func(c *MemoryCache) { c.maxEntries = n }
}

// WithExpireAfter drops records that were not written for d.
func WithExpireAfter(d time.Duration) Option {
	return func(c *MemoryCache) { c.expireAfter = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) { c.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *MemoryCache) { c.logger = logger }
}

// NewMemoryCache returns an empty cache. Zero limits mean unbounded.
func NewMemoryCache(opts ...Option) *MemoryCache {
	c := &MemoryCache{now: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	capacity := c.maxEntries
	if capacity <= 0 {
		capacity = math.MaxInt
	}
	// NewLRU only fails for a non-positive size.
	c.lru, _ = simplelru.NewLRU[string, *entry](capacity, c.onEvict)
	return c
}

// Chain makes next the second level of c and returns c.
func (c *MemoryCache) Chain(next NormalizedCache) *MemoryCache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = next
	return c
}

func (c *MemoryCache) onEvict(key string, e *entry) {
	c.size -= e.size
	c.logger.Debug("record dropped", "key", key, "size", e.size)
}

// Size returns the summed size estimate of the stored records.
func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// get returns the live entry for key, promoting it. Expired entries are
// removed.
func (c *MemoryCache) get(key string) (*entry, bool) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if c.expired(e) {
		c.lru.Remove(key)
		return nil, false
	}
	return e, true
}

func (c *MemoryCache) expired(e *entry) bool {
	return c.expireAfter > 0 && !c.now().Before(e.expiresAt)
}

func (c *MemoryCache) put(rec *record.Record, size int) {
	e := &entry{rec: rec, size: size, expiresAt: c.now().Add(c.expireAfter)}
	if old, ok := c.lru.Peek(rec.Key); ok {
		c.size += size - old.size
		*old = *e
		c.lru.Get(rec.Key)
	} else {
		c.size += size
		c.lru.Add(rec.Key, e)
	}
	c.trim()
}

func (c *MemoryCache) trim() {
	for c.maxSize > 0 && c.size > c.maxSize {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			return
		}
	}
}

func (c *MemoryCache) LoadRecord(ctx context.Context, key string) (*record.Record, error) {
	recs, err := c.LoadRecords(ctx, []string{key})
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

func (c *MemoryCache) LoadRecords(ctx context.Context, keys []string) ([]*record.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	found := make(map[string]*record.Record, len(keys))
	var missing []string
	for _, key := range keys {
		if e, ok := c.get(key); ok {
			found[key] = e.rec
		} else {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 && c.next != nil {
		recs, err := c.next.LoadRecords(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			found[r.Key] = r
			c.put(r, record.SizeEstimateBytes(r))
		}
	}

	out := make([]*record.Record, 0, len(found))
	for _, key := range keys {
		if r, ok := found[key]; ok {
			out = append(out, r)
			delete(found, key)
		}
	}
	return out, nil
}

func (c *MemoryCache) Merge(ctx context.Context, rec *record.Record, merger record.Merger) (record.ChangeSet, error) {
	return c.MergeAll(ctx, []*record.Record{rec}, merger)
}

func (c *MemoryCache) MergeAll(ctx context.Context, recs []*record.Record, merger record.Merger) (record.ChangeSet, error) {
	if merger == nil {
		merger = record.DefaultMerger
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// next goes first: when it fails, nothing has been applied here.
	changed := record.NewChangeSet()
	if c.next != nil {
		nextChanged, err := c.next.MergeAll(ctx, recs, merger)
		if err != nil {
			return nil, err
		}
		changed.Union(nextChanged)
	}
	for _, rec := range recs {
		changed.Union(c.mergeLocked(rec, merger))
	}
	return changed, nil
}

func (c *MemoryCache) mergeLocked(rec *record.Record, merger record.Merger) record.ChangeSet {
	e, ok := c.get(rec.Key)
	if !ok {
		merged, changed := merger.Merge(nil, rec)
		c.put(merged, record.SizeEstimateBytes(merged))
		return changed
	}

	merged, changed := merger.Merge(e.rec, rec)
	if changed.Len() == 0 {
		e.expiresAt = c.now().Add(c.expireAfter)
		return changed
	}
	var changedFields []string
	for fieldKey := range merged.Fields {
		if changed.Contains(record.FieldID(rec.Key, fieldKey)) {
			changedFields = append(changedFields, fieldKey)
		}
	}
	c.put(merged, record.AdjustSizeEstimate(e.size, e.rec, merged, changedFields))
	return changed
}

func (c *MemoryCache) Remove(ctx context.Context, key string, cascade bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := false
	if c.next != nil {
		nextRemoved, err := c.next.Remove(ctx, key, cascade)
		if err != nil {
			return false, err
		}
		removed = nextRemoved
	}
	return c.removeLocked(key, cascade) || removed, nil
}

func (c *MemoryCache) removeLocked(key string, cascade bool) bool {
	e, ok := c.lru.Peek(key)
	if !ok {
		return false
	}
	c.lru.Remove(key)
	if !cascade {
		return true
	}
	for _, child := range e.rec.ReferencedKeys() {
		if !c.referenced(child) {
			c.removeLocked(child, true)
		}
	}
	return true
}

// referenced reports whether any stored record refers to key.
func (c *MemoryCache) referenced(key string) bool {
	for _, e := range c.lru.Values() {
		for _, ref := range e.rec.ReferencedKeys() {
			if ref == key {
				return true
			}
		}
	}
	return false
}

func (c *MemoryCache) ClearAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.next != nil {
		if err := c.next.ClearAll(ctx); err != nil {
			return err
		}
	}
	c.lru.Purge()
	c.size = 0
	return nil
}

func (c *MemoryCache) Dump(ctx context.Context) (map[string]*record.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]*record.Record)
	if c.next != nil {
		nextRecords, err := c.next.Dump(ctx)
		if err != nil {
			return nil, err
		}
		for k, r := range nextRecords {
			out[k] = r
		}
	}
	for _, key := range c.lru.Keys() {
		if e, ok := c.lru.Peek(key); ok && !c.expired(e) {
			out[key] = e.rec
		}
	}
	return out, nil
}
