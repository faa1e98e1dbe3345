// Package normcache defines the storage contract of the normalized cache and
// an in-memory LRU implementation of it.
package normcache

import (
	"context"

	"github.com/hanpama/gqlcache/internal/record"
)

// NormalizedCache stores records by key. Implementations must be safe for
// concurrent use and must apply each Merge or MergeAll atomically: load the
// existing record, merge, store. A MergeAll, Remove or ClearAll that returns
// an error must leave the stored records unchanged.
type NormalizedCache interface {
	// LoadRecord returns nil when key is not stored.
	LoadRecord(ctx context.Context, key string) (*record.Record, error)
	// LoadRecords returns the stored records among keys, in the order of keys.
	LoadRecords(ctx context.Context, keys []string) ([]*record.Record, error)
	Merge(ctx context.Context, rec *record.Record, merger record.Merger) (record.ChangeSet, error)
	MergeAll(ctx context.Context, recs []*record.Record, merger record.Merger) (record.ChangeSet, error)
	// Remove deletes key. With cascade, records reachable from it that
	// nothing else references are removed too.
	Remove(ctx context.Context, key string, cascade bool) (bool, error)
	ClearAll(ctx context.Context) error
	// Dump returns a snapshot of every stored record.
	Dump(ctx context.Context) (map[string]*record.Record, error)
}
