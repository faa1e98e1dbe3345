// Package denormalizer rebuilds GraphQL response data from normalized records
// with a breadth-first, depth-batched read.
//
// # Overview
//
// A read starts from one record (the operation root, or the entity a fragment
// is read from) and a selection tree. Records link to each other only through
// references, so every reference found while materializing one level is a unit
// of work for the next level. The reader:
//   - Loads all records of the current level with one RecordLoader.LoadRecords
//     call, after deduplicating their keys.
//   - Collects the selections that apply to each record's __typename, with the
//     same collector the normalizer writes with.
//   - Resolves every collected field through a Resolver and materializes the
//     value. Scalars, lists and embedded composites are finished immediately;
//     references are left as placeholders and queued for the next level.
//   - Repeats until no references are pending.
//
// A final top-down pass replaces each placeholder with the object materialized
// at its response path. Substitution follows the selection tree, not the
// record graph, so cyclic records terminate and an entity reached through two
// paths is materialized independently at each.
//
// For a response tree of reference depth d, LoadRecords is invoked exactly d
// times regardless of fan-out.
//
// # Errors
//
// Any error aborts the whole read; there is no partial data.
//   - CacheMissError: a referenced record, a selected field or a record's
//     __typename is absent. errors.Is(err, ErrCacheMiss) reports true.
//   - MissingValueError: a non-null field holds null.
//   - TypeMismatchError: the stored value does not have the shape the selection
//     asks for, such as a scalar under a field with sub-selections.
//
// The root record of an operation may be absent on a first read; it is then
// treated as an empty object and each selected root field reports a miss.
package denormalizer
