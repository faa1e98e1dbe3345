package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/hanpama/gqlcache/internal/record"
)

// RecordsChanged is published after a write, rollback or explicit Publish
// has been committed. Changed holds "<recordKey>.<fieldKey>" ids.
type RecordsChanged struct {
	Changed    record.ChangeSet
	MutationID uuid.UUID
}

// ReadStart is emitted before denormalizing an operation or fragment.
type ReadStart struct {
	Operation string
	RootKey   string
}

// ReadFinish is emitted after a read, successful or not.
type ReadFinish struct {
	Operation string
	RootKey   string
	Err       error
	Duration  time.Duration
}

// WriteStart is emitted before normalizing response data into the store.
// MutationID is uuid.Nil for writes to the base cache.
type WriteStart struct {
	Operation  string
	RootKey    string
	MutationID uuid.UUID
}

// WriteFinish is emitted after a write, successful or not.
type WriteFinish struct {
	Operation  string
	RootKey    string
	MutationID uuid.UUID
	Records    int
	Changed    int
	Err        error
	Duration   time.Duration
}

// RollbackFinish is emitted after an optimistic layer has been discarded.
type RollbackFinish struct {
	MutationID uuid.UUID
	Found      bool
	Changed    int
}
