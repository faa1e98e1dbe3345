package reqid

import (
	"context"

	"github.com/google/uuid"
)

// key is the context key for the request ID.
type key struct{}

// NewContext returns a copy of parent with a new random request ID stored.
// It also returns the generated ID.
func NewContext(parent context.Context) (context.Context, uuid.UUID) {
	id := uuid.New()
	return context.WithValue(parent, key{}, id), id
}

// Ensure returns ctx unchanged when it already carries a request ID, and a
// copy with a new one otherwise.
func Ensure(ctx context.Context) (context.Context, uuid.UUID) {
	if id, ok := FromContext(ctx); ok {
		return ctx, id
	}
	return NewContext(ctx)
}

// FromContext extracts the request ID from ctx.
// It returns the ID and whether it was present.
func FromContext(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(key{})
	id, ok := v.(uuid.UUID)
	return id, ok
}
