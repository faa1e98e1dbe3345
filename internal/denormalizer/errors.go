package denormalizer

import (
	"errors"
	"fmt"
)

// ErrCacheMiss matches every CacheMissError.
var ErrCacheMiss = errors.New("cache miss")

// CacheMissError reports a record or field that is not in the cache.
type CacheMissError struct {
	Key      string
	FieldKey string
}

func (e *CacheMissError) Error() string {
	if e.FieldKey == "" {
		return fmt.Sprintf("cache miss: no record for key %q", e.Key)
	}
	return fmt.Sprintf("cache miss: no field %q on record %q", e.FieldKey, e.Key)
}

func (e *CacheMissError) Is(target error) bool { return target == ErrCacheMiss }

// MissingValueError reports null stored for a non-null field.
type MissingValueError struct {
	Key      string
	FieldKey string
	Path     Path
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("non-null field %q on record %q is null at %s", e.FieldKey, e.Key, e.Path)
}

// TypeMismatchError reports a stored value whose shape does not match the
// selection reading it.
type TypeMismatchError struct {
	Path Path
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch at %s: expected %s, got %s", e.Path, e.Want, e.Got)
}
