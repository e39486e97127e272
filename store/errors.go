package store

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Error taxonomy for the coordination layer. Errors returned by Store
// methods are marked with exactly one of these references so callers can
// branch with errors.Is without inspecting redis internals.
var (
	// ErrStoreUnavailable marks connection, timeout, and protocol failures
	// talking to the backing store.
	ErrStoreUnavailable = errors.New("backing store unavailable")

	// ErrSerialization marks payloads that cannot be encoded or decoded.
	ErrSerialization = errors.New("payload serialization failed")

	// ErrInvalidState marks keys whose stored value does not have the type
	// an operation requires, e.g. a version counter holding a non-integer.
	ErrInvalidState = errors.New("key holds unexpected value type")

	// ErrContention marks a lock that could not be acquired after all
	// retries. It is never produced by Store itself, only by lock.
	ErrContention = errors.New("resource contended")
)

// classify wraps a raw redis client error with the matching taxonomy mark.
// redis.Nil is not an error at this layer; callers translate it to a miss.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	msg := err.Error()
	if strings.Contains(msg, "not an integer") || strings.Contains(msg, "WRONGTYPE") {
		return errors.Mark(errors.Wrapf(err, "store: %s", op), ErrInvalidState)
	}
	return errors.Mark(errors.Wrapf(err, "store: %s", op), ErrStoreUnavailable)
}
