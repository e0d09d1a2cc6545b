// Package counter provides the key/value primitive every admission gate is
// built on: an atomic increment that creates keys with a TTL, plus plain
// get/set/delete of short-lived values.
//
// Two backends implement Backend. RedisBackend is shared by every process
// pointing at the same Redis. MemoryBackend is local to one process; replicas
// using it each enforce their own view of every limit.
package counter

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by operations on a backend after Close.
var ErrClosed = errors.New("counter backend closed")

// Backend must be safe for concurrent use.
type Backend interface {
	// Increment adds one to key and returns the new value. A key created by
	// this call expires after ttl; an existing key keeps its expiry. A ttl of
	// zero means no expiry.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Get returns the value stored at key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value at key, replacing any previous value and expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Ping(ctx context.Context) error

	Close() error
}
