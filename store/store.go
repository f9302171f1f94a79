package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// TTL sentinel values, matching the store convention: a key with no expiry
// reports TTLNone, a missing key reports TTLMissing.
const (
	TTLNone    = -1 * time.Second
	TTLMissing = -2 * time.Second
)

var (
	// ErrNotImplemented is returned by backends that do not support an
	// operation (the in-memory backend has no sorted sets).
	ErrNotImplemented = errors.New("operation not implemented by this backend")

	// ErrClosed is returned after Close has been called.
	ErrClosed = errors.New("store is closed")
)

// StoreError wraps a backend failure with the backend name and operation.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Pipe collects commands to be applied as a single atomic batch.
// Callers must not assume partial success: either every queued command
// is applied or none is.
type Pipe interface {
	Set(key, value string, ttl time.Duration)
	Expire(key string, ttl time.Duration)
	SortedSetAdd(key string, score float64, member string)
	SortedSetTrimByRank(key string, start, stop int64)
	HashIncrement(key, field string, delta int64)
}

// Store is the key-value port every backend must satisfy. Values are
// strings; structured payloads are JSON-serialized by callers. A ttl of
// zero means no expiry.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)

	// Increment atomically increments the integer value at key, creating
	// it at 1 if absent.
	Increment(ctx context.Context, key string) (int64, error)

	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)

	SortedSetAdd(ctx context.Context, key string, score float64, member string) error
	SortedSetRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	SortedSetRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)
	SortedSetTrimByRank(ctx context.Context, key string, start, stop int64) (int64, error)
	SortedSetRemoveByScore(ctx context.Context, key string, min, max float64) (int64, error)

	HashIncrement(ctx context.Context, key, field string, delta int64) (int64, error)
	HashGetAll(ctx context.Context, key string) (map[string]string, error)

	// Keys returns keys matching a glob pattern. Backends may implement
	// this as an O(n) scan; key spaces are expected to stay small.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Pipeline applies every command queued by fn as one atomic batch.
	Pipeline(ctx context.Context, fn func(Pipe) error) error

	Ping(ctx context.Context) error
	Close() error
}
