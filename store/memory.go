package store

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"sync"
	"time"
)

// sweepInterval is how often the background sweeper evicts expired entries.
const sweepInterval = 1 * time.Second

// MemoryStore is a single-process backend for local and edge execution.
// Plain key, counter and hash operations are fully supported; sorted-set
// operations return ErrNotImplemented, so callers degrade analytics to
// their own bounded structures. Blocking correctness is unaffected.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	stop    chan struct{}
	closed  bool
}

type memEntry struct {
	value     string
	hash      map[string]int64
	expiresAt time.Time // zero means no expiry
}

func (e *memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store and starts its expiry sweeper.
// Call Close to stop the sweeper.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memEntry),
		stop:    make(chan struct{}),
	}
	go s.sweep()
	return s
}

// sweep evicts expired entries on a fixed interval. Each pass holds the
// lock only while scanning, never across ticks, so ingestion is never
// blocked for longer than one pass.
func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, entry := range s.entries {
				if entry.expired(now) {
					delete(s.entries, key)
				}
			}
			s.mu.Unlock()
		case <-s.stop:
			return
		}
	}
}

// live returns the entry for key, lazily evicting it when expired.
// Lazy expiry on access is the correctness backstop independent of
// sweeper timing. Callers must hold s.mu.
func (s *MemoryStore) live(key string, now time.Time) *memEntry {
	entry, ok := s.entries[key]
	if !ok {
		return nil
	}
	if entry.expired(now) {
		delete(s.entries, key)
		return nil
	}
	return entry
}

func (s *MemoryStore) err(op string, err error) error {
	return &StoreError{Backend: "memory", Op: op, Err: err}
}

// Get retrieves the value for key. Expired entries read as absent.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, s.err("get", ErrClosed)
	}
	entry := s.live(key, time.Now())
	if entry == nil {
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key. A zero ttl means no expiry.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.err("set", ErrClosed)
	}
	s.setLocked(key, value, ttl)
	return nil
}

func (s *MemoryStore) setLocked(key, value string, ttl time.Duration) {
	entry := &memEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries[key] = entry
}

// Delete removes the given keys and reports how many existed.
func (s *MemoryStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, s.err("delete", ErrClosed)
	}
	now := time.Now()
	var removed int64
	for _, key := range keys {
		if s.live(key, now) != nil {
			removed++
		}
		delete(s.entries, key)
	}
	return removed, nil
}

// Increment atomically increments the integer at key, creating it at 1.
func (s *MemoryStore) Increment(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, s.err("incr", ErrClosed)
	}
	now := time.Now()
	entry := s.live(key, now)
	if entry == nil {
		s.entries[key] = &memEntry{value: "1"}
		return 1, nil
	}
	n, err := strconv.ParseInt(entry.value, 10, 64)
	if err != nil {
		return 0, s.err("incr", fmt.Errorf("value at %q is not an integer", key))
	}
	n++
	entry.value = strconv.FormatInt(n, 10)
	return n, nil
}

// Expire sets a ttl on an existing key. Returns false when the key is absent.
func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, s.err("expire", ErrClosed)
	}
	entry := s.live(key, time.Now())
	if entry == nil {
		return false, nil
	}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	} else {
		entry.expiresAt = time.Time{}
	}
	return true, nil
}

// TTL reports the remaining lifetime of key, TTLNone for no expiry and
// TTLMissing for an absent key.
func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, s.err("ttl", ErrClosed)
	}
	now := time.Now()
	entry := s.live(key, now)
	if entry == nil {
		return TTLMissing, nil
	}
	if entry.expiresAt.IsZero() {
		return TTLNone, nil
	}
	return entry.expiresAt.Sub(now), nil
}

// Sorted sets are deliberately unimplemented: this backend trades
// analytics fidelity for zero external dependencies. The event log
// detects ErrNotImplemented and falls back to a bounded local list.

func (s *MemoryStore) SortedSetAdd(ctx context.Context, key string, score float64, member string) error {
	return s.err("zadd", ErrNotImplemented)
}

func (s *MemoryStore) SortedSetRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return nil, s.err("zrange", ErrNotImplemented)
}

func (s *MemoryStore) SortedSetRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return nil, s.err("zrangebyscore", ErrNotImplemented)
}

func (s *MemoryStore) SortedSetTrimByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	return 0, s.err("zremrangebyrank", ErrNotImplemented)
}

func (s *MemoryStore) SortedSetRemoveByScore(ctx context.Context, key string, min, max float64) (int64, error) {
	return 0, s.err("zremrangebyscore", ErrNotImplemented)
}

// HashIncrement increments field in the hash at key, creating both as needed.
func (s *MemoryStore) HashIncrement(ctx context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, s.err("hincrby", ErrClosed)
	}
	n, err := s.hashIncrementLocked(key, field, delta)
	if err != nil {
		return 0, s.err("hincrby", err)
	}
	return n, nil
}

func (s *MemoryStore) hashIncrementLocked(key, field string, delta int64) (int64, error) {
	entry := s.live(key, time.Now())
	if entry == nil {
		entry = &memEntry{hash: make(map[string]int64)}
		s.entries[key] = entry
	}
	if entry.hash == nil {
		return 0, fmt.Errorf("value at %q is not a hash", key)
	}
	entry.hash[field] += delta
	return entry.hash[field], nil
}

// HashGetAll returns every field of the hash at key; an absent key reads
// as an empty map.
func (s *MemoryStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, s.err("hgetall", ErrClosed)
	}
	out := make(map[string]string)
	entry := s.live(key, time.Now())
	if entry == nil {
		return out, nil
	}
	if entry.hash == nil {
		return nil, s.err("hgetall", fmt.Errorf("value at %q is not a hash", key))
	}
	for field, n := range entry.hash {
		out[field] = strconv.FormatInt(n, 10)
	}
	return out, nil
}

// Keys returns all live keys matching the glob pattern. O(n) scan.
func (s *MemoryStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, s.err("keys", ErrClosed)
	}
	now := time.Now()
	var matched []string
	for key, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, key)
			continue
		}
		ok, err := path.Match(pattern, key)
		if err != nil {
			return nil, s.err("keys", err)
		}
		if ok {
			matched = append(matched, key)
		}
	}
	return matched, nil
}

// memPipe buffers commands so Pipeline can apply them under one lock.
type memPipe struct {
	cmds        []func(*MemoryStore)
	unsupported bool
}

func (p *memPipe) Set(key, value string, ttl time.Duration) {
	p.cmds = append(p.cmds, func(s *MemoryStore) { s.setLocked(key, value, ttl) })
}

func (p *memPipe) Expire(key string, ttl time.Duration) {
	p.cmds = append(p.cmds, func(s *MemoryStore) {
		if entry := s.live(key, time.Now()); entry != nil && ttl > 0 {
			entry.expiresAt = time.Now().Add(ttl)
		}
	})
}

func (p *memPipe) SortedSetAdd(key string, score float64, member string) { p.unsupported = true }

func (p *memPipe) SortedSetTrimByRank(key string, start, stop int64) { p.unsupported = true }

func (p *memPipe) HashIncrement(key, field string, delta int64) {
	p.cmds = append(p.cmds, func(s *MemoryStore) { s.hashIncrementLocked(key, field, delta) })
}

// Pipeline applies the queued commands as a unit under a single lock
// acquisition. A pipeline containing any sorted-set command fails whole
// with ErrNotImplemented and applies nothing.
func (s *MemoryStore) Pipeline(ctx context.Context, fn func(Pipe) error) error {
	pipe := &memPipe{}
	if err := fn(pipe); err != nil {
		return err
	}
	if pipe.unsupported {
		return s.err("pipeline", ErrNotImplemented)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.err("pipeline", ErrClosed)
	}
	for _, cmd := range pipe.cmds {
		cmd(s)
	}
	return nil
}

// Ping always succeeds while the store is open.
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return s.err("ping", ErrClosed)
	}
	return nil
}

// Close stops the sweeper and drops all entries.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.stop)
	s.entries = make(map[string]*memEntry)
	return nil
}
