// Package blocklist provides IP blocking with expiring holds on top of
// the key-value store port.
package blocklist

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/guardrail/logging"
	"github.com/yourusername/guardrail/metrics"
	"github.com/yourusername/guardrail/store"
)

const blockKeyPrefix = "blocked:"

// DefaultBlockDuration is applied when Block is called with a
// non-positive duration.
const DefaultBlockDuration = time.Hour

// BlockList blocks and unblocks actors with a ttl. An actor is blocked
// iff its entry has not expired; expiry is enforced by the store, so no
// explicit unblock is ever required.
type BlockList struct {
	store   store.Store
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// New creates a block list over the given store. m may be nil.
func New(s store.Store, m *metrics.Metrics) *BlockList {
	return &BlockList{
		store:   s,
		metrics: m,
		log:     logging.With().Str("component", "blocklist").Logger(),
	}
}

func blockKey(actor string) string { return blockKeyPrefix + actor }

// Block blocks an actor for the given duration (default one hour).
// Re-blocking is idempotent: the ttl is reset to the new duration, never
// stacked.
func (b *BlockList) Block(ctx context.Context, actor string, duration time.Duration) error {
	if duration <= 0 {
		duration = DefaultBlockDuration
	}
	if err := b.store.Set(ctx, blockKey(actor), "1", duration); err != nil {
		return err
	}
	if b.metrics != nil {
		b.metrics.RecordBlock()
	}
	b.log.Info().Str("actor", actor).Dur("duration", duration).Msg("actor blocked")
	return nil
}

// IsBlocked reports whether an actor is currently blocked. When the store
// cannot be reached the answer is false: the engine fails open rather
// than locking out actors on infrastructure trouble.
func (b *BlockList) IsBlocked(ctx context.Context, actor string) bool {
	_, ok, err := b.store.Get(ctx, blockKey(actor))
	if err != nil {
		b.log.Warn().Err(err).Str("actor", actor).Msg("block check failed, failing open")
		return false
	}
	return ok
}

// Unblock removes an actor's block and reports whether one existed.
func (b *BlockList) Unblock(ctx context.Context, actor string) (bool, error) {
	removed, err := b.store.Delete(ctx, blockKey(actor))
	if err != nil {
		return false, err
	}
	if removed > 0 {
		b.log.Info().Str("actor", actor).Msg("actor unblocked")
	}
	return removed > 0, nil
}

// ListBlocked returns every currently blocked actor. Entries whose ttl
// has lapsed are excluded by the backend's own expiry.
func (b *BlockList) ListBlocked(ctx context.Context) ([]string, error) {
	keys, err := b.store.Keys(ctx, blockKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	actors := make([]string, 0, len(keys))
	for _, key := range keys {
		actors = append(actors, strings.TrimPrefix(key, blockKeyPrefix))
	}
	return actors, nil
}
