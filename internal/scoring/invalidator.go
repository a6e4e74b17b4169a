package scoring

import (
	"context"

	"trustline/internal/events"
	"trustline/internal/ledger"
)

// ScoreDropper is the slice of the cache the invalidator needs.
type ScoreDropper interface {
	Invalidate(ctx context.Context, subject ledger.Subject) error
}

// CacheInvalidator is an event sink that drops a subject's cached scorecard
// whenever one of their loans transitions, so the next score read reprices
// instead of waiting out the TTL.
type CacheInvalidator struct {
	cache ScoreDropper
}

// NewCacheInvalidator wires the cache into the event pipeline.
func NewCacheInvalidator(cache ScoreDropper) *CacheInvalidator {
	return &CacheInvalidator{cache: cache}
}

// Name identifies the sink in logs and metrics.
func (i *CacheInvalidator) Name() string { return "scorecard_cache" }

// Publish invalidates the cached scorecard for the event's subject.
func (i *CacheInvalidator) Publish(ctx context.Context, event events.Event) error {
	if event.Subject == "" {
		return nil
	}
	return i.cache.Invalidate(ctx, event.Subject)
}
