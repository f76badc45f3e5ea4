package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gridsync/gridsync/pkg/log"
	"github.com/gridsync/gridsync/pkg/metrics"
	"github.com/gridsync/gridsync/pkg/types"
	"github.com/rs/zerolog"
)

// Cache is one storage tier for view payloads. Read returns (nil, nil)
// on a clean miss; Write replaces the entry for its viewId atomically.
type Cache interface {
	Read(ctx context.Context, viewID string) (*types.CacheEntry, error)
	Write(ctx context.Context, entry *types.CacheEntry) error
	Close() error
}

// FallbackFn produces a payload when no tier can serve it, typically
// the snapshot/delta path. A nil payload with nil error means the
// source had nothing.
type FallbackFn func(ctx context.Context) (json.RawMessage, error)

// Layered composes two tiers into the canonical read/write path:
// probe the durable shared tier first, fall back to the local tier,
// and write through both in sequence.
type Layered struct {
	primary   Cache
	secondary Cache
	logger    zerolog.Logger
}

// NewLayered builds the two-tier cache. primary is the durable shared
// store, secondary the device-local store.
func NewLayered(primary, secondary Cache) *Layered {
	return &Layered{
		primary:   primary,
		secondary: secondary,
		logger:    log.WithComponent("cache"),
	}
}

// Read probes tier 1, then tier 2 on miss or error, returning the
// first hit. A tier error is degraded to a miss, not propagated.
func (l *Layered) Read(ctx context.Context, viewID string) (*types.CacheEntry, error) {
	entry, err := l.primary.Read(ctx, viewID)
	if err != nil {
		metrics.CacheReadsTotal.WithLabelValues("tier1", "error").Inc()
		l.logger.Warn().Err(err).Str("view_id", viewID).Msg("tier 1 read failed, degrading to tier 2")
	} else if entry != nil {
		metrics.CacheReadsTotal.WithLabelValues("tier1", "hit").Inc()
		return entry, nil
	} else {
		metrics.CacheReadsTotal.WithLabelValues("tier1", "miss").Inc()
	}

	entry, err = l.secondary.Read(ctx, viewID)
	if err != nil {
		metrics.CacheReadsTotal.WithLabelValues("tier2", "error").Inc()
		return nil, err
	}
	if entry != nil {
		metrics.CacheReadsTotal.WithLabelValues("tier2", "hit").Inc()
	} else {
		metrics.CacheReadsTotal.WithLabelValues("tier2", "miss").Inc()
	}
	return entry, nil
}

// Write writes through tier 1 and then tier 2. Tiers are written in
// sequence, never concurrently, so the local copy is at least as
// fresh as anything a later read can observe. The write succeeds if
// either tier took it: a tier 1 outage must not lose the payload.
func (l *Layered) Write(ctx context.Context, entry *types.CacheEntry) error {
	err1 := l.primary.Write(ctx, entry)
	if err1 != nil {
		metrics.CacheWritesTotal.WithLabelValues("tier1", "error").Inc()
		l.logger.Warn().Err(err1).Str("view_id", entry.ViewID).Msg("tier 1 write failed, keeping local copy")
	} else {
		metrics.CacheWritesTotal.WithLabelValues("tier1", "ok").Inc()
	}

	err2 := l.secondary.Write(ctx, entry)
	if err2 != nil {
		metrics.CacheWritesTotal.WithLabelValues("tier2", "error").Inc()
	} else {
		metrics.CacheWritesTotal.WithLabelValues("tier2", "ok").Inc()
	}

	if err1 != nil && err2 != nil {
		return err2
	}
	return nil
}

// ReadWithFallback is the canonical access pattern: try tier 1; on
// miss or error invoke fallback and write the result through before
// returning it; on fallback failure degrade to tier 2 as a last
// resort, and only then report the failure.
func (l *Layered) ReadWithFallback(ctx context.Context, viewID string, source types.SourceTag, fallback FallbackFn) (*types.CacheEntry, error) {
	entry, err := l.primary.Read(ctx, viewID)
	if err == nil && entry != nil {
		metrics.CacheReadsTotal.WithLabelValues("tier1", "hit").Inc()
		return entry, nil
	}
	if err != nil {
		metrics.CacheReadsTotal.WithLabelValues("tier1", "error").Inc()
	} else {
		metrics.CacheReadsTotal.WithLabelValues("tier1", "miss").Inc()
	}

	payload, ferr := fallback(ctx)
	if ferr == nil && payload != nil {
		entry = &types.CacheEntry{
			ViewID:    viewID,
			Payload:   payload,
			UpdatedAt: time.Now().UTC(),
			Source:    source,
		}
		if werr := l.Write(ctx, entry); werr != nil {
			l.logger.Warn().Err(werr).Str("view_id", viewID).Msg("write-through failed")
		}
		return entry, nil
	}

	entry, err = l.secondary.Read(ctx, viewID)
	if err == nil && entry != nil {
		metrics.CacheReadsTotal.WithLabelValues("tier2", "hit").Inc()
		return entry, nil
	}
	return nil, ferr
}

// Close closes both tiers
func (l *Layered) Close() error {
	err1 := l.primary.Close()
	err2 := l.secondary.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
