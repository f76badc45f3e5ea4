package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gridsync/gridsync/pkg/cache"
	"github.com/gridsync/gridsync/pkg/events"
	"github.com/gridsync/gridsync/pkg/log"
	"github.com/gridsync/gridsync/pkg/metrics"
	"github.com/gridsync/gridsync/pkg/types"
	"github.com/rs/zerolog"
)

// Fetcher is the provider surface the syncer drives: the snapshot
// path for bootstrap and forced resync, the changes path for
// incremental catch-up. Implemented by the client package.
type Fetcher interface {
	Snapshot(ctx context.Context, sheet string) (*types.Snapshot, error)
	Changes(ctx context.Context, sheet string, since uint64) (*types.Delta, error)
}

// CachedView is the payload written through the tiered cache for a
// view: everything needed to serve rows and resume delta sync after a
// restart.
type CachedView struct {
	Sheet   string      `json:"sheetName"`
	Version uint64      `json:"version"`
	Headers []string    `json:"headers"`
	Rows    []types.Row `json:"rows"`
}

// Config holds syncer configuration
type Config struct {
	// PollInterval is how often registered views reconcile.
	// Defaults to 30s.
	PollInterval time.Duration

	// CallTimeout bounds each provider call. Defaults to 15s. A
	// timeout is a transient failure, retried on the next tick, not
	// a resync trigger.
	CallTimeout time.Duration
}

// Syncer drives the sync protocol for a set of registered views: it
// decides snapshot vs delta, applies results to in-memory row state,
// persists through the tiered cache, and exposes the presentation
// surface (current rows, sync status, explicit refresh).
type Syncer struct {
	fetcher   Fetcher
	cache     *cache.Layered
	broker    *events.Broker
	logger    zerolog.Logger
	cfg       Config
	sessionID string

	mu     sync.RWMutex
	views  map[string]*view
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a syncer. broker may be nil when nothing consumes
// lifecycle events.
func New(fetcher Fetcher, tiered *cache.Layered, broker *events.Broker, cfg Config) *Syncer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	return &Syncer{
		fetcher:   fetcher,
		cache:     tiered,
		broker:    broker,
		logger:    log.WithComponent("sync"),
		cfg:       cfg,
		sessionID: uuid.NewString(),
		views:     make(map[string]*view),
		stopCh:    make(chan struct{}),
	}
}

// Register adds a view over a sheet and hydrates it from the tiered
// cache if a payload is already present, so the UI has data to show
// before the first network round trip.
func (s *Syncer) Register(viewID, sheet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.views[viewID]; exists {
		return fmt.Errorf("view %s already registered", viewID)
	}

	v := &view{
		id:    viewID,
		sheet: sheet,
		state: types.SyncStateUninitialized,
		rows:  make(map[string]types.Row),
	}
	s.hydrate(v)
	s.views[viewID] = v
	return nil
}

// hydrate loads a previously cached payload without touching the
// network. Stale data is acceptable here; the next reconcile catches
// up from the cached version.
func (s *Syncer) hydrate(v *view) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()

	logger := log.WithView(v.id)
	entry, err := s.cache.Read(ctx, v.id)
	if err != nil || entry == nil {
		return
	}
	var cached CachedView
	if err := json.Unmarshal(entry.Payload, &cached); err != nil {
		logger.Warn().Err(err).Msg("discarding corrupt cached view")
		return
	}
	v.loadCached(&cached)
	if entry.Source == types.SourceMigration {
		s.publish(events.EventCacheMigrated, v)
	}
	logger.Info().
		Uint64("version", v.version).
		Msg("hydrated view from cache")
}

// Start begins the poll loop
func (s *Syncer) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop stops the poll loop. A sync already in flight completes and
// writes its result; no partial state is applied.
func (s *Syncer) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *Syncer) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.syncAll()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Syncer) syncAll() {
	s.mu.RLock()
	views := make([]*view, 0, len(s.views))
	for _, v := range s.views {
		views = append(views, v)
	}
	s.mu.RUnlock()

	for _, v := range views {
		if err := s.syncView(v); err != nil {
			s.logger.Warn().Err(err).Str("view_id", v.id).Msg("sync failed; will retry on next tick")
		}
	}
}

// RequestRefresh runs a sync for the view immediately. If a sync is
// already in flight it is left to finish and no second one is queued.
func (s *Syncer) RequestRefresh(viewID string) error {
	v, err := s.lookup(viewID)
	if err != nil {
		return err
	}
	return s.syncView(v)
}

// syncView performs one sync cycle for a view. A tick that fires
// while a previous sync is still outstanding is coalesced, not
// queued, so a single client can never race its own versions.
func (s *Syncer) syncView(v *view) error {
	if !v.inflight.CompareAndSwap(false, true) {
		metrics.SyncCoalescedTotal.Inc()
		return nil
	}
	defer v.inflight.Store(false)

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SyncDuration)

	// The call context is independent of the poll loop: a sync in
	// flight during teardown completes and writes its result.
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CallTimeout)
	defer cancel()

	var err error
	if v.needsBootstrap() {
		err = s.bootstrap(ctx, v)
	} else {
		err = s.reconcile(ctx, v)
	}

	if err != nil {
		metrics.SyncCyclesTotal.WithLabelValues("error").Inc()
		s.fail(v, err)
		return err
	}
	metrics.SyncCyclesTotal.WithLabelValues("ok").Inc()
	return nil
}

// bootstrap is the first-load path: serve from the tiered cache when
// it has a payload, otherwise fall back to a full snapshot and write
// it through.
func (s *Syncer) bootstrap(ctx context.Context, v *view) error {
	v.setState(types.SyncStateBootstrapping)

	entry, err := s.cache.ReadWithFallback(ctx, v.id, types.SourceClientRefresh, func(ctx context.Context) (json.RawMessage, error) {
		snap, err := s.fetcher.Snapshot(ctx, v.sheet)
		if err != nil {
			return nil, err
		}
		return json.Marshal(&CachedView{
			Sheet:   v.sheet,
			Version: snap.Version,
			Headers: snap.Headers,
			Rows:    snap.Rows,
		})
	})
	if err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("%w: no data for sheet %s", types.ErrTransient, v.sheet)
	}

	var cached CachedView
	if err := json.Unmarshal(entry.Payload, &cached); err != nil {
		return fmt.Errorf("corrupt view payload: %w", err)
	}
	v.loadCached(&cached)

	s.publish(events.EventSyncBootstrapped, v)
	s.logger.Info().
		Str("view_id", v.id).
		Uint64("version", v.version).
		Int("rows", len(v.rows)).
		Msg("view bootstrapped")
	return nil
}

// resync discards incremental state wholesale: fetch the full
// snapshot, overwrite local rows, and write through. This is the only
// path that throws away previously-applied changes.
func (s *Syncer) resync(ctx context.Context, v *view) error {
	metrics.ResyncsTotal.Inc()
	s.publish(events.EventSyncResync, v)

	snap, err := s.fetcher.Snapshot(ctx, v.sheet)
	if err != nil {
		// The resync is still owed; tag the error so callers can tell
		// "resync attempt failed" from an ordinary delta failure.
		return fmt.Errorf("%w: %w", types.ErrResyncRequired, err)
	}
	v.loadSnapshot(snap)
	if err := s.writeThrough(ctx, v, types.SourceClientRefresh); err != nil {
		s.logger.Warn().Err(err).Str("view_id", v.id).Msg("cache write-through failed")
	}

	s.logger.Info().
		Str("view_id", v.id).
		Uint64("version", v.version).
		Msg("full resync complete")
	return nil
}

// reconcile is the steady-state path: fetch changes since the stored
// version and apply them in ascending changeId order. Only a fully
// successful application advances the stored version.
func (s *Syncer) reconcile(ctx context.Context, v *view) error {
	v.setState(types.SyncStateReconciling)

	delta, err := s.fetcher.Changes(ctx, v.sheet, v.currentVersion())
	if err != nil {
		return err
	}

	if delta.NeedsFullResync {
		// The returned change list cannot be trusted; discard it.
		return s.resync(ctx, v)
	}

	applied := v.applyDelta(delta)
	if applied > 0 {
		metrics.DeltasAppliedTotal.Add(float64(applied))
		if err := s.writeThrough(ctx, v, types.SourceDeltaSync); err != nil {
			s.logger.Warn().Err(err).Str("view_id", v.id).Msg("cache write-through failed")
		}
		s.publish(events.EventSyncApplied, v)
		s.logger.Debug().
			Str("view_id", v.id).
			Int("changes", applied).
			Uint64("version", v.currentVersion()).
			Msg("delta applied")
	} else {
		v.setState(types.SyncStateSynced)
	}
	return nil
}

// fail records the error without touching previously-synced state: a
// view that has data returns to Synced with its old version; a view
// that never completed a load goes to Failed. The next tick retries;
// never an immediate retry, to avoid tight failure loops.
func (s *Syncer) fail(v *view, err error) {
	v.recordFailure(err)
	s.publish(events.EventSyncFailed, v)
}

func (s *Syncer) writeThrough(ctx context.Context, v *view, source types.SourceTag) error {
	payload, err := json.Marshal(v.cachedView())
	if err != nil {
		return err
	}
	return s.cache.Write(ctx, &types.CacheEntry{
		ViewID:    v.id,
		Payload:   payload,
		UpdatedAt: time.Now().UTC(),
		Source:    source,
	})
}

func (s *Syncer) publish(t events.EventType, v *view) {
	if s.broker == nil {
		return
	}
	status := v.status()
	ev := &events.Event{
		Type:    t,
		Sheet:   v.sheet,
		ViewID:  v.id,
		Version: status.LastVersion,
		Metadata: map[string]string{
			"session": s.sessionID,
		},
	}
	if status.LastError != "" {
		ev.Message = status.LastError
	}
	s.broker.Publish(ev)
}

func (s *Syncer) lookup(viewID string) (*view, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[viewID]
	if !ok {
		return nil, fmt.Errorf("%w: view %s", types.ErrNotFound, viewID)
	}
	return v, nil
}

// GetCurrentRows returns the view's rows ordered by sheet position.
// The slice is a copy; callers may not observe partial applications.
func (s *Syncer) GetCurrentRows(viewID string) ([]types.Row, error) {
	v, err := s.lookup(viewID)
	if err != nil {
		return nil, err
	}
	return v.snapshotRows(), nil
}

// GetSyncState returns the view's sync status for the UI's staleness
// indicator.
func (s *Syncer) GetSyncState(viewID string) (types.ViewStatus, error) {
	v, err := s.lookup(viewID)
	if err != nil {
		return types.ViewStatus{}, err
	}
	return v.status(), nil
}

// sortRows orders rows by their sheet position.
func sortRows(rows []types.Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].RowIndex != rows[j].RowIndex {
			return rows[i].RowIndex < rows[j].RowIndex
		}
		return rows[i].Key < rows[j].Key
	})
}
