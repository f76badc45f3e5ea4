package sync

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gridsync/gridsync/pkg/types"
)

// view is the per-view sync state machine:
//
//	Uninitialized → Bootstrapping → Synced → Reconciling → Synced | Failed
//
// All mutable fields are guarded by mu; inflight provides the
// coalescing guard for overlapping sync attempts.
type view struct {
	id    string
	sheet string

	inflight atomic.Bool

	mu       sync.RWMutex
	state    types.SyncState
	version  uint64
	headers  []string
	rows     map[string]types.Row
	lastErr  string
	lastSync time.Time
}

func (v *view) currentState() types.SyncState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// needsBootstrap reports whether the view has no established baseline
// to reconcile from: never initialized, or a bootstrap that failed
// before any data arrived. Such a view must not issue a delta request;
// since 0 is a first-time load and goes through the snapshot path.
func (v *view) needsBootstrap() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.state == types.SyncStateUninitialized {
		return true
	}
	return v.version == 0 && len(v.rows) == 0
}

func (v *view) currentVersion() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

func (v *view) setState(s types.SyncState) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

// loadCached replaces the view's state from a cached payload.
func (v *view) loadCached(cached *CachedView) {
	rows := make(map[string]types.Row, len(cached.Rows))
	for _, r := range cached.Rows {
		rows[r.Key] = r
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = types.SyncStateSynced
	v.version = cached.Version
	v.headers = cached.Headers
	v.rows = rows
	v.lastErr = ""
	v.lastSync = time.Now().UTC()
}

// loadSnapshot overwrites the view's state wholesale from a snapshot.
func (v *view) loadSnapshot(snap *types.Snapshot) {
	v.loadCached(&CachedView{
		Sheet:   snap.Sheet,
		Version: snap.Version,
		Headers: snap.Headers,
		Rows:    snap.Rows,
	})
}

// applyDelta applies changes in ascending changeId order: each change
// upserts the row identified by its key with the full new values, so
// the later changeId wins on the same key and re-applying a change
// set is idempotent. The stored version only moves forward, and only
// after every change has been applied.
func (v *view) applyDelta(delta *types.Delta) int {
	changes := make([]types.ChangeRecord, len(delta.Changes))
	copy(changes, delta.Changes)
	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].ChangeID < changes[j].ChangeID
	})

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, ch := range changes {
		v.rows[ch.Key] = types.Row{
			Key:      ch.Key,
			RowIndex: ch.RowIndex,
			Values:   ch.Values,
		}
	}
	if delta.ToVersion > v.version {
		v.version = delta.ToVersion
	}
	v.state = types.SyncStateSynced
	v.lastErr = ""
	v.lastSync = time.Now().UTC()
	return len(changes)
}

// recordFailure preserves previously-synced state: a view with data
// returns to Synced at its old version; a view that never loaded goes
// to Failed.
func (v *view) recordFailure(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastErr = err.Error()
	if v.version == 0 && len(v.rows) == 0 {
		v.state = types.SyncStateFailed
		return
	}
	v.state = types.SyncStateSynced
}

func (v *view) status() types.ViewStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return types.ViewStatus{
		ViewID:      v.id,
		Sheet:       v.sheet,
		State:       v.state,
		LastVersion: v.version,
		LastSyncAt:  v.lastSync,
		LastError:   v.lastErr,
	}
}

func (v *view) snapshotRows() []types.Row {
	v.mu.RLock()
	rows := make([]types.Row, 0, len(v.rows))
	for _, r := range v.rows {
		rows = append(rows, r)
	}
	v.mu.RUnlock()

	sortRows(rows)
	return rows
}

func (v *view) cachedView() *CachedView {
	v.mu.RLock()
	defer v.mu.RUnlock()
	rows := make([]types.Row, 0, len(v.rows))
	for _, r := range v.rows {
		rows = append(rows, r)
	}
	sortRows(rows)
	return &CachedView{
		Sheet:   v.sheet,
		Version: v.version,
		Headers: v.headers,
		Rows:    rows,
	}
}
