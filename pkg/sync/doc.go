/*
Package sync implements the client side of the incremental
synchronization protocol.

Each registered view runs a small state machine:

	Uninitialized → Bootstrapping → Synced → Reconciling → Synced | Failed

A Failed view (no data ever loaded) retries through Bootstrapping; a
view that has data returns to Synced after a failure and reconciles
on the next tick.

	┌───────────────────── SYNC CYCLE ─────────────────────┐
	│                                                        │
	│  poll tick / explicit refresh                          │
	│        │                                               │
	│        ▼                                               │
	│  in flight already?  ── yes ──▶ coalesce (skip)        │
	│        │ no                                            │
	│        ▼                                               │
	│  no version known ──▶ bootstrap:                       │
	│     tiered cache → snapshot fallback → write through   │
	│        │                                               │
	│  version known ──▶ reconcile:                          │
	│     fetch changes since version                        │
	│     needsFullResync? ──▶ snapshot, overwrite wholesale │
	│     else apply ascending by changeId (LWW per key),    │
	│     store toVersion, write through                     │
	│        │                                               │
	│  failure ──▶ keep previous rows and version,           │
	│     surface error, retry on next tick                  │
	│                                                        │
	└────────────────────────────────────────────────────────┘

Guarantees:

  - the stored version is non-decreasing across successful syncs;
  - only a fully successful snapshot or delta application advances it;
  - re-applying a change set is idempotent (each change carries the
    full row values);
  - at most one sync is in flight per view; an overlapping tick is
    skipped, not queued.

The presentation surface (GetCurrentRows, GetSyncState,
RequestRefresh) is what the UI layer consumes; it never blocks on a
failed sync and always serves the last successfully synced data.
*/
package sync
