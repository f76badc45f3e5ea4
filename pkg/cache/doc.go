/*
Package cache implements the tiered view cache.

A Cache is one tier: Read returns (nil, nil) on a clean miss, Write
replaces a view's entry atomically. Tiers are composed by Layered
rather than bespoke fallback chains per call site:

	┌──────────────── LAYERED CACHE ────────────────┐
	│                                                 │
	│   Read:  tier 1 (shared) → tier 2 (local)      │
	│   Write: tier 1, then tier 2 in sequence,      │
	│          success if either tier took it         │
	│                                                 │
	│   ReadWithFallback:                             │
	│     tier 1 hit        → return it               │
	│     miss/error        → fallback (snapshot or   │
	│                         delta path)             │
	│     fallback ok       → write through, return   │
	│     fallback failed   → tier 2 as last resort   │
	│                                                 │
	└─────────────────────────────────────────────────┘

Tier implementations: PostgresCache (durable shared store, upsert per
viewId), BoltCache (device-local file), MemoryCache (tests and
single-process runs). Open builds a tier from a DSN.

BoltCache also owns the one-shot key migration used when a view's
cache key scheme changes: copy-and-clear runs in a single transaction
guarded by a marker, so re-running it is a no-op.
*/
package cache
