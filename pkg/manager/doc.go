/*
Package manager coordinates gridsync's server-side state: it is the
single writer through which every edit reaches the row store and the
change log, and it answers the snapshot and delta queries the API
serves.

# Responsibilities

  - ApplyEdit: upsert a row by business key, diff changed columns,
    and allocate the next version through the ledger. Edits are
    serialized by a single mutex, so version allocation never races.
  - Snapshot: full authoritative state plus the current version, read
    from the same counter the ledger allocates from. Fails NotFound
    for missing or empty sheets and SchemaError when the key column
    is absent from headers.
  - Changes: the delta query with resync detection: truncation
    (baseline evicted), inconsistency (empty delta below current),
    and counter reset (current below baseline) all answer with
    needsFullResync so clients fall back to a snapshot.
  - Source binding: a sheet can mirror a CSV file on disk; fsnotify
    triggers a diff-by-key reload that feeds the normal edit path.

Lifecycle events (sheet.loaded, sheet.edited, log.truncated) are
published on the manager's broker for the websocket feed.
*/
package manager
