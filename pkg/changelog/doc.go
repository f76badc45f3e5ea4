/*
Package changelog implements the append-only, monotonically-versioned
ledger of row-level edits.

The Ledger layers edit qualification and tolerant parsing over the
storage package's raw change log:

  - Append rejects edits with no resolvable business key, edits to the
    header row, and edits to the log sheet itself as no-ops, not
    errors, since such edits carry no identity to track.
  - Scan exposes the log as a sequence of parse results (record or
    skip reason), so a single corrupt JSON entry is skipped and logged
    without aborting the rest of the batch.
  - Version numbers are allocated by the store's per-sheet sequence,
    atomically with the record write.

Truncate models the operator clearing the log for storage management;
it also resets the counter, which the delta provider must detect and
answer with a full-resync signal.
*/
package changelog
