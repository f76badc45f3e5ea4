/*
Package storage provides BoltDB-backed persistence for gridsync's
authoritative sheet data.

The storage package implements the Store interface using BoltDB,
holding sheet schemas, current row state, and the append-only change
log. All data is serialized as JSON; rows and change records live in
one sub-bucket per sheet so each sheet has an isolated key space and
its own monotonic sequence.

# Bucket Structure

	┌─────────────── BOLTDB STORAGE ───────────────┐
	│                                                │
	│  sheets                                        │
	│    <sheet name> → SheetMeta JSON               │
	│                                                │
	│  rows                                          │
	│    <sheet name>/                               │
	│      <business key> → Row JSON                 │
	│                                                │
	│  changelog                                     │
	│    <sheet name>/            (owns sequence)    │
	│      <changeId, 8B BE> → ChangeRecord JSON     │
	│                                                │
	└────────────────────────────────────────────────┘

# Version Allocation

Each sheet's change-log sub-bucket owns the sheet's version counter
via BoltDB's bucket sequence. AppendChange calls NextSequence inside
the same write transaction that puts the record, so allocation is
atomic and strictly increasing. ClearChanges drops the sub-bucket,
which also resets the counter, the operator-truncation case the
delta provider must detect.

# Transaction Model

  - Read: db.View(): concurrent, consistent snapshots
  - Write: db.Update(): serialized, atomic commits
  - Change scans copy values out of the transaction before returning

ChangesSince returns raw bytes rather than parsed records; the
changelog package layers tolerant parsing on top so a single corrupt
entry is skipped instead of failing the batch.
*/
package storage
