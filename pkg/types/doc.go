// Package types defines the shared data model for gridsync: change
// records, rows, snapshots, deltas, cache entries, sync states and the
// error taxonomy used across the server and client packages.
package types
