package types

import (
	"encoding/json"
	"time"
)

// ChangeRecord is one row-level edit in a sheet's change log.
// Records are immutable once written; ChangeID values are strictly
// increasing in log order and unique within a sheet's log.
type ChangeRecord struct {
	ChangeID       uint64    `json:"changeId"`
	Timestamp      time.Time `json:"timestampUtc"`
	Sheet          string    `json:"sheetName"`
	RowIndex       int       `json:"rowIndex"`
	Key            string    `json:"key"`
	ChangedColumns []string  `json:"changedColumns"`
	Values         []string  `json:"values"`
}

// Row is a single sheet row keyed by business key. Position (RowIndex)
// may change independently of identity.
type Row struct {
	Key      string   `json:"key"`
	RowIndex int      `json:"rowIndex,omitempty"`
	Values   []string `json:"values"`
}

// SheetMeta describes a monitored sheet: its header schema and the
// column whose value is the business key of each row.
type SheetMeta struct {
	Name      string    `json:"name"`
	KeyColumn string    `json:"keyColumn"`
	Headers   []string  `json:"headers"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// KeyIndex returns the position of the key column in the header
// schema, or -1 when the configured key column is absent.
func (m *SheetMeta) KeyIndex() int {
	for i, h := range m.Headers {
		if h == m.KeyColumn {
			return i
		}
	}
	return -1
}

// Snapshot is the full authoritative state of a sheet at a version.
// A client that stores Version can request deltas from exactly this
// point forward without gap or overlap.
type Snapshot struct {
	Sheet       string    `json:"sheetName"`
	Version     uint64    `json:"version"`
	Headers     []string  `json:"headers"`
	Rows        []Row     `json:"rows"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Delta is the result of a changes query against the log.
type Delta struct {
	Sheet           string         `json:"sheetName"`
	FromVersion     uint64         `json:"fromVersion"`
	ToVersion       uint64         `json:"toVersion"`
	Changes         []ChangeRecord `json:"changes"`
	NeedsFullResync bool           `json:"needsFullResync"`
}

// SourceTag records what produced a cache entry.
type SourceTag string

const (
	SourceClientRefresh SourceTag = "client-refresh"
	SourceDeltaSync     SourceTag = "delta-sync"
	SourceMigration     SourceTag = "migration"
)

// CacheEntry is one cached payload for a view. Each write replaces
// the entry atomically for its ViewID; entries are never partially
// updated.
type CacheEntry struct {
	ViewID    string          `json:"viewId"`
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Source    SourceTag       `json:"sourceTag"`
}

// SyncState is the state of one view's sync machine.
type SyncState string

const (
	SyncStateUninitialized SyncState = "uninitialized"
	SyncStateBootstrapping SyncState = "bootstrapping"
	SyncStateSynced        SyncState = "synced"
	SyncStateReconciling   SyncState = "reconciling"
	SyncStateFailed        SyncState = "failed"
)

// ViewStatus is the sync status surfaced to the presentation layer.
type ViewStatus struct {
	ViewID      string    `json:"viewId"`
	Sheet       string    `json:"sheetName"`
	State       SyncState `json:"state"`
	LastVersion uint64    `json:"lastVersion"`
	LastSyncAt  time.Time `json:"lastSyncAt,omitempty"`
	LastError   string    `json:"lastError,omitempty"`
}

// AuthMode tags responses with how the serving side authenticates.
type AuthMode string

const (
	AuthModeToken AuthMode = "token"
	AuthModeOpen  AuthMode = "open"
)
