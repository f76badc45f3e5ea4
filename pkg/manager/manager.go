package manager

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gridsync/gridsync/pkg/changelog"
	"github.com/gridsync/gridsync/pkg/events"
	"github.com/gridsync/gridsync/pkg/log"
	"github.com/gridsync/gridsync/pkg/metrics"
	"github.com/gridsync/gridsync/pkg/storage"
	"github.com/gridsync/gridsync/pkg/types"
	"github.com/rs/zerolog"
)

// Config holds manager configuration
type Config struct {
	DataDir string

	// DefaultKeyColumn names the business-key column used when a
	// source binding does not set its own. Defaults to "Key".
	DefaultKeyColumn string
}

// Manager owns the authoritative sheet state: it applies edits,
// allocates versions through the ledger, and answers snapshot and
// delta queries.
type Manager struct {
	store  storage.Store
	ledger *changelog.Ledger
	broker *events.Broker
	logger zerolog.Logger
	keyCol string

	// Serializes edits. Version allocation never races because every
	// edit to any sheet funnels through this one writer.
	editMu sync.Mutex

	sourceMu sync.Mutex
	sources  map[string]*source
}

// NewManager creates a new manager with BoltDB-backed storage
func NewManager(cfg *Config) (*Manager, error) {
	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return NewWithStore(store, cfg.DefaultKeyColumn), nil
}

// NewWithStore creates a manager over an existing store
func NewWithStore(store storage.Store, defaultKeyColumn string) *Manager {
	if defaultKeyColumn == "" {
		defaultKeyColumn = "Key"
	}

	broker := events.NewBroker()
	broker.Start()

	return &Manager{
		store:   store,
		ledger:  changelog.NewLedger(store),
		broker:  broker,
		logger:  log.WithComponent("manager"),
		keyCol:  defaultKeyColumn,
		sources: make(map[string]*source),
	}
}

// Close stops source watchers and closes the store
func (m *Manager) Close() error {
	m.StopSources()
	m.broker.Stop()
	return m.store.Close()
}

// Broker returns the manager's event broker
func (m *Manager) Broker() *events.Broker {
	return m.broker
}

// Ledger returns the change-log ledger
func (m *Manager) Ledger() *changelog.Ledger {
	return m.ledger
}

// CreateSheet registers a sheet with its header schema and key column.
// The key column may be absent from headers; that misconfiguration
// surfaces as a SchemaError on snapshot, not here.
func (m *Manager) CreateSheet(name, keyColumn string, headers []string) error {
	if name == changelog.LogSheet {
		return fmt.Errorf("sheet name %q is reserved", name)
	}
	if keyColumn == "" {
		keyColumn = m.keyCol
	}
	return m.store.PutSheet(&types.SheetMeta{
		Name:      name,
		KeyColumn: keyColumn,
		Headers:   headers,
		UpdatedAt: time.Now().UTC(),
	})
}

// GetSheet returns a sheet's metadata
func (m *Manager) GetSheet(name string) (*types.SheetMeta, error) {
	return m.store.GetSheet(name)
}

// ApplyEdit upserts the row identified by key and records the edit in
// the change log. Returns the allocated changeId, or 0 when the edit
// qualifies for no change record (untracked edit or no cell changed).
func (m *Manager) ApplyEdit(sheet string, rowIndex int, key string, values []string) (uint64, error) {
	m.editMu.Lock()
	defer m.editMu.Unlock()

	meta, err := m.store.GetSheet(sheet)
	if err != nil {
		return 0, err
	}

	key = strings.TrimSpace(key)
	changed := m.changedColumns(meta, sheet, key, values)
	if key != "" && len(changed) == 0 {
		// Nothing actually changed; no version is spent.
		return 0, nil
	}

	id, err := m.ledger.Append(sheet, rowIndex, key, changed, values)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, nil
	}

	// The row is stored only after its change record is durable. If
	// the put fails, a retried edit still diffs against the old row
	// and is logged again; rows can never change without a record.
	if err := m.store.PutRow(sheet, &types.Row{
		Key:      key,
		RowIndex: rowIndex,
		Values:   values,
	}); err != nil {
		return 0, fmt.Errorf("failed to store row: %w", err)
	}

	m.broker.Publish(&events.Event{
		Type:    events.EventSheetEdited,
		Sheet:   sheet,
		Version: id,
		Metadata: map[string]string{
			"key": key,
		},
	})
	return id, nil
}

// changedColumns diffs the incoming values against the stored row.
// A new row reports every non-empty column as changed.
func (m *Manager) changedColumns(meta *types.SheetMeta, sheet, key string, values []string) []string {
	var prev []string
	if key != "" {
		if row, err := m.store.GetRow(sheet, key); err == nil {
			prev = row.Values
		}
	}

	var changed []string
	for i, h := range meta.Headers {
		var newVal, oldVal string
		if i < len(values) {
			newVal = values[i]
		}
		if i < len(prev) {
			oldVal = prev[i]
		}
		if prev == nil {
			if newVal != "" {
				changed = append(changed, h)
			}
			continue
		}
		if newVal != oldVal {
			changed = append(changed, h)
		}
	}
	return changed
}

// Snapshot produces the authoritative full state for bootstrapping or
// forced resync. The returned version comes from the same counter the
// ledger allocates from, so a client storing it can request deltas
// from exactly this point without gap or overlap.
func (m *Manager) Snapshot(sheet string) (*types.Snapshot, error) {
	meta, err := m.store.GetSheet(sheet)
	if err != nil {
		return nil, err
	}
	if meta.KeyIndex() < 0 {
		return nil, fmt.Errorf("%w: %q not in %v", types.ErrSchema, meta.KeyColumn, meta.Headers)
	}

	stored, err := m.store.ListRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}

	rows := make([]types.Row, 0, len(stored))
	for _, r := range stored {
		if strings.TrimSpace(r.Key) == "" {
			continue
		}
		rows = append(rows, *r)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", types.ErrNotFound, sheet)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].RowIndex < rows[j].RowIndex })

	version, err := m.ledger.CurrentVersion(sheet)
	if err != nil {
		return nil, err
	}

	return &types.Snapshot{
		Sheet:       sheet,
		Version:     version,
		Headers:     meta.Headers,
		Rows:        rows,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// Changes answers a delta query: all change records with changeId in
// (since, current], plus whether incremental catch-up is still valid.
//
// needsFullResync is set when:
//
//	(a) since > 0 and since < minVersion: the client's baseline has
//	    been evicted from the log (truncation),
//	(b) since > 0, no changes, yet current > since: an internal
//	    inconsistency; incremental state cannot be trusted,
//	(c) current < since and since > 0: the counter was reset below
//	    the client's baseline (log cleared and restarted).
//
// since = 0 means "no prior state" and never triggers a resync. The
// change list is returned either way; on resync the caller must
// discard it and fetch a snapshot.
func (m *Manager) Changes(sheet string, since uint64) (*types.Delta, error) {
	if _, err := m.store.GetSheet(sheet); err != nil {
		return nil, err
	}

	changes, current, err := m.ledger.ChangesSince(sheet, since)
	if err != nil {
		return nil, err
	}
	min, err := m.ledger.MinVersion(sheet)
	if err != nil {
		return nil, err
	}

	needsResync := false
	if since > 0 {
		switch {
		case min > 0 && since < min:
			needsResync = true // (a) baseline evicted
		case len(changes) == 0 && current > since:
			needsResync = true // (b) inconsistent log
		case current < since:
			needsResync = true // (c) counter reset
		}
	}
	if needsResync {
		metrics.LogTruncationsDetected.Inc()
		m.logger.Warn().
			Str("sheet", sheet).
			Uint64("since", since).
			Uint64("current", current).
			Uint64("min", min).
			Msg("delta request requires full resync")
	}

	return &types.Delta{
		Sheet:           sheet,
		FromVersion:     since,
		ToVersion:       current,
		Changes:         changes,
		NeedsFullResync: needsResync,
	}, nil
}

// TruncateLog clears a sheet's change log. Operator command; clients
// recover via the resync path.
func (m *Manager) TruncateLog(sheet string) error {
	if err := m.ledger.Truncate(sheet); err != nil {
		return err
	}
	m.broker.Publish(&events.Event{
		Type:  events.EventLogTruncated,
		Sheet: sheet,
	})
	return nil
}
