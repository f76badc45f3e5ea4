package storage

import (
	"github.com/gridsync/gridsync/pkg/types"
)

// Store defines the interface for server-side sheet persistence.
// This is implemented by BoltDB-backed storage.
type Store interface {
	// Sheets
	PutSheet(meta *types.SheetMeta) error
	GetSheet(name string) (*types.SheetMeta, error)
	ListSheets() ([]*types.SheetMeta, error)

	// Rows (current snapshot state, keyed by business key)
	PutRow(sheet string, row *types.Row) error
	GetRow(sheet, key string) (*types.Row, error)
	ListRows(sheet string) ([]*types.Row, error)
	DeleteRow(sheet, key string) error

	// Change log. AppendChange assigns the next ChangeID from the
	// sheet's counter atomically with the record write and returns it.
	// ChangesSince returns raw record bytes with changeId > since in
	// increasing order, plus the current version; parsing is left to
	// the caller so one corrupt entry cannot abort a scan.
	AppendChange(sheet string, rec *types.ChangeRecord) (uint64, error)
	ChangesSince(sheet string, since uint64) ([][]byte, uint64, error)
	MinChange(sheet string) (uint64, error)
	CurrentVersion(sheet string) (uint64, error)

	// ClearChanges drops a sheet's log, resetting its counter. This
	// models operator truncation for storage management.
	ClearChanges(sheet string) error

	// Utility
	Close() error
}
