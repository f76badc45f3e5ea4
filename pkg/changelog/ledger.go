package changelog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gridsync/gridsync/pkg/log"
	"github.com/gridsync/gridsync/pkg/metrics"
	"github.com/gridsync/gridsync/pkg/storage"
	"github.com/gridsync/gridsync/pkg/types"
	"github.com/rs/zerolog"
)

const (
	// LogSheet is the reserved sheet name for the change log itself.
	// Edits addressed to it carry no identity to track.
	LogSheet = "_changelog"

	// HeaderRow is the spreadsheet row index of the header row.
	HeaderRow = 1
)

// Ledger records row-level edits and allocates version numbers. It is
// the only component that appends to a sheet's change log; version
// ownership lives in the underlying store's per-sheet sequence.
type Ledger struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewLedger creates a ledger over the given store.
func NewLedger(store storage.Store) *Ledger {
	return &Ledger{
		store:  store,
		logger: log.WithComponent("changelog"),
	}
}

// Append durably records one qualifying edit and returns its changeId.
// Edits without a resolvable business key, edits to the header row,
// and edits addressed to the log sheet itself are dropped as no-ops
// (changeId 0, nil error); they carry no identity to track.
func (l *Ledger) Append(sheet string, rowIndex int, key string, changedColumns, values []string) (uint64, error) {
	if strings.TrimSpace(key) == "" || rowIndex == HeaderRow || sheet == LogSheet {
		l.logger.Debug().
			Str("sheet", sheet).
			Int("row", rowIndex).
			Msg("skipping untracked edit")
		return 0, nil
	}

	rec := &types.ChangeRecord{
		Timestamp:      time.Now().UTC(),
		Sheet:          sheet,
		RowIndex:       rowIndex,
		Key:            key,
		ChangedColumns: changedColumns,
		Values:         values,
	}

	id, err := l.store.AppendChange(sheet, rec)
	if err != nil {
		return 0, fmt.Errorf("failed to append change: %w", err)
	}

	metrics.ChangeAppendsTotal.WithLabelValues(sheet).Inc()
	return id, nil
}

// ScanResult is one parse outcome from a log scan: either a record or
// the reason it was skipped.
type ScanResult struct {
	Record *types.ChangeRecord
	Err    error
}

// Ok reports whether the entry parsed cleanly.
func (r ScanResult) Ok() bool {
	return r.Err == nil
}

// Scan returns the parse results for every log entry with changeId
// greater than since, in increasing order, plus the sheet's current
// version. Corrupt entries surface as skipped results; they never
// abort the scan.
func (l *Ledger) Scan(sheet string, since uint64) ([]ScanResult, uint64, error) {
	raw, current, err := l.store.ChangesSince(sheet, since)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan change log: %w", err)
	}

	results := make([]ScanResult, 0, len(raw))
	for _, data := range raw {
		var rec types.ChangeRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			results = append(results, ScanResult{
				Err: fmt.Errorf("%w: %v", types.ErrCorruptRecord, err),
			})
			continue
		}
		results = append(results, ScanResult{Record: &rec})
	}
	return results, current, nil
}

// ChangesSince folds Scan into the clean records, logging and counting
// skips.
func (l *Ledger) ChangesSince(sheet string, since uint64) ([]types.ChangeRecord, uint64, error) {
	results, current, err := l.Scan(sheet, since)
	if err != nil {
		return nil, 0, err
	}

	changes := make([]types.ChangeRecord, 0, len(results))
	skipped := 0
	for _, res := range results {
		if !res.Ok() {
			skipped++
			l.logger.Warn().Err(res.Err).Str("sheet", sheet).Msg("skipping corrupt change record")
			continue
		}
		changes = append(changes, *res.Record)
	}
	if skipped > 0 {
		metrics.CorruptRecordsTotal.Add(float64(skipped))
	}
	return changes, current, nil
}

// MinVersion returns the smallest changeId currently retained for the
// sheet, or 0 when the log is empty. Used to detect truncation.
func (l *Ledger) MinVersion(sheet string) (uint64, error) {
	return l.store.MinChange(sheet)
}

// CurrentVersion returns the highest changeId ever issued for the
// sheet since its log was last cleared.
func (l *Ledger) CurrentVersion(sheet string) (uint64, error) {
	return l.store.CurrentVersion(sheet)
}

// Truncate clears the sheet's log, resetting its counter. Operator
// use only.
func (l *Ledger) Truncate(sheet string) error {
	l.logger.Warn().Str("sheet", sheet).Msg("truncating change log")
	return l.store.ClearChanges(sheet)
}
