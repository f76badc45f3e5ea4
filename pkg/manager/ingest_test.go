package manager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCSV(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestReloadSource_InitialLoad(t *testing.T) {
	mgr := newTestManager(t)
	path := filepath.Join(t.TempDir(), "holdings.csv")
	writeCSV(t, path, "Ticker,Name,Price\nAAPL,Apple,190.00\nMSFT,Microsoft,410.00\n")

	cfg := SourceConfig{Sheet: "holdings", Path: path, KeyColumn: "Ticker"}
	require.NoError(t, mgr.reloadSource(cfg))

	snap, err := mgr.Snapshot("holdings")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ticker", "Name", "Price"}, snap.Headers)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, uint64(2), snap.Version, "each loaded row spends one version")
	assert.Equal(t, 2, snap.Rows[0].RowIndex, "data rows start under the header row")
}

func TestReloadSource_DiffsAgainstStoredRows(t *testing.T) {
	mgr := newTestManager(t)
	path := filepath.Join(t.TempDir(), "holdings.csv")
	writeCSV(t, path, "Ticker,Name,Price\nAAPL,Apple,190.00\nMSFT,Microsoft,410.00\n")

	cfg := SourceConfig{Sheet: "holdings", Path: path, KeyColumn: "Ticker"}
	require.NoError(t, mgr.reloadSource(cfg))

	// Same file again: nothing changed, no versions spent.
	require.NoError(t, mgr.reloadSource(cfg))
	current, err := mgr.Ledger().CurrentVersion("holdings")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), current)

	// One price edit produces exactly one change record.
	writeCSV(t, path, "Ticker,Name,Price\nAAPL,Apple,191.20\nMSFT,Microsoft,410.00\n")
	require.NoError(t, mgr.reloadSource(cfg))

	delta, err := mgr.Changes("holdings", 2)
	require.NoError(t, err)
	require.Len(t, delta.Changes, 1)
	assert.Equal(t, "AAPL", delta.Changes[0].Key)
	assert.Equal(t, []string{"Price"}, delta.Changes[0].ChangedColumns)
}

func TestReloadSource_RemovesVanishedRows(t *testing.T) {
	mgr := newTestManager(t)
	path := filepath.Join(t.TempDir(), "holdings.csv")
	writeCSV(t, path, "Ticker,Name,Price\nAAPL,Apple,190.00\nMSFT,Microsoft,410.00\n")

	cfg := SourceConfig{Sheet: "holdings", Path: path, KeyColumn: "Ticker"}
	require.NoError(t, mgr.reloadSource(cfg))

	writeCSV(t, path, "Ticker,Name,Price\nAAPL,Apple,190.00\n")
	require.NoError(t, mgr.reloadSource(cfg))

	snap, err := mgr.Snapshot("holdings")
	require.NoError(t, err)
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, "AAPL", snap.Rows[0].Key)

	// Deletions do not spend a version; they surface on resync.
	current, err := mgr.Ledger().CurrentVersion("holdings")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), current)
}

func TestReloadSource_SkipsBlankKeys(t *testing.T) {
	mgr := newTestManager(t)
	path := filepath.Join(t.TempDir(), "holdings.csv")
	writeCSV(t, path, "Ticker,Name,Price\nAAPL,Apple,190.00\n,orphan,0.00\n  ,padded,0.00\n")

	cfg := SourceConfig{Sheet: "holdings", Path: path, KeyColumn: "Ticker"}
	require.NoError(t, mgr.reloadSource(cfg))

	snap, err := mgr.Snapshot("holdings")
	require.NoError(t, err)
	assert.Len(t, snap.Rows, 1)
}

func TestReloadSource_KeyColumnMissing(t *testing.T) {
	mgr := newTestManager(t)
	path := filepath.Join(t.TempDir(), "holdings.csv")
	writeCSV(t, path, "Ticker,Name,Price\nAAPL,Apple,190.00\n")

	cfg := SourceConfig{Sheet: "holdings", Path: path, KeyColumn: "Symbol"}
	assert.Error(t, mgr.reloadSource(cfg))
}

func TestBindSource_PicksUpFileEdits(t *testing.T) {
	mgr := newTestManager(t)
	path := filepath.Join(t.TempDir(), "holdings.csv")
	writeCSV(t, path, "Ticker,Name,Price\nAAPL,Apple,190.00\n")

	require.NoError(t, mgr.BindSource(SourceConfig{Sheet: "holdings", Path: path, KeyColumn: "Ticker"}))
	t.Cleanup(mgr.StopSources)

	writeCSV(t, path, "Ticker,Name,Price\nAAPL,Apple,191.20\n")

	require.Eventually(t, func() bool {
		current, err := mgr.Ledger().CurrentVersion("holdings")
		return err == nil && current == 2
	}, 3*time.Second, 50*time.Millisecond, "file edit should be reloaded after the settle delay")
}
