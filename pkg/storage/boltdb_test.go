package storage

import (
	"testing"
	"time"

	"github.com/gridsync/gridsync/pkg/types"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewBoltStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSheetRoundTrip(t *testing.T) {
	store := newTestStore(t)

	meta := &types.SheetMeta{
		Name:      "holdings",
		KeyColumn: "Ticker",
		Headers:   []string{"Ticker", "Name", "Price"},
		UpdatedAt: time.Now().UTC(),
	}
	if err := store.PutSheet(meta); err != nil {
		t.Fatalf("PutSheet failed: %v", err)
	}

	got, err := store.GetSheet("holdings")
	if err != nil {
		t.Fatalf("GetSheet failed: %v", err)
	}
	if got.KeyColumn != "Ticker" {
		t.Errorf("expected key column 'Ticker', got %q", got.KeyColumn)
	}
	if len(got.Headers) != 3 {
		t.Errorf("expected 3 headers, got %d", len(got.Headers))
	}
}

func TestGetSheet_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetSheet("missing")
	if err == nil {
		t.Fatal("expected error for missing sheet")
	}
}

func TestRowCRUD(t *testing.T) {
	store := newTestStore(t)

	row := &types.Row{Key: "AAPL", RowIndex: 2, Values: []string{"AAPL", "Apple", "190.00"}}
	if err := store.PutRow("holdings", row); err != nil {
		t.Fatalf("PutRow failed: %v", err)
	}

	got, err := store.GetRow("holdings", "AAPL")
	if err != nil {
		t.Fatalf("GetRow failed: %v", err)
	}
	if got.Values[2] != "190.00" {
		t.Errorf("expected price 190.00, got %q", got.Values[2])
	}

	rows, err := store.ListRows("holdings")
	if err != nil {
		t.Fatalf("ListRows failed: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 row, got %d", len(rows))
	}

	if err := store.DeleteRow("holdings", "AAPL"); err != nil {
		t.Fatalf("DeleteRow failed: %v", err)
	}
	rows, _ = store.ListRows("holdings")
	if len(rows) != 0 {
		t.Errorf("expected 0 rows after delete, got %d", len(rows))
	}
}

func TestAppendChange_AllocatesIncreasingIDs(t *testing.T) {
	store := newTestStore(t)

	var last uint64
	for i := 0; i < 5; i++ {
		id, err := store.AppendChange("holdings", &types.ChangeRecord{
			Sheet: "holdings",
			Key:   "AAPL",
		})
		if err != nil {
			t.Fatalf("AppendChange failed: %v", err)
		}
		if id != last+1 {
			t.Errorf("expected id %d, got %d", last+1, id)
		}
		last = id
	}

	current, err := store.CurrentVersion("holdings")
	if err != nil {
		t.Fatalf("CurrentVersion failed: %v", err)
	}
	if current != 5 {
		t.Errorf("expected current version 5, got %d", current)
	}
}

func TestChangesSince_OrderAndBoundary(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 4; i++ {
		if _, err := store.AppendChange("holdings", &types.ChangeRecord{Sheet: "holdings", Key: "K"}); err != nil {
			t.Fatalf("AppendChange failed: %v", err)
		}
	}

	raw, current, err := store.ChangesSince("holdings", 2)
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if current != 4 {
		t.Errorf("expected current 4, got %d", current)
	}
	if len(raw) != 2 {
		t.Errorf("expected 2 records after version 2, got %d", len(raw))
	}

	raw, _, _ = store.ChangesSince("holdings", 4)
	if len(raw) != 0 {
		t.Errorf("expected no records after current version, got %d", len(raw))
	}
}

func TestChangesSince_UnknownSheet(t *testing.T) {
	store := newTestStore(t)

	raw, current, err := store.ChangesSince("missing", 0)
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if len(raw) != 0 || current != 0 {
		t.Errorf("expected empty log for unknown sheet, got %d records at version %d", len(raw), current)
	}
}

func TestMinChange(t *testing.T) {
	store := newTestStore(t)

	min, err := store.MinChange("holdings")
	if err != nil {
		t.Fatalf("MinChange failed: %v", err)
	}
	if min != 0 {
		t.Errorf("expected min 0 for empty log, got %d", min)
	}

	for i := 0; i < 3; i++ {
		if _, err := store.AppendChange("holdings", &types.ChangeRecord{Sheet: "holdings", Key: "K"}); err != nil {
			t.Fatalf("AppendChange failed: %v", err)
		}
	}
	min, _ = store.MinChange("holdings")
	if min != 1 {
		t.Errorf("expected min 1, got %d", min)
	}
}

func TestClearChanges_ResetsCounter(t *testing.T) {
	store := newTestStore(t)

	for i := 0; i < 6; i++ {
		if _, err := store.AppendChange("holdings", &types.ChangeRecord{Sheet: "holdings", Key: "K"}); err != nil {
			t.Fatalf("AppendChange failed: %v", err)
		}
	}

	if err := store.ClearChanges("holdings"); err != nil {
		t.Fatalf("ClearChanges failed: %v", err)
	}

	current, _ := store.CurrentVersion("holdings")
	if current != 0 {
		t.Errorf("expected version 0 after clear, got %d", current)
	}

	// The counter restarts from 1, the case the resync logic must
	// recognize as "counter reset".
	id, err := store.AppendChange("holdings", &types.ChangeRecord{Sheet: "holdings", Key: "K"})
	if err != nil {
		t.Fatalf("AppendChange failed: %v", err)
	}
	if id != 1 {
		t.Errorf("expected first id after clear to be 1, got %d", id)
	}
}
