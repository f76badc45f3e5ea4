package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gridsync/gridsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/snapshot", r.URL.Path)
		assert.Equal(t, "holdings", r.URL.Query().Get("sheet"))
		assert.Equal(t, "Bearer s3cret", r.Header.Get("Authorization"))
		assert.False(t, r.URL.Query().Has("token"), "the token must never ride in the URL")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"ok": true,
			"version": 5,
			"headers": ["Ticker", "Name", "Price"],
			"rows": [{"key": "AAPL", "rowIndex": 2, "values": ["AAPL", "Apple", "190.00"]}],
			"generatedAt": "2026-08-23T10:00:00Z"
		}`))
	}))
	defer ts.Close()

	snap, err := New(ts.URL, "s3cret").Snapshot(context.Background(), "holdings")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), snap.Version)
	assert.Equal(t, "holdings", snap.Sheet)
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, "AAPL", snap.Rows[0].Key)
}

func TestChanges(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/changes", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("since"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"ok": true,
			"fromVersion": 5,
			"toVersion": 6,
			"changes": [{"changeId": 6, "sheetName": "holdings", "rowIndex": 2, "key": "AAPL",
				"changedColumns": ["Price"], "values": ["AAPL", "Apple", "191.20"]}],
			"needsFullResync": false
		}`))
	}))
	defer ts.Close()

	delta, err := New(ts.URL, "").Changes(context.Background(), "holdings", 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), delta.ToVersion)
	assert.False(t, delta.NeedsFullResync)
	require.Len(t, delta.Changes, 1)
	assert.Equal(t, uint64(6), delta.Changes[0].ChangeID)
}

func TestNoAuthHeaderWithoutToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.Write([]byte(`{"ok": true}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL, "").Snapshot(context.Background(), "holdings")
	require.NoError(t, err)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, sentinel: types.ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, sentinel: types.ErrUnauthorized},
		{name: "not found", status: http.StatusNotFound, sentinel: types.ErrNotFound},
		{name: "schema", status: http.StatusUnprocessableEntity, sentinel: types.ErrSchema},
		{name: "server error", status: http.StatusInternalServerError, sentinel: types.ErrTransient},
		{name: "bad gateway", status: http.StatusBadGateway, sentinel: types.ErrTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"ok": false, "error": "boom"}`))
			}))
			defer ts.Close()

			_, err := New(ts.URL, "").Snapshot(context.Background(), "holdings")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.Contains(t, err.Error(), "boom")
		})
	}
}

func TestTransportErrorIsTransient(t *testing.T) {
	// Nothing is listening here.
	_, err := New("http://127.0.0.1:1", "").Snapshot(context.Background(), "holdings")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransient)
	assert.True(t, types.IsRetryable(err))
}

func TestMalformedResponseIsTransient(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer ts.Close()

	_, err := New(ts.URL, "").Changes(context.Background(), "holdings", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrTransient)
}
