package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gridsync/gridsync/pkg/auth"
	"github.com/gridsync/gridsync/pkg/client"
	"github.com/gridsync/gridsync/pkg/events"
	"github.com/gridsync/gridsync/pkg/manager"
	"github.com/gridsync/gridsync/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventStream(t *testing.T) {
	mgr, err := manager.NewManager(&manager.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	require.NoError(t, mgr.CreateSheet("holdings", "Ticker", []string{"Ticker", "Name", "Price"}))

	ts := httptest.NewServer(NewServer(mgr, auth.RequireToken(testSecret)).Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := client.New(ts.URL, testSecret).Watch(ctx)
	require.NoError(t, err)

	// The handler subscribes after the handshake; wait until it has.
	require.Eventually(t, func() bool {
		return mgr.Broker().SubscriberCount() > 0
	}, 2*time.Second, 10*time.Millisecond)

	// An edit lands while the stream is open.
	id, err := mgr.ApplyEdit("holdings", 2, "AAPL", []string{"AAPL", "Apple", "190.00"})
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	select {
	case ev := <-ch:
		require.NotNil(t, ev)
		assert.Equal(t, events.EventSheetEdited, ev.Type)
		assert.Equal(t, "holdings", ev.Sheet)
		assert.Equal(t, uint64(1), ev.Version)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestEventStream_RequiresToken(t *testing.T) {
	mgr, err := manager.NewManager(&manager.Config{DataDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	ts := httptest.NewServer(NewServer(mgr, auth.RequireToken(testSecret)).Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = client.New(ts.URL, "").Watch(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrUnauthorized)

	// Plain GET without upgrade headers is a 401 too, not a hang.
	resp := doGet(t, ts.URL+"/v1/events", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
