package dashboard

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/hj91/node-nutrunner-open-library/internal/event"
	"github.com/hj91/node-nutrunner-open-library/internal/state"
)

func TestTrackerBroadcastsViewOnStateChanged(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)
	stop := make(chan struct{})
	go hub.Run(stop)
	t.Cleanup(func() { close(stop) })

	tracker := NewTracker(hub)
	bus := event.NewBus()
	tracker.Subscribe(bus)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Give the hub's registration loop a moment to record the new
	// viewer before the broadcast fires.
	time.Sleep(20 * time.Millisecond)

	snap := state.New()
	snap.Connection.Connected = true
	snap.Tool.Enabled = true
	snap.Job.JobID = 7

	bus.Publish(event.Event{Type: event.StateChanged, Snapshot: &snap})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), `"connected":true`)
	require.Contains(t, string(msg), `"job_id":7`)

	require.True(t, tracker.Snapshot().Connected)
	require.Equal(t, 7, tracker.Snapshot().JobID)
}
