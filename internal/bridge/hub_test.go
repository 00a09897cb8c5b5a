package bridge

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/kinspect/internal/correlator"
	"github.com/roach88/kinspect/internal/engine"
)

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_PushesUpdates(t *testing.T) {
	s, _ := seededStore(t)
	hub := NewHub(quietLogger())
	ts := httptest.NewServer(NewServer(s, hub, quietLogger()).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Notify(engine.Update{SessionID: 1, Seq: 7, Refresh: correlator.Refresh{Inspections: true}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var u engine.Update
	require.NoError(t, conn.ReadJSON(&u))
	assert.Equal(t, int64(1), u.SessionID)
	assert.Equal(t, int64(7), u.Seq)
	assert.True(t, u.Refresh.Inspections)
	assert.False(t, u.Refresh.Outline)
}

func TestHub_ClientDisconnectUnregisters(t *testing.T) {
	s, _ := seededStore(t)
	hub := NewHub(quietLogger())
	ts := httptest.NewServer(NewServer(s, hub, quietLogger()).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	waitForClients(t, hub, 1)

	require.NoError(t, conn.Close())
	waitForClients(t, hub, 0)

	// Notifying with no clients is a no-op.
	hub.Notify(engine.Update{SessionID: 1, Seq: 1})
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	s, _ := seededStore(t)
	hub := NewHub(quietLogger())
	ts := httptest.NewServer(NewServer(s, hub, quietLogger()).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.Clients())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err, "the server ends the connection")
}
