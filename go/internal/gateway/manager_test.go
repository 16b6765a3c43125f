package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Goldenhunter1206/scrumpoker/go/internal/coordinator"
)

// dialTestConn upgrades a real websocket pair and returns the managed
// server side plus the client socket.
func dialTestConn(t *testing.T, m *Manager) (*Connection, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *Connection, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := m.Upgrade(w, r)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { client.Close() })

	select {
	case conn := <-connCh:
		return conn, client
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw the connection")
		return nil, nil
	}
}

func testEvent(eventType coordinator.EventType) *coordinator.Event {
	return &coordinator.Event{
		ID:        "evt-1",
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

func TestSendAfterDropDoesNotPanic(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConnectionConfig())
	conn, _ := dialTestConn(t, m)
	m.Bind(conn, "ABC123")

	m.drop(conn)

	// A delivery snapshotted before the drop may still arrive; it must
	// be discarded, not crash the process.
	m.send(conn, testEvent(coordinator.EventSessionState))
	m.drop(conn)

	require.Equal(t, 0, m.Stats()["total_connections"])
}

func TestKickClosesThroughDeliveryQueue(t *testing.T) {
	t.Parallel()

	m := NewManager(DefaultConnectionConfig())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	conn, client := dialTestConn(t, m)
	m.Bind(conn, "ABC123")

	m.Kick(conn.ID)

	require.Eventually(t, func() bool {
		return m.Stats()["total_connections"] == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()
	require.Error(t, err)
}
