package collaboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/collaboard/collaboard/core"
)

var baseTimeout = 2 * time.Second

func newTestApp(t *testing.T) (*App, *httptest.Server) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	cfg := &Config{
		Port:           8080,
		Hostname:       "localhost",
		AllowedOrigins: []string{"*"},
	}
	cfg.Auth.Secret = []byte("test-secret-test-secret-test-sec")
	cfg.Auth.TokenTTL = time.Hour

	app := New(ctx, cfg)
	ts := httptest.NewServer(app.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return app, ts
}

// wsClient is one connected participant in a test scenario. Events read past
// while waiting for a specific type are kept in skipped so tests can assert on
// what was NOT delivered.
type wsClient struct {
	t       *testing.T
	conn    *websocket.Conn
	skipped []core.Event
	UserID  string
	Token   string
}

func newWSClient(t *testing.T, ts *httptest.Server) *wsClient {
	t.Helper()

	res, err := http.Post(ts.URL+"/api/identity", "application/json", nil)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var identity IdentityResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&identity))

	c := &wsClient{t: t, UserID: identity.UserID, Token: identity.Token}
	c.connect(ts)
	return c
}

func (c *wsClient) connect(ts *httptest.Server) {
	c.t.Helper()
	url := strings.Replace(ts.URL, "http://", "ws://", 1) + "/ws?token=" + c.Token
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(c.t, err)
	require.Equal(c.t, http.StatusSwitchingProtocols, res.StatusCode)
	c.conn = conn
	c.t.Cleanup(func() { conn.Close() })
}

func (c *wsClient) send(eventType string, payload interface{}) {
	c.t.Helper()
	e, err := core.NewEvent(eventType, payload)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteJSON(e))
}

// waitFor reads the client's stream until an event of the wanted type
// arrives, skipping everything else.
func (c *wsClient) waitFor(eventType string) *core.Event {
	c.t.Helper()
	deadline := time.Now().Add(baseTimeout)
	for {
		c.conn.SetReadDeadline(deadline)
		var e core.Event
		if err := c.conn.ReadJSON(&e); err != nil {
			require.FailNowf(c.t, "timeout", "waiting for %s: %v", eventType, err)
		}
		if e.Type == eventType {
			return &e
		}
		c.skipped = append(c.skipped, e)
	}
}

// assertNotDelivered round-trips a state sync request as a flush barrier,
// then checks that no event of the given type was queued before it. Room
// broadcasts and the sync reply share the connection's FIFO send queue, so
// anything broadcast before the sync was requested has arrived by the time
// the reply does.
func (c *wsClient) assertNotDelivered(roomID, eventType string) {
	c.t.Helper()
	c.send(core.EventRoomSync, core.RoomSyncPayload{RoomID: roomID})
	c.waitFor(core.EventRoomStateSync)
	for _, e := range c.skipped {
		require.NotEqual(c.t, eventType, e.Type, "unexpected %s", eventType)
	}
}

func payloadAs[T any](t *testing.T, e *core.Event) T {
	t.Helper()
	var payload T
	require.NoError(t, json.Unmarshal(e.Payload, &payload))
	return payload
}
