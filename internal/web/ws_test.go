package web

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurcal/internal/config"
)

func dialWS(t *testing.T, baseURL, sessionID string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws?session=" + sessionID
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) wsOutbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var out wsOutbound
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

func TestWS_MutateStreamsViews(t *testing.T) {
	ts := newTestServer(t, nil)
	v := createSession(t, ts)
	conn := dialWS(t, ts.URL, v.SessionID)

	first := readWS(t, conn)
	require.Equal(t, "view", first.Type)
	require.NotNil(t, first.View)
	assert.Equal(t, v.SessionID, first.View.SessionID)

	require.NoError(t, conn.WriteJSON(wsInbound{Type: "mutate", Op: "frequency", Value: "DAILY"}))
	got := readWS(t, conn)
	require.Equal(t, "view", got.Type)
	assert.Equal(t, "DAILY", got.View.State.Frequency)
	assert.Equal(t, "2024-01-02", got.View.Dates[1])

	require.NoError(t, conn.WriteJSON(wsInbound{Type: "mutate", Op: "interval", Value: "abc"}))
	got = readWS(t, conn)
	require.Equal(t, "view", got.Type)
	require.NotNil(t, got.View.Diagnostic)
	assert.Equal(t, "invalid_interval", got.View.Diagnostic.Kind)
	assert.Equal(t, "2024-01-02", got.View.Dates[1])
}

func TestWS_PingAndErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	v := createSession(t, ts)
	conn := dialWS(t, ts.URL, v.SessionID)
	readWS(t, conn) // initial view

	require.NoError(t, conn.WriteJSON(wsInbound{Type: "ping"}))
	assert.Equal(t, "pong", readWS(t, conn).Type)

	require.NoError(t, conn.WriteJSON(wsInbound{Type: "mutate", Op: "toggle_weekday", Value: "Caturday"}))
	got := readWS(t, conn)
	assert.Equal(t, "error", got.Type)
	assert.Equal(t, "invalid_argument", got.Code)

	require.NoError(t, conn.WriteJSON(wsInbound{Type: "shout"}))
	got = readWS(t, conn)
	assert.Equal(t, "error", got.Type)
	assert.Contains(t, got.Message, "unsupported type")
}

func TestWS_RequiresKnownSession(t *testing.T) {
	ts := newTestServer(t, nil)
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=missing"

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2 := do(t, http.MethodGet, ts.URL+"/ws", nil)
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestWS_OriginAllowList(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) {
		cfg.AllowedOrigins = []string{"http://allowed.example"}
	})
	v := createSession(t, ts)
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session=" + v.SessionID

	dial := func(origin string) (*websocket.Conn, *http.Response, error) {
		h := http.Header{}
		if origin != "" {
			h.Set("Origin", origin)
		}
		return websocket.DefaultDialer.Dial(u, h)
	}

	_, resp, err := dial("http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	for _, origin := range []string{"http://allowed.example", "HTTP://Allowed.Example", ts.URL, ""} {
		conn, _, err := dial(origin)
		require.NoError(t, err, origin)
		assert.Equal(t, "view", readWS(t, conn).Type)
		conn.Close()
	}
}
