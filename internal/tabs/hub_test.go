package tabs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestSendToActive_NoPages(t *testing.T) {
	h := NewHub(nil, nil)
	err := h.SendToActive(context.Background(), map[string]string{"type": "X"})
	assert.True(t, errors.Is(err, ErrNoListener))
}

func TestSendToActive_LatestConnectionThenFocus(t *testing.T) {
	h := NewHub(nil, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	a := dial(t, srv)
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return h.Len() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.SendToActive(context.Background(), map[string]string{"type": "PING", "to": "b"}))
	assert.Equal(t, "b", readJSON(t, b)["to"])

	first := h.active()
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"type":"FOCUS"}`)))
	require.Eventually(t, func() bool { return h.active() != first }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.SendToActive(context.Background(), map[string]string{"type": "PING", "to": "a"}))
	assert.Equal(t, "a", readJSON(t, a)["to"])
}

func TestDisconnectFallsBackToRemainingPage(t *testing.T) {
	h := NewHub(nil, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	a := dial(t, srv)
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return h.Len() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.SendToActive(context.Background(), map[string]string{"type": "PING"}))
	assert.Equal(t, "PING", readJSON(t, a)["type"])
}

func TestTriggerCheck_RepliesWithResult(t *testing.T) {
	h := NewHub(nil, nil)
	var calls atomic.Int32
	h.OnCheck(func(ctx context.Context) error {
		calls.Add(1)
		return nil
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := dial(t, srv)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"TRIGGER_WATER_OUTAGE_CHECK"}`)))

	got := readJSON(t, c)
	assert.Equal(t, MessageCheckResult, got["type"])
	assert.Equal(t, true, got["ok"])
	assert.Equal(t, int32(1), calls.Load())
}

func TestTriggerCheck_ReportsFailure(t *testing.T) {
	h := NewHub(nil, nil)
	h.OnCheck(func(ctx context.Context) error { return errors.New("store down") })
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := dial(t, srv)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(`{"type":"TRIGGER_WATER_OUTAGE_CHECK"}`)))

	got := readJSON(t, c)
	assert.Equal(t, false, got["ok"])
	assert.Equal(t, "store down", got["error"])
}

func TestTriggerCheck_OneAtATimePerPage(t *testing.T) {
	h := NewHub(nil, nil)
	var calls atomic.Int32
	release := make(chan struct{})
	h.OnCheck(func(ctx context.Context) error {
		calls.Add(1)
		<-release
		return nil
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := dial(t, srv)
	trigger := []byte(`{"type":"TRIGGER_WATER_OUTAGE_CHECK"}`)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, trigger))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.WriteMessage(websocket.TextMessage, trigger))

	busy := readJSON(t, c)
	assert.Equal(t, false, busy["ok"])
	assert.Equal(t, "check already running", busy["error"])

	close(release)
	done := readJSON(t, c)
	assert.Equal(t, true, done["ok"])
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, c.WriteMessage(websocket.TextMessage, trigger))
	assert.Equal(t, true, readJSON(t, c)["ok"], "finished check frees the page")
	assert.Equal(t, int32(2), calls.Load())
}

func TestOversizedMessageDropsPage(t *testing.T) {
	h := NewHub(nil, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := dial(t, srv)
	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 5*time.Millisecond)

	big := `{"type":"FOCUS","pad":"` + strings.Repeat("x", maxMessageBytes) + `"}`
	require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(big)))
	require.Eventually(t, func() bool { return h.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://www.aya.go.cr/"})

	req := httptest.NewRequest(http.MethodGet, "http://localhost:8080/ws", nil)
	assert.True(t, check(req), "no Origin header")

	req.Header.Set("Origin", "https://www.aya.go.cr")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	req.Header.Set("Origin", "http://localhost:8080")
	assert.True(t, check(req), "same host")

	assert.True(t, originChecker(nil)(req))
	assert.True(t, originChecker([]string{"*"})(req))
}
