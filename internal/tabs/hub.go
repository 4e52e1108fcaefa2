// Package tabs keeps the websocket connections of open pages and tracks
// which one is active.
package tabs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNoListener means no page is connected, or the active one could not be written to.
var ErrNoListener = errors.New("tabs: no active listener")

const (
	MessageFocus        = "FOCUS"
	MessageTriggerCheck = "TRIGGER_WATER_OUTAGE_CHECK"
	MessageCheckResult  = "CHECK_RESULT"

	defaultWriteTimeout = 5 * time.Second
	maxMessageBytes     = 4096
)

// CheckFunc runs an on-demand check for a page.
type CheckFunc func(ctx context.Context) error

type inbound struct {
	Type string `json:"type"`
}

type checkResult struct {
	Type  string `json:"type"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type client struct {
	id      uint64
	conn    *websocket.Conn
	wmu     sync.Mutex
	touched uint64

	checking atomic.Bool
}

func (c *client) write(ctx context.Context, payload []byte, timeout time.Duration) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

type Hub struct {
	mu      sync.Mutex
	clients map[uint64]*client
	seq     uint64
	clock   uint64
	onCheck CheckFunc

	upgrader     websocket.Upgrader
	writeTimeout time.Duration
	log          *zap.Logger
}

// NewHub accepts websocket upgrades from allowedOrigins. An empty list
// accepts any origin; "*" does the same explicitly.
func NewHub(allowedOrigins []string, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Hub{
		clients:      make(map[uint64]*client),
		writeTimeout: defaultWriteTimeout,
		log:          log,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// OnCheck sets the handler for TRIGGER_WATER_OUTAGE_CHECK messages.
func (h *Hub) OnCheck(fn CheckFunc) {
	h.mu.Lock()
	h.onCheck = fn
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the page until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("ws_upgrade_failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxMessageBytes)
	c := h.register(conn)
	defer h.unregister(c)

	ctx := context.WithoutCancel(r.Context())
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			h.log.Debug("ws_bad_message", zap.Uint64("page", c.id), zap.Error(err))
			continue
		}
		switch msg.Type {
		case MessageFocus:
			h.touch(c)
		case MessageTriggerCheck:
			// one check per page at a time
			if !c.checking.CompareAndSwap(false, true) {
				h.reply(ctx, c, checkResult{Type: MessageCheckResult, Error: "check already running"})
				continue
			}
			go h.runCheck(ctx, c)
		default:
			h.log.Debug("ws_unknown_message", zap.Uint64("page", c.id), zap.String("type", msg.Type))
		}
	}
}

func (h *Hub) runCheck(ctx context.Context, c *client) {
	h.mu.Lock()
	fn := h.onCheck
	h.mu.Unlock()

	res := checkResult{Type: MessageCheckResult, OK: true}
	if fn == nil {
		res.OK, res.Error = false, "checks unavailable"
	} else if err := fn(ctx); err != nil {
		res.OK, res.Error = false, err.Error()
	}
	c.checking.Store(false)
	h.reply(ctx, c, res)
}

func (h *Hub) reply(ctx context.Context, c *client, res checkResult) {
	payload, _ := json.Marshal(res)
	if err := c.write(ctx, payload, h.writeTimeout); err != nil {
		h.log.Debug("ws_reply_failed", zap.Uint64("page", c.id), zap.Error(err))
	}
}

func (h *Hub) register(conn *websocket.Conn) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.clock++
	c := &client{id: h.seq, conn: conn, touched: h.clock}
	h.clients[c.id] = c
	h.log.Debug("ws_page_connected", zap.Uint64("page", c.id), zap.Int("pages", len(h.clients)))
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	n := len(h.clients)
	h.mu.Unlock()
	_ = c.conn.Close()
	h.log.Debug("ws_page_disconnected", zap.Uint64("page", c.id), zap.Int("pages", n))
}

func (h *Hub) touch(c *client) {
	h.mu.Lock()
	h.clock++
	c.touched = h.clock
	h.mu.Unlock()
}

// active is the most recently connected or focused page.
func (h *Hub) active() *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	var best *client
	for _, c := range h.clients {
		if best == nil || c.touched > best.touched {
			best = c
		}
	}
	return best
}

// SendToActive writes msg as JSON to the active page.
func (h *Hub) SendToActive(ctx context.Context, msg any) error {
	c := h.active()
	if c == nil {
		return ErrNoListener
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode tab message: %w", err)
	}
	if err := c.write(ctx, payload, h.writeTimeout); err != nil {
		return fmt.Errorf("%w: %v", ErrNoListener, err)
	}
	return nil
}

// Close disconnects every page.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
}
