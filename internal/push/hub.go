package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dsiportal/placement-sync/internal/config"
	"github.com/dsiportal/placement-sync/internal/notify"
	"github.com/dsiportal/placement-sync/internal/portal"
	psync "github.com/dsiportal/placement-sync/internal/sync"
	"github.com/dsiportal/placement-sync/internal/versions"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 32
)

// ErrNoClients is returned when a message needs at least one connected UI.
var ErrNoClients = fmt.Errorf("no connected clients: %w", notify.ErrNotifierUnavailable)

type client struct {
	id         string
	conn       *websocket.Conn
	send       chan []byte
	permission notify.Permission
}

// Hub fans messages out to every connected UI. Sends never block: a client
// whose buffer is full misses the message.
type Hub struct {
	upgrader websocket.Upgrader
	version  string
	push     config.PushConfig
	now      func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	clicks    map[string]func()
	waiters   []chan notify.Permission
	onConnect []func(clientID string)
	closed    bool
}

// HubOption configures a Hub
type HubOption func(*Hub)

// WithVersion sets the version workers are expected to run
func WithVersion(v string) HubOption {
	return func(h *Hub) {
		h.version = v
	}
}

// WithPushConfig sets icon, badge, tag and url of relayed notifications
func WithPushConfig(cfg config.PushConfig) HubOption {
	return func(h *Hub) {
		h.push = cfg
	}
}

// WithCheckOrigin overrides the websocket origin check
func WithCheckOrigin(fn func(r *http.Request) bool) HubOption {
	return func(h *Hub) {
		h.upgrader.CheckOrigin = fn
	}
}

// NewHub creates a hub with no clients.
func NewHub(opts ...HubOption) *Hub {
	var nilCfg *config.NotificationsConfig
	var nilAssets *config.AssetsConfig
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		version: nilAssets.GetVersion(),
		push:    nilCfg.GetPush(),
		now:     time.Now,
		clients: make(map[string]*client),
		clicks:  make(map[string]func()),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnConnect registers fn to run for every new client, after the version
// handshake has been sent.
func (h *Hub) OnConnect(fn func(clientID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = append(h.onConnect, fn)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		id:         uuid.NewString(),
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		permission: notify.PermissionDefault,
	}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	slog.Info("Push client connected", "client_id", c.id, "remote", r.RemoteAddr)

	go h.writePump(c)
	h.sendTo(c.id, Message{Type: TypeGetVersion})

	h.mu.Lock()
	hooks := slices.Clone(h.onConnect)
	h.mu.Unlock()
	for _, fn := range hooks {
		fn(c.id)
	}

	h.readPump(c)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// PostMessage sends msg to every client and returns how many accepted it.
func (h *Hub) PostMessage(msg Message) int {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to encode push message", "type", msg.Type, "error", err)
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	sent := 0
	for _, c := range h.clients {
		if h.enqueueLocked(c, data) {
			sent++
		}
	}
	return sent
}

// SendTo sends msg to one client. It reports whether the client accepted it.
func (h *Hub) SendTo(clientID string, msg Message) bool {
	return h.sendTo(clientID, msg)
}

func (h *Hub) sendTo(clientID string, msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to encode push message", "type", msg.Type, "error", err)
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return false
	}
	return h.enqueueLocked(c, data)
}

// RelayNotification implements notify.Relay.
func (h *Hub) RelayNotification(_ context.Context, n portal.Notification) error {
	payload := BuildPushPayload(n, h.push, h.now())
	sent := h.PostMessage(Message{Type: TypePushNotification, Notification: &payload})
	slog.Debug("Relayed notification", "notification_id", n.ID, "clients", sent)
	return nil
}

// ObserveReplacement is a sync.ReplaceObserver announcing applied snapshots.
func (h *Hub) ObserveReplacement(_ context.Context, r psync.Replacement) {
	if r.Source == psync.SourceReset {
		return
	}
	h.PostMessage(Message{Type: TypeSyncComplete, Timestamp: h.now().UnixMilli()})
}

// Permission implements notify.BrowserNotifier. It is granted when any
// client granted it, denied when every client denied it, default otherwise.
func (h *Hub) Permission() notify.Permission {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.permissionLocked()
}

func (h *Hub) permissionLocked() notify.Permission {
	if len(h.clients) == 0 {
		return notify.PermissionDefault
	}
	denied := 0
	for _, c := range h.clients {
		switch c.permission {
		case notify.PermissionGranted:
			return notify.PermissionGranted
		case notify.PermissionDenied:
			denied++
		}
	}
	if denied == len(h.clients) {
		return notify.PermissionDenied
	}
	return notify.PermissionDefault
}

// RequestPermission implements notify.BrowserNotifier. It asks every client
// and waits for the first decision or ctx.
func (h *Hub) RequestPermission(ctx context.Context) (notify.Permission, error) {
	ch := make(chan notify.Permission, 1)
	h.mu.Lock()
	h.waiters = append(h.waiters, ch)
	h.mu.Unlock()
	defer h.removeWaiter(ch)

	if h.PostMessage(Message{Type: TypeRequestPermission}) == 0 {
		return notify.PermissionDefault, ErrNoClients
	}
	select {
	case <-ch:
		return h.Permission(), nil
	case <-ctx.Done():
		return h.Permission(), ctx.Err()
	}
}

func (h *Hub) removeWaiter(ch chan notify.Permission) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, w := range h.waiters {
		if w == ch {
			h.waiters = append(h.waiters[:i], h.waiters[i+1:]...)
			return
		}
	}
}

// Show implements notify.BrowserNotifier.
func (h *Hub) Show(_ context.Context, n notify.BrowserNotification, onClick func()) (func(), error) {
	id := n.ID.String()
	if id == "" {
		id = uuid.NewString()
	}
	h.mu.Lock()
	if onClick != nil {
		h.clicks[id] = onClick
	}
	h.mu.Unlock()

	if h.PostMessage(Message{Type: TypeShowNotification, ID: id, Browser: &n}) == 0 {
		h.forgetClick(id)
		return nil, ErrNoClients
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			h.forgetClick(id)
			h.PostMessage(Message{Type: TypeCloseNotification, ID: id})
		})
	}, nil
}

func (h *Hub) forgetClick(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clicks, id)
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)
	close(c.send)
}

func (h *Hub) enqueueLocked(c *client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		slog.Debug("Push client buffer full, dropping message", "client_id", c.id)
		return false
	}
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		_ = c.conn.Close()
		slog.Info("Push client disconnected", "client_id", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Push client read failed", "client_id", c.id, "error", err)
			}
			return
		}
		h.handle(c, msg)
	}
}

func (h *Hub) handle(c *client, msg Message) {
	switch msg.Type {
	case TypeVersion:
		if version := workerVersion(msg.Version); versions.IsNewerVersion(h.version, version) {
			slog.Info("Outdated worker, requesting skip waiting",
				"client_id", c.id, "client_version", version, "version", h.version)
			h.sendTo(c.id, Message{Type: TypeSkipWaiting})
		}
	case TypeGetVersion:
		h.sendTo(c.id, Message{Type: TypeVersion, Version: h.version})
	case TypePermission:
		h.setPermission(c, msg.Permission)
	case TypeNotificationClick:
		h.mu.Lock()
		onClick := h.clicks[msg.ID]
		h.mu.Unlock()
		if onClick != nil {
			onClick()
		}
	default:
		slog.Debug("Ignoring push message", "client_id", c.id, "type", msg.Type)
	}
}

func (h *Hub) setPermission(c *client, p notify.Permission) {
	switch p {
	case notify.PermissionGranted, notify.PermissionDenied, notify.PermissionDefault:
	default:
		slog.Debug("Ignoring unknown permission", "client_id", c.id, "permission", p)
		return
	}
	h.mu.Lock()
	c.permission = p
	var waiters []chan notify.Permission
	if p != notify.PermissionDefault {
		waiters = h.waiters
		h.waiters = nil
	}
	h.mu.Unlock()

	for _, w := range waiters {
		select {
		case w <- p:
		default:
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				slog.Debug("Push client write failed", "client_id", c.id, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// workerVersion extracts the semantic version from a worker cache name such
// as "dsi-placement-v1.1.0".
func workerVersion(name string) string {
	if i := strings.LastIndex(name, "-v"); i >= 0 {
		return name[i+2:]
	}
	return strings.TrimPrefix(name, "v")
}
