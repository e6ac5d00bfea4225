package notifyhub

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/moyoez/bigtransfer-go/tool"
	"github.com/moyoez/bigtransfer-go/types"
)

// DefaultProgressRate caps progress broadcasts per second; transitions are never dropped.
const DefaultProgressRate = 4

const writeTimeout = 5 * time.Second

// Hub holds WebSocket connections and broadcasts notifications to all clients.
// Implements types.NotifyHub.
type Hub struct {
	mu       sync.RWMutex
	conns    map[*websocket.Conn]struct{}
	writeMu  sync.Mutex
	progress *rate.Limiter
	greeting func() *types.Notification
}

var _ types.NotifyHub = (*Hub)(nil)

// New creates a new notify hub.
func New() *Hub {
	return &Hub{
		conns:    make(map[*websocket.Conn]struct{}),
		progress: rate.NewLimiter(rate.Limit(DefaultProgressRate), 1),
	}
}

// SetGreeting sets the notification sent to each client right after it connects.
func (h *Hub) SetGreeting(fn func() *types.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.greeting = fn
}

// Register adds a WebSocket connection to the hub.
func (h *Hub) Register(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = struct{}{}
	greeting := h.greeting
	h.mu.Unlock()
	if greeting != nil {
		if n := greeting(); n != nil {
			h.send([]*websocket.Conn{conn}, n)
		}
	}
}

// Unregister removes a WebSocket connection from the hub.
func (h *Hub) Unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Broadcast sends the notification as JSON to all registered connections.
func (h *Hub) Broadcast(notification *types.Notification) {
	if notification == nil {
		return
	}
	if isProgress(notification.Type) && !h.progress.Allow() {
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	h.send(conns, notification)
}

func (h *Hub) send(conns []*websocket.Conn, notification *types.Notification) {
	if len(conns) == 0 {
		return
	}
	payload, err := sonic.Marshal(notification)
	if err != nil {
		tool.DefaultLogger.Warnf("[NotifyHub] Failed to encode %s: %v", notification.Type, err)
		return
	}
	// gorilla connections allow one concurrent writer
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	for _, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			tool.DefaultLogger.Debugf("[NotifyHub] Write failed: %v", err)
		}
	}
}

func isProgress(kind string) bool {
	return kind == types.NotifyTypeUploadProgress || kind == types.NotifyTypeDownloadProgress
}
