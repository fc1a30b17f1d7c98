package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Esemudje/portfolio-manager-team02/internal/metrics"
	"github.com/Esemudje/portfolio-manager-team02/internal/poller"
)

// WebSocket message types.
const (
	MsgPortfolioSnapshot = "portfolio_snapshot"
	MsgOrderSubmitted    = "order_submitted"
	MsgOrderCancelled    = "order_cancelled"
	MsgWatchlistUpdated  = "watchlist_updated"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type      string    `json:"type"`
	Symbol    string    `json:"symbol,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WSHub fans dashboard and order events out to connected clients. Run owns
// every data write to a connection; pings go through WriteControl, which is
// safe to call concurrently.
type WSHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	count      atomic.Int64
	upgrader   websocket.Upgrader
	origins    map[string]bool // nil allows any origin
}

// NewWSHub creates a new WebSocket hub. Upgrades are accepted from the
// listed browser origins; an empty list or "*" allows any origin.
func NewWSHub(origins []string) *WSHub {
	h := &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
	}
	for _, o := range origins {
		if o == "*" {
			h.origins = nil
			break
		}
		if h.origins == nil {
			h.origins = make(map[string]bool, len(origins))
		}
		h.origins[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// checkOrigin applies the CORS allow-list to upgrades; browsers do not
// enforce CORS on WebSocket handshakes. Requests without an Origin header
// and same-host requests are let through.
func (h *WSHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.origins == nil {
		return true
	}
	if h.origins[strings.ToLower(origin)] {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// Run is the hub's event loop. It returns when ctx is cancelled, closing
// every connection.
func (h *WSHub) Run(ctx context.Context) {
	defer func() {
		for conn := range h.clients {
			conn.Close()
			delete(h.clients, conn)
		}
		h.setCount(0)
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case conn := <-h.register:
			h.clients[conn] = true
			h.setCount(len(h.clients))
			slog.Info("ws client connected", "total", len(h.clients))

		case conn := <-h.unregister:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
				h.setCount(len(h.clients))
			}

		case msg := <-h.broadcast:
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.setCount(len(h.clients))
		}
	}
}

func (h *WSHub) setCount(n int) {
	h.count.Store(int64(n))
	metrics.WebSocketClients.Set(float64(n))
}

// Clients returns the number of registered connections.
func (h *WSHub) Clients() int {
	return int(h.count.Load())
}

// Broadcast queues a message for every connected client. It never blocks:
// when the buffer is full the message is dropped.
func (h *WSHub) Broadcast(msg WSMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Warn("ws marshal failed", "type", msg.Type, "err", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("ws broadcast dropped", "type", msg.Type)
	}
}

// PublishSnapshot broadcasts a completed poll cycle. It has the signature
// poller.Controller.OnUpdate expects.
func (h *WSHub) PublishSnapshot(v *poller.View) {
	h.Broadcast(WSMessage{Type: MsgPortfolioSnapshot, Data: v, Timestamp: v.UpdatedAt})
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "origin", r.Header.Get("Origin"), "err", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	stop := make(chan struct{})

	// Read pump: detects disconnects and keeps the read deadline fresh.
	go func() {
		defer func() {
			close(stop)
			select {
			case h.unregister <- conn:
			case <-h.done:
			}
		}()
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			}
		}
	}()
}
