// Package events pushes engine and metrics updates to browser clients
// over WebSocket. Events are fire and forget: a slow client gets
// dropped rather than backpressuring the engine.
package events

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mediacastd/playout-server/internal/domain/channel"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 45 * time.Second
	sendBufferSize = 64
)

// Message is the wire shape of one pushed event.
type Message struct {
	Type      string `json:"type"`
	ChannelID *int   `json:"channel_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

// Hub fans events out to every connected client. It implements the
// engine's event sink so state transitions reach the UI without the
// engine knowing anything about transports.
type Hub struct {
	log      *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub creates an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log: log.Named("events"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // same-host UI, origin enforcement adds nothing
			},
		},
		clients: make(map[string]*client),
	}
}

// HandleWebSocket upgrades the request and services the client until it
// disconnects.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	// Upgrade writes its own error response on failure.
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.Error(err)
		return
	}

	id := fmt.Sprintf("client_%d", time.Now().UnixNano())
	cl := &client{conn: conn, send: make(chan Message, sendBufferSize)}

	h.mu.Lock()
	h.clients[id] = cl
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("client connected", zap.String("client", id), zap.Int("clients", n))

	go h.writeLoop(id, cl)
	h.readLoop(id, cl)
}

// writeLoop is the single writer for one connection. Gorilla conns do
// not tolerate concurrent writes, so everything funnels through the
// send channel.
func (h *Hub) writeLoop(id string, cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-cl.send:
			if !ok {
				return
			}
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteJSON(msg); err != nil {
				h.drop(id)
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(id)
				return
			}
		}
	}
}

// readLoop drains inbound frames (clients send nothing meaningful, the
// read is for liveness) and cleans up on disconnect.
func (h *Hub) readLoop(id string, cl *client) {
	cl.conn.SetReadLimit(512)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		cl.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			h.drop(id)
			return
		}
	}
}

// drop removes a client and closes its connection. Safe to call from
// both loops.
func (h *Hub) drop(id string) {
	h.mu.Lock()
	cl, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(cl.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		cl.conn.Close()
		h.log.Info("client disconnected", zap.String("client", id), zap.Int("clients", n))
	}
}

// Broadcast queues a message for every client. A client whose buffer is
// full is disconnected: it can re-sync from the status endpoint.
func (h *Hub) Broadcast(msg Message) {
	msg.Timestamp = time.Now().UnixMilli()

	h.mu.RLock()
	stale := []string(nil)
	for id, cl := range h.clients {
		select {
		case cl.send <- msg:
		default:
			stale = append(stale, id)
		}
	}
	h.mu.RUnlock()

	for _, id := range stale {
		h.log.Warn("dropping slow client", zap.String("client", id))
		h.drop(id)
	}
}

// ClientCount reports how many clients are connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, cl := range h.clients {
		delete(h.clients, id)
		close(cl.send)
		cl.conn.Close()
	}
	h.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Engine event sink
// ---------------------------------------------------------------------------

func (h *Hub) TranscodeStarted(id int, settings channel.Settings) {
	h.Broadcast(Message{Type: "transcode_started", ChannelID: &id, Data: settings})
}

func (h *Hub) TranscodeProgress(id, percent, etaSeconds int) {
	h.Broadcast(Message{Type: "transcode_progress", ChannelID: &id, Data: gin.H{
		"percent":     percent,
		"eta_seconds": etaSeconds,
	}})
}

func (h *Hub) TranscodeCompleted(id int, outputPath string) {
	h.Broadcast(Message{Type: "transcode_complete", ChannelID: &id, Data: gin.H{
		"output": outputPath,
	}})
}

func (h *Hub) TranscodeFailed(id int, message string) {
	h.Broadcast(Message{Type: "transcode_failed", ChannelID: &id, Data: gin.H{
		"error": message,
	}})
}

func (h *Hub) StateChanged(id int, state channel.State) {
	h.Broadcast(Message{Type: "state_changed", ChannelID: &id, Data: gin.H{
		"state": state,
	}})
}

func (h *Hub) StreamStopped(id int) {
	h.Broadcast(Message{Type: "stream_stopped", ChannelID: &id})
}

// PublishMetrics pushes a host metrics sample to all clients.
func (h *Hub) PublishMetrics(sample any) {
	h.Broadcast(Message{Type: "metrics", Data: sample})
}
