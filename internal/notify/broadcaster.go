// Package notify surfaces pending approvals to connected reviewers over
// websocket. It is the notification collaborator: the approval state
// machine itself lives in pkg/approval.
package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/RhysSullivan/assistant-sub002/pkg/approval"
)

// EventMessage is one websocket event frame.
type EventMessage struct {
	Type      string `json:"type"`
	Event     string `json:"event"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Seq       int64  `json:"seq"`
}

// Broadcaster fans events out to every connected reviewer. It implements
// approval.Forwarder so newly created records reach humans immediately.
type Broadcaster struct {
	upgrader websocket.Upgrader
	seq      uint64

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// HandleWS upgrades an HTTP request and keeps the connection registered
// until the peer goes away.
func (b *Broadcaster) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	b.mu.Lock()
	b.clients[conn] = struct{}{}
	count := len(b.clients)
	b.mu.Unlock()
	log.Info().Int("clients", count).Msg("Reviewer connected")

	// Reads are only used to detect disconnects.
	go func() {
		defer b.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	if _, ok := b.clients[conn]; ok {
		delete(b.clients, conn)
		conn.Close()
	}
	count := len(b.clients)
	b.mu.Unlock()
	log.Info().Int("clients", count).Msg("Reviewer disconnected")
}

// ForwardApproval implements approval.Forwarder.
func (b *Broadcaster) ForwardApproval(ctx context.Context, record *approval.Record) error {
	b.Broadcast("approval_request", record)
	return nil
}

// Broadcast sends an event to every connected reviewer. Slow or broken
// connections are dropped rather than blocking the rest.
func (b *Broadcaster) Broadcast(event string, data any) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       int64(atomic.AddUint64(&b.seq, 1)),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	failed := 0
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			failed++
			b.remove(conn)
		}
	}
	log.Debug().
		Str("event", event).
		Int("clients", len(conns)).
		Int("failed", failed).
		Msg("Event broadcast complete")
}

// Close disconnects every reviewer.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		conn.Close()
		delete(b.clients, conn)
	}
}
