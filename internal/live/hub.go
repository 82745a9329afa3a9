// Package live pushes alert events to connected dashboards over websockets.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"safety-monitor-backend/internal/logx"
	"safety-monitor-backend/internal/metrics"
	"safety-monitor-backend/internal/model"
)

// Message types sent to clients.
const (
	TypeAlert       = "alert"
	TypeAlertStatus = "alert_status"
)

// Message is the envelope of every frame written to a client.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// StatusPayload is the payload of an alert_status message.
type StatusPayload struct {
	Alert model.Alert       `json:"alert"`
	From  model.AlertStatus `json:"from"`
}

// Hub maintains the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves registrations and broadcasts until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetLiveClients(n)
			h.log.Debug("live_client_registered", slog.String("remote", client.remote()))

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer; drop it rather than stall everyone else.
					h.log.Warn("live_client_slow", slog.String("remote", client.remote()))
					close(client.send)
					delete(h.clients, client)
				}
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.SetLiveClients(n)

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			metrics.SetLiveClients(0)
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.log.Debug("live_client_unregistered", slog.String("remote", client.remote()))
	}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetLiveClients(n)
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues msg for every client. It never blocks; when the queue is
// full the message is dropped.
func (h *Hub) Broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("live_marshal_failed", slog.String("type", msg.Type), logx.Err(err))
		return
	}
	select {
	case h.broadcast <- b:
	default:
		metrics.IncNotificationDropped("live")
	}
}

// AlertCreated broadcasts a new alert.
func (h *Hub) AlertCreated(_ context.Context, alert model.Alert) {
	h.Broadcast(Message{Type: TypeAlert, Payload: alert})
}

// AlertStatusChanged broadcasts a status change.
func (h *Hub) AlertStatusChanged(_ context.Context, alert model.Alert, from model.AlertStatus) {
	h.Broadcast(Message{Type: TypeAlertStatus, Payload: StatusPayload{Alert: alert, From: from}})
}
