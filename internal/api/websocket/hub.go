package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/OpenPoolCore/internal/auth"
	"github.com/KevinKickass/OpenPoolCore/internal/controller"
	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"go.uber.org/zap"
)

// SystemStatusProvider returns the payload of system_status messages.
type SystemStatusProvider interface {
	GetStatus() any
}

// Hub maintains active WebSocket clients and broadcasts messages. It is a
// controller.Listener, so controller events reach every subscribed client.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	register   chan *Client
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	mu     sync.RWMutex
	logger *zap.Logger

	authService *auth.AuthService

	statusProvider SystemStatusProvider
}

// NewHub creates a new Hub instance
func NewHub(logger *zap.Logger, authService *auth.AuthService) *Hub {
	return &Hub{
		broadcast:   make(chan Message, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		clients:     make(map[*Client]bool),
		logger:      logger,
		authService: authService,
	}
}

// SetStatusProvider sets the source of system_status messages sent to
// clients right after authentication.
func (h *Hub) SetStatusProvider(provider SystemStatusProvider) {
	h.statusProvider = provider
}

// Run starts the hub's main event loop and returns when ctx is done. All
// remaining clients are disconnected on return.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket Hub started")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.logger.Info("WebSocket Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("WebSocket client registered",
				zap.String("remote_addr", client.remoteAddr()),
				zap.Int("total_clients", total))

			if h.statusProvider != nil {
				h.sendTo(client, NewMessage(MessageTypeSystemStatus, h.statusProvider.GetStatus()))
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("WebSocket client unregistered",
					zap.String("remote_addr", client.remoteAddr()),
					zap.Int("total_clients", len(h.clients)))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("Failed to marshal broadcast message",
					zap.Error(err))
				continue
			}

			h.mu.Lock()
			for client := range h.clients {
				if !client.subscribed(message.Controller) {
					continue
				}
				select {
				case client.send <- data:
				default:
					// Client send channel full - unregister slow/dead client
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("Client send buffer full, unregistering",
						zap.String("remote_addr", client.remoteAddr()))
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) sendTo(client *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Hub broadcast channel full, message dropped",
			zap.String("message_type", string(msg.Type)))
	}
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) SnapshotUpdated(c *controller.Controller, s *procon.Snapshot) {
	h.Broadcast(NewSnapshotMessage(c.Name, s))
}

func (h *Hub) RefreshFailed(c *controller.Controller, err error) {
	h.Broadcast(NewControllerErrorMessage(c.Name, err))
}

func (h *Hub) CommandExecuted(c *controller.Controller, ev controller.CommandEvent) {
	h.Broadcast(NewCommandMessage(ev))
}
