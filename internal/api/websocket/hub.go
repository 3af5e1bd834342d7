package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/KevinKickass/OpenMachineSensors/internal/auth"
	"github.com/KevinKickass/OpenMachineSensors/internal/devices"
	"go.uber.org/zap"
)

// Hub maintains active WebSocket clients and broadcasts messages. It is a
// devices.Listener, so sensor events reach clients without further wiring.
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Inbound messages to broadcast
	broadcast chan Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *zap.Logger

	// Token validation, nil when auth is disabled
	jwtHandler *auth.JWTHandler

	// Closed when Run returns
	done chan struct{}
}

var _ devices.Listener = (*Hub)(nil)

// NewHub creates a new Hub instance. With a nil jwtHandler clients are
// registered without the auth handshake.
func NewHub(logger *zap.Logger, jwtHandler *auth.JWTHandler) *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
		jwtHandler: jwtHandler,
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main event loop until ctx is done
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
				if !client.subscribed(message.Sensor) {
					continue
				}
				select {
				case client.send <- data:
					// Message sent successfully
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

// join registers client. It reports false once the hub stopped.
func (h *Hub) join(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast sends a message to all connected clients
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
		// Message queued for broadcast
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

func (h *Hub) SensorAttached(s *devices.Sensor) {
	h.Broadcast(NewSensorMessage(MessageTypeSensorAttached, s))
}

func (h *Hub) SensorDetached(s *devices.Sensor) {
	h.Broadcast(NewSensorMessage(MessageTypeSensorDetached, s))
}

func (h *Hub) SampleTaken(s *devices.Sensor, r devices.Reading) {
	h.Broadcast(NewSensorValuesMessage(s, r))
}

func (h *Hub) SampleFailed(s *devices.Sensor, err error) {
	h.Broadcast(NewSensorErrorMessage(s, err))
}
