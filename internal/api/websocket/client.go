package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth message
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a WebSocket client connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	// sensor names the client subscribed to, empty means all
	subMu   sync.RWMutex
	sensors map[string]bool
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Client) subscribed(sensor string) bool {
	if sensor == "" {
		return true
	}
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.sensors) == 0 || c.sensors[sensor]
}

func (c *Client) subscribe(sensors []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	c.sensors = make(map[string]bool, len(sensors))
	for _, name := range sensors {
		c.sensors[name] = true
	}
}

// authenticate expects the first message to carry a token. The client is
// only registered at the hub once the token is valid.
func (c *Client) authenticate() bool {
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	var msg clientMessage
	if err := c.conn.ReadJSON(&msg); err != nil {
		c.logger.Warn("WebSocket auth read failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr()))
		return false
	}

	if msg.Type != MessageTypeAuth || msg.Token == "" {
		c.writeDirect(MessageTypeAuthFailed, "First message must be authentication")
		return false
	}

	claims, err := c.hub.jwtHandler.ValidateAccessToken(msg.Token)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr()))
		c.writeDirect(MessageTypeAuthFailed, "Invalid or expired token")
		return false
	}

	c.conn.SetReadDeadline(time.Time{})
	c.writeDirect(MessageTypeAuthSuccess, map[string]string{"subject": claims.Subject, "role": claims.Role})
	c.logger.Info("WebSocket client authenticated",
		zap.String("remote_addr", c.remoteAddr()),
		zap.String("role", claims.Role))
	return true
}

// writeDirect writes a handshake reply before the write pump runs.
func (c *Client) writeDirect(msgType MessageType, data interface{}) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(NewMessage(msgType, data)); err != nil {
		c.logger.Debug("WebSocket handshake write failed", zap.Error(err))
	}
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr()))
			}
			break
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Debug("Ignoring malformed client message",
				zap.String("remote_addr", c.remoteAddr()),
				zap.Error(err))
			continue
		}
		c.handleMessage(msg)
	}
}

func (c *Client) handleMessage(msg clientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribe(msg.Sensors)
		c.logger.Debug("WebSocket client subscribed",
			zap.String("remote_addr", c.remoteAddr()),
			zap.Strings("sensors", msg.Sensors))
	default:
		c.logger.Debug("Received client message",
			zap.String("remote_addr", c.remoteAddr()),
			zap.String("type", string(msg.Type)))
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs handles WebSocket upgrade requests
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}

	go func() {
		if hub.jwtHandler != nil && !client.authenticate() {
			conn.Close()
			return
		}

		if !hub.join(client) {
			conn.Close()
			return
		}

		// Start read and write pumps in separate goroutines
		go client.writePump()
		client.readPump()
	}()
}
