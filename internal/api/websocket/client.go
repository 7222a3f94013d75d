package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/KevinKickass/OpenPoolCore/internal/auth"
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

	// Time allowed for the auth message after connecting
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Clients authenticate with a token in the first message, so cross
	// origin dashboards are allowed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Client represents a WebSocket client connection
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	authenticated bool
	registered    bool
	permissions   []auth.Permission

	mu sync.RWMutex
	// Controller names the client wants; empty means all.
	controllers map[string]bool
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// subscribed reports whether a message about the named controller should be
// delivered. System messages (empty name) always are.
func (c *Client) subscribed(name string) bool {
	if name == "" {
		return true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.controllers) == 0 || c.controllers[name]
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	// writePump closes the connection once send is closed
	defer func() {
		if c.registered {
			c.hub.unregisterClient(c)
		} else {
			close(c.send)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr()))
			}
			return
		}

		// First message MUST be authentication
		if !c.authenticated {
			if !c.authenticate(msg) {
				return
			}
			if !c.hub.registerClient(c) {
				return
			}
			c.registered = true
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) authenticate(msg ClientMessage) bool {
	if msg.Type != MessageTypeAuth {
		c.writeDirect(MessageTypeAuthFailed, map[string]string{"reason": "First message must be authentication"})
		return false
	}
	if msg.Token == "" {
		c.writeDirect(MessageTypeAuthFailed, map[string]string{"reason": "Missing token in auth message"})
		return false
	}

	permissions, err := c.hub.authService.ValidateToken(msg.Token, c.remoteAddr())
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr()))
		c.writeDirect(MessageTypeAuthFailed, map[string]string{"reason": "Invalid or expired token"})
		return false
	}

	c.authenticated = true
	c.permissions = permissions

	// Pongs keep the connection alive from now on
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	c.writeDirect(MessageTypeAuthSuccess, map[string]any{"permissions": permissions})
	c.logger.Info("WebSocket client authenticated",
		zap.String("remote_addr", c.remoteAddr()),
		zap.Any("permissions", permissions))
	return true
}

// writeDirect queues a handshake message before the client is registered
// with the hub.
func (c *Client) writeDirect(msgType MessageType, data any) {
	payload, err := json.Marshal(NewMessage(msgType, data))
	if err != nil {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (c *Client) handleMessage(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		set := make(map[string]bool, len(msg.Controllers))
		for _, name := range msg.Controllers {
			set[name] = true
		}
		c.mu.Lock()
		c.controllers = set
		c.mu.Unlock()

		c.logger.Debug("WebSocket client subscribed",
			zap.String("remote_addr", c.remoteAddr()),
			zap.Strings("controllers", msg.Controllers))
		c.hub.sendTo(c, NewMessage(MessageTypeSubscribed, map[string]any{"controllers": msg.Controllers}))
	default:
		c.logger.Debug("Ignoring client message",
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

// ServeWs handles WebSocket upgrade requests. Clients are registered with
// the hub only after a successful auth message.
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

	go client.writePump()
	go client.readPump()
}
