package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10 // must stay below pongWait

	// Commands are tiny JSON objects
	maxMessageSize = 512

	sendBufferSize = 256
)

// Client is one browser tab connected to the hub
type Client struct {
	id          string
	workspaceID int32
	conn        *websocket.Conn
	hub         *Hub
	logger      zerolog.Logger
	subs        subscriptions

	send      chan []byte
	closed    bool
	mu        sync.RWMutex
	closeOnce sync.Once
}

// NewClient wraps an upgraded connection. conn may be nil in tests that
// never start the pumps.
func NewClient(conn *websocket.Conn, workspaceID int32, hub *Hub) *Client {
	id := uuid.New().String()
	return &Client{
		id:          id,
		workspaceID: workspaceID,
		conn:        conn,
		hub:         hub,
		logger: log.With().
			Str("component", "websocket").
			Str("client_id", id).
			Int32("workspace_id", workspaceID).
			Logger(),
		send: make(chan []byte, sendBufferSize),
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) WorkspaceID() int32 {
	return c.workspaceID
}

// Wants reports whether the event passes this client's contract filter
func (c *Client) Wants(event Event) bool {
	return c.subs.matches(event)
}

// Subscriptions returns the contracts this client is narrowed to, empty for all
func (c *Client) Subscriptions() []int32 {
	return c.subs.list()
}

// Send queues a frame. A full buffer means the reader is too slow and the
// frame is refused rather than blocking the broadcaster.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrClientClosed
	}
}

// Close is idempotent and safe from any goroutine
func (c *Client) Close() error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()

		if c.conn != nil {
			closeErr = c.conn.Close()
		}
	})
	return closeErr
}

func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// handleCommand applies one client message and answers with the resulting
// subscription set, or with a rejection the client can display.
func (c *Client) handleCommand(data []byte) error {
	cmd, err := parseCommand(data)
	if err != nil {
		c.reply(subscriptionRejected(err))
		return err
	}

	c.subs.apply(cmd)
	c.logger.Debug().
		Str("action", cmd.Action).
		Int32("contract_id", cmd.ContractID).
		Msg("Subscription changed")

	c.reply(subscriptionUpdated(c.subs.list()))
	return nil
}

func (c *Client) reply(event Event) {
	data, err := event.ToJSON()
	if err != nil {
		c.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to serialize reply")
		return
	}
	if err := c.Send(data); err != nil {
		c.logger.Debug().Err(err).Msg("Dropped reply")
	}
}

// ReadPump reads client commands until the connection drops, then
// unregisters the client. Run it in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("WebSocket unexpected close")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := c.handleCommand(data); err != nil {
			c.logger.Debug().Err(err).Msg("Rejected client command")
		}
	}
}

// WritePump drains the send buffer onto the socket and keeps the connection
// alive with pings. Run it in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Closed by the hub
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn().Err(err).Msg("WebSocket write error")
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
