/**
 * @description
 * This file defines the `Client` struct, which represents a single user's WebSocket connection
 * to the server. It manages the lifecycle of the connection, including reading incoming
 * messages and writing outgoing messages.
 *
 * Key features:
 * - Connection Management: Wraps a `gorilla/websocket` connection.
 * - Concurrency: Uses channels and goroutines for non-blocking read and write operations.
 * - Subscription Handling: Clients send `{"type":"subscribe","channels":[...]}` frames;
 *   `market_ids` is accepted as shorthand for `market:<id>` channels.
 *
 * @dependencies
 * - github.com/gorilla/websocket: The WebSocket library used for connection handling.
 */

package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096

	sendBuffer = 256
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	logger *slog.Logger

	Send chan []byte
	// owned by the read pump
	subscriptions map[string]bool
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, logger *slog.Logger) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		remote:        conn.RemoteAddr().String(),
		logger:        logger,
		Send:          make(chan []byte, sendBuffer),
		subscriptions: make(map[string]bool),
	}
}

// subscriptionMessage defines the structure for incoming subscription requests from the client.
type subscriptionMessage struct {
	Type      string   `json:"type"` // "subscribe" or "unsubscribe"
	Channels  []string `json:"channels"`
	MarketIDs []string `json:"market_ids"`
}

type errorFrame struct {
	EventType string `json:"event_type"`
	Message   string `json:"message"`
}

// ReadPump pumps messages from the websocket connection to the hub.
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		enqueue(c.hub, c.hub.Unregister, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("unexpected websocket close error", "error", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

// reply queues a frame for this client only. Send is owned by the hub, so
// the frame goes through it.
func (c *Client) reply(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	enqueue(c.hub, c.hub.direct, direct{client: c, payload: payload})
}

func (c *Client) requests(msg subscriptionMessage) []string {
	channels := append([]string(nil), msg.Channels...)
	for _, id := range msg.MarketIDs {
		channels = append(channels, MarketPrefix+id)
	}
	return channels
}

// handleMessage processes incoming messages from the client, such as subscription requests.
func (c *Client) handleMessage(raw []byte) {
	var msg subscriptionMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Debug("client: failed to unmarshal message", "error", err, "remote_addr", c.remote)
		c.reply(errorFrame{EventType: "error", Message: "invalid message"})
		return
	}

	switch msg.Type {
	case "subscribe":
		for _, channel := range c.requests(msg) {
			if !ValidChannel(channel) {
				c.reply(errorFrame{EventType: "error", Message: "unknown channel " + channel})
				continue
			}
			if c.subscriptions[channel] {
				continue
			}
			c.subscriptions[channel] = true
			enqueue(c.hub, c.hub.subscribe, subscription{client: c, channel: channel})
		}
	case "unsubscribe":
		for _, channel := range c.requests(msg) {
			if c.subscriptions[channel] {
				delete(c.subscriptions, channel)
				enqueue(c.hub, c.hub.unsubscribe, subscription{client: c, channel: channel})
			}
		}
	default:
		c.logger.Debug("received unknown message type from client", "type", msg.Type)
		c.reply(errorFrame{EventType: "error", Message: "unknown message type"})
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				c.logger.Debug("failed to get next writer", "error", err)
				return
			}
			w.Write(message)

			// Add queued messages to the current websocket message.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				c.logger.Debug("failed to close writer", "error", err)
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
