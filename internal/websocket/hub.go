/**
 * @description
 * This file defines the WebSocket `Hub`, which acts as a central manager for all active
 * client connections. It orchestrates client registration, unregistration, and the
 * broadcasting of real-time market and oracle data.
 *
 * Key features:
 * - Connection Management: Maintains a registry of all connected clients.
 * - Channel-based Communication: Registrations, subscriptions and broadcasts are all
 *   processed by the single `Run` loop, so the registry needs no locks.
 * - Channel Subscriptions: Clients subscribe to `market:<id>` and `prices:<feed>` channels.
 * - Redis Pub/Sub Integration: The first subscriber to a channel starts a Redis listener;
 *   the listener is stopped when the last subscriber leaves.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: The Redis client library.
 * - log/slog: For structured logging.
 */

package websocket

import (
	"context"
	"log/slog"
	"strings"

	"github.com/predikt/backend/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// Channel prefixes clients may subscribe to.
const (
	MarketPrefix = "market:"
	PricePrefix  = "prices:"
)

// ValidChannel reports whether a client may subscribe to channel.
func ValidChannel(channel string) bool {
	for _, prefix := range []string{MarketPrefix, PricePrefix} {
		if rest, ok := strings.CutPrefix(channel, prefix); ok {
			return rest != "" && len(rest) <= 128
		}
	}
	return false
}

// Source delivers the payloads published on a channel until ctx is cancelled.
type Source interface {
	Listen(ctx context.Context, channel string, deliver func(payload []byte))
}

// RedisSource listens with Redis Pub/Sub.
type RedisSource struct {
	Client *redis.Client
	Logger *slog.Logger
}

func (s RedisSource) Listen(ctx context.Context, channel string, deliver func([]byte)) {
	pubsub := s.Client.Subscribe(ctx, channel)
	defer pubsub.Close()
	s.Logger.Debug("subscribing to redis channel", "channel", channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			s.Logger.Debug("stopping redis listener for channel", "channel", channel)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			deliver([]byte(msg.Payload))
		}
	}
}

// subscription represents a client's subscription to one channel.
type subscription struct {
	client  *Client
	channel string
}

type message struct {
	channel string
	payload []byte
}

type direct struct {
	client  *Client
	payload []byte
}

type listener struct {
	cancel  context.CancelFunc
	clients map[*Client]bool
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients map[*Client]bool
	// channel name to its listener and subscribers
	channels map[string]*listener

	Register    chan *Client
	Unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan message
	direct      chan direct

	source Source
	logger *slog.Logger
	ctx    context.Context
}

// NewHub creates a new Hub instance.
func NewHub(ctx context.Context, logger *slog.Logger, source Source) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		channels:    make(map[string]*listener),
		Register:    make(chan *Client),
		Unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		broadcast:   make(chan message, 256),
		direct:      make(chan direct, 64),
		source:      source,
		logger:      logger,
		ctx:         ctx,
	}
}

// Run starts the hub's event loop. It should be run in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("hub shutting down", "clients", len(h.clients))
			for client := range h.clients {
				h.drop(client)
			}
			return
		case client := <-h.Register:
			h.clients[client] = true
			metrics.WebsocketClients.Inc()
			h.logger.Info("hub: new client registered", "remote_addr", client.remote, "total_clients", len(h.clients))
		case client := <-h.Unregister:
			if h.clients[client] {
				h.drop(client)
				h.logger.Info("client unregistered", "remote_addr", client.remote)
			}
		case sub := <-h.subscribe:
			if !h.clients[sub.client] {
				continue
			}
			l, ok := h.channels[sub.channel]
			if !ok {
				ctx, cancel := context.WithCancel(h.ctx)
				l = &listener{cancel: cancel, clients: make(map[*Client]bool)}
				h.channels[sub.channel] = l
				go h.source.Listen(ctx, sub.channel, h.deliverer(ctx, sub.channel))
			}
			l.clients[sub.client] = true
			h.logger.Debug("client subscribed", "channel", sub.channel, "subscribers", len(l.clients))
		case sub := <-h.unsubscribe:
			h.leave(sub.client, sub.channel)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		case d := <-h.direct:
			if h.clients[d.client] {
				select {
				case d.client.Send <- d.payload:
				default:
				}
			}
		}
	}
}

// Attach registers a client. It returns false once the hub has stopped.
func (h *Hub) Attach(c *Client) bool {
	return enqueue(h, h.Register, c)
}

// enqueue hands a request to the Run loop unless the hub has stopped.
func enqueue[T any](h *Hub, ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) deliverer(ctx context.Context, channel string) func([]byte) {
	return func(payload []byte) {
		select {
		case h.broadcast <- message{channel: channel, payload: payload}:
		case <-ctx.Done():
		}
	}
}

// leave removes client from channel and stops the listener when nobody is left.
func (h *Hub) leave(client *Client, channel string) {
	l, ok := h.channels[channel]
	if !ok {
		return
	}
	delete(l.clients, client)
	if len(l.clients) == 0 {
		l.cancel()
		delete(h.channels, channel)
	}
}

// drop forgets client everywhere and closes its send queue.
func (h *Hub) drop(client *Client) {
	for channel := range h.channels {
		h.leave(client, channel)
	}
	delete(h.clients, client)
	close(client.Send)
	metrics.WebsocketClients.Dec()
}

func (h *Hub) fanOut(msg message) {
	l, ok := h.channels[msg.channel]
	if !ok {
		return
	}
	for client := range l.clients {
		select {
		case client.Send <- msg.payload:
		default:
			h.logger.Warn("client send buffer full, unregistering", "channel", msg.channel, "remote_addr", client.remote)
			h.drop(client)
		}
	}
}

// Subscribers returns how many clients listen on channel. It must not be called
// concurrently with Run.
func (h *Hub) Subscribers(channel string) int {
	if l, ok := h.channels[channel]; ok {
		return len(l.clients)
	}
	return 0
}
