// Package ws relays conversation broadcasts to WebSocket clients.
package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"echowaves-backend/internal/domain"
	"echowaves-backend/internal/service/broadcast"
	"echowaves-backend/pkg/logger"
	"echowaves-backend/pkg/metrics"
	"echowaves-backend/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBufferSize = 256

	subscribeRetryMin = 500 * time.Millisecond
	subscribeRetryMax = 30 * time.Second
)

// ConversationResolver maps a channel key to its conversation
type ConversationResolver interface {
	GetByChannelKey(ctx context.Context, key string) (*domain.Conversation, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // authenticated by token, not by origin
	},
}

// ChatHub fans broker payloads out to the WebSocket clients watching a
// conversation. One broker subscription is held per channel with listeners.
type ChatHub struct {
	subscriber Subscriber
	resolver   ConversationResolver

	mu    sync.RWMutex
	rooms map[string]*room

	register   chan *Client
	unregister chan *Client
	broadcast  chan relayed
	done       chan struct{}
}

type room struct {
	clients map[*Client]struct{}
	cancel  context.CancelFunc
}

type relayed struct {
	channel string
	payload []byte
}

// Client represents a WebSocket client
type Client struct {
	hub     *ChatHub
	conn    *websocket.Conn
	send    chan []byte
	userID  int64
	channel string
}

// NewChatHub creates a hub. Call Run before serving clients.
func NewChatHub(subscriber Subscriber, resolver ConversationResolver) *ChatHub {
	return &ChatHub{
		subscriber: subscriber,
		resolver:   resolver,
		rooms:      make(map[string]*room),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan relayed, 256),
		done:       make(chan struct{}),
	}
}

// Run handles hub operations until ctx is cancelled
func (h *ChatHub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			r, ok := h.rooms[client.channel]
			if !ok {
				subCtx, cancel := context.WithCancel(ctx)
				r = &room{clients: make(map[*Client]struct{}), cancel: cancel}
				h.rooms[client.channel] = r
				go h.subscribe(subCtx, client.channel)
			}
			r.clients[client] = struct{}{}
			h.mu.Unlock()
			metrics.ChatWebSocketConnections.Inc()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			if r, ok := h.rooms[msg.channel]; ok {
				for client := range r.clients {
					select {
					case client.send <- msg.payload:
						metrics.ChatWebSocketMessagesTotal.WithLabelValues("outbound").Inc()
					default:
						metrics.ChatClientMessageDroppedTotal.WithLabelValues("slow_client").Inc()
						h.remove(client)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove drops client from its room. Callers hold h.mu.
func (h *ChatHub) remove(client *Client) {
	r, ok := h.rooms[client.channel]
	if !ok {
		return
	}
	if _, exists := r.clients[client]; !exists {
		return
	}
	delete(r.clients, client)
	close(client.send)
	metrics.ChatWebSocketConnections.Dec()

	if len(r.clients) == 0 {
		r.cancel()
		delete(h.rooms, client.channel)
	}
}

func (h *ChatHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.rooms {
		for client := range r.clients {
			h.remove(client)
		}
	}
}

// ClientCount returns the number of clients listening on channel
func (h *ChatHub) ClientCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[channel]; ok {
		return len(r.clients)
	}
	return 0
}

// subscribe keeps a broker subscription open for channel until ctx is done,
// reconnecting with backoff.
func (h *ChatHub) subscribe(ctx context.Context, channel string) {
	backoff := subscribeRetryMin
	for {
		sub, err := h.subscriber.Subscribe(ctx, channel)
		if err != nil {
			logger.Warn("Channel subscription failed",
				zap.String("channel", channel),
				zap.Duration("retry_in", backoff),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, subscribeRetryMax)
			continue
		}

		backoff = subscribeRetryMin
		h.relay(ctx, channel, sub)
		if err := sub.Close(); err != nil {
			logger.Debug("Closing channel subscription", zap.String("channel", channel), zap.Error(err))
		}
		if ctx.Err() != nil {
			return
		}
	}
}

func (h *ChatHub) relay(ctx context.Context, channel string, sub Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-sub.Messages():
			if !ok {
				return
			}
			select {
			case h.broadcast <- relayed{channel: channel, payload: payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// ServeWS handles GET /v1/ws/conversations/:key
func (h *ChatHub) ServeWS(c *gin.Context) {
	userID := c.GetInt64("user_id")
	if userID == 0 {
		response.Unauthorized(c, "Not authenticated")
		return
	}

	conv, err := h.resolver.GetByChannelKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		response.FromError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		metrics.ChatWebSocketConnectionTotal.WithLabelValues("upgrade_failed").Inc()
		logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	metrics.ChatWebSocketConnectionTotal.WithLabelValues("connected").Inc()

	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		userID:  userID,
		channel: broadcast.ChannelName(conv),
	}

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	logger.Debug("WebSocket client joined",
		zap.Int64("user_id", client.userID),
		zap.String("channel", client.channel))

	go client.writePump()
	go client.readPump()
}

// readPump drains inbound frames so pongs and close frames are processed.
// Clients have nothing to say on this socket.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}
		metrics.ChatWebSocketMessagesTotal.WithLabelValues("inbound").Inc()
	}
}

// writePump writes messages to WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
