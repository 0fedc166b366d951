package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/viral-platform/miniapp/internal/auth"
	"github.com/viral-platform/miniapp/internal/events"
	"go.uber.org/zap"
)

// wsClient serialises writes: a websocket conn allows one writer at a time.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

type WSHub struct {
	jwtSecret   string
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[int64][]*wsClient // by telegram user id
}

func NewWSHub(jwtSecret string, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		jwtSecret:   jwtSecret,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[int64][]*wsClient),
	}
}

// Start routes events from the stream to connected clients until ctx is done.
func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.Stream, h.dispatch)
}

func (h *WSHub) dispatch(event events.Event) {
	if event.TelegramUserID == 0 {
		h.broadcast(event)
		return
	}
	h.SendToUser(event.TelegramUserID, event)
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, clients := range h.connections {
		for _, cl := range clients {
			_ = cl.write(data)
		}
	}
}

func (h *WSHub) SendToUser(telegramID int64, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, cl := range h.connections[telegramID] {
		if err := cl.write(data); err != nil {
			h.log.Debug("ws write failed", zap.Int64("telegram_user_id", telegramID), zap.Error(err))
		}
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) register(telegramID int64, cl *wsClient) {
	h.mu.Lock()
	h.connections[telegramID] = append(h.connections[telegramID], cl)
	h.mu.Unlock()
}

func (h *WSHub) unregister(telegramID int64, cl *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.connections[telegramID]
	for i, c := range clients {
		if c == cl {
			h.connections[telegramID] = append(clients[:i], clients[i+1:]...)
			break
		}
	}
	if len(h.connections[telegramID]) == 0 {
		delete(h.connections, telegramID)
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.jwtSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	telegramID := claims.TelegramUserID
	cl := &wsClient{conn: conn}
	h.register(telegramID, cl)

	defer func() {
		h.unregister(telegramID, cl)
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
