package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/movie-recommender/backend/pkg/logger"
)

type wsRequest struct {
	Type   string `json:"type"`
	UserID int    `json:"user_id"`
	Limit  int    `json:"limit"`
}

type wsResponse struct {
	Type     string `json:"type"`
	UserID   int    `json:"user_id,omitempty"`
	MovieIDs []int  `json:"movie_ids"`
	Error    string `json:"error,omitempty"`
}

// WebSocketHandler lets a client pull fresh recommendations repeatedly over
// one connection.
type WebSocketHandler struct {
	recommender Recommender
	limits      Limits
	timeout     time.Duration
}

func NewWebSocketHandler(recommender Recommender, limits Limits) *WebSocketHandler {
	return &WebSocketHandler{
		recommender: recommender,
		limits:      limits,
		timeout:     30 * time.Second,
	}
}

// Upgrade rejects plain HTTP requests on the websocket route.
func (h *WebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsRequest
		if err := c.ReadJSON(&msg); err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			return
		}

		if err := c.WriteJSON(h.handle(msg)); err != nil {
			logger.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) handle(msg wsRequest) wsResponse {
	if msg.UserID < 1 {
		return wsResponse{Type: "error", MovieIDs: []int{}, Error: "user_id must be a positive integer"}
	}
	limit := h.limits.clamp(msg.Limit)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	var ids []int
	switch msg.Type {
	case "refresh":
		ids = h.recommender.RefreshForUser(ctx, msg.UserID, limit)
	case "recommend":
		ids = h.recommender.RecommendForUser(ctx, msg.UserID, limit)
	default:
		return wsResponse{Type: "error", MovieIDs: []int{}, Error: "unknown message type"}
	}

	logger.Debug("Processed WebSocket request",
		zap.String("type", msg.Type),
		zap.Int("user_id", msg.UserID),
		zap.Int("count", len(ids)),
	)
	if ids == nil {
		ids = []int{}
	}
	return wsResponse{Type: "recommendations", UserID: msg.UserID, MovieIDs: ids}
}
