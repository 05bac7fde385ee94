package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edumark-api/internal/service"
)

const gradingPingInterval = 30 * time.Second

// GradingStreamHandler pushes grading events to connected students and teachers.
type GradingStreamHandler struct {
	hub    service.GradingEventHub
	logger zerolog.Logger
}

// NewGradingStreamHandler constructs a GradingStreamHandler.
func NewGradingStreamHandler(hub service.GradingEventHub, logger zerolog.Logger) *GradingStreamHandler {
	return &GradingStreamHandler{
		hub:    hub,
		logger: logger.With().Str("component", "grading_stream_handler").Logger(),
	}
}

// Register binds the websocket route under an authenticated router group.
func (h *GradingStreamHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	router.Get("/ws", websocket.New(h.handleConnection))
}

func (h *GradingStreamHandler) handleConnection(conn *websocket.Conn) {
	userID, _ := conn.Locals("user_id").(uint)
	if userID == 0 {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "user id missing"))
		_ = conn.Close()
		return
	}

	events, unsubscribe := h.hub.Subscribe(userID)
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(gradingPingInterval)
	defer ticker.Stop()

	h.logger.Info().Uint("user_id", userID).Msg("grading stream connected")
	defer h.logger.Info().Uint("user_id", userID).Msg("grading stream disconnected")

	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Debug().Err(err).Uint("user_id", userID).Msg("grading stream write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
