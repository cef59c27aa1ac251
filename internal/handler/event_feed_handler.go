package handler

import (
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/mentorium/supervision-api/internal/dto"
	"github.com/mentorium/supervision-api/internal/service"
	"github.com/mentorium/supervision-api/internal/utils"
)

// EventFeedHandler exposes the lifecycle event history and the live
// websocket feed.
type EventFeedHandler struct {
	events    service.EventService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewEventFeedHandler constructs the handler.
func NewEventFeedHandler(events service.EventService, validator *validator.Validate, logger zerolog.Logger) *EventFeedHandler {
	return &EventFeedHandler{
		events:    events,
		validator: validator,
		logger:    logger.With().Str("component", "event_feed_handler").Logger(),
	}
}

// Register attaches the event feed endpoints to the router group.
func (h *EventFeedHandler) Register(router fiber.Router) {
	router.Get("", h.list)

	router.Use("/live", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/live", websocket.New(h.live))
}

func (h *EventFeedHandler) list(c *fiber.Ctx) error {
	req := dto.EventListRequest{
		RelationshipID: parseQueryUint(c, "relationship_id"),
		Type:           c.Query("type"),
		Page:           int(parseQueryUint(c, "page")),
		PageSize:       int(parseQueryUint(c, "page_size")),
	}

	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	events, err := h.events.List(c.Context(), req)
	if err != nil {
		h.logger.Error().Err(err).Msg("event list failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal error")
	}

	return utils.SendSuccess(c, "events retrieved", events)
}

func (h *EventFeedHandler) live(conn *websocket.Conn) {
	relationshipID := uint(0)
	if raw := conn.Query("relationship_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid relationship_id"))
			_ = conn.Close()
			return
		}
		relationshipID = uint(parsed)
	}

	feed, cancel := h.events.Subscribe(relationshipID)
	defer cancel()

	h.logger.Info().Uint("relationship_id", relationshipID).Msg("event feed connected")
	defer h.logger.Info().Uint("relationship_id", relationshipID).Msg("event feed disconnected")

	// Drain client frames so close handshakes are noticed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event, ok := <-feed:
			if !ok {
				_ = conn.Close()
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
