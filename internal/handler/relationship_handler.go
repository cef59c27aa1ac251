package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mentorium/supervision-api/internal/dto"
	"github.com/mentorium/supervision-api/internal/service"
	"github.com/mentorium/supervision-api/internal/utils"
)

// RelationshipHandler wires the relationship lifecycle HTTP routes.
type RelationshipHandler struct {
	lifecycle service.LifecycleService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewRelationshipHandler constructs the handler.
func NewRelationshipHandler(lifecycle service.LifecycleService, validator *validator.Validate, logger zerolog.Logger) *RelationshipHandler {
	return &RelationshipHandler{
		lifecycle: lifecycle,
		validator: validator,
		logger:    logger.With().Str("component", "relationship_handler").Logger(),
	}
}

// Register attaches relationship endpoints to the router group.
func (h *RelationshipHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.status)
	router.Post("", h.offer)
	router.Post("/:id/accept", h.accept)
	router.Post("/:id/cancel", h.cancel)
}

func (h *RelationshipHandler) offer(c *fiber.Ctx) error {
	var payload dto.OfferCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	relationship, err := h.lifecycle.OfferSupervision(c.Context(), actorFromContext(c), payload)
	if err != nil {
		return h.fail(c, "offer supervision", err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "supervision offered", relationship)
}

func (h *RelationshipHandler) accept(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.AcceptOfferRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	relationship, err := h.lifecycle.AcceptOffer(c.Context(), actorFromContext(c), id, payload)
	if err != nil {
		return h.fail(c, "accept offer", err)
	}

	return utils.SendSuccess(c, "offer accepted", relationship)
}

func (h *RelationshipHandler) cancel(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	relationship, err := h.lifecycle.CancelOffer(c.Context(), actorFromContext(c), id)
	if err != nil {
		return h.fail(c, "cancel offer", err)
	}

	return utils.SendSuccess(c, "offer cancelled", relationship)
}

func (h *RelationshipHandler) status(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	status, err := h.lifecycle.GetRelationshipStatus(c.Context(), actorFromContext(c), id)
	if err != nil {
		return h.fail(c, "relationship status", err)
	}

	return utils.SendSuccess(c, "relationship retrieved", status)
}

func (h *RelationshipHandler) list(c *fiber.Ctx) error {
	req := dto.RelationshipListRequest{
		State:    c.Query("state"),
		Page:     int(parseQueryUint(c, "page")),
		PageSize: int(parseQueryUint(c, "page_size")),
	}

	if err := h.validator.Struct(req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	relationships, err := h.lifecycle.ListRelationships(c.Context(), actorFromContext(c), req)
	if err != nil {
		return h.fail(c, "list relationships", err)
	}

	return utils.SendSuccess(c, "relationships retrieved", relationships)
}

func (h *RelationshipHandler) fail(c *fiber.Ctx, operation string, err error) error {
	h.logger.Warn().Err(err).Str("operation", operation).Msg("lifecycle operation failed")
	return mapLifecycleError(c, err)
}
