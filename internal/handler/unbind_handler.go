package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mentorium/supervision-api/internal/dto"
	"github.com/mentorium/supervision-api/internal/service"
	"github.com/mentorium/supervision-api/internal/utils"
)

// UnbindHandler wires the unbind negotiation HTTP routes.
type UnbindHandler struct {
	unbinds   service.UnbindService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewUnbindHandler constructs the handler.
func NewUnbindHandler(unbinds service.UnbindService, validator *validator.Validate, logger zerolog.Logger) *UnbindHandler {
	return &UnbindHandler{
		unbinds:   unbinds,
		validator: validator,
		logger:    logger.With().Str("component", "unbind_handler").Logger(),
	}
}

// RegisterRelationshipRoutes attaches the unbind endpoints that live under a
// relationship resource.
func (h *UnbindHandler) RegisterRelationshipRoutes(router fiber.Router) {
	router.Post("/:id/unbind", h.initiate)
	router.Get("/:id/unbind-requests", h.list)
}

// RegisterRequestRoutes attaches the endpoints addressing an unbind request
// directly.
func (h *UnbindHandler) RegisterRequestRoutes(router fiber.Router) {
	router.Post("/:id/respond", h.respond)
}

func (h *UnbindHandler) initiate(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.UnbindCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	request, err := h.unbinds.Initiate(c.Context(), actorFromContext(c), id, payload)
	if err != nil {
		return h.fail(c, "initiate unbind", err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "unbind request opened", request)
}

func (h *UnbindHandler) respond(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.UnbindRespondRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	resolution, err := h.unbinds.Respond(c.Context(), actorFromContext(c), id, payload)
	if err != nil {
		return h.fail(c, "respond unbind", err)
	}

	return utils.SendSuccess(c, "unbind request resolved", resolution)
}

func (h *UnbindHandler) list(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	requests, err := h.unbinds.ListForRelationship(c.Context(), actorFromContext(c), id)
	if err != nil {
		return h.fail(c, "list unbind requests", err)
	}

	return utils.SendSuccess(c, "unbind requests retrieved", requests)
}

func (h *UnbindHandler) fail(c *fiber.Ctx, operation string, err error) error {
	h.logger.Warn().Err(err).Str("operation", operation).Msg("unbind operation failed")
	return mapLifecycleError(c, err)
}
