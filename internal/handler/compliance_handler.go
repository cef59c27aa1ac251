package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mentorium/supervision-api/internal/service"
	"github.com/mentorium/supervision-api/internal/utils"
)

// ComplianceHandler exposes the scheduler-facing sweep endpoint.
type ComplianceHandler struct {
	compliance service.ComplianceService
	logger     zerolog.Logger
}

// NewComplianceHandler constructs the handler.
func NewComplianceHandler(compliance service.ComplianceService, logger zerolog.Logger) *ComplianceHandler {
	return &ComplianceHandler{
		compliance: compliance,
		logger:     logger.With().Str("component", "compliance_handler").Logger(),
	}
}

// Register attaches the sweep endpoint to the internal group.
func (h *ComplianceHandler) Register(router fiber.Router) {
	router.Post("/compliance/sweep", h.sweep)
}

func (h *ComplianceHandler) sweep(c *fiber.Ctx) error {
	result, err := h.compliance.Sweep(c.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("compliance sweep failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "compliance sweep failed")
	}

	return utils.SendSuccess(c, "compliance sweep completed", result)
}
