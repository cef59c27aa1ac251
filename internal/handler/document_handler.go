package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/mentorium/supervision-api/internal/service"
	"github.com/mentorium/supervision-api/internal/utils"
)

// DocumentHandler receives supervision letter uploads.
type DocumentHandler struct {
	documents service.DocumentService
	logger    zerolog.Logger
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(documents service.DocumentService, logger zerolog.Logger) *DocumentHandler {
	return &DocumentHandler{
		documents: documents,
		logger:    logger.With().Str("component", "document_handler").Logger(),
	}
}

// Register attaches the upload endpoint under the relationship group.
func (h *DocumentHandler) Register(router fiber.Router) {
	router.Post("/:id/document", h.upload)
}

func (h *DocumentHandler) upload(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	file, err := c.FormFile("file")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "file is required")
	}

	result, err := h.documents.UploadLetter(c.Context(), id, file)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDocumentTooLarge):
			return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, service.ErrDocumentTypeNotAllowed):
			return utils.SendError(c, fiber.StatusUnsupportedMediaType, err.Error())
		default:
			h.logger.Warn().Err(err).Uint("relationship_id", id).Msg("document upload failed")
			return mapLifecycleError(c, err)
		}
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "supervision letter stored", result)
}
