package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/mentorium/supervision-api/internal/models"
	"github.com/mentorium/supervision-api/internal/service"
	"github.com/mentorium/supervision-api/internal/utils"
)

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(parsed), nil
}

func parseQueryUint(c *fiber.Ctx, key string) uint {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return uint(parsed)
}

func userIDFromContext(c *fiber.Ctx) uint {
	if v := c.Locals("user_id"); v != nil {
		if id, ok := v.(uint); ok {
			return id
		}
		if id, ok := v.(int); ok {
			if id < 0 {
				return 0
			}
			return uint(id)
		}
	}
	return 0
}

func userRoleFromContext(c *fiber.Ctx) string {
	if v := c.Locals("user_role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}

func actorFromContext(c *fiber.Ctx) service.Actor {
	return service.Actor{
		ID:   userIDFromContext(c),
		Role: models.ActorRole(userRoleFromContext(c)),
	}
}

func isValidationError(err error) bool {
	var validationErrors validator.ValidationErrors
	return errors.As(err, &validationErrors)
}

// mapLifecycleError translates the engine's error taxonomy onto HTTP
// responses, carrying the recovery context each error provides.
func mapLifecycleError(c *fiber.Ctx, err error) error {
	var (
		incomplete *service.IncompleteAcknowledgementError
		cooldown   *service.CooldownActiveError
		transition *service.InvalidTransitionError
	)

	switch {
	case errors.Is(err, service.ErrRelationshipNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "relationship not found")
	case errors.Is(err, service.ErrUnbindRequestNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "unbind request not found")
	case errors.Is(err, service.ErrNotAParty),
		errors.Is(err, service.ErrNotCounterparty),
		errors.Is(err, service.ErrSupervisorRoleRequired):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrDuplicateRelationship):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrStaleState):
		return utils.SendError(c, fiber.StatusConflict, "state changed concurrently, re-fetch and retry")
	case errors.As(err, &incomplete):
		return utils.Fail(c, fiber.StatusUnprocessableEntity, "all acknowledgements must be confirmed",
			fiber.Map{"missing": incomplete.Missing})
	case errors.As(err, &cooldown):
		return utils.Fail(c, fiber.StatusTooManyRequests, cooldown.Error(),
			fiber.Map{"cooldown_until": cooldown.Until, "remaining_seconds": int64(cooldown.Remaining.Seconds())})
	case errors.As(err, &transition):
		return utils.Fail(c, fiber.StatusConflict, transition.Error(),
			fiber.Map{"observed_state": transition.Observed, "required_state": transition.Required})
	case errors.Is(err, service.ErrInvalidTransition):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrRelationshipNotActive),
		errors.Is(err, service.ErrRequestAlreadyOpen):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidReason):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		return utils.SendError(c, fiber.StatusInternalServerError, "internal error")
	}
}
