package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/launchforge/settlement/internal/services"
)

// writeError maps the service error taxonomy onto HTTP status codes. Retry
// hints ride along so callers can back off instead of giving up.
func (s *APIServer) writeError(c *fiber.Ctx, err error) error {
	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		s.logger.Error("unclassified handler error", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	status := fiber.StatusInternalServerError
	switch svcErr.Kind {
	case services.ErrorKindValidation, services.ErrorKindIntegrity:
		status = fiber.StatusBadRequest
	case services.ErrorKindAuthorization:
		status = fiber.StatusForbidden
	case services.ErrorKindNotFound:
		status = fiber.StatusNotFound
	case services.ErrorKindConflict:
		status = fiber.StatusConflict
	case services.ErrorKindEligibility:
		status = fiber.StatusUnprocessableEntity
	case services.ErrorKindLedger:
		if svcErr.Code == services.CodeConfirmationTimeout {
			status = fiber.StatusGatewayTimeout
		} else {
			status = fiber.StatusBadGateway
		}
	}

	body := fiber.Map{
		"error": svcErr.Message,
		"code":  svcErr.Code,
		"kind":  svcErr.Kind,
	}
	if svcErr.RetryAfter > 0 {
		body["retry_after_seconds"] = int(svcErr.RetryAfter.Seconds())
	}
	return c.Status(status).JSON(body)
}
