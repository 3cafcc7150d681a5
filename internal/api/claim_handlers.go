package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/launchforge/settlement/internal/services"
)

func (s *APIServer) handlePrepareClaim(c *fiber.Ctx) error {
	var req services.PrepareClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	result, err := s.claimService.PrepareClaim(c.Context(), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(result)
}

func (s *APIServer) handleConfirmClaim(c *fiber.Ctx) error {
	var req services.ConfirmClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	result, err := s.claimService.ConfirmClaim(c.Context(), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(result)
}
