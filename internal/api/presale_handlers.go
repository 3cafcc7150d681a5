package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/launchforge/settlement/internal/services"
)

type createPresaleRequest struct {
	TokenAddress  string `json:"token_address"`
	CreatorWallet string `json:"creator_wallet"`
}

func (s *APIServer) handleCreatePresale(c *fiber.Ctx) error {
	var req createPresaleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	presale, err := s.presaleService.CreatePresale(c.Context(), req.TokenAddress, req.CreatorWallet)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(presale)
}

type launchPresaleRequest struct {
	TotalTokens     string `json:"total_tokens"`
	BaseMintAddress string `json:"base_mint_address"`
}

func (s *APIServer) handleLaunchPresale(c *fiber.Ctx) error {
	var req launchPresaleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	totalTokens, err := strconv.ParseUint(req.TotalTokens, 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "total_tokens must be a positive integer"})
	}

	presale, err := s.presaleService.LaunchPresale(c.Context(), c.Params("token"), totalTokens, req.BaseMintAddress)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(presale)
}

func (s *APIServer) handleVestingInfo(c *fiber.Ctx) error {
	wallet := c.Query("wallet")
	if wallet == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "wallet query parameter is required"})
	}

	info, err := s.vestingService.GetVestingInfo(c.Context(), c.Params("token"), wallet)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(info)
}

func (s *APIServer) handlePreparePresaleClaim(c *fiber.Ctx) error {
	var req services.PreparePresaleClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	req.TokenAddress = c.Params("token")

	result, err := s.presaleClaimService.PreparePresaleClaim(c.Context(), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(result)
}

func (s *APIServer) handleConfirmPresaleClaim(c *fiber.Ctx) error {
	var req services.ConfirmPresaleClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	result, err := s.presaleClaimService.ConfirmPresaleClaim(c.Context(), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(result)
}

func (s *APIServer) handleRecordBid(c *fiber.Ctx) error {
	var req services.RecordBidRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	req.TokenAddress = c.Params("token")

	result, err := s.bidService.RecordBid(c.Context(), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}
