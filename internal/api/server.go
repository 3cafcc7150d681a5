package api

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/launchforge/settlement/internal/services"
)

type APIServer struct {
	app                 *fiber.App
	claimService        services.ClaimService
	vestingService      services.VestingService
	presaleService      services.PresaleService
	presaleClaimService services.PresaleClaimService
	bidService          services.BidService
	logger              *slog.Logger
}

func NewAPIServer(
	claimService services.ClaimService,
	vestingService services.VestingService,
	presaleService services.PresaleService,
	presaleClaimService services.PresaleClaimService,
	bidService services.BidService,
	logger *slog.Logger,
) *APIServer {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	app.Use(cors.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))

	server := &APIServer{
		app:                 app,
		claimService:        claimService,
		vestingService:      vestingService,
		presaleService:      presaleService,
		presaleClaimService: presaleClaimService,
		bidService:          bidService,
		logger:              logger,
	}
	server.setupRoutes()
	return server
}

func (s *APIServer) setupRoutes() {
	s.app.Get("/api/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	s.app.Post("/api/claims/prepare", s.handlePrepareClaim)
	s.app.Post("/api/claims/confirm", s.handleConfirmClaim)

	s.app.Post("/api/presales", s.handleCreatePresale)
	s.app.Post("/api/presales/:token/launch", s.handleLaunchPresale)
	s.app.Get("/api/presales/:token/vesting", s.handleVestingInfo)
	s.app.Post("/api/presales/:token/claims/prepare", s.handlePreparePresaleClaim)
	s.app.Post("/api/presales/:token/claims/confirm", s.handleConfirmPresaleClaim)
	s.app.Post("/api/presales/:token/bids", s.handleRecordBid)
}

func (s *APIServer) Start(port int) error {
	return s.app.Listen(fmt.Sprintf(":%d", port))
}

func (s *APIServer) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for handler tests.
func (s *APIServer) App() *fiber.App {
	return s.app
}
