package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/launchforge/settlement/internal/api"
	"github.com/launchforge/settlement/internal/config"
	"github.com/launchforge/settlement/internal/database"
	"github.com/launchforge/settlement/internal/logger"
	"github.com/launchforge/settlement/internal/server"
)

// Build information (set via ldflags)
var (
	Version    = "dev"
	CommitHash = "unknown"
)

func main() {
	var verbose = flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		cfg.Verbose = true
	}

	log := logger.New(cfg.Verbose)
	log.Info("starting settlement engine", "version", Version, "commit", CommitHash)

	db, err := database.NewDatabase(cfg.DatabaseDSN)
	if err != nil {
		log.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	svcs, err := server.InitializeServices(cfg, db, log)
	if err != nil {
		log.Error("failed to initialize services", "error", err)
		os.Exit(1)
	}

	apiServer := api.NewAPIServer(svcs.Claim, svcs.Vesting, svcs.Presale, svcs.PresaleClaim, svcs.Bid, log)

	go func() {
		if err := apiServer.Start(cfg.Port); err != nil {
			log.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()
	log.Info("listening", "port", cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	if err := apiServer.Shutdown(); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
