package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/allocator/internal/config"
	"github.com/aristath/allocator/internal/database"
	"github.com/aristath/allocator/internal/modules/history"
	historyhandlers "github.com/aristath/allocator/internal/modules/history/handlers"
	"github.com/aristath/allocator/internal/modules/optimization"
	optimizerhandlers "github.com/aristath/allocator/internal/modules/optimization/handlers"
	"github.com/aristath/allocator/internal/scheduler"
	"github.com/aristath/allocator/internal/server"
	"github.com/aristath/allocator/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting Allocator")

	// Initialize databases
	historyDB, err := database.New(cfg.HistoryDBPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(cfg.CacheDBPath())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	// Repositories and services
	historyRepo, err := history.NewRepository(historyDB.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history repository")
	}

	resultCache, err := optimization.NewResultCache(cacheDB.Conn(), cfg.CacheTTL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize result cache")
	}

	optimizerService := optimization.NewService(resultCache, log)

	// Scheduler and background jobs
	sched := scheduler.New(log)
	statsJob := history.NewStatsJob(historyRepo, cfg.LookbackDays, cfg.RiskFreeRate, log)
	if err := sched.AddJob(cfg.StatsSchedule, statsJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register stats job")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Log:       log,
		Optimizer: optimizerhandlers.NewHandler(optimizerService, log),
		History:   historyhandlers.NewHandler(historyRepo, log),
		Scheduler: sched,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
