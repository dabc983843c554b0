package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/shelfarr/shelfarr/internal/api"
	"github.com/shelfarr/shelfarr/internal/config"
	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/decisioning"
	"github.com/shelfarr/shelfarr/internal/downloader"
	"github.com/shelfarr/shelfarr/internal/health"
	"github.com/shelfarr/shelfarr/internal/logger"
	"github.com/shelfarr/shelfarr/internal/postprocess"
	"github.com/shelfarr/shelfarr/internal/scheduler"
)

func main() {
	// Optional .env for container and development setups.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Path:   cfg.Logging.Path,
	})
	defer log.Close()

	log.Info().Str("logLevel", cfg.Logging.Level).Str("database", cfg.Database.Path).
		Msg("Starting Shelfarr")

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	store := database.NewStore(db)
	factory := downloader.NewFactory(log.Logger)
	downloads := downloader.NewService(store, factory, log.Logger)

	pipeline := postprocess.NewPipeline(store, postprocess.Config{
		RemotePath:            cfg.Downloads.RemotePath,
		LocalPath:             cfg.Downloads.LocalPath,
		AudiobookOutputPath:   cfg.Library.AudiobookOutputPath,
		EbookOutputPath:       cfg.Library.EbookOutputPath,
		AudiobookTemplate:     cfg.Library.AudiobookTemplate,
		EbookTemplate:         cfg.Library.EbookTemplate,
		RemoveCompletedUsenet: cfg.Downloads.RemoveCompletedUsenet,
	}, log.Logger)
	downloads.SetCompletionHandler(pipeline)

	policy := decisioning.NewPolicy(cfg.AutoSelect.MinSeeders, cfg.AutoSelect.ConfidenceThreshold, log.Logger)

	monitor := health.NewMonitor(store, store, factory, health.Config{
		DownloadLocalPath:   cfg.Downloads.LocalPath,
		AudiobookOutputPath: cfg.Library.AudiobookOutputPath,
		EbookOutputPath:     cfg.Library.EbookOutputPath,
	}, log.Logger)

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}

	err = sched.RegisterTask(scheduler.TaskConfig{
		ID:          "download-poll",
		Name:        "Download Progress Poll",
		Description: "Refreshes active downloads from their backends and imports completed ones",
		Interval:    cfg.Downloads.PollInterval,
		Func:        downloads.PollActive,
		RunOnStart:  true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register download poll task")
	}

	if cfg.Health.Interval > 0 {
		err = sched.RegisterTask(scheduler.TaskConfig{
			ID:          "health-check",
			Name:        "Service Health Check",
			Description: "Probes download clients and library paths and records per-service state",
			Interval:    cfg.Health.Interval,
			Func:        monitor.RunAll,
			RunOnStart:  true,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to register health check task")
		}
	} else {
		log.Info().Msg("Health checks disabled")
	}

	if err := sched.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(cfg, store, downloads, policy, monitor, sched, log.Logger)
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	if err := server.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("Scheduler shutdown failed")
	}
}
