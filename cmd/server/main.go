package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/david/quest-radar/internal/api"
	"github.com/david/quest-radar/internal/auth"
	"github.com/david/quest-radar/internal/config"
	"github.com/david/quest-radar/internal/db"
	"github.com/david/quest-radar/internal/ingest"
	"github.com/david/quest-radar/internal/logger"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		logger.Must(logger.Config{}).Fatal("Failed to load config", logger.Error(err))
	}
	log := logger.Must(cfg.Log)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database", logger.Error(err))
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, log); err != nil {
		log.Fatal("Migration failed", logger.Error(err))
	}

	registry, err := ingest.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		log.Fatal("Failed to load source registry", logger.Error(err))
	}

	authService, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.AdminSecretHash, cfg.Auth.TokenTTL, log)
	if err != nil {
		log.Fatal("Failed to init auth", logger.Error(err))
	}
	if cfg.Auth.AdminSecretHash == "" {
		log.Warn("ADMIN_SECRET_HASH is not set; POST /api/v1/process cannot be authorized")
	}

	srv := api.NewServer(api.Options{
		Store:         db.NewStore(pool),
		Auth:          authService,
		Pipeline:      ingest.NewPipeline(cfg.PipelineOptions(registry, log)),
		Logger:        log,
		DefaultMinROI: cfg.Pipeline.MinROI,
		OutputDir:     cfg.Output.Dir,
		CORSOrigins:   strings.Split(os.Getenv("CORS_ORIGINS"), ","),
	})

	go func() {
		log.Info("Server starting", logger.String("port", cfg.Server.Port))
		if err := srv.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server stopped", logger.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown failed", logger.Error(err))
	}
	log.Info("Server stopped")
}
