package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatsell/agency_dash/backend/internal/app"
	"github.com/chatsell/agency_dash/backend/internal/config"
	"github.com/chatsell/agency_dash/backend/internal/database"
	"github.com/chatsell/agency_dash/backend/internal/httpserver"
	"github.com/chatsell/agency_dash/backend/internal/logging"
	"github.com/chatsell/agency_dash/backend/internal/redisclient"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Options{})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	client, err := database.Connect(ctx, cfg.Mongo, logger)
	if err != nil {
		log.Fatalf("connect mongo: %v", err)
	}

	redisClient := redisclient.New(cfg.Redis)
	if err := redisclient.Ping(ctx, redisClient); err != nil {
		// Rate limiting fails open, so an unreachable redis is not fatal.
		logger.Warn("redis unavailable", slog.String("error", err.Error()))
	}

	container, err := app.NewContainer(ctx, cfg, client, redisClient, logger)
	if err != nil {
		log.Fatalf("build container: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("close container", slog.String("error", err.Error()))
		}
	}()

	server, err := httpserver.New(container)
	if err != nil {
		log.Fatalf("construct server: %v", err)
	}

	logger.Info("analytics api listening",
		slog.String("addr", cfg.Server.ListenAddr),
		slog.String("database", cfg.Mongo.Database),
		slog.String("timezone", container.ReportingLoc().String()))

	if err := server.Listen(ctx); err != nil && err != context.Canceled {
		log.Fatalf("server stopped: %v", err)
	}
}
