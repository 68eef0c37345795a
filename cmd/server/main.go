package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"ripple-chat/config"
	rredis "ripple-chat/internal/redis"
	"ripple-chat/internal/server"
	"ripple-chat/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()

	appLogger := logger.New(cfg.AppMode)
	logger.SetGlobalLogger(appLogger)
	defer appLogger.Sync()

	ctx := context.Background()

	var repo server.Repository
	if cfg.DatabaseURL != "" {
		pg, err := server.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		repo = pg
		appLogger.Infof("using postgres repository")
	} else {
		repo = server.NewMemoryRepository()
		appLogger.Infof("using in-memory repository")
	}

	opts := server.Options{
		Repository: repo,
		Tokens:     server.NewTokenIssuer(cfg.JWTSecret, time.Duration(cfg.JWTExpiryMin)*time.Minute),
		Logger:     appLogger,
	}

	if cfg.RedisHost != "" {
		rdb := rredis.NewClient(rredis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		opts.Presence = rredis.NewPresenceStore(rdb, 0)
		opts.Bridge = server.NewBridge(rdb, appLogger)
		appLogger.Infof("redis presence and fan-out enabled")
	}

	srv := server.New(opts)
	srv.Start(ctx)

	appLogger.Infof("starting server on port %s", cfg.AppPort)
	if err := srv.Router().Run(fmt.Sprintf(":%s", cfg.AppPort)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
