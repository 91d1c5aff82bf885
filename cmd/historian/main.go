// cmd/historian/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/cache"
	"github.com/jason-s-yu/pugbot/internal/config"
	"github.com/jason-s-yu/pugbot/internal/database"
	"github.com/jason-s-yu/pugbot/internal/database/sqlite"
	"github.com/jason-s-yu/pugbot/internal/historian"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logger := logrus.New()
	logger.SetLevel(cfg.Level())

	if cfg.RedisAddr == "" {
		logger.Fatal("REDIS_ADDR is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink historian.Sink
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatalf("failed to connect to postgres: %v", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			logger.Fatalf("failed to migrate: %v", err)
		}
		sink = db
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			logger.Fatalf("failed to open sqlite: %v", err)
		}
		defer db.Close()
		sink = db
	default:
		logger.Fatalf("historian needs a durable store, got %q", cfg.StoreDriver)
	}

	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	hs := historian.NewService(cache.NewQueue(rdb, cfg.EventQueueName), sink, cfg.HistorianBatchSize, cfg.HistorianFlushInterval, logger)
	logger.Infof("historian draining %s", cfg.EventQueueName)
	hs.Run(ctx)
	logger.Infof("historian stopped after storing %d events", hs.Stored())
}
