// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/pugbot/internal/auth"
	"github.com/jason-s-yu/pugbot/internal/board"
	"github.com/jason-s-yu/pugbot/internal/cache"
	"github.com/jason-s-yu/pugbot/internal/command"
	"github.com/jason-s-yu/pugbot/internal/config"
	"github.com/jason-s-yu/pugbot/internal/cooldown"
	"github.com/jason-s-yu/pugbot/internal/database"
	"github.com/jason-s-yu/pugbot/internal/database/memstore"
	"github.com/jason-s-yu/pugbot/internal/database/sqlite"
	"github.com/jason-s-yu/pugbot/internal/discord"
	"github.com/jason-s-yu/pugbot/internal/handlers"
	"github.com/jason-s-yu/pugbot/internal/pug"
	"github.com/jason-s-yu/pugbot/internal/schedule"
)

// store is what the server needs from a persistence driver.
type store interface {
	pug.RecordStore
	command.Reporter
}

func openStore(ctx context.Context, cfg config.Config, logger *logrus.Logger) (store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, db.Close, nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() {
			if err := db.Close(); err != nil {
				logger.WithError(err).Warn("failed to close sqlite store")
			}
		}, nil
	default:
		logger.Warn("using in-memory store; records are lost on restart")
		return memstore.New(), func() {}, nil
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(cfg.Level())

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		logger.Fatalf("failed to load settings: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("failed to open %s store: %v", cfg.StoreDriver, err)
	}
	defer closeStore()

	runner, err := schedule.NewRunner(logger)
	if err != nil {
		logger.Fatalf("failed to start scheduler: %v", err)
	}
	defer runner.Shutdown()

	signer, err := auth.NewSigner(cfg.TokenExpire)
	if err != nil {
		logger.Fatalf("failed to create token signer: %v", err)
	}

	opts := pug.Options{
		Store:     st,
		Cooldowns: cooldown.NewScheduler(runner, cfg.CooldownUnit, logger),
		Deferrer:  runner,
		Settings:  settings,
		Grace:     cfg.ResultGrace,
		Logger:    logger,
	}

	if cfg.RedisAddr != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB)
		if err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		opts.Events = cache.NewPublisher(rdb, cfg.EventQueueName)
		logger.Infof("publishing lobby events to %s", cfg.EventQueueName)
	}

	if cfg.DiscordToken != "" {
		session, err := discord.Session(cfg.DiscordToken)
		if err != nil {
			logger.Fatal(err)
		}
		opts.Presenter = discord.NewPresenter(session)
		opts.Roles = discord.NewRoles(session, cfg.DiscordGuildID)
		svc := pug.NewService(opts)
		commands := command.NewDispatcher(svc, st, logger)
		bot := discord.NewBot(session, svc, commands, cfg.DiscordGuildID, logger)
		bot.Register(session)
		if err := session.Open(); err != nil {
			logger.Fatalf("failed to open discord gateway: %v", err)
		}
		defer session.Close()
		run(ctx, cfg, logger, svc, commands, st, nil, signer)
		return
	}

	lobbyBoard := board.New(64, logger)
	opts.Presenter = lobbyBoard
	svc := pug.NewService(opts)
	run(ctx, cfg, logger, svc, command.NewDispatcher(svc, st, logger), st, lobbyBoard, signer)
}

// run restores live lobbies and serves HTTP until ctx is cancelled.
func run(ctx context.Context, cfg config.Config, logger *logrus.Logger, svc *pug.Service, commands *command.Dispatcher, reports command.Reporter, b *board.Board, signer *auth.Signer) {
	n, err := svc.Restore(ctx)
	if err != nil {
		logger.WithError(err).Error("failed to restore lobbies")
	} else if n > 0 {
		logger.Infof("restored %d lobbies", n)
	}

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: handlers.Routes(handlers.Deps{
			Logger:    logger,
			Service:   svc,
			Commands:  commands,
			Reports:   reports,
			Board:     b,
			Signer:    signer,
			DevTokens: cfg.DevTokens,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("server shutdown")
		}
	}()

	logger.Infof("Running on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
}
