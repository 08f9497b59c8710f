package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/vending-service/internal/api/http"
	"github.com/spec-kit/vending-service/internal/api/http/handlers"
	"github.com/spec-kit/vending-service/internal/config"
	"github.com/spec-kit/vending-service/internal/directory"
	"github.com/spec-kit/vending-service/internal/messaging"
	"github.com/spec-kit/vending-service/internal/observability"
	"github.com/spec-kit/vending-service/internal/persistence"
	"github.com/spec-kit/vending-service/internal/service"
	"github.com/spec-kit/vending-service/internal/store"
	"github.com/spec-kit/vending-service/internal/store/memory"
	postgresstore "github.com/spec-kit/vending-service/internal/store/postgres"
	"github.com/spec-kit/vending-service/internal/store/redisstore"
	"github.com/spec-kit/vending-service/internal/token"
	"github.com/spec-kit/vending-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()

	tokenStore := openStore(ctx, cfg, logger)
	defer tokenStore.Close() //nolint:errcheck

	dir, err := directory.Load(cfg.Doors)
	if err != nil {
		logger.Fatal("failed to load door directory", zap.Error(err))
	}
	logger.Info("door directory loaded", zap.Ints("doors", dir.Doors()))

	mqttClient, err := messaging.NewClient(cfg.MQTT, logger)
	if err != nil {
		logger.Fatal("failed to connect to mqtt broker", zap.Error(err))
	}
	defer mqttClient.Close()

	tokens := token.NewManager(cfg.Token.Secret, cfg.Token.TTL())
	notifier := service.NewSendGridNotifier(cfg.Notification, logger)
	publisher := messaging.NewCommandPublisher(mqttClient, logger, metrics)

	unlockService := service.NewUnlockService(dir, tokens, tokenStore, publisher, cfg.Unlock.DurationMs, logger)
	confirmationService := service.NewConfirmationService(tokens, tokenStore, notifier, logger, metrics)
	presence := service.NewPresenceTracker()

	subscriber := messaging.NewEventSubscriber(mqttClient, confirmationService, presence, logger, metrics)
	if err := subscriber.Start(); err != nil {
		logger.Fatal("failed to subscribe to device events", zap.Error(err))
	}

	sweeper := worker.NewSweeper(tokenStore, logger, cfg.Store.SweepInterval())
	sweeper.Start()

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, mqttClient, tokenStore),
		Unlock:  handlers.NewUnlockHandler(unlockService),
		Devices: handlers.NewDevicesHandler(presence),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	sweeper.Stop()
	_ = app.Shutdown()
}

// openStore selects the token store backend from configuration. The
// memory driver does not survive restarts; redis and postgres do.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) store.Store {
	switch cfg.Store.Driver {
	case "redis":
		r := persistence.NewRedis(cfg.Redis, logger)
		return redisstore.New(r.Client)
	case "postgres":
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		if pg.PoolHandle() == nil {
			logger.Fatal("POSTGRES_DSN is required for the postgres store driver")
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		return postgresstore.New(pg.PoolHandle())
	case "memory":
		logger.Info("using in-memory token store; tokens do not survive restarts")
		return memory.New()
	default:
		logger.Fatal("unknown STORE_DRIVER", zap.String("driver", cfg.Store.Driver))
		return nil
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
