package main // Entry point of the lobby ledger service

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/campus-gate/internal/config"
	"github.com/iliyamo/campus-gate/internal/database"
	"github.com/iliyamo/campus-gate/internal/handler"
	"github.com/iliyamo/campus-gate/internal/middleware"
	"github.com/iliyamo/campus-gate/internal/queue"
	"github.com/iliyamo/campus-gate/internal/repository"
	"github.com/iliyamo/campus-gate/internal/repository/memstore"
	"github.com/iliyamo/campus-gate/internal/router"
	"github.com/iliyamo/campus-gate/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(logLevel(cfg.LogLevel))
	e.HTTPErrorHandler = middleware.ErrorHandler(e.Logger)
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db := openStore(ctx, cfg, e.Logger)
	if db != nil {
		defer db.Close()
	}
	if len(cfg.SeedLobbies) > 0 {
		if err := store.EnsureLobbies(ctx, cfg.SeedLobbies); err != nil {
			e.Logger.Fatalf("seed lobbies: %v", err)
		}
		e.Logger.Infof("lobbies ensured: %s", strings.Join(cfg.SeedLobbies, ", "))
	}

	var publisher service.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		amqpPub := service.NewAMQPPublisher(cfg.AMQPURL, queue.LobbyEventsQueue, 3*time.Second, cfg.EventsBuffer, e.Logger)
		defer amqpPub.Close()
		publisher = amqpPub
	}
	if cfg.AuditConsumer {
		consumer := queue.NewAuditConsumer(cfg.AMQPURL, log.New("audit"))
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.Logger.Errorf("audit consumer stopped: %v", err)
			}
		}()
	}

	ledger := service.NewLedger(store, service.Options{
		Timeout:   cfg.StoreTimeout,
		Publisher: publisher,
		Logger:    e.Logger,
	})

	var rdb *redis.Client
	if client, err := config.NewRedisClient(config.LoadRedisConfig()); err != nil {
		e.Logger.Warnf("redis unavailable, cache and rate limit disabled: %v", err)
	} else {
		rdb = client
		defer rdb.Close()
	}
	statusCache := middleware.NewResponseCache(config.LoadCacheConfig(), rdb)

	h := &handler.LobbyHandler{Ledger: ledger, StatusCache: statusCache}
	router.RegisterRoutes(e, h)
	router.RegisterLobby(e, h, router.Options{
		StatusCache: statusCache.Middleware(),
		RateLimit:   middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb),
		JWTSecret:   cfg.JWTSecret,
	})
	if cfg.JWTSecret == "" {
		e.Logger.Warn("JWT_SECRET not set: lobby mutations are unauthenticated")
	}

	addr := ":" + cfg.Port
	e.Logger.Infof("listening on %s (env=%s, store=%s)", addr, cfg.Env, cfg.StoreDriver)
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Errorf("shutdown: %v", err)
	}
}

// openStore returns the configured store.  The *sql.DB is nil for the
// memory driver.
func openStore(ctx context.Context, cfg config.Config, logger echo.Logger) (repository.Store, *sql.DB) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store: counts are lost on restart")
		return memstore.New(), nil
	}
	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	if cfg.MigrateOnStart {
		if err := database.Migrate(ctx, db); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
		logger.Info("schema migrated")
	}
	return repository.NewMySQLStore(db, cfg.TxMaxRetries, cfg.TxRetryBackoff), db
}

func logLevel(s string) log.Lvl {
	switch s {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
