package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/mizuki-commits/dashboard-template/analyzer"
	"github.com/mizuki-commits/dashboard-template/api"
	"github.com/mizuki-commits/dashboard-template/config"
	"github.com/mizuki-commits/dashboard-template/processor"
	"github.com/mizuki-commits/dashboard-template/storage"
	"github.com/mizuki-commits/dashboard-template/todoist"
)

const (
	webhookDedupeTTL = 24 * time.Hour
	shutdownTimeout  = 10 * time.Second
)

// localPublisher hands updates straight to the broker when no redis is
// configured. Only a single instance sees them.
type localPublisher struct{ broker *api.Broker }

func (p localPublisher) Publish(_ context.Context, u storage.Update) error {
	p.broker.Notify(u)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := log.New()
	logger.SetFormatter(&log.JSONFormatter{})
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(lvl)
	}
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	log.SetFormatter(&log.JSONFormatter{})
	log.SetLevel(logger.GetLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tables, err := storage.NewTables(cfg.Storage.ConnectionString, cfg.Storage.DashboardTable)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	queue, err := storage.NewEventQueue(cfg.Storage.ConnectionString, cfg.Storage.EventsQueue)
	if err != nil {
		log.Fatalf("queue: %v", err)
	}

	broker := api.NewBroker()
	var (
		store         storage.DashboardStore = tables
		rc            *redis.Client
		publisher     api.Publisher = localPublisher{broker}
		webhookDedupe api.Deduper
		eventDedupe   api.Deduper
	)
	if cfg.Redis.ConnectionString != "" {
		rc = redis.NewClient(storage.RedisOptions(cfg.Redis.ConnectionString))
		defer rc.Close()
		store = storage.NewCache(tables, rc, cfg.Redis.CacheTTL)
		publisher = storage.NewPublisher(rc, cfg.Redis.UpdatesChannel)
		webhookDedupe = storage.NewRedisDeduper(rc, "webhook", webhookDedupeTTL)
		eventDedupe = storage.NewRedisDeduper(rc, "event", webhookDedupeTTL)
		go storage.SubscribeUpdates(ctx, logger, rc, cfg.Redis.UpdatesChannel, broker.Notify)
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set, cache and cross-instance updates disabled")
	}

	// taskLog stays a nil interface when postgres is off.
	var taskLog api.TaskLog
	if cfg.Postgres.URL != "" {
		tl, err := storage.NewTaskLog(ctx, cfg.Postgres)
		if err != nil {
			logger.WithError(err).Error("postgres unavailable, tasks log disabled")
		} else {
			defer tl.Close()
			taskLog = tl
		}
	}

	var jwks *keyfunc.JWKS
	if cfg.Auth.JWKSURL != "" {
		jwks, err = keyfunc.Get(cfg.Auth.JWKSURL, keyfunc.Options{
			RefreshInterval: time.Hour,
			RefreshErrorHandler: func(err error) {
				logger.WithError(err).Error("jwks.refresh_failed")
			},
		})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		defer jwks.EndBackground()
	}
	auth := api.NewAuth(cfg.Auth, jwks)

	proc := processor.New(queue, store, publisher, eventDedupe, logger)
	go proc.Run(ctx)

	e := echo.New()
	e.HideBanner = true
	e.Debug = cfg.Debug
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echoprometheus.NewMiddleware("dashboard"))
	e.GET("/metrics", echoprometheus.NewHandler())

	deps := api.Deps{
		Store:         store,
		Auth:          auth,
		Todoist:       todoist.NewClient(cfg.Todoist.BaseURL, cfg.Todoist.APIToken, cfg.Todoist.Timeout),
		Queue:         queue,
		TaskLog:       taskLog,
		Analyzer:      analyzer.New(cfg.AI, logger),
		Deduper:       webhookDedupe,
		Publisher:     publisher,
		Broker:        broker,
		Owner:         cfg.Auth.Username,
		WebhookSecret: cfg.Todoist.WebhookSecret,
		Logger:        logger,
	}
	api.NewServer(deps).Register(e)

	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server stopped")
		}
	}()
	logger.WithField("addr", cfg.ListenAddr).Info("dashboard api listening")

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
}
