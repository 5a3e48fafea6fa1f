package main

import (
	"context"
	"errors"
	"fmt"
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

	"choreshore-bridge/api"
	"choreshore-bridge/backend"
	"choreshore-bridge/coordinator"
	"choreshore-bridge/domain"
	"choreshore-bridge/entities"
	"choreshore-bridge/hass"
	"choreshore-bridge/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := loadConfig(os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := backend.New(backend.Config{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		BearerToken: cfg.BearerToken,
		Timeout:     cfg.RequestTimeout,
	}, logger)
	if err != nil {
		log.Fatalf("backend: %v", err)
	}

	title := "ChoreShore"
	if cfg.ValidateOnStart {
		info, err := client.ValidateSetup(ctx, cfg.HouseholdID, cfg.UserID)
		switch {
		case errors.Is(err, backend.ErrCannotConnect):
			log.Fatalf("cannot connect to ChoreShore at %s: %v", cfg.BaseURL, err)
		case errors.Is(err, backend.ErrInvalidAuth):
			log.Fatalf("invalid ChoreShore credentials: %v", err)
		case errors.Is(err, backend.ErrInvalidHousehold):
			log.Fatalf("user is not a member of household %s: %v", cfg.HouseholdID, err)
		case err != nil:
			log.Fatalf("setup: %v", err)
		}
		title = info.Title
	}
	if cfg.DisplayName == "" {
		cfg.DisplayName = title
	}

	scope := domain.Scope{HouseholdID: cfg.HouseholdID, UserID: cfg.UserID}
	builder := entities.Builder{Prefix: "choreshore", DisplayName: cfg.DisplayName, Location: cfg.Location}
	broker := api.NewBroker()

	var (
		rc        *redis.Client
		deduper   api.Deduper
		listeners []coordinator.Listener
	)
	if cfg.RedisConn != "" {
		rc = redis.NewClient(parseRedisOptions(cfg.RedisConn))
		defer rc.Close()
		deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set, snapshot cache and idempotency keys disabled")
	}
	cache := storage.NewSnapshotCache(rc, scope, cfg.SnapshotTTL, cfg.SnapshotChannel, logger)
	listeners = append(listeners, cache)

	if rc != nil {
		key := scope.Key()
		go storage.Subscribe(ctx, logger, rc, cache.Channel(), func(s string, snap *domain.Snapshot) {
			if s == key {
				broker.Publish(snap)
			}
		})
	} else {
		listeners = append(listeners, broker)
	}

	if cfg.HAURL != "" {
		pub, err := hass.NewPublisher(cfg.HAURL, cfg.HAToken, builder, cfg.RequestTimeout, logger)
		if err != nil {
			log.Fatalf("home assistant: %v", err)
		}
		listeners = append(listeners, pub)
	}

	coord := coordinator.New(coordinator.Config{
		Scope:         scope,
		Mode:          cfg.Mode,
		Interval:      cfg.Interval,
		ActionTimeout: cfg.RequestTimeout,
		Location:      cfg.Location,
	}, client, logger, listeners...)

	if snap, ok := cache.Load(ctx); ok && coord.Seed(snap) {
		logger.WithField("last_updated", snap.LastUpdated).Info("restored cached snapshot")
	}

	auth, err := newAuth(cfg)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
	}))
	e.Use(echoprometheus.NewMiddleware("choreshore"))
	e.GET("/metrics", echoprometheus.NewHandler())
	api.Register(e, coord, auth, deduper, builder, broker, logger)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("coordinator: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("http shutdown: %v", err)
	}
}

// newAuth returns nil when no token validation is configured.
func newAuth(cfg config) (api.Authenticator, error) {
	if cfg.LocalAuthMode == "hs256" {
		return api.NewSharedSecretAuth([]byte(cfg.LocalAuthSecret), cfg.Auth0Audience, "")
	}
	if cfg.Auth0Domain == "" {
		return nil, nil
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", api.DefaultJWKSCacheTTL), nil
}
