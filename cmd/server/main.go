package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"go.aldar.dev/ariagate/api"
	"go.aldar.dev/ariagate/auth"
	"go.aldar.dev/ariagate/cache"
	cacheredis "go.aldar.dev/ariagate/cache/redis"
	"go.aldar.dev/ariagate/config"
	"go.aldar.dev/ariagate/domain"
	"go.aldar.dev/ariagate/gateway"
	"go.aldar.dev/ariagate/internal/crypto"
	"go.aldar.dev/ariagate/internal/metrics"
	xlog "go.aldar.dev/ariagate/log"
	"go.aldar.dev/ariagate/middleware"
	"go.aldar.dev/ariagate/services"
	"go.aldar.dev/ariagate/storage/mongodb"
	"go.aldar.dev/ariagate/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	xlog.Setup(cfg.LogLevel, cfg.LogPretty)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Configuration is incomplete")
	}

	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("authority", cfg.Authority).
		Str("target_scope", cfg.TargetScopeURI()).
		Msg("Starting ariagate")

	tp, err := tracing.InitTracerProvider("ariagate")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	metrics.Register(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	mongoClient, err := mongodb.Connect(ctx, cfg.MongoURI)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
	}

	users, err := mongodb.NewUserRepository(context.Background(), mongoClient.Database(cfg.MongoDBName))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize user repository")
	}

	sealer, err := crypto.NewSealer(cfg.RefreshTokenKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Refresh token key is invalid")
	}

	var states domain.StateStore
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		states = cacheredis.NewStateStore(rdb, cfg.StateTTL())
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis login state store")
	} else {
		states = cache.NewMemoryStateStore(cfg.StateTTL())
		log.Warn().Msg("REDIS_ADDR not set; using in-process login state store")
	}

	provider := auth.NewProviderClient(cfg.Authority, cfg.ClientID, cfg.ClientSecret, cfg.LoginScopes(), cfg.ProviderTimeout())
	rotator := auth.NewRefreshTokenRotator(provider, users, sealer)
	exchanger := auth.NewOBOExchanger(provider, cfg.ClientID, cfg.TargetClientID, cfg.TargetScopeURI())

	tokens := cache.NewDelegatedTokenCache(cfg.TokenCacheCap(), cfg.ProviderTimeout())
	defer tokens.Close()

	gw := gateway.New(cfg.DownstreamTimeout())
	delegation := services.NewDelegationService(users, rotator, exchanger, tokens, gw, cfg.TargetScopeURI())
	sessions := auth.NewSessionTokens([]byte(cfg.SessionSigningKey), cfg.SessionTTL())

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger())

	api.New(cfg, provider, rotator, users, states, sessions, sealer, delegation).RegisterRoutes(e)

	go func() {
		if err := e.Start(":" + cfg.HTTPPort); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("MongoDB disconnect failed")
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Tracer shutdown failed")
	}
}
