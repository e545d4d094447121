package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"forecourt/internal/auth"
	"forecourt/internal/config"
	"forecourt/internal/feature"
	"forecourt/internal/httpapi"
	"forecourt/internal/obs"
	"forecourt/internal/rbac"
	"forecourt/internal/tenant"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg := config.FromEnv()
	log := obs.Setup(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.ControlDSN == "" {
		log.Fatal().Msg("FORECOURT_CONTROL_DSN is required")
	}
	controlPool, err := pgxpool.New(ctx, cfg.ControlDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("control-plane pool")
	}
	defer controlPool.Close()

	var revocations auth.RevocationStore
	if cfg.RedisAddr != "" {
		redisRev, err := auth.NewRedisRevocations(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("redis revocation store")
		}
		defer func() { _ = redisRev.Close() }()
		revocations = redisRev
		log.Info().Str("addr", cfg.RedisAddr).Msg("using redis revocation store")
	} else {
		revocations = auth.NewMemoryRevocations()
		log.Warn().Msg("using in-memory revocation store; force-logout will not survive restarts")
	}

	tokens, err := auth.NewTokenService(cfg.AuthSecret, revocations,
		auth.WithIssuer(cfg.AuthIssuer),
		auth.WithTokenTTL(cfg.TokenTTL),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("token service")
	}

	directory, err := tenant.NewPGDirectory(controlPool)
	if err != nil {
		log.Fatal().Err(err).Msg("tenant directory")
	}
	registry, err := tenant.NewRegistry(directory, tenant.PGDialer, log,
		tenant.WithIdleWindow(cfg.TenantIdleWindow),
		tenant.WithConnectTimeout(cfg.TenantConnectTimeout),
		tenant.WithConnectRetries(cfg.TenantConnectRetries),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("tenant registry")
	}
	defer registry.Close()

	features, err := feature.NewResolver(feature.NewPGStore())
	if err != nil {
		log.Fatal().Err(err).Msg("feature resolver")
	}
	guard, err := rbac.NewGuard(rbac.NewPGStore(), log,
		rbac.WithBypassUser(cfg.RoleBypassUserID),
		rbac.WithBypassAll(cfg.RoleBypassAll),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("role guard")
	}

	api := httpapi.New(httpapi.Options{
		Tokens:       tokens,
		Tenants:      registry,
		Features:     features,
		FeatureStore: feature.NewPGStore(),
		Guard:        guard,
		Users:        auth.NewPGUserStore(),
		Probe:        httpapi.ReadyProbe{Pool: controlPool},
		Version:      version,
		Log:          log,

		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		MaxBodyBytes:       cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("starting forecourt-api")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("stopped")
}
