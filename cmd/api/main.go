package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"gengateway/internal/feed"
	"gengateway/internal/generation"
	"gengateway/internal/http/handlers"
	httpapi "gengateway/internal/http/httpapi"
	"gengateway/internal/infra"
	"gengateway/internal/infra/geoip"
	"gengateway/internal/middleware"
	"gengateway/internal/registry"
	"gengateway/internal/seed"
)

const drainTimeout = 30 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := infra.InitTracing(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init tracing")
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open stores")
	}
	defer st.close()

	backend, err := newBackend(ctx, cfg, st, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure generation backend")
	}
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob store")
	}
	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}
	defer closeLocker()
	publisher := newPublisher(cfg, logger)
	defer func() { _ = publisher.Close() }()

	seeder := &seed.Seeder{Users: st.users, Tokens: st.tokens, Posts: st.posts, Logger: logger}
	if err := seeder.Bootstrap(ctx, cfg.APIKeys); err != nil {
		logger.Fatal().Err(err).Msg("failed to provision api keys")
	}
	if cfg.SeedFakePosts > 0 {
		if _, err := seeder.FakeContent(ctx, 5, cfg.SeedFakePosts, 1); err != nil {
			logger.Fatal().Err(err).Msg("failed to seed fake content")
		}
	}

	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer func() { _ = geo.Close() }()

	metrics := infra.NewMetrics()
	dispatcher := generation.NewDispatcher(backend, st.jobs, logger, metrics, generation.DispatcherConfig{
		MaxInFlight: cfg.DispatchMaxInFlight,
		Timeout:     cfg.BackendTimeout,
	})
	gateway := generation.NewGateway(generation.GatewayDeps{
		Dispatcher:    dispatcher,
		Registry:      registry.New(st.characters, blobs, locker, logger),
		Posts:         st.posts,
		Users:         st.users,
		Publisher:     publisher,
		Logger:        logger,
		PublicBaseURL: cfg.PublicBaseURL,
		MaxMemory:     cfg.MaxUploadBytes,
	})

	app := &handlers.App{
		Config:  cfg,
		Logger:  logger,
		Gateway: gateway,
		Feed:    feed.NewEngine(st.posts, st.users, st.tokens, st.characters, metrics, cfg.PublicBaseURL),
		Jobs:    st.jobs,
		Metrics: metrics,
		Ready:   st.ready,
	}
	router := httpapi.NewRouter(app, httpapi.Options{
		Auth:            &middleware.Authenticator{Tokens: st.tokens, JWTSecret: cfg.JWTSecret},
		Logger:          logger,
		CountryLookup:   geo.Lookup(),
		CORSOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   "en",
	})
	server := infra.NewHTTPServer(cfg, router, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("storage", cfg.StorageDriver).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if derr := dispatcher.Drain(shutdownCtx); derr != nil {
			logger.Warn().Err(derr).Msg("jobs still running at shutdown")
		}
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
		return
	}
	logger.Info().Msg("server stopped")
}
