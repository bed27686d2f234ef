package main

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"gengateway/internal/adapter/memory"
	"gengateway/internal/adapter/repo"
	"gengateway/internal/domain"
	"gengateway/internal/events"
	"gengateway/internal/generation"
	"gengateway/internal/infra"
	"gengateway/internal/infra/credentials"
	"gengateway/internal/providers/sora"
	"gengateway/internal/providers/synthetic"
	"gengateway/internal/registry"
	"gengateway/internal/storage"
)

type stores struct {
	posts      domain.PostRepository
	users      domain.UserRepository
	tokens     domain.TokenRepository
	jobs       domain.JobRepository
	characters domain.CharacterRepository

	sql   infra.SQLExecutor
	ready func(ctx context.Context) error
	close func()
}

func openStores(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*stores, error) {
	weights := domain.ScoreWeights{Likes: cfg.FeedScoreWeightLikes, Views: cfg.FeedScoreWeightViews}
	if !cfg.UsesPostgres() {
		return &stores{
			posts:      memory.NewPostStore(weights),
			users:      memory.NewUserStore(),
			tokens:     memory.NewTokenStore(),
			jobs:       memory.NewJobStore(),
			characters: memory.NewCharacterStore(),
			close:      func() {},
		}, nil
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := infra.NewSQLRunner(pool, logger)
	return &stores{
		posts:      repo.NewPostRepository(runner, weights),
		users:      repo.NewUserRepository(runner),
		tokens:     repo.NewTokenRepository(runner),
		jobs:       repo.NewJobRepository(runner),
		characters: repo.NewCharacterRepository(runner),
		sql:        runner,
		ready:      pool.Ping,
		close:      pool.Close,
	}, nil
}

// newBackend picks the HTTP backend when a base URL is configured and the
// synthetic one otherwise. The API key comes from the environment first and
// from integration_tokens second.
func newBackend(ctx context.Context, cfg *infra.Config, st *stores, logger infra.Logger) (generation.Backend, error) {
	if cfg.BackendBaseURL == "" {
		logger.Warn().Msg("BACKEND_BASE_URL not set, using synthetic backend")
		return synthetic.New("", 0), nil
	}
	key := cfg.BackendAPIKey
	if st.sql != nil {
		resolved, err := credentials.NewStore(st.sql).ResolveBackendAPIKey(ctx, key)
		if err != nil {
			return nil, err
		}
		key = resolved
	}
	return sora.NewClient(sora.Options{
		APIKey:     key,
		BaseURL:    cfg.BackendBaseURL,
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		Logger:     &logger,
		PollUnit:   cfg.BackendPollInterval,
	})
}

func newBlobStore(ctx context.Context, cfg *infra.Config) (registry.BlobStore, error) {
	switch cfg.BlobDriver {
	case "s3":
		s3, err := storage.NewS3Store(storage.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			Bucket:    cfg.S3Bucket,
		})
		if err != nil {
			return nil, err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s3, nil
	case "fs":
		return storage.NewFileStore(cfg.StoragePath)
	}
	return nil, fmt.Errorf("unsupported blob driver %q", cfg.BlobDriver)
}

func newLocker(ctx context.Context, cfg *infra.Config) (registry.Locker, func(), error) {
	client, err := infra.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if client == nil {
		return registry.NewKeyedMutex(), func() {}, nil
	}
	return registry.NewRedisLocker(client, 0), func() { _ = client.Close() }, nil
}

func newPublisher(cfg *infra.Config, logger infra.Logger) events.Publisher {
	if cfg.KafkaBrokers == "" {
		return events.LogPublisher{Logger: logger}
	}
	return events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
}
