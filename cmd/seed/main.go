package main

import (
	"context"
	"flag"
	"time"

	"github.com/joho/godotenv"

	"gengateway/internal/adapter/repo"
	"gengateway/internal/domain"
	"gengateway/internal/infra"
	"gengateway/internal/seed"
)

func main() {
	_ = godotenv.Load()

	var (
		users   int
		posts   int
		seedVal int64
	)
	flag.IntVar(&users, "users", 8, "number of fake users")
	flag.IntVar(&posts, "posts", 60, "number of fake posts")
	flag.Int64Var(&seedVal, "seed", 1, "random seed; the same seed yields the same content")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "seed").Logger()
	if !cfg.UsesPostgres() {
		logger.Fatal().Msg("seeding needs DATABASE_URL; the memory store seeds itself via SEED_FAKE_POSTS")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	seeder := &seed.Seeder{
		Users:  repo.NewUserRepository(runner),
		Tokens: repo.NewTokenRepository(runner),
		Posts: repo.NewPostRepository(runner, domain.ScoreWeights{
			Likes: cfg.FeedScoreWeightLikes,
			Views: cfg.FeedScoreWeightViews,
		}),
		Logger: logger,
	}
	if err := seeder.Bootstrap(ctx, cfg.APIKeys); err != nil {
		logger.Fatal().Err(err).Msg("failed to provision api keys")
	}
	created, err := seeder.FakeContent(ctx, users, posts, seedVal)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to seed content")
	}
	logger.Info().Int("posts", len(created)).Msg("done")
}
