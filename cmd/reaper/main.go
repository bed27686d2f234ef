package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gengateway/internal/adapter/repo"
	"gengateway/internal/infra"
)

const sweepInterval = time.Minute

type reaper struct {
	sweeper *repo.Sweeper
	logger  infra.Logger
	grace   time.Duration
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "reaper").Logger()
	if !cfg.UsesPostgres() {
		logger.Fatal().Msg("reaper: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("reaper: db connection failed")
	}
	defer pool.Close()

	r := &reaper{
		sweeper: repo.NewSweeper(infra.NewSQLRunner(pool, logger)),
		logger:  logger,
		// Jobs never outlive the dispatch timeout, so twice that is safe.
		grace: 2 * cfg.BackendTimeout,
	}
	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("reaper: stopped with error")
	}
	logger.Info().Msg("reaper: stopped")
}

func (r *reaper) Run(ctx context.Context) error {
	r.logger.Info().Dur("grace", r.grace).Msg("reaper: started")
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		r.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *reaper) sweepOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	res, err := r.sweeper.Sweep(sweepCtx, time.Now().Add(-r.grace))
	if err != nil {
		r.logger.Error().Err(err).Msg("reaper: sweep failed")
		return
	}
	if res.FailedJobs > 0 || res.ReleasedUsernames > 0 {
		r.logger.Info().
			Int64("failed_jobs", res.FailedJobs).
			Int64("released_usernames", res.ReleasedUsernames).
			Msg("reaper: stale work cleared")
	}
}
