package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"cutoutly/internal/adapter/repo"
	"cutoutly/internal/infra"
	"cutoutly/internal/jobs"
)

// The worker fails jobs whose clients stopped advancing them. Generation
// itself runs inside the API's advance calls.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "worker")

	if cfg.JobStore != infra.JobStorePostgres {
		logger.Fatal().Str("job_store", cfg.JobStore).Msg("worker: the sweeper needs the postgres job store; the api sweeps in-memory jobs itself")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg, "worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	if cfg.DBAutoMigrate {
		if err := repo.Migrate(ctx, runner); err != nil {
			logger.Fatal().Err(err).Msg("worker: schema bootstrap failed")
		}
	}

	sweeper := jobs.NewSweeper(repo.NewJobRepository(runner), cfg.StallTimeout, &logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sweeper.Run(gctx, cfg.SweepInterval)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
