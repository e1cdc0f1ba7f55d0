package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"

	"github.com/rspy/rs-staging/internal/cluster"
	"github.com/rspy/rs-staging/internal/config"
	"github.com/rspy/rs-staging/internal/storage"
	"github.com/rspy/rs-staging/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "rs-staging-worker",
		Usage: "executes streaming transfer tasks from the staging cluster queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "worker-id",
				Usage: "stable identifier for this worker's heartbeat",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "number of transfers executed in parallel",
				Value: 4,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "zerolog level",
				Value: "info",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("Worker exited with error")
	}
}

func run(c *cli.Context) error {
	logger.SetLevel(c.String("log-level"))
	cfg := config.Load()

	workerID := c.String("worker-id")
	if workerID == "" {
		workerID = uuid.NewString()
	}

	engine, err := storage.NewEngineFromEnv()
	if err != nil {
		return fmt.Errorf("failed to build the object store engine: %w", err)
	}
	defer engine.Close()

	rdb, err := clusterRedis(cfg.Cluster)
	if err != nil {
		return err
	}
	defer rdb.Close()

	transfer := func(ctx context.Context, task cluster.Task) error {
		return engine.StreamUpload(ctx, task.SourceURL, task.Token, task.Bucket, task.Key)
	}

	worker := cluster.NewWorker(rdb, cfg.Cluster.ClusterName, workerID, c.Int("concurrency"), transfer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Info().
		Str("worker", workerID).
		Str("cluster", cfg.Cluster.ClusterName).
		Int("concurrency", c.Int("concurrency")).
		Msg("Worker starting")

	return worker.Run(ctx)
}

func clusterRedis(cfg config.ClusterConfig) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("cluster address is not configured (RSPY_CLUSTER_ADDRESS)")
	}

	opts := &redis.Options{Addr: cfg.Address, DB: cfg.DB}
	if cfg.AuthType == "password" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach the cluster at %s: %w", cfg.Address, err)
	}
	return rdb, nil
}
