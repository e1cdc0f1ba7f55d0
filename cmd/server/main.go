package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/rspy/rs-staging/internal/api"
	"github.com/rspy/rs-staging/internal/api/handlers"
	"github.com/rspy/rs-staging/internal/catalog"
	"github.com/rspy/rs-staging/internal/config"
	"github.com/rspy/rs-staging/internal/jobs"
	"github.com/rspy/rs-staging/internal/staging"
	"github.com/rspy/rs-staging/pkg/logger"
)

func main() {
	cfg := config.Load()

	if cfg.Server.Mode == "debug" {
		logger.SetLevel("debug")
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := buildJobStore(cfg)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize the job store")
	}
	tracker := jobs.NewTracker(store)

	catalogClient := catalog.NewClient(cfg.Catalog.URL)
	settings := staging.Settings{
		Bucket:         cfg.Catalog.Bucket,
		Timeout:        cfg.Staging.Timeout,
		AuthConfigPath: cfg.Staging.ExternalAuthConfig,
	}

	stagingHandler := handlers.NewStagingHandler(tracker, catalogClient, settings, cfg.Cluster)
	router := api.NewRouter(stagingHandler, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting staging server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}

// buildJobStore picks redis when configured, in-process memory
// otherwise. Single-node deployments without redis still work; they
// just lose job records on restart.
func buildJobStore(cfg *config.Config) (jobs.Store, error) {
	if cfg.Jobs.RedisURL == "" {
		logger.Log.Warn().Msg("RSPY_JOBS_REDIS_URL not set, job records are kept in memory")
		return jobs.NewMemoryStore(), nil
	}

	opts, err := redis.ParseURL(cfg.Jobs.RedisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return jobs.NewRedisStore(client, cfg.Jobs.KeyPrefix), nil
}
