package cluster

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	heartbeatTTL      = 30 * time.Second
	heartbeatInterval = 10 * time.Second
)

// TransferFunc executes one task's streaming transfer. The worker
// binary wires this to the object store engine's StreamUpload.
type TransferFunc func(ctx context.Context, task Task) error

// Worker consumes tasks from the cluster queue, executes transfers
// and pushes the result onto each task's reply list. A worker
// maintains a heartbeat key so connecting clients can inspect the
// live worker count.
type Worker struct {
	rdb         *redis.Client
	keys        keyspace
	id          string
	concurrency int
	transfer    TransferFunc
}

func NewWorker(rdb *redis.Client, clusterName, id string, concurrency int, transfer TransferFunc) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		rdb:         rdb,
		keys:        newKeyspace(clusterName),
		id:          id,
		concurrency: concurrency,
		transfer:    transfer,
	}
}

// Run blocks until ctx is cancelled, processing tasks with the
// configured number of goroutines.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return w.heartbeat(ctx) })
	for i := 0; i < w.concurrency; i++ {
		slot := i
		g.Go(func() error { return w.loop(ctx, slot) })
	}

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (w *Worker) heartbeat(ctx context.Context) error {
	key := w.keys.worker(w.id)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		if err := w.rdb.Set(ctx, key, "1", heartbeatTTL).Err(); err != nil && ctx.Err() == nil {
			log.Warn().Str("worker", w.id).Err(err).Msg("Failed to refresh worker heartbeat")
		}
		select {
		case <-ctx.Done():
			// Drop the heartbeat so the worker stops counting
			// immediately rather than after the TTL.
			cleanup, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = w.rdb.Del(cleanup, key).Err()
			cancel()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *Worker) loop(ctx context.Context, slot int) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		values, err := w.rdb.BRPop(ctx, 5*time.Second, w.keys.queue()).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Str("worker", w.id).Int("slot", slot).Err(err).Msg("Failed to pop task from queue")
			time.Sleep(time.Second)
			continue
		}

		var task Task
		if err := json.Unmarshal([]byte(values[1]), &task); err != nil {
			log.Error().Str("worker", w.id).Err(err).Msg("Dropping undecodable task payload")
			continue
		}

		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task Task) {
	cancelled, err := w.rdb.Exists(ctx, w.keys.cancel(task.ID)).Result()
	if err != nil {
		log.Warn().Str("task", task.ID).Err(err).Msg("Failed to read cancel flag, executing anyway")
	}
	if cancelled > 0 {
		log.Info().Str("task", task.ID).Str("job", task.JobID).Msg("Skipping cancelled task")
		w.reply(ctx, Result{TaskID: task.ID, Error: ErrTaskCancelled.Error()})
		return
	}

	log.Info().
		Str("task", task.ID).
		Str("job", task.JobID).
		Str("key", task.Key).
		Msg("Starting streaming transfer")

	if err := w.transfer(ctx, task); err != nil {
		log.Error().Str("task", task.ID).Err(err).Msg("Streaming transfer failed")
		w.reply(ctx, Result{TaskID: task.ID, Error: err.Error()})
		return
	}

	log.Info().Str("task", task.ID).Str("key", task.Key).Msg("Streaming transfer finished")
	w.reply(ctx, Result{TaskID: task.ID, Key: task.Key})
}

func (w *Worker) reply(ctx context.Context, result Result) {
	payload, err := json.Marshal(result)
	if err != nil {
		log.Error().Str("task", result.TaskID).Err(err).Msg("Failed to encode task result")
		return
	}

	key := w.keys.reply(result.TaskID)
	pipe := w.rdb.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.Expire(ctx, key, replyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Str("task", result.TaskID).Err(err).Msg("Failed to push task result")
	}
}
