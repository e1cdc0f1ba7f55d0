package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/rspy/rs-staging/internal/config"
)

const (
	// replyTTL bounds how long an unconsumed reply lingers after the
	// submitting client went away.
	replyTTL = time.Hour
	// cancelTTL bounds how long a cancel flag outlives its task.
	cancelTTL = time.Hour
)

// RedisClient implements Client on top of a redis-backed task queue.
// Tasks are pushed to a shared list consumed by workers; each task
// gets a dedicated reply list the client blocks on.
type RedisClient struct {
	rdb  *redis.Client
	keys keyspace

	closeOnce sync.Once
	closeErr  error
}

// Connect attaches to the named, already-running cluster. The
// address comes from the environment-driven config and is required;
// the connection is verified with a ping before use.
func Connect(ctx context.Context, cfg config.ClusterConfig) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("cluster address is not configured (RSPY_CLUSTER_ADDRESS)")
	}

	opts := &redis.Options{Addr: cfg.Address, DB: cfg.DB}
	switch cfg.AuthType {
	case "", "none":
	case "password":
		if cfg.Password == "" {
			return nil, fmt.Errorf("cluster auth type is password but RSPY_CLUSTER_PASSWORD is not set")
		}
		opts.Password = cfg.Password
	default:
		return nil, fmt.Errorf("unsupported cluster auth type %q", cfg.AuthType)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to cluster at %s: %w", cfg.Address, err)
	}

	c := &RedisClient{rdb: rdb, keys: newKeyspace(cfg.ClusterName)}

	workers, err := c.WorkerCount(ctx)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to inspect cluster workers: %w", err)
	}
	log.Info().
		Str("cluster", cfg.ClusterName).
		Int("workers", workers).
		Msg("Connected to staging cluster")

	return c, nil
}

// Submit pushes the task onto the shared queue and starts a watcher
// goroutine that completes the returned future when the worker's
// reply arrives.
func (c *RedisClient) Submit(ctx context.Context, task Task) (*Future, error) {
	payload, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("failed to encode task %s: %w", task.ID, err)
	}
	if err := c.rdb.LPush(ctx, c.keys.queue(), payload).Err(); err != nil {
		return nil, fmt.Errorf("failed to submit task %s: %w", task.ID, err)
	}

	future := NewFuture(task)
	go c.awaitReply(future)
	return future, nil
}

// awaitReply blocks on the task's reply list until the worker
// reports, then completes the future. Runs without a deadline; the
// consumer applies its own overall timeout on top of AsCompleted.
func (c *RedisClient) awaitReply(future *Future) {
	taskID := future.Task().ID
	for {
		values, err := c.rdb.BRPop(context.Background(), 30*time.Second, c.keys.reply(taskID)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			future.Complete("", fmt.Errorf("failed to read reply for task %s: %w", taskID, err))
			return
		}

		// BRPop returns [key, value].
		var result Result
		if err := json.Unmarshal([]byte(values[1]), &result); err != nil {
			future.Complete("", fmt.Errorf("failed to decode reply for task %s: %w", taskID, err))
			return
		}
		if result.Error != "" {
			if result.Error == ErrTaskCancelled.Error() {
				future.Complete("", ErrTaskCancelled)
				return
			}
			future.Complete("", fmt.Errorf("%s", result.Error))
			return
		}
		future.Complete(result.Key, nil)
		return
	}
}

// AsCompleted yields the futures in completion order.
func (c *RedisClient) AsCompleted(ctx context.Context, futures []*Future) <-chan *Future {
	return AsCompleted(ctx, futures)
}

// Cancel sets the task's cancel flag so a worker that has not yet
// picked it up will skip the transfer.
func (c *RedisClient) Cancel(ctx context.Context, future *Future) error {
	set, err := c.rdb.SetNX(ctx, c.keys.cancel(future.Task().ID), "1", cancelTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to cancel task %s: %w", future.Task().ID, err)
	}
	if !set {
		return ErrAlreadyCancelled
	}
	return nil
}

// WorkerCount counts the live worker heartbeat keys.
func (c *RedisClient) WorkerCount(ctx context.Context) (int, error) {
	var (
		cursor uint64
		count  int
	)
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, c.keys.workerPattern(), 100).Result()
		if err != nil {
			return 0, err
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

// Close releases the redis connection. Safe to call more than once.
func (c *RedisClient) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rdb.Close()
	})
	return c.closeErr
}

var _ Client = (*RedisClient)(nil)
