package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/rs/zerolog/log"

	"github.com/rspy/rs-staging/internal/config"
)

const (
	// defaultMaxAttempts bounds per-item retries inside a batch
	// operation, including the first attempt.
	defaultMaxAttempts = 3
	// defaultRetryBackoff is the fixed sleep between attempts.
	defaultRetryBackoff = 2 * time.Second
)

// BucketAccessError is the fatal outcome of the per-call bucket
// reachability check.
type BucketAccessError struct {
	Bucket string
	Reason string
	Err    error
}

func (e *BucketAccessError) Error() string {
	return fmt.Sprintf("bucket %s: %s", e.Bucket, e.Reason)
}

func (e *BucketAccessError) Unwrap() error { return e.Err }

// Engine performs retryable operations against an S3-compatible
// store. Connection-class failures close and reopen the underlying
// client before the next attempt; reconnects are serialized under a
// mutex while per-item retry loops stay independent.
type Engine struct {
	cfg config.S3Config

	mu  sync.Mutex
	api ObjectAPI

	maxAttempts int
	backoff     time.Duration

	// dial is swappable so tests can inject a fake ObjectAPI.
	dial func(config.S3Config) (ObjectAPI, error)
}

// NewEngine builds an Engine and opens its first client connection.
func NewEngine(cfg config.S3Config) (*Engine, error) {
	return newEngine(cfg, newMinioAPI)
}

// NewEngineFromEnv builds an Engine from the S3_* environment
// variables. Missing credentials are a configuration error.
func NewEngineFromEnv() (*Engine, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return NewEngine(cfg)
}

func newEngine(cfg config.S3Config, dial func(config.S3Config) (ObjectAPI, error)) (*Engine, error) {
	api, err := dial(cfg)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:         cfg,
		api:         api,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultRetryBackoff,
		dial:        dial,
	}, nil
}

// Close releases the underlying client. The engine is unusable
// afterwards.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.api != nil {
		e.api.Close()
		e.api = nil
	}
}

func (e *Engine) client() ObjectAPI {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.api
}

// reconnect drops the current client and dials a fresh one. Called
// from per-item retry loops after a connection-class failure.
func (e *Engine) reconnect() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.api != nil {
		e.api.Close()
	}
	api, err := e.dial(e.cfg)
	if err != nil {
		return fmt.Errorf("failed to reconnect s3 client: %w", err)
	}
	e.api = api
	return nil
}

// CheckBucketAccess verifies the bucket is reachable with the
// engine's credentials. Access denial and absence are distinct,
// fatal, non-retryable outcomes.
func (e *Engine) CheckBucketAccess(ctx context.Context, bucket string) error {
	exists, err := e.client().BucketExists(ctx, bucket)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.StatusCode == http.StatusForbidden {
			return &BucketAccessError{Bucket: bucket, Reason: "access forbidden", Err: err}
		}
		return &BucketAccessError{Bucket: bucket, Reason: "reachability check failed", Err: err}
	}
	if !exists {
		return &BucketAccessError{Bucket: bucket, Reason: "bucket does not exist"}
	}
	return nil
}

// Exists reports whether the object is present in the bucket.
func (e *Engine) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := e.client().StatObject(ctx, bucket, key)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns the objects under a prefix.
func (e *Engine) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	return e.client().ListObjects(ctx, bucket, prefix)
}

// DownloadObjects fetches each key into destDir/key. Per-item
// failures exhaust the retry budget and land in the returned list;
// the batch always runs to the end.
func (e *Engine) DownloadObjects(ctx context.Context, bucket, destDir string, keys []string) []FailedItem {
	return e.forEachKey(ctx, bucket, keys, func(ctx context.Context, api ObjectAPI, key string) error {
		return api.DownloadObject(ctx, bucket, key, destDir+"/"+key)
	})
}

// UploadObjects stores each local path under the key of the same
// index. The two slices must be the same length.
func (e *Engine) UploadObjects(ctx context.Context, bucket string, keys, paths []string) []FailedItem {
	if len(keys) != len(paths) {
		return []FailedItem{{Err: fmt.Errorf("keys and paths length mismatch: %d vs %d", len(keys), len(paths))}}
	}
	byKey := make(map[string]string, len(keys))
	for i, key := range keys {
		byKey[key] = paths[i]
	}
	return e.forEachKey(ctx, bucket, keys, func(ctx context.Context, api ObjectAPI, key string) error {
		return api.UploadObject(ctx, bucket, key, byKey[key])
	})
}

// CopyObjects performs a bucket-to-bucket copy of each key.
func (e *Engine) CopyObjects(ctx context.Context, srcBucket, dstBucket string, keys []string) []FailedItem {
	return e.forEachKey(ctx, srcBucket, keys, func(ctx context.Context, api ObjectAPI, key string) error {
		return api.CopyObject(ctx, srcBucket, key, dstBucket, key)
	})
}

// DeleteObjects removes each key. Deleting an absent object is a
// success, which keeps compensation paths idempotent.
func (e *Engine) DeleteObjects(ctx context.Context, bucket string, keys []string) []FailedItem {
	return e.forEachKey(ctx, bucket, keys, func(ctx context.Context, api ObjectAPI, key string) error {
		err := api.RemoveObject(ctx, bucket, key)
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.StatusCode == http.StatusNotFound {
			return nil
		}
		return err
	})
}

// forEachKey runs op per key under the engine's retry contract: the
// bucket is head-checked once, connection-class errors trigger a
// reconnect plus fixed backoff, exhaustion adds the key to the failed
// list and the loop moves on.
func (e *Engine) forEachKey(ctx context.Context, bucket string, keys []string, op func(context.Context, ObjectAPI, string) error) []FailedItem {
	if err := e.CheckBucketAccess(ctx, bucket); err != nil {
		failed := make([]FailedItem, 0, len(keys))
		for _, key := range keys {
			failed = append(failed, FailedItem{Key: key, Err: err})
		}
		return failed
	}

	var failed []FailedItem
	for _, key := range keys {
		if err := e.withRetry(ctx, key, op); err != nil {
			failed = append(failed, FailedItem{Key: key, Err: err})
		}
	}
	return failed
}

func (e *Engine) withRetry(ctx context.Context, key string, op func(context.Context, ObjectAPI, string) error) error {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx, e.client(), key)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
		if attempt == e.maxAttempts {
			break
		}

		log.Warn().
			Str("key", key).
			Int("attempt", attempt).
			Err(lastErr).
			Msg("S3 operation failed, reconnecting before retry")
		if err := e.reconnect(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.backoff):
		}
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", e.maxAttempts, lastErr)
}

// isRetryable classifies connection/client-class failures worth a
// reconnect-and-retry; everything else fails the item immediately.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		switch resp.Code {
		case "SlowDown", "RequestTimeout", "InternalError", "ServiceUnavailable", "Throttling":
			return true
		}
		return resp.StatusCode >= http.StatusInternalServerError
	}
	// Plain transport failures from the HTTP layer come through as
	// url.Error values that already satisfy net.Error above; anything
	// unrecognized is treated as permanent.
	return false
}
