package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// TransferError marks a failed streaming transfer. The streaming path
// does not degrade to a failed-items list: it runs one asset at a
// time inside a cluster task whose caller aggregates failures.
type TransferError struct {
	Source string
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("streaming %s failed: %v", e.Source, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// streamHTTPClient is shared across transfers; individual requests
// are bounded by the caller's context, not a client timeout, since
// large assets legitimately stream for a long time.
var streamHTTPClient = &http.Client{
	Transport: &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
	},
}

// StreamUpload pipes the body of an authenticated GET straight into a
// bucket PUT without local buffering. An unknown content length makes
// the store client switch to a multipart streaming upload.
func (e *Engine) StreamUpload(ctx context.Context, sourceURL, token, bucket, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return &TransferError{Source: sourceURL, Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := streamHTTPClient.Do(req)
	if err != nil {
		return &TransferError{Source: sourceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &TransferError{
			Source: sourceURL,
			Err:    fmt.Errorf("source returned status %d", resp.StatusCode),
		}
	}

	size := resp.ContentLength
	if size < 0 {
		size = -1
	}
	if err := e.client().PutObject(ctx, bucket, key, resp.Body, size); err != nil {
		return &TransferError{Source: sourceURL, Err: err}
	}
	return nil
}
