package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/viper"

	"github.com/rspy/rs-staging/internal/config"
)

// ObjectInfo represents metadata for a remote object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// FailedItem records one object a batch operation could not process
// after the retry budget was spent. Batch operations never abort on a
// single item; callers inspect the returned list instead.
type FailedItem struct {
	Key string
	Err error
}

// ObjectAPI captures the S3-compatible operations the engine needs.
// The concrete implementation wraps a minio client; tests substitute
// a fake to drive the retry loop.
type ObjectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, bucket, key, destPath string) error
	UploadObject(ctx context.Context, bucket, key, srcPath string) error
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64) error
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error
	RemoveObject(ctx context.Context, bucket, key string) error
	Close()
}

// MissingCredentialError names the environment variable a storage
// client could not be built without.
type MissingCredentialError struct {
	Key string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("missing S3 credential: %s is not set", e.Key)
}

// ConfigFromEnv reads the S3 connection settings from the
// environment. Every credential is mandatory; the first missing one
// is reported by name.
func ConfigFromEnv() (config.S3Config, error) {
	viper.AutomaticEnv()
	cfg := config.S3Config{
		AccessKey: viper.GetString("S3_ACCESSKEY"),
		SecretKey: viper.GetString("S3_SECRETKEY"),
		Endpoint:  viper.GetString("S3_ENDPOINT"),
		Region:    viper.GetString("S3_REGION"),
		UseSSL:    true,
	}
	for _, kv := range []struct {
		name  string
		value string
	}{
		{"S3_ACCESSKEY", cfg.AccessKey},
		{"S3_SECRETKEY", cfg.SecretKey},
		{"S3_ENDPOINT", cfg.Endpoint},
		{"S3_REGION", cfg.Region},
	} {
		if kv.value == "" {
			return config.S3Config{}, &MissingCredentialError{Key: kv.name}
		}
	}
	return cfg, nil
}
