package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/rspy/rs-staging/internal/config"
)

// minioAPI implements ObjectAPI on top of a minio client.
type minioAPI struct {
	client *minio.Client
}

// newMinioAPI builds an ObjectAPI for an S3-compatible endpoint. The
// endpoint may carry an http/https scheme; it is stripped and drives
// the TLS choice.
func newMinioAPI(cfg config.S3Config) (ObjectAPI, error) {
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials must be provided")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint must be provided")
	}

	endpoint := cfg.Endpoint
	secure := cfg.UseSSL
	if strings.HasPrefix(endpoint, "https://") {
		endpoint = strings.TrimPrefix(endpoint, "https://")
		secure = true
	} else if strings.HasPrefix(endpoint, "http://") {
		endpoint = strings.TrimPrefix(endpoint, "http://")
		secure = false
	}

	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build s3 client: %w", err)
	}

	return &minioAPI{client: client}, nil
}

func (m *minioAPI) BucketExists(ctx context.Context, bucket string) (bool, error) {
	return m.client.BucketExists(ctx, bucket)
}

func (m *minioAPI) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, err
	}
	return ObjectInfo{Key: info.Key, Size: info.Size}, nil
}

func (m *minioAPI) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for object := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, object.Err
		}
		out = append(out, ObjectInfo{Key: object.Key, Size: object.Size})
	}
	return out, nil
}

func (m *minioAPI) DownloadObject(ctx context.Context, bucket, key, destPath string) error {
	return m.client.FGetObject(ctx, bucket, key, destPath, minio.GetObjectOptions{})
}

func (m *minioAPI) UploadObject(ctx context.Context, bucket, key, srcPath string) error {
	_, err := m.client.FPutObject(ctx, bucket, key, srcPath, minio.PutObjectOptions{})
	return err
}

func (m *minioAPI) PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64) error {
	// size -1 makes minio fall back to a multipart streaming upload.
	_, err := m.client.PutObject(ctx, bucket, key, body, size, minio.PutObjectOptions{})
	return err
}

func (m *minioAPI) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) error {
	_, err := m.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: dstBucket, Object: dstKey},
		minio.CopySrcOptions{Bucket: srcBucket, Object: srcKey},
	)
	return err
}

func (m *minioAPI) RemoveObject(ctx context.Context, bucket, key string) error {
	return m.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{})
}

func (m *minioAPI) Close() {
	// minio clients hold no long-lived connection state beyond the
	// transport pool; nothing to release.
}

var _ ObjectAPI = (*minioAPI)(nil)
