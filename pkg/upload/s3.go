// Package upload ships score artifacts to S3-compatible object storage so
// downstream aggregation does not depend on validator-local disks.
package upload

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config holds the object storage target. Endpoint is host[:port] without a
// scheme; UseSSL selects https.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseSSL    bool
}

// S3Uploader copies artifact files into a bucket under a fixed key prefix.
type S3Uploader struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Uploader builds an uploader for the configured endpoint.
func NewS3Uploader(cfg Config, logger *zap.Logger) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("upload: bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("upload: building client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Uploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

// Upload copies one local file into the bucket, keyed by the file's base
// name under the configured prefix.
func (u *S3Uploader) Upload(ctx context.Context, filePath string) error {
	key := filepath.Base(filePath)
	if u.prefix != "" {
		key = path.Join(u.prefix, key)
	}
	_, err := u.client.FPutObject(ctx, u.bucket, key, filePath, minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload: putting %s: %w", key, err)
	}
	u.logger.Debug("uploaded artifact",
		zap.String("bucket", u.bucket),
		zap.String("key", key))
	return nil
}
