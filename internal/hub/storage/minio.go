package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/roidota/roidota/internal/hub/core"
	"github.com/roidota/roidota/pkg/log"
	"github.com/roidota/roidota/pkg/options"
)

var _ core.Storage = (*MinIOProvider)(nil)

// MinIOProvider stores firmware binaries in an S3-compatible bucket.
type MinIOProvider struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewMinIOProvider creates an S3-backed firmware store.
func NewMinIOProvider(opts *options.S3Options) (*MinIOProvider, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.InsecureSkipVerify {
		minioOpts.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinIOProvider{
		client:     client,
		bucketName: opts.BucketName,
		region:     opts.Region,
	}, nil
}

// CheckBucket creates the firmware bucket when it does not exist yet.
func (p *MinIOProvider) CheckBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		log.Info("Bucket does not exist, creating...", "bucket", p.bucketName)
		if err := p.client.MakeBucket(ctx, p.bucketName, minio.MakeBucketOptions{Region: p.region}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (p *MinIOProvider) GeneratePresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	reqParams := make(url.Values)
	reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", path.Base(objectKey)))

	presignedURL, err := p.client.PresignedGetObject(ctx, p.bucketName, objectKey, expiry, reqParams)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned url: %w", err)
	}

	return presignedURL.String(), nil
}

func (p *MinIOProvider) PutObject(ctx context.Context, objectKey string, r io.Reader, size int64) error {
	info, err := p.client.PutObject(ctx, p.bucketName, objectKey, r, size, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", objectKey, err)
	}

	log.Info("Firmware uploaded", "bucket", p.bucketName, "key", objectKey, "size", info.Size)
	return nil
}
