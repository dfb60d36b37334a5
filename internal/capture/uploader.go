package capture

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig holds the blob storage connection settings.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioUploader stores assembled recordings in a MinIO/S3 bucket and issues
// time-limited playback URLs.
type MinioUploader struct {
	client *minio.Client
	bucket string
}

// NewMinioUploader connects to blob storage and ensures the bucket exists.
func NewMinioUploader(ctx context.Context, cfg MinioConfig) (*MinioUploader, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("minio bucket check: %w", err)
	}
	if !exists {
		if err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("minio make bucket: %w", err)
		}
	}

	return &MinioUploader{client: client, bucket: cfg.Bucket}, nil
}

// Upload stores one recording and returns its object key as the stable
// reference.
func (u *MinioUploader) Upload(ctx context.Context, sessionID string, data []byte) (string, error) {
	key := fmt.Sprintf("recordings/%s/%d.webm", sessionID, time.Now().UTC().Unix())
	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "video/webm"})
	if err != nil {
		return "", fmt.Errorf("minio put: %w", err)
	}
	return key, nil
}

// PlaybackURL returns a presigned GET URL for a stored recording, valid for
// expiry.
func (u *MinioUploader) PlaybackURL(ctx context.Context, ref string, expiry time.Duration) (string, error) {
	presigned, err := u.client.PresignedGetObject(ctx, u.bucket, ref, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("minio presign: %w", err)
	}
	return presigned.String(), nil
}
