package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"healthdoc/internal/common"
)

// Config holds MinIO connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

type minioStorage struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
}

// NewMinIO connects to the object store and ensures the bucket exists.
func NewMinIO(ctx context.Context, cfg Config, logger *slog.Logger) (Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("connect minio: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
		logger.Info("storage.bucket.created", "bucket", cfg.Bucket)
	}

	return &minioStorage{client: client, bucket: cfg.Bucket, log: logger}, nil
}

func (s *minioStorage) Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) (*ObjectInfo, error) {
	putOpts := minio.PutObjectOptions{ContentType: opts.ContentType}
	if opts.OriginalFilename != "" {
		putOpts.UserMetadata = map[string]string{"original-filename": opts.OriginalFilename}
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, r, size, putOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: put %q: %v", common.ErrStorage, key, err)
	}
	s.log.Info("storage.put", "key", key, "size", info.Size)
	return &ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ContentType:  opts.ContentType,
		ETag:         info.ETag,
		LastModified: info.LastModified,
	}, nil
}

func (s *minioStorage) Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get %q: %v", common.ErrStorage, key, err)
	}
	// GetObject is lazy; Stat forces the first round-trip and surfaces
	// missing objects here instead of on first read.
	stat, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, nil, fmt.Errorf("%w: stat %q: %v", common.ErrStorage, key, err)
	}
	return obj, &ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
		LastModified: stat.LastModified,
	}, nil
}

func (s *minioStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("%w: delete %q: %v", common.ErrStorage, key, err)
	}
	s.log.Info("storage.delete", "key", key)
	return nil
}

func (s *minioStorage) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("%w: presign %q: %v", common.ErrStorage, key, err)
	}
	return u.String(), nil
}
