// Package storage persists invoice PDFs in an S3-compatible object store.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"gitlab.com/yelinaung/billbox/internal/logger"
)

// SignedURLTTL is how long a download link stays valid.
const SignedURLTTL = 15 * time.Minute

// ObjectStore stores invoice PDFs and hands out short-lived download links.
type ObjectStore interface {
	Store(ctx context.Context, userID uuid.UUID, filename string, data []byte) (string, error)
	SignedURL(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// MinIOStore implements ObjectStore against MinIO or any S3-compatible API.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

// Config holds the object store connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New connects to the object store and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.Bucket, err)
		}
		logger.Log.Info().Str("bucket", cfg.Bucket).Msg("Created object store bucket")
	}

	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// Store writes a PDF under a per-user prefix and returns the object key.
// A random component in the key keeps repeated filenames from colliding.
func (s *MinIOStore) Store(ctx context.Context, userID uuid.UUID, filename string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty document")
	}

	key := fmt.Sprintf("invoices/%s/%s_%s", userID, uuid.NewString()[:8], sanitizeFilename(filename))

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/pdf"})
	if err != nil {
		return "", fmt.Errorf("failed to store %q: %w", key, err)
	}

	logger.Log.Debug().
		Str("key", key).
		Int("size", len(data)).
		Msg("Stored invoice PDF")
	return key, nil
}

// SignedURL returns a pre-signed download link for a stored PDF.
func (s *MinIOStore) SignedURL(ctx context.Context, key string) (string, error) {
	params := make(url.Values)
	params.Set("response-content-type", "application/pdf")

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, SignedURLTTL, params)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for %q: %w", key, err)
	}
	return u.String(), nil
}

// Delete removes a stored PDF. Missing objects are not an error.
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

// sanitizeFilename strips path components and characters that do not
// belong in an object key.
func sanitizeFilename(filename string) string {
	filename = path.Base(filename)

	var b strings.Builder
	for _, r := range filename {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	name := b.String()
	if name == "" || name == "." || name == ".." {
		name = "invoice.pdf"
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name += ".pdf"
	}
	return name
}
