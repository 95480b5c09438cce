// Package gcs archives raw article HTML in Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the bucket and optional object prefix.
type Config struct {
	Bucket string
	Prefix string
}

// objectWriters opens writers for bucket objects.
type objectWriters interface {
	NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser
}

type clientWriters struct {
	client *storage.Client
}

func (c clientWriters) NewWriter(ctx context.Context, bucket, object, contentType string) io.WriteCloser {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	return w
}

// BlobStore writes raw pages to a bucket.
type BlobStore struct {
	writers objectWriters
	bucket  string
	prefix  string
}

// New creates a GCS-backed archive.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	return newBlobStore(clientWriters{client: client}, cfg)
}

func newBlobStore(writers objectWriters, cfg Config) (*BlobStore, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{
		writers: writers,
		bucket:  cfg.Bucket,
		prefix:  strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// PutObject uploads the page and returns a gs:// URI.
func (s *BlobStore) PutObject(ctx context.Context, name string, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("path is required")
	}
	object := strings.TrimPrefix(name, "/")
	if s.prefix != "" {
		object = path.Join(s.prefix, object)
	}
	w := s.writers.NewWriter(ctx, s.bucket, object, contentType)
	if _, err := io.Copy(w, r); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}
