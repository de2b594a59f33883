//go:build gcp

package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/semops-labs/som/core/pkg/canonical"
)

// GCSStore keeps document content in a Google Cloud Storage bucket, keyed
// by content digest.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a GCS-backed blob store using application default
// credentials.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) object(rawDigest string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + rawDigest + ".blob")
}

func (s *GCSStore) Put(ctx context.Context, data []byte) (string, error) {
	digest := canonical.HashBytes(data)
	obj := s.object(strings.TrimPrefix(digest, "sha256:"))

	if _, err := obj.Attrs(ctx); err == nil {
		return digest, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return digest, nil
}

func (s *GCSStore) Get(ctx context.Context, digest string) ([]byte, error) {
	raw, err := rawHex(digest)
	if err != nil {
		return nil, err
	}

	reader, err := s.object(raw).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs get failed for %s: %w", digest, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gcs read failed for %s: %w", digest, err)
	}
	return data, nil
}

func (s *GCSStore) Exists(ctx context.Context, digest string) (bool, error) {
	raw, err := rawHex(digest)
	if err != nil {
		return false, err
	}

	_, err = s.object(raw).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("gcs attrs error: %w", err)
	}
	return true, nil
}

func (s *GCSStore) Delete(ctx context.Context, digest string) error {
	raw, err := rawHex(digest)
	if err != nil {
		return err
	}

	if err := s.object(raw).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete failed for %s: %w", digest, err)
	}
	return nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
