// Package blob provides content-addressed storage for opaque document
// content. Digests are SHA-256 with an algorithm prefix; writes are
// idempotent: storing the same bytes twice yields the same digest.
package blob

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/semops-labs/som/core/pkg/canonical"
)

// Store is the contract for content-addressed blob storage.
type Store interface {
	// Put persists data and returns its content digest.
	Put(ctx context.Context, data []byte) (string, error)
	// Get retrieves data by content digest.
	Get(ctx context.Context, digest string) ([]byte, error)
	// Exists reports whether a blob is present.
	Exists(ctx context.Context, digest string) (bool, error)
	// Delete removes a blob. Deleting an absent blob is not an error.
	Delete(ctx context.Context, digest string) error
}

// rawHex strips and validates the "sha256:" prefix.
func rawHex(digest string) (string, error) {
	raw, ok := strings.CutPrefix(digest, "sha256:")
	if !ok {
		return "", fmt.Errorf("invalid digest format: %s", digest)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid digest hex: %w", err)
	}
	return raw, nil
}

// FileStore is a filesystem-backed implementation of Store.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates a blob directory rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to ensure blob dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) Put(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	digest := canonical.HashBytes(data)
	raw := strings.TrimPrefix(digest, "sha256:")
	path := filepath.Join(s.baseDir, raw+".blob")

	if _, err := os.Stat(path); err == nil {
		return digest, nil
	}

	// Write to temp, then rename for an atomic commit.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("failed to commit blob: %w", err)
	}
	return digest, nil
}

func (s *FileStore) Get(_ context.Context, digest string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := rawHex(digest)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(s.baseDir, raw+".blob"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found: %s", digest)
		}
		return nil, fmt.Errorf("failed to open blob: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob: %w", err)
	}
	return data, nil
}

func (s *FileStore) Exists(_ context.Context, digest string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := rawHex(digest)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filepath.Join(s.baseDir, raw+".blob"))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob: %w", err)
}

func (s *FileStore) Delete(_ context.Context, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := rawHex(digest)
	if err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(s.baseDir, raw+".blob")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
