package blob

import (
	"context"
	"fmt"
)

// Backend selects a blob storage implementation.
type Backend string

const (
	BackendFS  Backend = "fs"
	BackendS3  Backend = "s3"
	BackendGCS Backend = "gcs"
)

// Config selects and configures a blob backend.
type Config struct {
	Backend Backend
	// Dir is the base directory for the fs backend.
	Dir string
	S3  S3Config
	GCS GCSConfig
}

// GCSConfig holds the GCS backend options. The type is declared here, not
// in the tagged gcs source, so configuration compiles without -tags gcp.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// New creates a blob store from config. The fs backend is the default.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFS, "":
		dir := cfg.Dir
		if dir == "" {
			dir = "data/blobs"
		}
		return NewFileStore(dir)
	case BackendS3:
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("s3 backend requires a bucket")
		}
		return NewS3Store(ctx, cfg.S3)
	case BackendGCS:
		return newGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", cfg.Backend)
	}
}
