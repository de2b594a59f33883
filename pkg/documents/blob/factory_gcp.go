//go:build gcp

package blob

import (
	"context"
	"fmt"
)

func newGCSStore(ctx context.Context, cfg GCSConfig) (Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs backend requires a bucket")
	}
	return NewGCSStore(ctx, cfg)
}
