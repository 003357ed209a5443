// Package blob stores raw uploaded files. The contract is deliberately
// small: upload bytes under a key, get back where they landed. Drivers are
// selected by environment; the memory driver exists for tests and local
// development.
package blob

import (
	"context"
	"fmt"

	"github.com/quakewatch/eq-records/internal/config"
)

// Location identifies where an uploaded file landed.
type Location struct {
	Path      string `json:"path"`
	PublicURL string `json:"public_url"`
}

// Store uploads raw file bytes to durable storage.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (Location, error)
}

// Open selects a Store implementation from the configured driver.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.BlobDriver {
	case config.BlobDriverMemory:
		return NewMemory(), nil
	case config.BlobDriverS3:
		return NewS3(ctx, S3Config{
			Bucket:    cfg.BlobS3Bucket,
			Region:    cfg.BlobS3Region,
			Endpoint:  cfg.BlobS3Endpoint,
			PathStyle: cfg.BlobS3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.BlobDriver)
	}
}
