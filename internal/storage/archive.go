// Package storage selects the raw detail-page archive backend.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/tulashvilimindia/batumi.work/internal/crawler"
	"github.com/tulashvilimindia/batumi.work/internal/storage/gcs"
	"github.com/tulashvilimindia/batumi.work/internal/storage/local"
	"github.com/tulashvilimindia/batumi.work/internal/storage/memory"
)

// Archive providers accepted by OpenArchive.
const (
	ProviderNone   = "none"
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderMemory = "memory"
)

// ArchiveConfig selects and configures a provider.
type ArchiveConfig struct {
	Provider string
	BaseDir  string
	Bucket   string
	Prefix   string
}

// OpenArchive returns the configured archive and a close function. The
// "none" provider yields a nil store; callers skip archiving then.
func OpenArchive(ctx context.Context, cfg ArchiveConfig) (crawler.BlobStore, func() error, error) {
	noClose := func() error { return nil }
	switch cfg.Provider {
	case "", ProviderNone:
		return nil, noClose, nil
	case ProviderMemory:
		return memory.NewBlobStore(), noClose, nil
	case ProviderLocal:
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, nil, fmt.Errorf("open local archive: %w", err)
		}
		return store, noClose, nil
	case ProviderGCS:
		store, closeFn, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs archive: %w", err)
		}
		return store, closeFn, nil
	default:
		return nil, nil, fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
}

// NoOpArchive accepts and discards every object.
type NoOpArchive struct{}

// PutObject drains data and returns an empty URI.
func (NoOpArchive) PutObject(_ context.Context, _ string, _ string, data io.Reader) (string, error) {
	_, err := io.Copy(io.Discard, data)
	return "", err
}
