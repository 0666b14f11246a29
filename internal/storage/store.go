package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"datacleaner/internal/config"
)

var (
	ErrNotFound    = errors.New("artifact not found")
	ErrInvalidName = errors.New("invalid artifact name")
)

// ArtifactStore maps caller-chosen names to file bytes. Names are opaque and
// never generated by the store.
type ArtifactStore interface {
	Write(ctx context.Context, name string, data []byte, contentType string) error
	Read(ctx context.Context, name string) ([]byte, error)
	// Delete returns ErrNotFound when nothing is stored under name.
	Delete(ctx context.Context, name string) error
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]ArtifactInfo, error)
}

type ArtifactInfo struct {
	Name       string
	Size       int64
	ModifiedAt time.Time
}

// DeleteQuietly removes every name, tolerating missing artifacts. Other
// failures are logged and skipped.
func DeleteQuietly(ctx context.Context, store ArtifactStore, log zerolog.Logger, names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := store.Delete(ctx, name); err != nil && !errors.Is(err, ErrNotFound) {
			log.Warn().Err(err).Str("artifact", name).Msg("artifact delete failed")
		}
	}
}

// New builds the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (ArtifactStore, error) {
	switch cfg.Driver {
	case config.StorageDriverLocal:
		return NewLocalStore(cfg.Dir)
	case config.StorageDriverMinio:
		store, err := NewObjectStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
