package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"datacleaner/internal/storage"
)

// References answers whether any image record still needs an artifact.
type References interface {
	IsReferenced(ctx context.Context, name string) (bool, error)
}

type Processor struct {
	store  storage.ArtifactStore
	refs   References
	grace  time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func NewProcessor(store storage.ArtifactStore, refs References, grace time.Duration, logger zerolog.Logger) *Processor {
	return &Processor{
		store:  store,
		refs:   refs,
		grace:  grace,
		now:    time.Now,
		logger: logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload Payload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	switch payload.Type {
	case TypeSweep:
		_, err := p.Sweep(ctx)
		return err
	default:
		p.logger.Warn().Str("type", payload.Type).Str("message_id", msg.ID).Msg("unknown task type")
		return nil
	}
}

// Sweep deletes artifacts older than the grace period that no record
// serves or derives from. Younger files may belong to an upload whose
// metadata transaction has not committed yet.
func (p *Processor) Sweep(ctx context.Context) (int, error) {
	artifacts, err := p.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list artifacts: %w", err)
	}

	cutoff := p.now().Add(-p.grace)
	removed := 0
	for _, artifact := range artifacts {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if artifact.ModifiedAt.After(cutoff) || strings.HasPrefix(artifact.Name, ".") {
			continue
		}

		referenced, err := p.refs.IsReferenced(ctx, artifact.Name)
		if err != nil {
			return removed, fmt.Errorf("check %s: %w", artifact.Name, err)
		}
		if referenced {
			continue
		}

		storage.DeleteQuietly(ctx, p.store, p.logger, artifact.Name)
		removed++
		p.logger.Info().Str("artifact", artifact.Name).Int64("size", artifact.Size).Msg("orphan artifact removed")
	}

	p.logger.Info().Int("scanned", len(artifacts)).Int("removed", removed).Msg("sweep finished")
	return removed, nil
}
