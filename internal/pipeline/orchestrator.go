// Package pipeline turns an authenticated upload into a stored, optionally
// redacted artifact and its metadata record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"datacleaner/internal/config"
	"datacleaner/internal/detect"
	"datacleaner/internal/media/sniffer"
	"datacleaner/internal/media/svg"
	"datacleaner/internal/models"
	"datacleaner/internal/quota"
	"datacleaner/internal/storage"
)

const (
	defaultExtension = ".jpg"
	defaultMaxPixels = 1 << 26
)

var extensionPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

type UserGetter interface {
	GetByID(ctx context.Context, id int64) (models.User, error)
}

// ImageCreator persists the record and, when chargeQuota is set, increments
// the owner's upload counter atomically with it.
type ImageCreator interface {
	Create(ctx context.Context, image *models.Image, chargeQuota bool) error
}

type UploadRequest struct {
	Owner       int64
	Data        []byte
	ContentType string
	Filename    string
	Mode        Mode
}

type Result struct {
	Image    models.Image
	URL      string
	Warnings []string
}

type Orchestrator struct {
	users        UserGetter
	images       ImageCreator
	store        storage.ArtifactStore
	detector     detect.Detector
	locker       quota.Locker
	policy       quota.Policy
	maxBytes     int64
	maxPixels    int64
	publicPrefix string
	log          zerolog.Logger
}

func NewOrchestrator(
	users UserGetter,
	images ImageCreator,
	store storage.ArtifactStore,
	detector detect.Detector,
	locker quota.Locker,
	policy quota.Policy,
	cfg config.UploadConfig,
	log zerolog.Logger,
) *Orchestrator {
	if detector == nil {
		detector = detect.Disabled{}
	}
	maxPixels := cfg.MaxPixels
	if maxPixels <= 0 {
		maxPixels = defaultMaxPixels
	}
	return &Orchestrator{
		users:        users,
		images:       images,
		store:        store,
		detector:     detector,
		locker:       locker,
		policy:       policy,
		maxBytes:     cfg.MaxBytes,
		maxPixels:    maxPixels,
		publicPrefix: strings.TrimSuffix(cfg.PublicPrefix, "/"),
		log:          log,
	}
}

// PublicURL is the locator the HTTP layer serves name under.
func (o *Orchestrator) PublicURL(name string) string {
	return o.publicPrefix + "/" + name
}

// Process runs one upload. Only the validation, quota and storage failures
// are returned; detection and redaction problems degrade to serving the
// original and are reported in Result.Warnings.
func (o *Orchestrator) Process(ctx context.Context, req UploadRequest) (Result, error) {
	declared := strings.ToLower(strings.TrimSpace(req.ContentType))
	if !strings.HasPrefix(declared, "image/") {
		return Result{}, fmt.Errorf("%w: %q", ErrInvalidMediaType, req.ContentType)
	}
	if len(req.Data) == 0 {
		return Result{}, fmt.Errorf("%w: empty payload", ErrInvalidMediaType)
	}
	if o.maxBytes > 0 && int64(len(req.Data)) > o.maxBytes {
		return Result{}, fmt.Errorf("%w: %d bytes exceeds %d", ErrPayloadTooLarge, len(req.Data), o.maxBytes)
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeBlur
	}

	unlock, err := o.locker.Lock(ctx, req.Owner)
	if err != nil {
		return Result{}, fmt.Errorf("acquire quota lock: %w", err)
	}
	defer unlock()

	owner, err := o.users.GetByID(ctx, req.Owner)
	if err != nil {
		return Result{}, fmt.Errorf("load owner: %w", err)
	}
	if !o.policy.Allow(owner.Role, owner.UploadCount) {
		return Result{}, ErrQuotaExceeded
	}

	data := req.Data
	kind, sniffErr := sniffer.Detect(data)
	contentType := declared
	if sniffErr == nil {
		contentType = kind.MIME
	}
	if kind.Type == sniffer.TypeSVG {
		if data, err = svg.Sanitize(data); err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrInvalidMediaType, err)
		}
	}

	name := storageName(req.Filename, kind)
	log := o.log.With().Int64("user_id", owner.ID).Str("image", name).Logger()

	if err := o.store.Write(ctx, name, data, contentType); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
	}
	written := []string{name}

	image := models.Image{
		UserID:       owner.ID,
		Filename:     name,
		OriginalName: originalName(req.Filename, name),
	}
	var warnings []string

	if mode != ModeNone {
		outcome, err := analyze(o.detector, data, name, kind, o.maxPixels)
		var stageErr *StageError
		switch {
		case errors.As(err, &stageErr):
			log.Warn().Err(stageErr.Err).Str("stage", string(stageErr.Stage)).Msg("analysis degraded, serving original")
			warnings = append(warnings, fmt.Sprintf("%s failed, original stored without redaction", stageErr.Stage))
		default:
			image.Regions = outcome.regions
			if outcome.derived != nil {
				derivedName := models.DerivedPrefix + name
				if err := o.store.Write(ctx, derivedName, outcome.derived, contentType); err != nil {
					storage.DeleteQuietly(ctx, o.store, log, written...)
					return Result{}, fmt.Errorf("%w: %v", ErrStorageWriteFailed, err)
				}
				written = append(written, derivedName)
				image.Filename = derivedName
				image.Processed = true
			}
		}
	}

	if err := o.images.Create(ctx, &image, o.policy.Charges(owner.Role)); err != nil {
		storage.DeleteQuietly(ctx, o.store, log, written...)
		return Result{}, fmt.Errorf("save metadata: %w", err)
	}

	log.Info().
		Int64("image_id", image.ID).
		Str("mode", string(mode)).
		Int("detected", len(image.Regions)).
		Bool("processed", image.Processed).
		Msg("upload stored")

	return Result{
		Image:    image,
		URL:      o.PublicURL(image.Filename),
		Warnings: warnings,
	}, nil
}

// storageName takes the extension of the sniffed type, so the derived copy
// is encoded in the same format as the bytes. Unrecognized content keeps a
// sane client extension, else .jpg.
func storageName(filename string, kind sniffer.Result) string {
	ext := kind.Extension()
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(filename))
		if !extensionPattern.MatchString(ext) {
			ext = defaultExtension
		}
	}
	return uuid.NewString() + ext
}

func originalName(filename, fallback string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		return fallback
	}
	return base
}
