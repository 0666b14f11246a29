package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"datacleaner/internal/models"
	"datacleaner/internal/repository"
	"datacleaner/internal/storage"
)

var ErrNotFound = errors.New("not found")

type ImageStore interface {
	GetByID(ctx context.Context, id int64) (models.Image, error)
	ListByUser(ctx context.Context, userID int64) ([]models.Image, error)
	List(ctx context.Context) ([]models.Image, error)
	Delete(ctx context.Context, id int64) error
}

type ImageService struct {
	images ImageStore
	store  storage.ArtifactStore
	log    zerolog.Logger
}

func NewImageService(images ImageStore, store storage.ArtifactStore, log zerolog.Logger) *ImageService {
	return &ImageService{
		images: images,
		store:  store,
		log:    log,
	}
}

// List returns the viewer's records, or every record for an admin, newest
// first.
func (s *ImageService) List(ctx context.Context, viewer models.User) ([]models.Image, error) {
	if viewer.IsAdmin() {
		return s.images.List(ctx)
	}
	return s.images.ListByUser(ctx, viewer.ID)
}

// Get hides records the viewer does not own behind ErrNotFound.
func (s *ImageService) Get(ctx context.Context, viewer models.User, id int64) (models.Image, error) {
	image, err := s.images.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			return models.Image{}, ErrNotFound
		}
		return models.Image{}, err
	}
	if image.UserID != viewer.ID && !viewer.IsAdmin() {
		return models.Image{}, ErrNotFound
	}
	return image, nil
}

// Delete removes the record, then the served artifact and, for a derived
// artifact, its original. Missing files are ignored. Quota is not refunded.
func (s *ImageService) Delete(ctx context.Context, viewer models.User, id int64) error {
	image, err := s.Get(ctx, viewer, id)
	if err != nil {
		return err
	}

	if err := s.images.Delete(ctx, image.ID); err != nil {
		if errors.Is(err, repository.ErrImageNotFound) {
			return ErrNotFound
		}
		return err
	}

	names := []string{image.Filename}
	if source := image.SourceFilename(); source != image.Filename {
		names = append(names, source)
	}
	storage.DeleteQuietly(ctx, s.store, s.log, names...)

	s.log.Info().
		Int64("image_id", image.ID).
		Int64("owner_id", image.UserID).
		Int64("deleted_by", viewer.ID).
		Msg("image deleted")
	return nil
}
