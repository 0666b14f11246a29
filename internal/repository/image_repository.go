package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"datacleaner/internal/database"
	"datacleaner/internal/models"
)

var ErrImageNotFound = errors.New("image not found")

type ImageRepository struct {
	pool database.Pool
}

func NewImageRepository(pool database.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

const imageColumns = `id, user_id, filename, original_name, processed, detected_objects, created_at`

// Create inserts the record and, when chargeQuota is set, increments the
// owner's upload counter in the same transaction.
func (r *ImageRepository) Create(ctx context.Context, image *models.Image, chargeQuota bool) (err error) {
	regions := image.Regions
	if regions == nil {
		regions = []models.DetectedRegion{}
	}
	payload, err := json.Marshal(regions)
	if err != nil {
		return fmt.Errorf("encode regions: %w", err)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const insert = `
		INSERT INTO images (user_id, filename, original_name, processed, detected_objects, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`
	if err = tx.QueryRow(ctx, insert,
		image.UserID,
		image.Filename,
		image.OriginalName,
		image.Processed,
		payload,
	).Scan(&image.ID, &image.CreatedAt); err != nil {
		return err
	}

	if chargeQuota {
		const charge = `UPDATE users SET upload_count = upload_count + 1 WHERE id = $1`
		tag, execErr := tx.Exec(ctx, charge, image.UserID)
		if execErr != nil {
			err = execErr
			return err
		}
		if tag.RowsAffected() == 0 {
			err = ErrUserNotFound
			return err
		}
	}
	return nil
}

func scanImage(row pgx.Row) (models.Image, error) {
	var image models.Image
	var payload []byte
	if err := row.Scan(
		&image.ID,
		&image.UserID,
		&image.Filename,
		&image.OriginalName,
		&image.Processed,
		&payload,
		&image.CreatedAt,
	); err != nil {
		return models.Image{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &image.Regions); err != nil {
			return models.Image{}, fmt.Errorf("decode regions of image %d: %w", image.ID, err)
		}
	}
	return image, nil
}

func (r *ImageRepository) GetByID(ctx context.Context, id int64) (models.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1`

	image, err := scanImage(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Image{}, ErrImageNotFound
		}
		return models.Image{}, err
	}
	return image, nil
}

// ListByUser and List return newest first.
func (r *ImageRepository) ListByUser(ctx context.Context, userID int64) ([]models.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE user_id = $1 ORDER BY id DESC`
	return r.list(ctx, query, userID)
}

func (r *ImageRepository) List(ctx context.Context) ([]models.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images ORDER BY id DESC`
	return r.list(ctx, query)
}

func (r *ImageRepository) list(ctx context.Context, query string, args ...any) ([]models.Image, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	images := make([]models.Image, 0)
	for rows.Next() {
		image, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, image)
	}
	return images, rows.Err()
}

func (r *ImageRepository) Delete(ctx context.Context, id int64) error {
	const query = `DELETE FROM images WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

// IsReferenced reports whether any record serves name or was derived from it.
func (r *ImageRepository) IsReferenced(ctx context.Context, name string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM images WHERE filename = $1 OR filename = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, name, models.DerivedPrefix+name).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
