package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/media"
)

const (
	demotePrimarySQL = `UPDATE product_images SET is_primary = FALSE
		WHERE variant_id = $1 AND is_primary`

	createImageSQL = `INSERT INTO product_images (variant_id, key, url, alt_text, is_primary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	imageColumns = `id, variant_id, key, url, alt_text, is_primary, created_at`

	getImageSQL = `SELECT ` + imageColumns + ` FROM product_images WHERE id = $1`

	listImagesSQL = `SELECT ` + imageColumns + ` FROM product_images
		WHERE variant_id = $1 ORDER BY is_primary DESC, created_at, id`

	deleteImageSQL = `DELETE FROM product_images WHERE id = $1`
)

var _ media.Repository = (*ImageRepository)(nil)

// ImageRepository implements media.Repository backed by PostgreSQL.
type ImageRepository struct {
	pool *pgxpool.Pool
}

// NewImageRepository returns an ImageRepository that uses the given pool.
func NewImageRepository(pool *pgxpool.Pool) *ImageRepository {
	return &ImageRepository{pool: pool}
}

// Create records an image, demoting the variant's previous primary image in
// the same transaction when img is primary.
func (r *ImageRepository) Create(ctx context.Context, img *media.Image) error {
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if img.Primary {
			if _, err := tx.Exec(ctx, demotePrimarySQL, img.VariantID); err != nil {
				return fmt.Errorf("demoting primary image: %w", err)
			}
		}
		return tx.QueryRow(ctx, createImageSQL,
			img.VariantID, img.Key, img.URL, img.AltText, img.Primary,
		).Scan(&img.ID, &img.CreatedAt)
	})
	if err != nil {
		if code, _ := pgCode(err); code == codeForeignKeyViolation {
			return catalog.ErrVariantNotFound
		}
		return fmt.Errorf("creating image %q: %w", img.Key, err)
	}
	return nil
}

// Get returns an image by id.
func (r *ImageRepository) Get(ctx context.Context, id string) (*media.Image, error) {
	rows, err := r.pool.Query(ctx, getImageSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting image %q: %w", id, err)
	}
	img, err := pgx.CollectExactlyOneRow(rows, scanImage)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, media.ErrNotFound
		}
		return nil, fmt.Errorf("getting image %q: %w", id, err)
	}
	return &img, nil
}

// ListByVariant returns the images of a variant, primary first.
func (r *ImageRepository) ListByVariant(ctx context.Context, variantID string) ([]media.Image, error) {
	rows, err := r.pool.Query(ctx, listImagesSQL, variantID)
	if err != nil {
		return nil, fmt.Errorf("listing images of %q: %w", variantID, err)
	}
	return pgx.CollectRows(rows, scanImage)
}

// Delete removes an image record.
func (r *ImageRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteImageSQL, id)
	if err != nil {
		return fmt.Errorf("deleting image %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return media.ErrNotFound
	}
	return nil
}

func scanImage(row pgx.CollectableRow) (media.Image, error) {
	var img media.Image
	err := row.Scan(&img.ID, &img.VariantID, &img.Key, &img.URL, &img.AltText, &img.Primary, &img.CreatedAt)
	return img, err
}
