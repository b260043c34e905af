package media

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for image operations.
var (
	ErrNotFound           = errors.New("image not found")
	ErrEmptyFile          = errors.New("file is empty")
	ErrUnsupportedContent = errors.New("unsupported image type")
)

// TooLargeError reports an upload above the configured limit.
type TooLargeError struct {
	Size  int
	Limit int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("file size %d exceeds limit of %d bytes", e.Size, e.Limit)
}

// Image is a stored picture of a product variant.
type Image struct {
	ID        string
	VariantID string
	Key       string
	URL       string
	AltText   string
	Primary   bool
	CreatedAt time.Time
}

// ObjectStore holds image bytes. Implementations return the public URL of a
// stored object.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)
	Delete(ctx context.Context, key string) error
}

// Repository persists image records.
type Repository interface {
	// Create inserts img. When img.Primary is set, any other primary image of
	// the variant is demoted in the same transaction.
	Create(ctx context.Context, img *Image) error
	Get(ctx context.Context, id string) (*Image, error)
	ListByVariant(ctx context.Context, variantID string) ([]Image, error)
	Delete(ctx context.Context, id string) error
}

// ErrStoreUnavailable is returned when no object store is configured.
var ErrStoreUnavailable = errors.New("object storage is not configured")

// UnavailableStore rejects writes. It stands in when object storage is not
// configured so images can still be listed.
type UnavailableStore struct{}

func (UnavailableStore) Put(context.Context, string, string, []byte) (string, error) {
	return "", ErrStoreUnavailable
}

func (UnavailableStore) Delete(context.Context, string) error { return ErrStoreUnavailable }
