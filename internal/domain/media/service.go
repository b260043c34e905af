package media

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/catalog"
)

// DefaultMaxSize caps uploads when no limit is configured.
const DefaultMaxSize = 5 << 20

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// VariantReader checks that a variant exists.
type VariantReader interface {
	GetVariant(ctx context.Context, id string) (*catalog.Variant, error)
}

// Upload describes an incoming image.
type Upload struct {
	VariantID   string
	Filename    string
	ContentType string
	Body        []byte
	AltText     string
	Primary     bool
}

// Service stores variant images in an object store and records them.
type Service struct {
	store    ObjectStore
	images   Repository
	variants VariantReader
	maxSize  int
}

// NewService creates a media Service. A non-positive maxSize selects
// DefaultMaxSize.
func NewService(store ObjectStore, images Repository, variants VariantReader, maxSize int) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{store: store, images: images, variants: variants, maxSize: maxSize}
}

// ObjectKey builds the storage key for a new image of a variant.
func ObjectKey(variantID, ext string) string {
	return path.Join("products", variantID, uuid.NewString()+ext)
}

// contentType resolves the declared type, sniffing the body when the client
// sent none or a generic one.
func contentType(declared string, body []byte) string {
	ct := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(body)
	}
	return ct
}

// Upload validates and stores an image. The object is removed again if the
// record cannot be written.
func (s *Service) Upload(ctx context.Context, u Upload) (*Image, error) {
	if len(u.Body) == 0 {
		return nil, ErrEmptyFile
	}
	if len(u.Body) > s.maxSize {
		return nil, &TooLargeError{Size: len(u.Body), Limit: s.maxSize}
	}
	ct := contentType(u.ContentType, u.Body)
	ext, ok := extensions[ct]
	if !ok {
		return nil, errors.Wrap(ErrUnsupportedContent, ct)
	}
	if _, err := s.variants.GetVariant(ctx, u.VariantID); err != nil {
		return nil, err
	}

	key := ObjectKey(u.VariantID, ext)
	url, err := s.store.Put(ctx, key, ct, u.Body)
	if err != nil {
		return nil, errors.Wrap(err, "put object")
	}

	img := &Image{
		VariantID: u.VariantID,
		Key:       key,
		URL:       url,
		AltText:   u.AltText,
		Primary:   u.Primary,
	}
	if err := s.images.Create(ctx, img); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			zctx.From(ctx).Error("Remove orphaned object", zap.String("key", key), zap.Error(delErr))
		}
		return nil, errors.Wrap(err, "record image")
	}

	zctx.From(ctx).Info("Image uploaded",
		zap.String("image_id", img.ID),
		zap.String("variant_id", img.VariantID),
		zap.String("key", key),
		zap.Int("size", len(u.Body)),
		zap.String("filename", u.Filename),
	)
	return img, nil
}

// Delete removes the stored object and then the record. The object goes
// first so a failing store leaves the image intact; deleting a missing
// object succeeds, so a retry after a failed record delete is safe.
func (s *Service) Delete(ctx context.Context, id string) error {
	img, err := s.images.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, img.Key); err != nil {
		if errors.Is(err, ErrStoreUnavailable) {
			return err
		}
		return errors.Wrap(err, "delete object")
	}
	if err := s.images.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return errors.Wrap(err, "delete image record")
	}
	zctx.From(ctx).Info("Image deleted", zap.String("image_id", id), zap.String("key", img.Key))
	return nil
}

// List returns the images of a variant, primary first.
func (s *Service) List(ctx context.Context, variantID string) ([]Image, error) {
	if _, err := s.variants.GetVariant(ctx, variantID); err != nil {
		return nil, err
	}
	return s.images.ListByVariant(ctx, variantID)
}
