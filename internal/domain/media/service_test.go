package media

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/storefront/internal/domain/catalog"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type memStore struct {
	objects   map[string][]byte
	putErr    error
	deleteErr error
}

func (m *memStore) Put(_ context.Context, key, _ string, body []byte) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	m.objects[key] = body
	return "https://cdn.example.com/" + key, nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, key)
	return nil
}

type mockImages struct {
	images    map[string]*Image
	createErr error
}

func (m *mockImages) Create(_ context.Context, img *Image) error {
	if m.createErr != nil {
		return m.createErr
	}
	if img.Primary {
		for _, other := range m.images {
			if other.VariantID == img.VariantID {
				other.Primary = false
			}
		}
	}
	img.ID = "img-" + img.Key
	m.images[img.ID] = img
	return nil
}

func (m *mockImages) Get(_ context.Context, id string) (*Image, error) {
	img, ok := m.images[id]
	if !ok {
		return nil, ErrNotFound
	}
	return img, nil
}

func (m *mockImages) ListByVariant(_ context.Context, variantID string) ([]Image, error) {
	var out []Image
	for _, img := range m.images {
		if img.VariantID == variantID {
			out = append(out, *img)
		}
	}
	return out, nil
}

func (m *mockImages) Delete(_ context.Context, id string) error {
	if _, ok := m.images[id]; !ok {
		return ErrNotFound
	}
	delete(m.images, id)
	return nil
}

type mockVariants struct{}

func (mockVariants) GetVariant(_ context.Context, id string) (*catalog.Variant, error) {
	if id != "v1" {
		return nil, catalog.ErrVariantNotFound
	}
	return &catalog.Variant{ID: id, Active: true}, nil
}

func newTestService(maxSize int) (*Service, *memStore, *mockImages) {
	store := &memStore{objects: map[string][]byte{}}
	images := &mockImages{images: map[string]*Image{}}
	return NewService(store, images, mockVariants{}, maxSize), store, images
}

func TestUpload(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(0)

	img, err := svc.Upload(ctx, Upload{VariantID: "v1", Filename: "a.png", Body: pngHeader, Primary: true})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(img.Key, "products/v1/"))
	assert.True(t, strings.HasSuffix(img.Key, ".png"))
	assert.Equal(t, "https://cdn.example.com/"+img.Key, img.URL)
	assert.Contains(t, store.objects, img.Key)
}

func TestUpload_Validation(t *testing.T) {
	tests := []struct {
		name    string
		upload  Upload
		wantErr error
	}{
		{name: "empty", upload: Upload{VariantID: "v1"}, wantErr: ErrEmptyFile},
		{
			name:    "unsupported type",
			upload:  Upload{VariantID: "v1", ContentType: "text/plain", Body: []byte("hello")},
			wantErr: ErrUnsupportedContent,
		},
		{
			name:    "unknown variant",
			upload:  Upload{VariantID: "v9", ContentType: "image/png", Body: pngHeader},
			wantErr: catalog.ErrVariantNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, _ := newTestService(0)
			_, err := svc.Upload(context.Background(), tt.upload)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, store.objects)
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	svc, _, _ := newTestService(8)
	_, err := svc.Upload(context.Background(), Upload{VariantID: "v1", ContentType: "image/png", Body: pngHeader})

	var tooLarge *TooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, 8, tooLarge.Limit)
}

func TestUpload_RecordFailureRemovesObject(t *testing.T) {
	svc, store, images := newTestService(0)
	images.createErr = errors.New("db down")

	_, err := svc.Upload(context.Background(), Upload{VariantID: "v1", ContentType: "image/png", Body: pngHeader})
	require.Error(t, err)
	assert.Empty(t, store.objects)
}

func TestUpload_PrimaryDemotesPrevious(t *testing.T) {
	ctx := context.Background()
	svc, _, images := newTestService(0)

	first, err := svc.Upload(ctx, Upload{VariantID: "v1", ContentType: "image/png", Body: pngHeader, Primary: true})
	require.NoError(t, err)
	second, err := svc.Upload(ctx, Upload{VariantID: "v1", ContentType: "image/png", Body: pngHeader, Primary: true})
	require.NoError(t, err)

	assert.False(t, images.images[first.ID].Primary)
	assert.True(t, images.images[second.ID].Primary)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(0)

	img, err := svc.Upload(ctx, Upload{VariantID: "v1", ContentType: "image/png", Body: pngHeader})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, img.ID))
	assert.NotContains(t, store.objects, img.Key)
	require.ErrorIs(t, svc.Delete(ctx, img.ID), ErrNotFound)
}

func TestDelete_StoreUnavailable(t *testing.T) {
	ctx := context.Background()
	images := &mockImages{images: map[string]*Image{
		"img-1": {ID: "img-1", VariantID: "v1", Key: "products/v1/a.png"},
	}}
	svc := NewService(UnavailableStore{}, images, mockVariants{}, 0)

	require.ErrorIs(t, svc.Delete(ctx, "img-1"), ErrStoreUnavailable)
	assert.Contains(t, images.images, "img-1")

	list, err := svc.List(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestDelete_StoreFailureKeepsRecord(t *testing.T) {
	ctx := context.Background()
	svc, store, images := newTestService(0)

	img, err := svc.Upload(ctx, Upload{VariantID: "v1", ContentType: "image/png", Body: pngHeader})
	require.NoError(t, err)

	store.deleteErr = errors.New("access denied")
	require.Error(t, svc.Delete(ctx, img.ID))
	assert.Contains(t, images.images, img.ID)
	assert.Contains(t, store.objects, img.Key)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "image/png", contentType("", pngHeader))
	assert.Equal(t, "image/jpeg", contentType("Image/JPEG; charset=binary", nil))
	assert.Equal(t, "image/png", contentType("application/octet-stream", pngHeader))
}
