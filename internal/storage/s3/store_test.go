package s3

import (
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	puts    map[string][]byte
	types   map[string]string
	deleted []string
	err     error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{puts: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Key)
	f.puts[key] = body
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestPublicBase(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "explicit base",
			cfg:  Config{Bucket: "img", PublicBaseURL: "https://cdn.example.com/"},
			want: "https://cdn.example.com",
		},
		{
			name: "path style endpoint",
			cfg:  Config{Bucket: "img", Endpoint: "http://localhost:9000", UsePathStyle: true},
			want: "http://localhost:9000/img",
		},
		{
			name: "virtual host endpoint",
			cfg:  Config{Bucket: "img", Endpoint: "https://storage.example.com"},
			want: "https://img.storage.example.com",
		},
		{
			name: "aws",
			cfg:  Config{Bucket: "img", Region: "eu-west-1"},
			want: "https://img.s3.eu-west-1.amazonaws.com",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, publicBase(tt.cfg))
		})
	}
}

func TestStore_PutDelete(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	store := NewWithAPI(api, Config{Bucket: "img", PublicBaseURL: "https://cdn.example.com"})

	url, err := store.Put(ctx, "products/v1/a.png", "image/png", []byte("png"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/products/v1/a.png", url)
	assert.Equal(t, []byte("png"), api.puts["products/v1/a.png"])
	assert.Equal(t, "image/png", api.types["products/v1/a.png"])

	require.NoError(t, store.Delete(ctx, "products/v1/a.png"))
	assert.Equal(t, []string{"products/v1/a.png"}, api.deleted)
}

func TestStore_Errors(t *testing.T) {
	api := newFakeAPI()
	api.err = errors.New("access denied")
	store := NewWithAPI(api, Config{Bucket: "img"})

	_, err := store.Put(context.Background(), "k", "image/png", []byte("x"))
	require.ErrorIs(t, err, api.err)
	require.ErrorIs(t, store.Delete(context.Background(), "k"), api.err)
}
