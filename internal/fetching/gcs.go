package fetching

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
)

// GCSReader reads documents from Google Cloud Storage
type GCSReader struct {
	client *storage.Client
}

// NewGCSReader creates a storage client using application default credentials
func NewGCSReader(ctx context.Context) (*GCSReader, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return &GCSReader{client: client}, nil
}

// ReadObject implements ObjectReader
func (g *GCSReader) ReadObject(ctx context.Context, bucket, object string, limit int64) ([]byte, string, error) {
	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, "", &Error{Kind: HTTPStatus, StatusCode: http.StatusNotFound, Err: err}
	}
	if err != nil {
		return nil, "", fmt.Errorf("opening gs://%s/%s: %w", bucket, object, err)
	}
	defer r.Close()

	if r.Attrs.Size > limit {
		return nil, "", &Error{Kind: TooLarge, Err: fmt.Errorf("object size %d exceeds %d bytes", r.Attrs.Size, limit)}
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading gs://%s/%s: %w", bucket, object, err)
	}
	if int64(len(data)) > limit {
		return nil, "", &Error{Kind: TooLarge, Err: fmt.Errorf("object exceeds %d bytes", limit)}
	}
	return data, r.Attrs.ContentType, nil
}

// Close closes the storage client
func (g *GCSReader) Close() error {
	return g.client.Close()
}
