package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStorage keeps originals in Google Cloud Storage.
type GCSStorage struct {
	client *storage.Client
}

func NewGCSStorage(ctx context.Context, credentialsFile string) (*GCSStorage, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStorage{client: client}, nil
}

func (g *GCSStorage) Upload(ctx context.Context, bucket, path string, data io.Reader, contentType string) error {
	w := g.client.Bucket(bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gcs object %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gcs object %s: %w", path, err)
	}
	return nil
}

func (g *GCSStorage) Download(ctx context.Context, bucket, path string) (io.ReadCloser, error) {
	r, err := g.client.Bucket(bucket).Object(path).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read gcs object %s: %w", path, err)
	}
	return r, nil
}

func (g *GCSStorage) Delete(ctx context.Context, bucket, path string) error {
	err := g.client.Bucket(bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete gcs object %s: %w", path, err)
	}
	return nil
}

func (g *GCSStorage) Close() error {
	return g.client.Close()
}
