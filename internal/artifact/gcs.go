package artifact

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSStore writes artifacts to a Cloud Storage bucket. Objects are expected
// to be publicly readable through baseURL.
type GCSStore struct {
	bucket  *storage.BucketHandle
	baseURL string
}

func NewGCSStore(client *storage.Client, bucket, baseURL string) *GCSStore {
	return &GCSStore{bucket: client.Bucket(bucket), baseURL: baseURL}
}

func (s *GCSStore) Put(ctx context.Context, name string, data []byte, contentType string) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid artifact name %q", name)
	}
	w := s.bucket.Object(name).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "no-cache"
	w.Metadata = map[string]string{"blake3": Digest(data)}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close object %s: %w", name, err)
	}
	return nil
}

func (s *GCSStore) URL(name string) string {
	return joinURL(s.baseURL, name)
}
