package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"cloud.google.com/go/storage"
)

// GCSStore keeps blobs as objects named Prefix+key in one bucket. Expiry is a
// delete rule on Prefix in the bucket lifecycle, added by NewGCSStore.
// It assumes Application Default Credentials are configured.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore connects to bucket. A positive ttl is rounded up to whole days
// and installed as a lifecycle rule unless one already covers prefix.
func NewGCSStore(ctx context.Context, bucket, prefix string, ttl time.Duration) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if err := ensureGCSExpiry(ctx, client.Bucket(bucket), prefix, ttl); err != nil {
		_ = client.Close()
		return nil, unavailable("ensure lifecycle", "gs://"+bucket, err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStore) objectName(key string) string {
	return s.prefix + key
}

// URI returns the gs:// address of key, for logs.
func (s *GCSStore) URI(key string) string {
	return "gs://" + path.Join(s.bucket, s.objectName(key))
}

func (s *GCSStore) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, notFound(s.URI(key))
	}
	if err != nil {
		return nil, unavailable("open reader", s.URI(key), err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, unavailable("read", s.URI(key), err)
	}
	return data, nil
}

func (s *GCSStore) Delete(ctx context.Context, key string) (bool, error) {
	err := s.client.Bucket(s.bucket).Object(s.objectName(key)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("delete", s.URI(key), err)
	}
	return true, nil
}

// Put ignores ttl; see NewGCSStore.
func (s *GCSStore) Put(ctx context.Context, key string, data []byte, _ time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(s.objectName(key)).NewWriter(ctx)
	w.ContentType = "text/plain"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return unavailable("write", s.URI(key), err)
	}
	if err := w.Close(); err != nil {
		return unavailable("finalize upload", s.URI(key), err)
	}
	return nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

var _ Store = (*GCSStore)(nil)
