package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const minioNoSuchKey = "NoSuchKey"

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Prefix    string
	// TTL becomes a whole-day expiry rule on Prefix; zero leaves the bucket
	// lifecycle alone.
	TTL time.Duration
}

// MinioStore keeps blobs as objects named Prefix+key in one bucket. The
// bucket and its expiry rule are set up on first connect.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMinioStore(ctx context.Context, opts MinioOptions) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client init: %w", err)
	}

	if err := ensureBucket(ctx, client, opts.Bucket, opts.Prefix, opts.TTL); err != nil {
		return nil, unavailable("ensure bucket", opts.Bucket, err)
	}

	return &MinioStore{client: client, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket, prefix string, ttl time.Duration) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("creating bucket: %w", err)
		}
	}
	return ensureMinioExpiry(ctx, client, bucket, prefix, ttl)
}

func (s *MinioStore) objectName(key string) string {
	return s.prefix + key
}

func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	name := s.objectName(key)

	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinio("get", name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, classifyMinio("read", name, err)
	}
	return data, nil
}

// Delete stats the object first because S3 removal succeeds for absent keys.
func (s *MinioStore) Delete(ctx context.Context, key string) (bool, error) {
	name := s.objectName(key)

	if _, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{}); err != nil {
		if isMinioNotFound(err) {
			return false, nil
		}
		return false, unavailable("stat", name, err)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return false, unavailable("remove", name, err)
	}
	return true, nil
}

// Put ignores ttl; objects expire through the bucket rule set by NewMinioStore.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, _ time.Duration) error {
	name := s.objectName(key)

	_, err := s.client.PutObject(ctx, s.bucket, name,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "text/plain"},
	)
	if err != nil {
		return unavailable("put", name, err)
	}
	return nil
}

// Close is a no-op; the minio client holds no long-lived connection.
func (s *MinioStore) Close() error {
	return nil
}

func isMinioNotFound(err error) bool {
	return minio.ToErrorResponse(err).Code == minioNoSuchKey
}

func classifyMinio(op, name string, err error) error {
	if isMinioNotFound(err) {
		return notFound(name)
	}
	return unavailable(op, name, err)
}

var _ Store = (*MinioStore)(nil)
