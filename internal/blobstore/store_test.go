package blobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvloznov/statement-relay/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is an in-process stand-in for the redis client.
type fakeRedis struct {
	data    map[string]string
	ttls    map[string]time.Duration
	failErr error
	closed  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if f.failErr != nil {
		return redis.NewStringResult("", f.failErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.failErr != nil {
		return redis.NewStatusResult("", f.failErr)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.failErr != nil {
		return redis.NewIntResult(0, f.failErr)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

func TestRedisStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	s := newRedisStore(fake, "blob:")

	require.NoError(t, s.Put(ctx, "abc123", []byte("1|x|y|1"), time.Hour))
	assert.Contains(t, fake.data, "blob:abc123")
	assert.Equal(t, time.Hour, fake.ttls["blob:abc123"])

	got, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, []byte("1|x|y|1"), got)

	existed, err := s.Delete(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.Get(ctx, "abc123")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Close())
	assert.True(t, fake.closed)
}

func TestRedisStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	fake.failErr = errors.New("dial tcp: connection refused")
	s := newRedisStore(fake, "blob:")

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "blob:k")

	_, err = s.Delete(ctx, "k")
	assert.ErrorIs(t, err, ErrUnavailable)

	err = s.Put(ctx, "k", []byte("x"), time.Minute)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestMinioErrorClassification(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	assert.True(t, isMinioNotFound(missing))
	assert.ErrorIs(t, classifyMinio("get", "blob:x", missing), ErrNotFound)

	denied := minio.ErrorResponse{Code: "AccessDenied"}
	assert.False(t, isMinioNotFound(denied))
	assert.ErrorIs(t, classifyMinio("get", "blob:x", denied), ErrUnavailable)

	assert.ErrorIs(t, classifyMinio("read", "blob:x", errors.New("reset by peer")), ErrUnavailable)
}

func TestGCSStore_Naming(t *testing.T) {
	s := &GCSStore{bucket: "staging", prefix: "blob:"}
	assert.Equal(t, "blob:abc", s.objectName("abc"))
	assert.Equal(t, "gs://staging/blob:abc", s.URI("abc"))
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.Blob{Backend: "tape"})
	assert.Error(t, err)
}
