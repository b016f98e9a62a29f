package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/dvloznov/statement-relay/internal/blobstore"
	"github.com/dvloznov/statement-relay/internal/jobs"
	"github.com/dvloznov/statement-relay/internal/logger"
	"github.com/dvloznov/statement-relay/internal/parser"
)

// Source variants, as reported in logs and run reports.
const (
	VariantInline     = "inline"
	VariantReferenced = "referenced"
)

// ErrNoPayload rejects a message that neither embeds the file nor points at
// a staged copy of it.
var ErrNoPayload = errors.New("message has no file content and no blob reference")

// Source yields the raw bytes of one statement extract and cleans up after
// them.
type Source interface {
	Variant() string

	// Materialize returns the extract bytes.
	Materialize(ctx context.Context) ([]byte, error)

	// Release frees any transient storage behind the bytes. It never fails
	// the caller; problems are logged.
	Release(ctx context.Context)
}

// NewSource picks the variant carried by msg. Inline content wins when a
// message carries both.
func NewSource(msg *jobs.FileMessage, store blobstore.Store) (Source, error) {
	switch {
	case msg.HasInlineContent():
		return &InlineSource{content: msg.FileContent}, nil
	case msg.HasReference():
		if msg.FileHash == "" {
			return nil, fmt.Errorf("%w: referenced message without file_hash", ErrNoPayload)
		}
		return NewStoreSource(store, msg.FileHash), nil
	default:
		return nil, ErrNoPayload
	}
}

// InlineSource decodes base64 content carried in the message itself.
type InlineSource struct {
	content string
}

func NewInlineSource(content string) *InlineSource {
	return &InlineSource{content: content}
}

func (s *InlineSource) Variant() string { return VariantInline }

func (s *InlineSource) Materialize(ctx context.Context) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s.content)
	if err != nil {
		return nil, fmt.Errorf("%w: file_content is not valid base64: %v", parser.ErrMalformedInput, err)
	}
	return data, nil
}

func (s *InlineSource) Release(ctx context.Context) {}

// StoreSource fetches a staged blob by key and deletes it on release.
type StoreSource struct {
	store blobstore.Store
	key   string
	once  sync.Once
}

func NewStoreSource(store blobstore.Store, key string) *StoreSource {
	return &StoreSource{store: store, key: key}
}

func (s *StoreSource) Variant() string { return VariantReferenced }

func (s *StoreSource) Key() string { return s.key }

func (s *StoreSource) Materialize(ctx context.Context) ([]byte, error) {
	if s.store == nil {
		return nil, fmt.Errorf("%w: no blob store configured", blobstore.ErrUnavailable)
	}
	data, err := s.store.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("materialize %s: %w", s.key, err)
	}
	return data, nil
}

// Release deletes the blob at most once per source. The delete runs even when
// ctx is already cancelled, since release usually follows a failed or aborted
// unit of work.
func (s *StoreSource) Release(ctx context.Context) {
	s.once.Do(func() {
		if s.store == nil {
			return
		}
		log := logger.FromContext(ctx)

		existed, err := s.store.Delete(context.WithoutCancel(ctx), s.key)
		switch {
		case err != nil:
			log.Error().Err(err).Str("blob_key", s.key).Msg("Failed to release blob; relying on TTL")
		case !existed:
			log.Warn().Str("blob_key", s.key).Msg("Blob already gone at release")
		default:
			log.Debug().Str("blob_key", s.key).Msg("Blob released")
		}
	})
}
