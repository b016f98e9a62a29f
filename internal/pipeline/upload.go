package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dvloznov/statement-relay/internal/domain"
	"github.com/dvloznov/statement-relay/internal/logger"
	"github.com/dvloznov/statement-relay/internal/parser"
)

const uploadPattern = "statement-upload-*.txt"

// ParseUpload parses an uploaded extract synchronously. The bytes are spooled
// to a scratch file that is removed on every path.
func ParseUpload(ctx context.Context, r io.Reader) (*domain.StatementRecord, error) {
	log := logger.FromContext(ctx)

	f, err := os.CreateTemp("", uploadPattern)
	if err != nil {
		return nil, fmt.Errorf("ParseUpload: creating scratch file: %w", err)
	}
	path := f.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("path", path).Msg("Failed to remove scratch file")
		}
	}()

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("ParseUpload: spooling upload: %w", err)
	}

	record, err := parser.ParseFile(path)
	if err != nil {
		return nil, err
	}

	log.Debug().Int64("bytes", n).Int("transactions", len(record.Transactions)).Msg("Upload parsed")
	return record, nil
}
