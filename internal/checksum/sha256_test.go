package checksum

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sha256("abc")
const abcDigest = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

func TestBytesChecksum(t *testing.T) {
	assert.Equal(t, abcDigest, BytesChecksum([]byte("abc")))
}

func TestReaderChecksum(t *testing.T) {
	got, err := ReaderChecksum(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, abcDigest, got)
}

func TestGetFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	got, err := GetFileChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, abcDigest, got)

	_, err = GetFileChecksum(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
