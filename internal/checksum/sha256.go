package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// GetFileChecksum returns the hex SHA-256 of the file at filePath. It is the
// file_hash under which the file is staged and correlated.
func GetFileChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	return ReaderChecksum(file)
}

// ReaderChecksum hashes everything read from r.
func ReaderChecksum(r io.Reader) (string, error) {
	hasher := sha256.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("failed to copy content to hasher: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func BytesChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
