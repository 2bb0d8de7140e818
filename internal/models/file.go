package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxFileNameBytes = 256
	MaxOwnerBytes    = 150
)

// FileRecord is a user-owned logical file. Many records may point at the
// same blob; each live record holds exactly one reference on it.
type FileRecord struct {
	ID        string    `json:"id" yaml:"id"`
	Owner     string    `json:"owner" yaml:"owner"`
	Name      string    `json:"name" yaml:"name"`
	BlobID    string    `json:"blob_id" yaml:"blob_id"`
	SizeBytes int64     `json:"size_bytes" yaml:"size_bytes"`
	Digest    string    `json:"digest,omitempty" yaml:"digest,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// ParseOwner normalizes a principal identity.
func ParseOwner(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("owner is required")
	}
	if len(value) > MaxOwnerBytes {
		return "", fmt.Errorf("owner must be at most %d bytes", MaxOwnerBytes)
	}
	if strings.ContainsFunc(value, isControl) {
		return "", fmt.Errorf("owner contains control characters")
	}
	return value, nil
}

// ParseFileName normalizes a display filename. Any directory part is
// rejected rather than silently stripped.
func ParseFileName(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("file name is required")
	}
	if !utf8.ValidString(value) {
		return "", fmt.Errorf("file name must be valid utf-8")
	}
	if len(value) > MaxFileNameBytes {
		return "", fmt.Errorf("file name must be at most %d bytes", MaxFileNameBytes)
	}
	if strings.ContainsAny(value, `/\`) {
		return "", fmt.Errorf("file name must not contain path separators")
	}
	if value == "." || value == ".." {
		return "", fmt.Errorf("invalid file name")
	}
	if strings.ContainsFunc(value, isControl) {
		return "", fmt.Errorf("file name contains control characters")
	}
	return value, nil
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
