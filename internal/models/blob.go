package models

import "time"

// Blob is one physical content unit shared by every file record with
// byte-identical content. A blob row exists only while RefCount > 0.
type Blob struct {
	ID              string    `json:"id" yaml:"id"`
	Digest          string    `json:"digest" yaml:"digest"`
	DigestAlgorithm string    `json:"digest_algorithm" yaml:"digest_algorithm"`
	SizeBytes       int64     `json:"size_bytes" yaml:"size_bytes"`
	RefCount        int64     `json:"refcount" yaml:"refcount"`
	StorageBackend  string    `json:"storage_backend" yaml:"storage_backend"`
	PayloadKey      string    `json:"payload_key" yaml:"payload_key"`
	Compression     string    `json:"compression" yaml:"compression"`
	CreatedAt       time.Time `json:"created_at" yaml:"created_at"`
}
