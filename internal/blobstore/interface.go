package blobstore

import (
	"context"
	"io"
	"time"

	"filebox/internal/hasher"
)

// PayloadStore is the byte-storage abstraction behind the content store.
//
// Payloads are immutable once promoted: they are written once, read any
// number of times, and deleted when their blob row is gone.
type PayloadStore interface {
	// Stage spools r to private scratch space while hashing it.
	Stage(ctx context.Context, r io.Reader, h hasher.Hasher) (*Staged, error)
	// KeyFor returns the payload key a blob id is stored under.
	KeyFor(blobID string) string
	// Promote makes staged bytes durable under key.
	Promote(ctx context.Context, staged *Staged, key string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// Walk calls fn for every promoted payload.
	Walk(ctx context.Context, fn func(info PayloadInfo) error) error
	Backend() string
	Codec() Codec
}

// PayloadInfo describes one stored payload. SizeBytes is the size at rest,
// after encoding.
type PayloadInfo struct {
	Key       string
	SizeBytes int64
	ModTime   time.Time
}
