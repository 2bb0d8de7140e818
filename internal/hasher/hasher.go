// Package hasher computes content digests over streams without holding the
// whole stream in memory.
package hasher

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// ChunkSize is the read size used when streaming content through a hash.
const ChunkSize = 64 << 10

const (
	AlgorithmSHA1    = "sha1"
	AlgorithmSHA256  = "sha256"
	AlgorithmBLAKE2b = "blake2b"
	AlgorithmBLAKE3  = "blake3"

	DefaultAlgorithm = AlgorithmSHA256
)

// Hasher produces fresh hash states for one digest algorithm.
type Hasher interface {
	Algorithm() string
	New() hash.Hash
}

type funcHasher struct {
	name string
	fn   func() hash.Hash
}

func (h funcHasher) Algorithm() string { return h.name }
func (h funcHasher) New() hash.Hash    { return h.fn() }

// SHA1 returns the SHA-1 hasher.
func SHA1() Hasher { return funcHasher{name: AlgorithmSHA1, fn: sha1.New} }

// SHA256 returns the SHA-256 hasher.
func SHA256() Hasher { return funcHasher{name: AlgorithmSHA256, fn: sha256.New} }

// BLAKE2b returns the unkeyed 256-bit BLAKE2b hasher.
func BLAKE2b() Hasher {
	return funcHasher{name: AlgorithmBLAKE2b, fn: func() hash.Hash {
		h, err := blake2b.New256(nil)
		if err != nil {
			// Only a key longer than 64 bytes fails.
			panic(err)
		}
		return h
	}}
}

// BLAKE3 returns the 256-bit BLAKE3 hasher.
func BLAKE3() Hasher {
	return funcHasher{name: AlgorithmBLAKE3, fn: func() hash.Hash { return blake3.New() }}
}

// Algorithms lists the supported algorithm names.
func Algorithms() []string {
	return []string{AlgorithmSHA1, AlgorithmSHA256, AlgorithmBLAKE2b, AlgorithmBLAKE3}
}

// ByName returns the hasher for a configured algorithm name.
func ByName(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", AlgorithmSHA256:
		return SHA256(), nil
	case AlgorithmSHA1:
		return SHA1(), nil
	case AlgorithmBLAKE2b:
		return BLAKE2b(), nil
	case AlgorithmBLAKE3:
		return BLAKE3(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", name)
	}
}

// ReadError reports a failure reading the source stream.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string { return "read content: " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a failure writing to the sink of Stream.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return "write content: " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

// Digest hashes r chunk by chunk and returns the hex digest.
func Digest(ctx context.Context, h Hasher, r io.Reader) (string, error) {
	digest, _, err := Stream(ctx, h, r, nil)
	return digest, err
}

// Stream hashes r chunk by chunk, copying every chunk to sink when sink is
// not nil. It returns the hex digest and the number of bytes consumed.
func Stream(ctx context.Context, h Hasher, r io.Reader, sink io.Writer) (string, int64, error) {
	if h == nil {
		return "", 0, fmt.Errorf("hasher is required")
	}
	if r == nil {
		return "", 0, fmt.Errorf("reader is required")
	}

	state := h.New()
	buf := make([]byte, ChunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return "", total, err
		}
		n, readErr := r.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			state.Write(chunk)
			if sink != nil {
				if _, err := sink.Write(chunk); err != nil {
					return "", total, &WriteError{Err: err}
				}
			}
			total += int64(n)
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return "", total, &ReadError{Err: readErr}
		}
	}
	return hex.EncodeToString(state.Sum(nil)), total, nil
}
