package blobstore

import (
	"errors"
	"io"
	"os"
)

// Staged is an uploaded stream spooled to local scratch space. It gives the
// resolver random access to the full content without buffering it in memory.
type Staged struct {
	path      string
	Digest    string
	Algorithm string
	SizeBytes int64
	consumed  bool
}

// Open returns a fresh reader over the staged bytes.
func (s *Staged) Open() (io.ReadCloser, error) {
	if s == nil || s.consumed {
		return nil, errors.New("staged content is no longer available")
	}
	return os.Open(s.path)
}

// Discard removes the staged bytes. It is a no-op once the content has been
// promoted or already discarded.
func (s *Staged) Discard() error {
	if s == nil || s.consumed {
		return nil
	}
	s.consumed = true
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
