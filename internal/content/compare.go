package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"filebox/internal/hasher"
)

// equalContent reports whether a and b yield exactly the same bytes. Each
// side fills its own buffer with io.ReadFull, so both buffers always cover
// the same offset range no matter how the underlying readers split their
// reads.
func equalContent(ctx context.Context, a, b io.Reader) (bool, error) {
	bufA := make([]byte, hasher.ChunkSize)
	bufB := make([]byte, hasher.ChunkSize)
	var offset int64

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		na, errA := io.ReadFull(a, bufA)
		if errA != nil && !isEOF(errA) {
			return false, fmt.Errorf("read at offset %d: %w", offset, errA)
		}
		nb, errB := io.ReadFull(b, bufB)
		if errB != nil && !isEOF(errB) {
			return false, fmt.Errorf("read at offset %d: %w", offset, errB)
		}

		if na != nb || !bytes.Equal(bufA[:na], bufB[:nb]) {
			return false, nil
		}
		offset += int64(na)

		endA, endB := errA != nil, errB != nil
		if endA != endB {
			return false, nil
		}
		if endA {
			return true, nil
		}
	}
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
