package hasher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest_MatchesOneShotSHA256(t *testing.T) {
	data := bytes.Repeat([]byte("Hello, World!"), 20000)
	want := sha256.Sum256(data)

	got, err := Digest(context.Background(), SHA256(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), got)
}

func TestDigest_IndependentOfChunkBoundaries(t *testing.T) {
	data := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x05, 0x08}, ChunkSize/2+7)

	for _, name := range Algorithms() {
		t.Run(name, func(t *testing.T) {
			h, err := ByName(name)
			require.NoError(t, err)

			whole, err := Digest(context.Background(), h, bytes.NewReader(data))
			require.NoError(t, err)
			oneByte, err := Digest(context.Background(), h, iotest.OneByteReader(bytes.NewReader(data)))
			require.NoError(t, err)
			half, err := Digest(context.Background(), h, iotest.HalfReader(bytes.NewReader(data)))
			require.NoError(t, err)

			assert.Equal(t, whole, oneByte)
			assert.Equal(t, whole, half)
			assert.Len(t, whole, 2*h.New().Size())
		})
	}
}

func TestDigest_DiffersAcrossContent(t *testing.T) {
	a, err := Digest(context.Background(), SHA256(), strings.NewReader("Content one"))
	require.NoError(t, err)
	b, err := Digest(context.Background(), SHA256(), strings.NewReader("Content two"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestStream_CopiesToSinkAndCounts(t *testing.T) {
	var sink bytes.Buffer
	digest, n, err := Stream(context.Background(), BLAKE3(), strings.NewReader("payload"), &sink)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "payload", sink.String())
	assert.NotEmpty(t, digest)
}

func TestStream_ReadErrorIsTyped(t *testing.T) {
	boom := errors.New("disk on fire")
	r := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(boom))

	_, n, err := Stream(context.Background(), SHA1(), r, nil)
	require.Error(t, err)
	var readErr *ReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(7), n)
}

func TestStream_WriteErrorIsTyped(t *testing.T) {
	_, _, err := Stream(context.Background(), SHA256(), strings.NewReader("payload"), failingWriter{})
	var writeErr *WriteError
	require.ErrorAs(t, err, &writeErr)
}

func TestStream_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Stream(ctx, SHA256(), strings.NewReader("payload"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestByName(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"", AlgorithmSHA256, false},
		{"SHA256", AlgorithmSHA256, false},
		{"sha1", AlgorithmSHA1, false},
		{" blake2b ", AlgorithmBLAKE2b, false},
		{"blake3", AlgorithmBLAKE3, false},
		{"md5", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := ByName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Algorithm())
		})
	}
}

func TestFixed_IgnoresContent(t *testing.T) {
	h := Fixed([]byte("fake-sha1"))
	a, err := Digest(context.Background(), h, strings.NewReader("Content one"))
	require.NoError(t, err)
	b, err := Digest(context.Background(), h, strings.NewReader("Content three"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, hex.EncodeToString([]byte("fake-sha1")), a)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("no space left") }
