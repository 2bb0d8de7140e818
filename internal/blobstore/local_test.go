package blobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filebox/internal/hasher"
)

func newTestStore(t *testing.T, codecName string) *LocalStore {
	t.Helper()
	codec, err := CodecByName(codecName)
	require.NoError(t, err)
	ls, err := NewLocalStore(t.TempDir(), codec)
	require.NoError(t, err)
	return ls
}

func TestLocalStoreStagePromoteOpenDelete(t *testing.T) {
	for _, codecName := range []string{CodecNone, CodecZstd, CodecLZ4} {
		t.Run(codecName, func(t *testing.T) {
			ls := newTestStore(t, codecName)
			ctx := context.Background()
			data := bytes.Repeat([]byte("Hello, World! "), 10000)

			staged, err := ls.Stage(ctx, bytes.NewReader(data), hasher.SHA256())
			require.NoError(t, err)
			assert.Equal(t, int64(len(data)), staged.SizeBytes)
			assert.Equal(t, hasher.AlgorithmSHA256, staged.Algorithm)
			assert.Len(t, staged.Digest, 64)

			key := ls.KeyFor("bl-ab12cd34")
			assert.True(t, strings.HasPrefix(key, "local/ab/bl-ab12cd34"))
			require.NoError(t, ls.Promote(ctx, staged, key))

			_, err = staged.Open()
			assert.Error(t, err, "staged content must be consumed by promote")
			assert.NoError(t, staged.Discard())

			rc, err := ls.Open(ctx, key)
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, data, got)

			require.NoError(t, ls.Delete(ctx, key))
			require.NoError(t, ls.Delete(ctx, key), "deleting a missing payload is a no-op")
			_, err = ls.Open(ctx, key)
			assert.True(t, errors.Is(err, os.ErrNotExist))
		})
	}
}

func TestLocalStoreCompressesAtRest(t *testing.T) {
	ls := newTestStore(t, CodecZstd)
	ctx := context.Background()
	data := bytes.Repeat([]byte{'a'}, 1<<20)

	staged, err := ls.Stage(ctx, bytes.NewReader(data), hasher.SHA256())
	require.NoError(t, err)
	key := ls.KeyFor("bl-zz000001")
	require.NoError(t, ls.Promote(ctx, staged, key))

	var storedSize int64
	require.NoError(t, ls.Walk(ctx, func(info PayloadInfo) error {
		if info.Key == key {
			storedSize = info.SizeBytes
			assert.False(t, info.ModTime.IsZero())
		}
		return nil
	}))
	assert.Greater(t, storedSize, int64(0))
	assert.Less(t, storedSize, int64(len(data)/10))
}

func TestLocalStorePromoteRefusesExistingKey(t *testing.T) {
	ls := newTestStore(t, CodecNone)
	ctx := context.Background()

	first, err := ls.Stage(ctx, strings.NewReader("one"), hasher.SHA256())
	require.NoError(t, err)
	key := ls.KeyFor("bl-dup00001")
	require.NoError(t, ls.Promote(ctx, first, key))

	second, err := ls.Stage(ctx, strings.NewReader("two"), hasher.SHA256())
	require.NoError(t, err)
	assert.Error(t, ls.Promote(ctx, second, key))
	require.NoError(t, second.Discard())

	rc, err := ls.Open(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "one", string(got))
}

func TestLocalStoreStageFailureLeavesNothingBehind(t *testing.T) {
	ls := newTestStore(t, CodecNone)
	boom := errors.New("client went away")

	_, err := ls.Stage(context.Background(), io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(boom)), hasher.SHA256())
	require.Error(t, err)
	var readErr *hasher.ReadError
	assert.ErrorAs(t, err, &readErr)

	entries, err := os.ReadDir(filepath.Join(ls.root, tmpDirName))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStoreWalkSkipsStaging(t *testing.T) {
	ls := newTestStore(t, CodecNone)
	ctx := context.Background()

	pending, err := ls.Stage(ctx, strings.NewReader("pending"), hasher.SHA256())
	require.NoError(t, err)
	defer pending.Discard()

	var keys []string
	require.NoError(t, ls.Walk(ctx, func(info PayloadInfo) error {
		keys = append(keys, info.Key)
		return nil
	}))
	assert.Empty(t, keys)

	promoted, err := ls.Stage(ctx, strings.NewReader("promoted"), hasher.SHA256())
	require.NoError(t, err)
	require.NoError(t, ls.Promote(ctx, promoted, ls.KeyFor("bl-walk0001")))

	require.NoError(t, ls.Walk(ctx, func(info PayloadInfo) error {
		keys = append(keys, info.Key)
		return nil
	}))
	assert.Equal(t, []string{"local/wa/bl-walk0001"}, keys)
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	ls := newTestStore(t, CodecNone)
	ctx := context.Background()
	for _, key := range []string{"", "/etc/passwd", "../outside", "local/../../x", "tmp/stage-1"} {
		_, err := ls.Open(ctx, key)
		assert.Error(t, err, "key %q", key)
	}
}

func TestCodecByName(t *testing.T) {
	for _, name := range []string{"", "none", "ZSTD", "lz4"} {
		_, err := CodecByName(name)
		assert.NoError(t, err, name)
	}
	_, err := CodecByName("brotli")
	assert.Error(t, err)
}
