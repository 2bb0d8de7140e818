package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filebox/internal/hasher"
)

const (
	localBackend = "local"
	tmpDirName   = "tmp"
)

// LocalStore stores payload bytes in a local directory tree keyed by blob id.
type LocalStore struct {
	root  string
	codec Codec
}

// NewLocalStore creates a local payload store rooted at root.
func NewLocalStore(root string, codec Codec) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("local payload root is required")
	}
	if codec == nil {
		codec = noneCodec{}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, tmpDirName), 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{root: abs, codec: codec}, nil
}

// Backend names the storage backend recorded on blob rows.
func (l *LocalStore) Backend() string { return localBackend }

// Root returns the directory payloads are stored under.
func (l *LocalStore) Root() string { return l.root }

// Codec returns the codec new payloads are written with.
func (l *LocalStore) Codec() Codec { return l.codec }

// Stage spools r into the tmp area, hashing it on the way, and fsyncs it.
func (l *LocalStore) Stage(ctx context.Context, r io.Reader, h hasher.Hasher) (*Staged, error) {
	if l == nil {
		return nil, fmt.Errorf("payload store is not configured")
	}
	if r == nil {
		return nil, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Join(l.root, tmpDirName), "stage-*")
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	digest, n, err := hasher.Stream(ctx, h, r, tmp)
	if err != nil {
		cleanup()
		return nil, err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, err
	}

	return &Staged{path: tmpPath, Digest: digest, Algorithm: h.Algorithm(), SizeBytes: n}, nil
}

// KeyFor returns the payload key for a blob id.
func (l *LocalStore) KeyFor(blobID string) string {
	shard := "00"
	trimmed := strings.TrimPrefix(blobID, "bl-")
	if len(trimmed) >= 2 {
		shard = trimmed[0:2]
	}
	return fmt.Sprintf("%s/%s/%s%s", localBackend, shard, blobID, l.codec.Extension())
}

// Promote moves staged bytes to key, encoding them with the store codec.
// The payload is fsynced, together with its directory, before Promote
// returns.
func (l *LocalStore) Promote(ctx context.Context, staged *Staged, key string) error {
	if l == nil {
		return fmt.Errorf("payload store is not configured")
	}
	if staged == nil || staged.consumed {
		return fmt.Errorf("staged content is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dst, err := l.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("payload %s already exists", key)
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	src := staged.path
	if l.codec.Name() != CodecNone {
		encoded, err := l.encode(staged.path)
		if err != nil {
			return err
		}
		src = encoded
	}

	if err := os.Rename(src, dst); err != nil {
		if src != staged.path {
			_ = os.Remove(src)
		}
		return err
	}
	if src == staged.path {
		staged.consumed = true
	} else {
		_ = staged.Discard()
	}
	return syncDir(filepath.Dir(dst))
}

func (l *LocalStore) encode(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Join(l.root, tmpDirName), "encode-*")
	if err != nil {
		return "", err
	}
	outPath := out.Name()
	fail := func(err error) (string, error) {
		_ = out.Close()
		_ = os.Remove(outPath)
		return "", err
	}

	w, err := l.codec.NewWriter(out)
	if err != nil {
		return fail(err)
	}
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		return fail(err)
	}
	if err := w.Close(); err != nil {
		return fail(err)
	}
	if err := out.Sync(); err != nil {
		return fail(err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(outPath)
		return "", err
	}
	return outPath, nil
}

// Open returns a reader over the decoded payload stored under key.
func (l *LocalStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if l == nil {
		return nil, fmt.Errorf("payload store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.pathFromKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := codecForKey(key).NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &payloadReader{ReadCloser: dec, file: f}, nil
}

// Delete removes a payload. Missing files are ignored.
func (l *LocalStore) Delete(ctx context.Context, key string) error {
	if l == nil {
		return fmt.Errorf("payload store is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.pathFromKey(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Walk visits every promoted payload. Staging files are skipped.
func (l *LocalStore) Walk(ctx context.Context, fn func(info PayloadInfo) error) error {
	if l == nil {
		return fmt.Errorf("payload store is not configured")
	}
	base := filepath.Join(l.root, localBackend)
	err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == base {
				return fs.SkipDir
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		return fn(PayloadInfo{Key: filepath.ToSlash(rel), SizeBytes: info.Size(), ModTime: info.ModTime()})
	})
	if errors.Is(err, fs.SkipDir) {
		return nil
	}
	return err
}

func (l *LocalStore) pathFromKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("payload key is required")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("payload key must be relative")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || strings.Contains(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid payload key")
	}
	if clean == tmpDirName || strings.HasPrefix(clean, tmpDirName+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid payload key")
	}
	return filepath.Join(l.root, clean), nil
}

type payloadReader struct {
	io.ReadCloser
	file *os.File
}

func (p *payloadReader) Close() error {
	err := p.ReadCloser.Close()
	if closeErr := p.file.Close(); err == nil {
		err = closeErr
	}
	return err
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return err
	}
	return nil
}
