package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"filebox/internal/blobstore"
	"filebox/internal/hasher"
	"filebox/internal/models"
	"filebox/internal/store"
)

// DefaultResolveAttempts bounds how often Resolve restarts after losing a race.
const DefaultResolveAttempts = 5

// errRescan signals that a new candidate appeared between the scan and the
// write lock, so the scan has to be repeated.
var errRescan = errors.New("new candidate blob appeared")

// LinkFunc records the reference a resolved blob was acquired for. It runs
// in the same unit of work as the increment or create.
type LinkFunc func(tx *store.Tx, blob *models.Blob) error

// Resolution describes the blob a stream was resolved to.
type Resolution struct {
	Blob     models.Blob
	Reused   bool
	Attempts int
}

// Resolver finds a byte-identical blob for an incoming stream or creates one.
// Digests only narrow the search: a candidate is reused only after a full
// byte comparison.
type Resolver struct {
	store    *Store
	hasher   hasher.Hasher
	attempts int
	logger   *slog.Logger
}

// NewResolver builds a resolver. attempts <= 0 selects DefaultResolveAttempts.
func NewResolver(contentStore *Store, h hasher.Hasher, attempts int, logger *slog.Logger) *Resolver {
	if h == nil {
		h = hasher.SHA256()
	}
	if attempts <= 0 {
		attempts = DefaultResolveAttempts
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:    contentStore,
		hasher:   h,
		attempts: attempts,
		logger:   logger.With("component", "resolver"),
	}
}

// Hasher returns the digest algorithm the resolver uses.
func (r *Resolver) Hasher() hasher.Hasher {
	return r.hasher
}

// Resolve reads the stream, acquires one reference on a blob holding exactly
// its bytes and calls link inside the same unit of work. size < 0 means the
// length is unknown; otherwise a stream of a different length is rejected
// as truncated. Nothing is committed when Resolve fails.
func (r *Resolver) Resolve(ctx context.Context, stream io.Reader, size int64, link LinkFunc) (*Resolution, error) {
	staged, err := r.store.Stage(ctx, stream, r.hasher)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := staged.Discard(); err != nil {
			r.logger.Warn("discard staged content", "error", err)
		}
	}()

	if size >= 0 && staged.SizeBytes != size {
		return nil, E("resolve", ErrIO, fmt.Errorf("declared %d bytes, received %d", size, staged.SizeBytes))
	}

	for attempt := 1; attempt <= r.attempts; attempt++ {
		match, scanned, err := r.scan(ctx, staged)
		if err != nil {
			return nil, err
		}

		blob, err := r.commit(ctx, staged, match, scanned, link)
		if errors.Is(err, ErrBlobGone) || errors.Is(err, errRescan) {
			r.logger.Debug("resolve raced, retrying", "digest", staged.Digest, "attempt", attempt, "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}

		if match != nil {
			r.logger.Debug("blob reused", "blob_id", blob.ID, "digest", blob.Digest, "refcount", blob.RefCount)
		} else {
			r.logger.Debug("blob created", "blob_id", blob.ID, "digest", blob.Digest, "size_bytes", blob.SizeBytes)
		}
		return &Resolution{Blob: *blob, Reused: match != nil, Attempts: attempt}, nil
	}

	return nil, E("resolve", ErrStorage, fmt.Errorf("gave up after %d attempts", r.attempts))
}

// scan looks for a candidate whose payload equals the staged bytes. It holds
// no lock: payloads are immutable, and a candidate deleted meanwhile is
// simply skipped. scanned holds every candidate id that was considered.
func (r *Resolver) scan(ctx context.Context, staged *blobstore.Staged) (*models.Blob, map[string]struct{}, error) {
	scanned := map[string]struct{}{}
	for candidate, err := range r.store.FindByDigest(ctx, staged.Algorithm, staged.Digest) {
		if err != nil {
			return nil, nil, err
		}
		scanned[candidate.ID] = struct{}{}
		if candidate.SizeBytes != staged.SizeBytes {
			continue
		}

		same, err := r.compare(ctx, staged, &candidate)
		if err != nil {
			return nil, nil, err
		}
		if same {
			return &candidate, scanned, nil
		}
		r.logger.Info("digest collision", "digest", staged.Digest, "candidate", candidate.ID)
	}
	return nil, scanned, nil
}

func (r *Resolver) compare(ctx context.Context, staged *blobstore.Staged, candidate *models.Blob) (bool, error) {
	payload, err := r.store.Open(ctx, candidate)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer payload.Close()

	local, err := staged.Open()
	if err != nil {
		return false, E("compare content", ErrStorage, err)
	}
	defer local.Close()

	same, err := equalContent(ctx, local, payload)
	if err != nil {
		return false, classify("compare content", err)
	}
	return same, nil
}

// commit acquires the reference under the write lock: it increments match,
// or creates a new blob when no candidate matched and none appeared since
// the scan.
func (r *Resolver) commit(ctx context.Context, staged *blobstore.Staged, match *models.Blob, scanned map[string]struct{}, link LinkFunc) (*models.Blob, error) {
	rows := r.store.Rows()
	tx, err := rows.Begin(ctx)
	if err != nil {
		return nil, classify("begin resolve", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var blob *models.Blob
	if match != nil {
		count, err := r.store.Increment(ctx, tx, match.ID, 1)
		if err != nil {
			return nil, err
		}
		reused := *match
		reused.RefCount = count
		blob = &reused
	} else {
		current, err := rows.BlobIDsByDigestTx(ctx, tx, staged.Algorithm, staged.Digest)
		if err != nil {
			return nil, classify("check candidates", err)
		}
		for _, id := range current {
			if _, ok := scanned[id]; !ok {
				return nil, errRescan
			}
		}
		blob, err = r.store.Create(ctx, tx, staged)
		if err != nil {
			return nil, err
		}
	}

	if link != nil {
		if err := link(tx, blob); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		committed = true
		return nil, classify("commit resolve", err)
	}
	committed = true
	return blob, nil
}
