package content

import (
	"context"
	"io"
	"iter"
	"log/slog"

	"filebox/internal/blobstore"
	"filebox/internal/hasher"
	"filebox/internal/models"
	"filebox/internal/store"
)

// Store owns physical blobs: their rows, their refcounts and their payloads.
// Every mutation happens inside a caller-supplied unit of work so that blob
// changes commit or roll back together with the file rows that caused them.
type Store struct {
	rows     store.BlobStore
	payloads blobstore.PayloadStore
	logger   *slog.Logger
}

// NewStore builds a content store over blob rows and payload storage.
func NewStore(rows store.BlobStore, payloads blobstore.PayloadStore, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		rows:     rows,
		payloads: payloads,
		logger:   logger.With("component", "content"),
	}
}

// Rows exposes the blob row store the content store writes to.
func (s *Store) Rows() store.BlobStore {
	return s.rows
}

// Payloads exposes the payload store.
func (s *Store) Payloads() blobstore.PayloadStore {
	return s.payloads
}

// Stage spools and hashes an incoming stream.
func (s *Store) Stage(ctx context.Context, r io.Reader, h hasher.Hasher) (*blobstore.Staged, error) {
	staged, err := s.payloads.Stage(ctx, r, h)
	if err != nil {
		return nil, classify("stage content", err)
	}
	return staged, nil
}

// Create persists staged content as a new blob with refcount 1. The payload
// is durable before the row is written; if the unit of work does not commit
// the payload is removed again.
func (s *Store) Create(ctx context.Context, tx *store.Tx, staged *blobstore.Staged) (*models.Blob, error) {
	id, err := store.GenerateBlobID(func(id string) (bool, error) {
		return s.rows.BlobExistsTx(ctx, tx, id)
	})
	if err != nil {
		return nil, classify("create blob", err)
	}

	key := s.payloads.KeyFor(id)
	if err := s.payloads.Promote(ctx, staged, key); err != nil {
		return nil, classify("create blob", err)
	}
	tx.AfterRollback(func() {
		s.deletePayload(context.WithoutCancel(ctx), id, key)
	})

	blob := &models.Blob{
		ID:              id,
		Digest:          staged.Digest,
		DigestAlgorithm: staged.Algorithm,
		SizeBytes:       staged.SizeBytes,
		RefCount:        1,
		StorageBackend:  s.payloads.Backend(),
		PayloadKey:      key,
		Compression:     s.payloads.Codec().Name(),
	}
	if err := s.rows.CreateBlobTx(ctx, tx, blob); err != nil {
		return nil, classify("create blob", err)
	}
	return blob, nil
}

// FindByDigest lazily yields every blob recorded under digest.
func (s *Store) FindByDigest(ctx context.Context, algorithm, digest string) iter.Seq2[models.Blob, error] {
	return func(yield func(models.Blob, error) bool) {
		for blob, err := range s.rows.FindBlobsByDigest(ctx, algorithm, digest) {
			if err != nil {
				yield(models.Blob{}, classify("find blobs", err))
				return
			}
			if !yield(blob, nil) {
				return
			}
		}
	}
}

// Increment adds n references to a blob. ErrBlobGone is returned when the
// blob was deleted after it was looked up.
func (s *Store) Increment(ctx context.Context, tx *store.Tx, id string, n int64) (int64, error) {
	count, err := s.rows.IncrementBlobTx(ctx, tx, id, n)
	if err != nil {
		return 0, classify("increment blob", err)
	}
	return count, nil
}

// Decrement removes n references from a blob and reports whether the blob
// was deleted. The payload of a deleted blob is unlinked once the unit of
// work commits.
func (s *Store) Decrement(ctx context.Context, tx *store.Tx, id string, n int64) (bool, error) {
	blob, deleted, err := s.rows.DecrementBlobTx(ctx, tx, id, n)
	if err != nil {
		return false, classify("decrement blob", err)
	}
	if deleted {
		key := blob.PayloadKey
		tx.AfterCommit(func() {
			s.deletePayload(context.WithoutCancel(ctx), id, key)
		})
	}
	return deleted, nil
}

// Reconcile resets a blob's refcount to its actual number of file
// references. A blob with none is deleted and its payload unlinked after
// commit.
func (s *Store) Reconcile(ctx context.Context, tx *store.Tx, id string) (store.BlobRefs, bool, error) {
	blob, refs, err := s.rows.ReconcileBlobTx(ctx, tx, id)
	if err != nil {
		return refs, false, classify("reconcile blob", err)
	}
	deleted := refs.Actual == 0
	if deleted {
		key := blob.PayloadKey
		tx.AfterCommit(func() {
			s.deletePayload(context.WithoutCancel(ctx), id, key)
		})
	}
	return refs, deleted, nil
}

// Get returns a blob, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*models.Blob, error) {
	blob, err := s.rows.GetBlob(ctx, id)
	if err != nil {
		return nil, classify("get blob", err)
	}
	if blob == nil {
		return nil, E("get blob", ErrNotFound, nil)
	}
	return blob, nil
}

// Open returns the decoded payload of a blob.
func (s *Store) Open(ctx context.Context, blob *models.Blob) (io.ReadCloser, error) {
	rc, err := s.payloads.Open(ctx, blob.PayloadKey)
	if err != nil {
		return nil, classify("open payload", err)
	}
	return rc, nil
}

// deletePayload unlinks a payload that no blob row references any more. A
// failure leaves an orphan file for the consistency check to sweep.
func (s *Store) deletePayload(ctx context.Context, blobID, key string) {
	if err := s.payloads.Delete(ctx, key); err != nil {
		s.logger.Warn("payload unlink failed", "blob_id", blobID, "payload_key", key, "error", err)
		return
	}
	s.logger.Debug("payload unlinked", "blob_id", blobID, "payload_key", key)
}
