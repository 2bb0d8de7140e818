package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"filebox/internal/models"
)

const blobColumns = "id, digest, digest_algorithm, size_bytes, refcount, storage_backend, payload_key, compression, created_at"

// ErrBlobNotFound is returned when a refcount update matches no blob row.
var ErrBlobNotFound = errors.New("blob not found")

// BlobRefs pairs a blob's recorded refcount with the number of file rows
// that actually point at it.
type BlobRefs struct {
	BlobID   string
	RefCount int64
	Actual   int64
}

// CreateBlobTx inserts a new blob row. The ID is generated when empty and
// RefCount defaults to 1.
func (s *Store) CreateBlobTx(ctx context.Context, tx *Tx, blob *models.Blob) error {
	if blob == nil {
		return fmt.Errorf("blob is required")
	}
	blob.Digest = strings.ToLower(strings.TrimSpace(blob.Digest))
	if blob.Digest == "" {
		return fmt.Errorf("digest is required")
	}
	if strings.TrimSpace(blob.DigestAlgorithm) == "" {
		return fmt.Errorf("digest_algorithm is required")
	}
	if strings.TrimSpace(blob.PayloadKey) == "" {
		return fmt.Errorf("payload_key is required")
	}
	if blob.SizeBytes < 0 {
		return fmt.Errorf("size_bytes must be >= 0")
	}
	if blob.RefCount == 0 {
		blob.RefCount = 1
	}
	if blob.RefCount < 0 {
		return fmt.Errorf("refcount must be > 0")
	}

	if strings.TrimSpace(blob.ID) == "" {
		generated, err := GenerateBlobID(func(id string) (bool, error) {
			return blobIDExistsTx(ctx, tx.tx, id)
		})
		if err != nil {
			return err
		}
		blob.ID = generated
	}
	if strings.TrimSpace(blob.StorageBackend) == "" {
		blob.StorageBackend = "local"
	}
	if strings.TrimSpace(blob.Compression) == "" {
		blob.Compression = "none"
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO blobs (`+blobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, blob.ID, blob.Digest, blob.DigestAlgorithm, blob.SizeBytes, blob.RefCount,
		blob.StorageBackend, blob.PayloadKey, blob.Compression, formatTime(blob.CreatedAt))
	return err
}

// IncrementBlobTx adds n references to a live blob and returns the new count.
// A blob that has already been deleted yields ErrBlobNotFound.
func (s *Store) IncrementBlobTx(ctx context.Context, tx *Tx, id string, n int64) (int64, error) {
	if n <= 0 {
		return 0, fmt.Errorf("increment must be > 0")
	}
	var refcount int64
	err := tx.tx.QueryRowContext(ctx, `
		UPDATE blobs SET refcount = refcount + ?
		WHERE id = ? AND refcount > 0
		RETURNING refcount
	`, n, id).Scan(&refcount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrBlobNotFound
	}
	if err != nil {
		return 0, err
	}
	return refcount, nil
}

// DecrementBlobTx removes n references from a blob. When the count would
// drop to zero or below the row is deleted and deleted is true. The returned
// blob reflects the post-update state.
func (s *Store) DecrementBlobTx(ctx context.Context, tx *Tx, id string, n int64) (_ *models.Blob, deleted bool, err error) {
	if n <= 0 {
		return nil, false, fmt.Errorf("decrement must be > 0")
	}
	blob, err := scanBlob(tx.tx.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id))
	if err != nil {
		return nil, false, err
	}
	if blob == nil {
		return nil, false, ErrBlobNotFound
	}

	remaining := blob.RefCount - n
	if remaining <= 0 {
		if _, err := tx.tx.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", id); err != nil {
			return nil, false, err
		}
		blob.RefCount = 0
		return blob, true, nil
	}

	if _, err := tx.tx.ExecContext(ctx, "UPDATE blobs SET refcount = ? WHERE id = ?", remaining, id); err != nil {
		return nil, false, err
	}
	blob.RefCount = remaining
	return blob, false, nil
}

// SetBlobRefCountTx overwrites a blob's refcount. Used by reconciliation only.
func (s *Store) SetBlobRefCountTx(ctx context.Context, tx *Tx, id string, refcount int64) error {
	if refcount <= 0 {
		return fmt.Errorf("refcount must be > 0")
	}
	res, err := tx.tx.ExecContext(ctx, "UPDATE blobs SET refcount = ? WHERE id = ?", refcount, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBlobNotFound
	}
	return nil
}

// ReconcileBlobTx rewrites a blob's refcount to the number of file rows
// pointing at it, deleting the blob when there are none. The returned blob
// is the state before reconciliation.
func (s *Store) ReconcileBlobTx(ctx context.Context, tx *Tx, id string) (_ *models.Blob, refs BlobRefs, err error) {
	blob, err := scanBlob(tx.tx.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id))
	if err != nil {
		return nil, refs, err
	}
	if blob == nil {
		return nil, refs, ErrBlobNotFound
	}
	refs = BlobRefs{BlobID: id, RefCount: blob.RefCount}
	if err := tx.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE blob_id = ?", id).Scan(&refs.Actual); err != nil {
		return nil, refs, err
	}

	switch {
	case refs.Actual == refs.RefCount:
	case refs.Actual == 0:
		if _, err := tx.tx.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", id); err != nil {
			return nil, refs, err
		}
	default:
		if _, err := tx.tx.ExecContext(ctx, "UPDATE blobs SET refcount = ? WHERE id = ?", refs.Actual, id); err != nil {
			return nil, refs, err
		}
	}
	return blob, refs, nil
}

// DeleteBlobTx removes a blob row regardless of its refcount. Rows still
// referenced by files are refused by the foreign key.
func (s *Store) DeleteBlobTx(ctx context.Context, tx *Tx, id string) error {
	res, err := tx.tx.ExecContext(ctx, "DELETE FROM blobs WHERE id = ?", id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBlobNotFound
	}
	return nil
}

// GetBlob returns one blob, or nil when it does not exist.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+blobColumns+` FROM blobs WHERE id = ?`, id)
	return scanBlob(row)
}

// FindBlobsByDigest yields every blob recorded under the digest. The query
// runs when iteration starts; stopping early releases the cursor.
func (s *Store) FindBlobsByDigest(ctx context.Context, algorithm, digest string) iter.Seq2[models.Blob, error] {
	return func(yield func(models.Blob, error) bool) {
		rows, err := s.db.QueryContext(ctx, `
			SELECT `+blobColumns+` FROM blobs
			WHERE digest_algorithm = ? AND digest = ?
			ORDER BY created_at ASC, id ASC
		`, algorithm, strings.ToLower(digest))
		if err != nil {
			yield(models.Blob{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			blob, err := scanBlob(rows)
			if err != nil {
				yield(models.Blob{}, err)
				return
			}
			if !yield(*blob, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.Blob{}, err)
		}
	}
}

// BlobIDsByDigestTx lists blob ids recorded under the digest as seen by the
// unit of work.
func (s *Store) BlobIDsByDigestTx(ctx context.Context, tx *Tx, algorithm, digest string) ([]string, error) {
	rows, err := tx.tx.QueryContext(ctx, "SELECT id FROM blobs WHERE digest_algorithm = ? AND digest = ?", algorithm, strings.ToLower(digest))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListBlobs returns all blobs, oldest first.
func (s *Store) ListBlobs(ctx context.Context) ([]models.Blob, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+blobColumns+` FROM blobs ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, *blob)
	}
	return blobs, rows.Err()
}

// CountBlobs returns the number of live blobs.
func (s *Store) CountBlobs(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM blobs").Scan(&count)
	return count, err
}

// RefCounts returns the blobs whose recorded refcount differs from the
// number of file rows pointing at them.
func (s *Store) RefCounts(ctx context.Context) ([]BlobRefs, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.refcount, COUNT(f.id)
		FROM blobs b
		LEFT JOIN files f ON f.blob_id = b.id
		GROUP BY b.id, b.refcount
		HAVING b.refcount != COUNT(f.id)
		ORDER BY b.id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drift := []BlobRefs{}
	for rows.Next() {
		var refs BlobRefs
		if err := rows.Scan(&refs.BlobID, &refs.RefCount, &refs.Actual); err != nil {
			return nil, err
		}
		drift = append(drift, refs)
	}
	return drift, rows.Err()
}

// PayloadKeys returns the set of payload keys referenced by blob rows.
func (s *Store) PayloadKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT payload_key FROM blobs")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := map[string]struct{}{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys[key] = struct{}{}
	}
	return keys, rows.Err()
}

// BlobExistsTx reports whether a blob id is taken, as seen by the unit of work.
func (s *Store) BlobExistsTx(ctx context.Context, tx *Tx, id string) (bool, error) {
	return blobIDExistsTx(ctx, tx.tx, id)
}

func blobIDExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var exists int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM blobs WHERE id = ? LIMIT 1", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}
	var createdAt string
	err := scanner.Scan(
		&blob.ID,
		&blob.Digest,
		&blob.DigestAlgorithm,
		&blob.SizeBytes,
		&blob.RefCount,
		&blob.StorageBackend,
		&blob.PayloadKey,
		&blob.Compression,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse blob created_at: %w", err)
	}
	blob.CreatedAt = parsed
	return &blob, nil
}
