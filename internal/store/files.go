package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"filebox/internal/models"
)

const fileSelect = `
	SELECT f.id, f.owner, f.name, f.blob_id, b.size_bytes, b.digest, f.created_at
	FROM files f
	JOIN blobs b ON b.id = f.blob_id`

// CreateFileTx inserts a file record pointing at an existing blob. The
// caller is responsible for the reference the record holds.
func (s *Store) CreateFileTx(ctx context.Context, tx *Tx, file *models.FileRecord) error {
	if file == nil {
		return fmt.Errorf("file is required")
	}
	if strings.TrimSpace(file.Owner) == "" {
		return fmt.Errorf("owner is required")
	}
	if strings.TrimSpace(file.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(file.BlobID) == "" {
		return fmt.Errorf("blob_id is required")
	}

	if strings.TrimSpace(file.ID) == "" {
		generated, err := GenerateFileID(func(id string) (bool, error) {
			return fileIDExistsTx(ctx, tx.tx, id)
		})
		if err != nil {
			return err
		}
		file.ID = generated
	}
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}

	_, err := tx.tx.ExecContext(ctx, `
		INSERT INTO files (id, owner, name, blob_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, file.ID, file.Owner, file.Name, file.BlobID, formatTime(file.CreatedAt))
	return err
}

// GetFile returns one file record, or nil when it does not exist.
func (s *Store) GetFile(ctx context.Context, id string) (*models.FileRecord, error) {
	return scanFile(s.db.QueryRowContext(ctx, fileSelect+` WHERE f.id = ?`, id))
}

// GetFileTx reads a file record inside a unit of work.
func (s *Store) GetFileTx(ctx context.Context, tx *Tx, id string) (*models.FileRecord, error) {
	return scanFile(tx.tx.QueryRowContext(ctx, fileSelect+` WHERE f.id = ?`, id))
}

// DeleteFileTx removes a file record and reports whether it existed.
func (s *Store) DeleteFileTx(ctx context.Context, tx *Tx, id string) (bool, error) {
	res, err := tx.tx.ExecContext(ctx, "DELETE FROM files WHERE id = ?", id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListFilesByOwner lists an owner's files, newest first.
func (s *Store) ListFilesByOwner(ctx context.Context, owner string) ([]models.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx, fileSelect+`
		WHERE f.owner = ?
		ORDER BY f.created_at DESC, f.id DESC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files := []models.FileRecord{}
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *file)
	}
	return files, rows.Err()
}

// CountFilesByOwner returns how many files an owner holds.
func (s *Store) CountFilesByOwner(ctx context.Context, owner string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE owner = ?", owner).Scan(&count)
	return count, err
}

// CountFiles returns the total number of file records.
func (s *Store) CountFiles(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files").Scan(&count)
	return count, err
}

// ListOwnersByBlob returns the distinct owners holding a reference on a blob.
func (s *Store) ListOwnersByBlob(ctx context.Context, blobID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT owner FROM files WHERE blob_id = ? ORDER BY owner ASC", blobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owners := []string{}
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// CountFilesForBlob returns how many of an owner's files reference a blob.
func (s *Store) CountFilesForBlob(ctx context.Context, owner, blobID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM files WHERE owner = ? AND blob_id = ?", owner, blobID).Scan(&count)
	return count, err
}

func fileIDExistsTx(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var exists int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM files WHERE id = ? LIMIT 1", id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanFile(scanner interface {
	Scan(dest ...any) error
}) (*models.FileRecord, error) {
	file := models.FileRecord{}
	var createdAt string
	err := scanner.Scan(&file.ID, &file.Owner, &file.Name, &file.BlobID, &file.SizeBytes, &file.Digest, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse file created_at: %w", err)
	}
	file.CreatedAt = parsed
	return &file, nil
}
