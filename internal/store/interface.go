package store

import (
	"context"
	"iter"

	"filebox/internal/models"
)

// BlobStore abstracts blob row storage.
type BlobStore interface {
	Begin(ctx context.Context) (*Tx, error)
	InTx(ctx context.Context, fn func(tx *Tx) error) error
	CreateBlobTx(ctx context.Context, tx *Tx, blob *models.Blob) error
	IncrementBlobTx(ctx context.Context, tx *Tx, id string, n int64) (int64, error)
	DecrementBlobTx(ctx context.Context, tx *Tx, id string, n int64) (*models.Blob, bool, error)
	SetBlobRefCountTx(ctx context.Context, tx *Tx, id string, refcount int64) error
	ReconcileBlobTx(ctx context.Context, tx *Tx, id string) (*models.Blob, BlobRefs, error)
	DeleteBlobTx(ctx context.Context, tx *Tx, id string) error
	BlobExistsTx(ctx context.Context, tx *Tx, id string) (bool, error)
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	FindBlobsByDigest(ctx context.Context, algorithm, digest string) iter.Seq2[models.Blob, error]
	BlobIDsByDigestTx(ctx context.Context, tx *Tx, algorithm, digest string) ([]string, error)
	ListBlobs(ctx context.Context) ([]models.Blob, error)
	CountBlobs(ctx context.Context) (int, error)
	RefCounts(ctx context.Context) ([]BlobRefs, error)
	PayloadKeys(ctx context.Context) (map[string]struct{}, error)
}

// FileStore abstracts file record storage.
type FileStore interface {
	CreateFileTx(ctx context.Context, tx *Tx, file *models.FileRecord) error
	GetFile(ctx context.Context, id string) (*models.FileRecord, error)
	GetFileTx(ctx context.Context, tx *Tx, id string) (*models.FileRecord, error)
	DeleteFileTx(ctx context.Context, tx *Tx, id string) (bool, error)
	ListFilesByOwner(ctx context.Context, owner string) ([]models.FileRecord, error)
	CountFilesByOwner(ctx context.Context, owner string) (int, error)
	CountFiles(ctx context.Context) (int, error)
	ListOwnersByBlob(ctx context.Context, blobID string) ([]string, error)
	CountFilesForBlob(ctx context.Context, owner, blobID string) (int, error)
}

var (
	_ BlobStore = (*Store)(nil)
	_ FileStore = (*Store)(nil)
)
