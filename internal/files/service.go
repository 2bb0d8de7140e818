package files

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"filebox/internal/blobstore"
	"filebox/internal/content"
	"filebox/internal/hasher"
	"filebox/internal/models"
	"filebox/internal/store"
)

const (
	defaultCheckWorkers = 4
	defaultOrphanGrace  = time.Hour
)

// Ledger is the row storage the service coordinates.
type Ledger interface {
	store.BlobStore
	store.FileStore
}

// Options tunes a Service.
type Options struct {
	// ResolveAttempts bounds resolver retries after lost races.
	ResolveAttempts int
	// CheckWorkers bounds parallel payload verification.
	CheckWorkers int
	// OrphanGrace is how old an unreferenced payload must be before a
	// repairing check removes it. Younger ones may belong to an upload
	// that has not committed yet.
	OrphanGrace time.Duration
}

// Service ties file records to the blobs they reference so that a blob's
// refcount always equals the number of records pointing at it.
type Service struct {
	ledger   Ledger
	content  *content.Store
	resolver *content.Resolver
	logger   *slog.Logger

	checkWorkers int
	orphanGrace  time.Duration
}

// Download is an open file payload together with its metadata.
type Download struct {
	Reader    io.ReadCloser
	Name      string
	SizeBytes int64
	Digest    string
}

// New builds a Service.
func New(ledger Ledger, payloads blobstore.PayloadStore, h hasher.Hasher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CheckWorkers <= 0 {
		opts.CheckWorkers = defaultCheckWorkers
	}
	if opts.OrphanGrace <= 0 {
		opts.OrphanGrace = defaultOrphanGrace
	}
	contentStore := content.NewStore(ledger, payloads, logger)
	return &Service{
		ledger:       ledger,
		content:      contentStore,
		resolver:     content.NewResolver(contentStore, h, opts.ResolveAttempts, logger),
		logger:       logger.With("component", "files"),
		checkWorkers: opts.CheckWorkers,
		orphanGrace:  opts.OrphanGrace,
	}
}

// ResolveAndStore stores r as a new file for owner. Identical content
// already held by anyone is shared rather than written again. declaredSize
// < 0 means the size is unknown.
func (s *Service) ResolveAndStore(ctx context.Context, owner, name string, r io.Reader, declaredSize int64) (models.FileRecord, error) {
	var zero models.FileRecord
	owner, err := models.ParseOwner(owner)
	if err != nil {
		return zero, content.E("store file", content.ErrInvalid, err)
	}
	name, err = models.ParseFileName(name)
	if err != nil {
		return zero, content.E("store file", content.ErrInvalid, err)
	}
	if r == nil {
		return zero, content.E("store file", content.ErrInvalid, errors.New("content is required"))
	}

	var file models.FileRecord
	res, err := s.resolver.Resolve(ctx, r, declaredSize, func(tx *store.Tx, blob *models.Blob) error {
		file = models.FileRecord{Owner: owner, Name: name, BlobID: blob.ID}
		if err := s.ledger.CreateFileTx(ctx, tx, &file); err != nil {
			return content.E("create file record", content.ErrStorage, err)
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("file store failed", "owner", owner, "name", name, "error", err)
		return zero, err
	}

	file.SizeBytes = res.Blob.SizeBytes
	file.Digest = res.Blob.Digest
	s.logger.Info("file stored",
		"file_id", file.ID,
		"owner", owner,
		"name", name,
		"blob_id", res.Blob.ID,
		"reused", res.Reused,
		"refcount", res.Blob.RefCount,
		"attempts", res.Attempts,
	)
	return file, nil
}

// ListFiles returns an owner's files, newest first.
func (s *Service) ListFiles(ctx context.Context, owner string) ([]models.FileRecord, error) {
	owner, err := models.ParseOwner(owner)
	if err != nil {
		return nil, content.E("list files", content.ErrInvalid, err)
	}
	files, err := s.ledger.ListFilesByOwner(ctx, owner)
	if err != nil {
		return nil, content.E("list files", content.ErrStorage, err)
	}
	return files, nil
}

// GetFile returns one of owner's files.
func (s *Service) GetFile(ctx context.Context, fileID, owner string) (models.FileRecord, error) {
	file, err := s.ownedFile(ctx, "get file", fileID, owner)
	if err != nil {
		return models.FileRecord{}, err
	}
	return *file, nil
}

// GetContentForDownload opens the content of one of owner's files. Files of
// other owners yield ErrForbidden without touching the payload.
func (s *Service) GetContentForDownload(ctx context.Context, fileID, owner string) (*Download, error) {
	file, err := s.ownedFile(ctx, "download file", fileID, owner)
	if err != nil {
		return nil, err
	}

	blob, err := s.content.Get(ctx, file.BlobID)
	if errors.Is(err, content.ErrNotFound) {
		return nil, content.E("download file", content.ErrNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	rc, err := s.content.Open(ctx, blob)
	if errors.Is(err, fs.ErrNotExist) {
		// The file was deleted between the lookup and the open.
		return nil, content.E("download file", content.ErrNotFound, err)
	}
	if err != nil {
		return nil, err
	}

	s.logger.Debug("file download", "file_id", file.ID, "owner", file.Owner, "blob_id", blob.ID)
	return &Download{
		Reader:    rc,
		Name:      file.Name,
		SizeBytes: blob.SizeBytes,
		Digest:    blob.Digest,
	}, nil
}

// DeleteFile removes one of owner's files and releases its blob reference
// in the same transaction. The last reference deletes the blob.
func (s *Service) DeleteFile(ctx context.Context, fileID, owner string) error {
	owner, err := models.ParseOwner(owner)
	if err != nil {
		return content.E("delete file", content.ErrInvalid, err)
	}

	var file *models.FileRecord
	var blobDeleted bool
	err = s.ledger.InTx(ctx, func(tx *store.Tx) error {
		var err error
		file, err = s.ledger.GetFileTx(ctx, tx, fileID)
		if err != nil {
			return content.E("delete file", content.ErrStorage, err)
		}
		if file == nil {
			return content.E("delete file", content.ErrNotFound, nil)
		}
		if file.Owner != owner {
			return content.E("delete file", content.ErrForbidden, nil)
		}
		if _, err := s.ledger.DeleteFileTx(ctx, tx, fileID); err != nil {
			return content.E("delete file", content.ErrStorage, err)
		}
		blobDeleted, err = s.content.Decrement(ctx, tx, file.BlobID, 1)
		return err
	})
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) && !errors.Is(err, content.ErrForbidden) {
			s.logger.Warn("file delete failed", "file_id", fileID, "owner", owner, "error", err)
		}
		return err
	}

	s.logger.Info("file deleted", "file_id", file.ID, "owner", owner, "blob_id", file.BlobID, "blob_deleted", blobDeleted)
	return nil
}

// SharedWith reports which other owners hold the content of one of owner's
// files and how many copies owner has.
func (s *Service) SharedWith(ctx context.Context, fileID, owner string) (models.Sharing, error) {
	file, err := s.ownedFile(ctx, "shared with", fileID, owner)
	if err != nil {
		return models.Sharing{}, err
	}

	owners, err := s.ledger.ListOwnersByBlob(ctx, file.BlobID)
	if err != nil {
		return models.Sharing{}, content.E("shared with", content.ErrStorage, err)
	}
	copies, err := s.ledger.CountFilesForBlob(ctx, file.Owner, file.BlobID)
	if err != nil {
		return models.Sharing{}, content.E("shared with", content.ErrStorage, err)
	}

	sharing := models.Sharing{OtherOwners: []string{}, OwnerCopies: copies}
	for _, other := range owners {
		if other != file.Owner {
			sharing.OtherOwners = append(sharing.OtherOwners, other)
		}
	}
	return sharing, nil
}

// CountFiles returns how many files owner holds.
func (s *Service) CountFiles(ctx context.Context, owner string) (int, error) {
	owner, err := models.ParseOwner(owner)
	if err != nil {
		return 0, content.E("count files", content.ErrInvalid, err)
	}
	count, err := s.ledger.CountFilesByOwner(ctx, owner)
	if err != nil {
		return 0, content.E("count files", content.ErrStorage, err)
	}
	return count, nil
}

func (s *Service) ownedFile(ctx context.Context, op, fileID, owner string) (*models.FileRecord, error) {
	owner, err := models.ParseOwner(owner)
	if err != nil {
		return nil, content.E(op, content.ErrInvalid, err)
	}
	if !store.ValidID(store.FileIDPrefix, fileID) {
		return nil, content.E(op, content.ErrNotFound, nil)
	}
	file, err := s.ledger.GetFile(ctx, fileID)
	if err != nil {
		return nil, content.E(op, content.ErrStorage, err)
	}
	if file == nil {
		return nil, content.E(op, content.ErrNotFound, nil)
	}
	if file.Owner != owner {
		return nil, content.E(op, content.ErrForbidden, nil)
	}
	return file, nil
}
