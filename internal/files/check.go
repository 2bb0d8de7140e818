package files

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"filebox/internal/blobstore"
	"filebox/internal/content"
	"filebox/internal/hasher"
	"filebox/internal/models"
	"filebox/internal/store"
)

// Check verifies that every blob refcount matches its file references, that
// every payload exists with the recorded digest, and that no payload lacks a
// blob. With repair, refcounts are reconciled and orphan payloads older
// than the grace period are removed. Missing or corrupt payloads are only
// reported.
func (s *Service) Check(ctx context.Context, repair bool) (*models.CheckReport, error) {
	report := &models.CheckReport{Repair: repair, Issues: []models.CheckIssue{}}

	if err := s.checkRefCounts(ctx, repair, report); err != nil {
		return nil, err
	}
	if err := s.verifyPayloads(ctx, report); err != nil {
		return nil, err
	}
	if err := s.sweepOrphans(ctx, repair, report); err != nil {
		return nil, err
	}

	blobs, err := s.ledger.CountBlobs(ctx)
	if err != nil {
		return nil, content.E("check", content.ErrStorage, err)
	}
	files, err := s.ledger.CountFiles(ctx)
	if err != nil {
		return nil, content.E("check", content.ErrStorage, err)
	}
	report.Blobs = blobs
	report.Files = files

	s.logger.Info("check finished",
		"blobs", report.Blobs,
		"files", report.Files,
		"issues", len(report.Issues),
		"repair", repair,
		"ok", report.OK(),
	)
	return report, nil
}

func (s *Service) checkRefCounts(ctx context.Context, repair bool, report *models.CheckReport) error {
	drift, err := s.ledger.RefCounts(ctx)
	if err != nil {
		return content.E("check refcounts", content.ErrStorage, err)
	}

	for _, refs := range drift {
		issue := models.CheckIssue{
			Kind:   models.IssueRefCountDrift,
			BlobID: refs.BlobID,
			Detail: fmt.Sprintf("refcount %d, referenced by %d files", refs.RefCount, refs.Actual),
		}
		if repair {
			var current store.BlobRefs
			var deleted bool
			err := s.ledger.InTx(ctx, func(tx *store.Tx) error {
				var err error
				current, deleted, err = s.content.Reconcile(ctx, tx, refs.BlobID)
				return err
			})
			switch {
			case errors.Is(err, content.ErrBlobGone):
				// Deleted concurrently; nothing left to repair.
				issue.Repaired = true
			case err != nil:
				return err
			default:
				issue.Repaired = true
				s.logger.Warn("refcount repaired",
					"blob_id", refs.BlobID,
					"refcount", current.RefCount,
					"actual", current.Actual,
					"blob_deleted", deleted,
				)
			}
		}
		report.Issues = append(report.Issues, issue)
	}
	return nil
}

func (s *Service) verifyPayloads(ctx context.Context, report *models.CheckReport) error {
	blobs, err := s.ledger.ListBlobs(ctx)
	if err != nil {
		return content.E("verify payloads", content.ErrStorage, err)
	}

	var mu sync.Mutex
	var issues []models.CheckIssue
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.checkWorkers)
	for i := range blobs {
		blob := blobs[i]
		g.Go(func() error {
			issue, err := s.verifyPayload(gctx, &blob)
			if err != nil || issue == nil {
				return err
			}
			mu.Lock()
			issues = append(issues, *issue)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	sort.Slice(issues, func(i, j int) bool { return issues[i].BlobID < issues[j].BlobID })
	report.Issues = append(report.Issues, issues...)
	return nil
}

// verifyPayload rehashes one payload. A blob deleted while the check runs is
// not an issue.
func (s *Service) verifyPayload(ctx context.Context, blob *models.Blob) (*models.CheckIssue, error) {
	h, err := hasher.ByName(blob.DigestAlgorithm)
	if err != nil {
		return &models.CheckIssue{Kind: models.IssueCorruptPayload, BlobID: blob.ID, Key: blob.PayloadKey, Detail: err.Error()}, nil
	}

	rc, err := s.content.Open(ctx, blob)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if live, getErr := s.ledger.GetBlob(ctx, blob.ID); getErr == nil && live == nil {
			return nil, nil
		}
		return &models.CheckIssue{Kind: models.IssueMissingPayload, BlobID: blob.ID, Key: blob.PayloadKey, Detail: err.Error()}, nil
	}
	defer rc.Close()

	digest, n, err := hasher.Stream(ctx, h, rc, nil)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return &models.CheckIssue{Kind: models.IssueCorruptPayload, BlobID: blob.ID, Key: blob.PayloadKey, Detail: err.Error()}, nil
	}
	if digest != blob.Digest || n != blob.SizeBytes {
		return &models.CheckIssue{
			Kind:   models.IssueCorruptPayload,
			BlobID: blob.ID,
			Key:    blob.PayloadKey,
			Detail: fmt.Sprintf("expected %s (%d bytes), found %s (%d bytes)", blob.Digest, blob.SizeBytes, digest, n),
		}, nil
	}
	return nil, nil
}

func (s *Service) sweepOrphans(ctx context.Context, repair bool, report *models.CheckReport) error {
	var payloads []blobstore.PayloadInfo
	err := s.content.Payloads().Walk(ctx, func(info blobstore.PayloadInfo) error {
		payloads = append(payloads, info)
		return nil
	})
	if err != nil {
		return content.E("sweep orphans", content.ErrStorage, err)
	}
	report.PayloadsTotal = len(payloads)

	// Keys are read after the walk so a blob committed in between is seen.
	keys, err := s.ledger.PayloadKeys(ctx)
	if err != nil {
		return content.E("sweep orphans", content.ErrStorage, err)
	}

	cutoff := time.Now().Add(-s.orphanGrace)
	for _, info := range payloads {
		if _, ok := keys[info.Key]; ok {
			continue
		}
		issue := models.CheckIssue{
			Kind:   models.IssueOrphanPayload,
			Key:    info.Key,
			Detail: fmt.Sprintf("%d bytes, modified %s", info.SizeBytes, info.ModTime.UTC().Format(time.RFC3339)),
		}
		if repair && info.ModTime.Before(cutoff) {
			if err := s.content.Payloads().Delete(ctx, info.Key); err != nil {
				return content.E("sweep orphans", content.ErrStorage, err)
			}
			issue.Repaired = true
			report.ReclaimedBytes += info.SizeBytes
			s.logger.Warn("orphan payload removed", "payload_key", info.Key, "size_bytes", info.SizeBytes)
		}
		report.Issues = append(report.Issues, issue)
	}
	return nil
}
