package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"filebox/internal/api"
	"filebox/internal/format"
	"filebox/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writeFileList(files []models.FileRecord) error {
	if len(files) == 0 {
		return writePlain("no files\n")
	}
	for _, file := range files {
		if err := writePlain("%s\n", formatFileLine(file)); err != nil {
			return err
		}
	}
	return nil
}

func writeFileDetail(file models.FileRecord) error {
	lines := []string{
		fmt.Sprintf("id: %s", file.ID),
		fmt.Sprintf("name: %s", file.Name),
		fmt.Sprintf("owner: %s", file.Owner),
		fmt.Sprintf("size: %s (%d bytes)", formatSize(file.SizeBytes), file.SizeBytes),
		fmt.Sprintf("blob_id: %s", file.BlobID),
		fmt.Sprintf("created_at: %s", formatTime(file.CreatedAt)),
	}
	if file.Digest != "" {
		lines = append(lines, fmt.Sprintf("digest: %s", file.Digest))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeUpload(resp api.UploadResponse) error {
	lines := []string{fmt.Sprintf("stored %s", formatFileLine(resp.File))}
	lines = append(lines, sharingNotices(resp.Sharing)...)
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func sharingNotices(sharing models.Sharing) []string {
	var notices []string
	if sharing.AlreadyOwned() {
		notices = append(notices, fmt.Sprintf("note: this content is already in your storage (%d copies)", sharing.OwnerCopies))
	}
	if len(sharing.OtherOwners) > 0 {
		notices = append(notices, fmt.Sprintf("note: this content is also held by %s", strings.Join(sharing.OtherOwners, ", ")))
	}
	return notices
}

func writeCheckReport(report api.CheckResponse) error {
	lines := []string{
		fmt.Sprintf("blobs: %d", report.Blobs),
		fmt.Sprintf("files: %d", report.Files),
		fmt.Sprintf("payloads: %d", report.PayloadsTotal),
	}
	if report.Repair {
		lines = append(lines, fmt.Sprintf("reclaimed: %s", formatSize(report.ReclaimedBytes)))
	}
	if len(report.Issues) == 0 {
		lines = append(lines, "no issues found")
	}
	for _, issue := range report.Issues {
		status := "open"
		if issue.Repaired {
			status = "repaired"
		}
		subject := issue.BlobID
		if subject == "" {
			subject = issue.Key
		}
		lines = append(lines, fmt.Sprintf("  [%s] %s %s: %s", status, issue.Kind, subject, issue.Detail))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func formatFileLine(file models.FileRecord) string {
	return fmt.Sprintf("%s  %8s  %s  %s", file.ID, formatSize(file.SizeBytes), humanize.Time(file.CreatedAt), file.Name)
}

func formatSize(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
