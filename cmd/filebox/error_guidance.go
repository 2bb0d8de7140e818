package main

import (
	"context"
	"errors"
	"net"

	"filebox/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized":
			lines = append(lines, "hint: verify FILEBOX_API_TOKEN configuration.")
		case "forbidden":
			lines = append(lines, "hint: files are only visible to their owner; check --owner or FILEBOX_ADMIN_TOKEN.")
		case "quota_exceeded":
			lines = append(lines, "hint: delete files with 'filebox rm' or raise storage.max_files_per_owner.")
		case "request_too_large":
			lines = append(lines, "hint: the server limit is storage.max_upload_bytes.")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly or reduce concurrent uploads.")
		}
		if apiErr.Code == "" {
			lines = append(lines, "hint: verify FILEBOX_API_URL points to a filebox server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase FILEBOX_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a filebox server is running at FILEBOX_API_URL.",
			"hint: start local server manually with: filebox srv",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
