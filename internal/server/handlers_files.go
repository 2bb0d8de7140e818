package server

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"filebox/internal/api"
	"filebox/internal/content"
	"filebox/internal/models"
)

const (
	// multipartOverhead is the body allowance beyond the file itself for
	// boundaries, part headers and the small form fields.
	multipartOverhead = 64 << 10
	formFieldMaxBytes = 1 << 10
)

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.files.ListFiles(r.Context(), requestOwner(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []models.FileRecord{}
	}
	s.writeJSON(w, http.StatusOK, api.FileListResponse{Files: list, Count: len(list)})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	file, err := s.files.GetFile(r.Context(), id, requestOwner(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, file)
}

// handleUploadFile streams the multipart "content" part straight into the
// service. The "name" and "size" fields must precede it.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	s.withLimiter(w, r, s.uploadLimiter, "upload", func() {
		owner := requestOwner(r)
		if err := s.checkQuota(r, owner); err != nil {
			s.writeServiceError(w, r, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
		mr, err := r.MultipartReader()
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(fmt.Errorf("multipart body required: %w", err)))
			return
		}

		name := ""
		size := int64(-1)
		for {
			part, err := mr.NextPart()
			if errors.Is(err, io.EOF) {
				s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("content is required"), ErrCodeMissingRequired))
				return
			}
			if err != nil {
				s.writeServiceError(w, r, classifyMultipartError(err))
				return
			}

			switch part.FormName() {
			case "name":
				name, err = readFormField(part)
			case "size":
				size, err = readSizeField(part, s.maxUploadBytes)
			case "content":
				if name == "" {
					name = part.FileName()
				}
				s.storeUpload(w, r, owner, name, part, size)
				return
			}
			if err != nil {
				s.writeServiceError(w, r, err)
				return
			}
		}
	})
}

func (s *Server) storeUpload(w http.ResponseWriter, r *http.Request, owner, name string, body io.Reader, size int64) {
	name, err := models.ParseFileName(name)
	if err != nil {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(err, ErrCodeInvalidFileName))
		return
	}

	body = &cappedReader{r: body, limit: s.maxUploadBytes}
	file, err := s.files.ResolveAndStore(r.Context(), owner, name, body, size)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	sharing, err := s.files.SharedWith(r.Context(), file.ID, owner)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.UploadResponse{File: file, Sharing: sharing})
}

func (s *Server) checkQuota(r *http.Request, owner string) error {
	if s.maxFilesPerOwner <= 0 {
		return nil
	}
	count, err := s.files.CountFiles(r.Context(), owner)
	if err != nil {
		return err
	}
	if count >= s.maxFilesPerOwner {
		return content.E("upload", content.ErrQuotaExceeded, fmt.Errorf("owner already holds %d files", count))
	}
	return nil
}

func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	dl, err := s.files.GetContentForDownload(r.Context(), id, requestOwner(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer dl.Reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": dl.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(dl.SizeBytes, 10))
	w.Header().Set("ETag", strconv.Quote(dl.Digest))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Reader); err != nil {
		s.log().Warn("download interrupted", "file_id", id, "error", err)
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathIDOrBadRequest(w, r)
	if !ok {
		return
	}
	if err := s.files.DeleteFile(r.Context(), id, requestOwner(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readFormField(r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, formFieldMaxBytes+1))
	if err != nil {
		return "", classifyMultipartError(err)
	}
	if len(data) > formFieldMaxBytes {
		return "", badRequest(fmt.Errorf("form field too large"))
	}
	return strings.TrimSpace(string(data)), nil
}

func readSizeField(r io.Reader, limit int64) (int64, error) {
	value, err := readFormField(r)
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(value, 10, 64)
	if err != nil || size < 0 {
		return 0, badRequest(fmt.Errorf("invalid size"))
	}
	if size > limit {
		return 0, tooLarge(fmt.Errorf("upload exceeds %d bytes", limit))
	}
	return size, nil
}

func classifyMultipartError(err error) error {
	if err == nil {
		return nil
	}
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return tooLarge(fmt.Errorf("request body too large"))
	}
	return badRequest(err)
}

// cappedReader fails once more than limit bytes have been read, so an
// oversized file is rejected even when the multipart envelope fits.
type cappedReader struct {
	r     io.Reader
	limit int64
	n     int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.n > c.limit {
		return 0, &http.MaxBytesError{Limit: c.limit}
	}
	if max := c.limit - c.n + 1; int64(len(p)) > max {
		p = p[:max]
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.limit {
		return n, &http.MaxBytesError{Limit: c.limit}
	}
	return n, err
}
