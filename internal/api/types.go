package api

import "filebox/internal/models"

// OwnerHeader carries the authenticated principal set by the fronting proxy.
const OwnerHeader = "X-Filebox-Owner"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// FileListResponse lists an owner's files, newest first.
type FileListResponse struct {
	Files []models.FileRecord `json:"files" yaml:"files"`
	Count int                 `json:"count" yaml:"count"`
}

// UploadResponse describes a stored file and who else holds its content.
type UploadResponse struct {
	File    models.FileRecord `json:"file" yaml:"file"`
	Sharing models.Sharing    `json:"sharing" yaml:"sharing"`
}

// CheckRequest asks for a consistency check.
type CheckRequest struct {
	Repair bool `json:"repair"`
}

// CheckResponse is the result of a consistency check.
type CheckResponse = models.CheckReport
