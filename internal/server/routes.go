package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /health", s.handleHealth)

	// Files collection.
	mux.Handle("GET /v1/files", s.withOwner(http.HandlerFunc(s.handleListFiles)))
	mux.Handle("POST /v1/files", s.withOwner(http.HandlerFunc(s.handleUploadFile)))

	// Single file.
	mux.Handle("GET /v1/files/{id}", s.withOwner(http.HandlerFunc(s.handleGetFile)))
	mux.Handle("GET /v1/files/{id}/content", s.withOwner(http.HandlerFunc(s.handleDownloadFile)))
	mux.Handle("DELETE /v1/files/{id}", s.withOwner(http.HandlerFunc(s.handleDeleteFile)))

	// Admin.
	mux.HandleFunc("POST /v1/admin/check", s.handleAdminCheck)

	return mux
}
