package server

import (
	"net/http"

	"filebox/internal/api"
)

func (s *Server) handleAdminCheck(w http.ResponseWriter, r *http.Request) {
	var req api.CheckRequest
	if r.ContentLength != 0 {
		if !s.decodeJSONReq(w, r, &req) {
			return
		}
	}

	s.withLimiter(w, r, s.checkLimiter, "check", func() {
		report, err := s.files.Check(r.Context(), req.Repair)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, report)
	})
}
