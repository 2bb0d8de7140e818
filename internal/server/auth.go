package server

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"

	"filebox/internal/api"
	"filebox/internal/models"
)

const adminTokenHeader = "X-Admin-Token"

// withAuth enforces the optional bearer token on every route but /health and
// the admin token on /v1/admin/ routes.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		if s.apiToken != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || !tokenEqual(strings.TrimSpace(token), s.apiToken) {
				err := makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeUnauthorized, fmt.Errorf("missing or invalid bearer token"))
				s.writeErrorReq(w, r, http.StatusUnauthorized, err)
				return
			}
		}

		if s.adminToken != "" && strings.HasPrefix(r.URL.Path, "/v1/admin/") {
			if !tokenEqual(strings.TrimSpace(r.Header.Get(adminTokenHeader)), s.adminToken) {
				err := makeAPIError(http.StatusForbidden, "forbidden", ErrCodeForbidden, fmt.Errorf("admin token required"))
				s.writeErrorReq(w, r, http.StatusForbidden, err)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

// withOwner reads the principal set by the authenticating proxy in front of
// the server.
func (s *Server) withOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(api.OwnerHeader)
		if strings.TrimSpace(raw) == "" {
			err := makeAPIError(http.StatusUnauthorized, "unauthorized", ErrCodeMissingOwner, fmt.Errorf("%s header is required", api.OwnerHeader))
			s.writeErrorReq(w, r, http.StatusUnauthorized, err)
			return
		}
		owner, err := models.ParseOwner(raw)
		if err != nil {
			s.writeErrorReq(w, r, http.StatusBadRequest, badRequest(err))
			return
		}
		next.ServeHTTP(w, r.WithContext(contextWithOwner(r.Context(), owner)))
	})
}

func tokenEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
