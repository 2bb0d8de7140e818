package server

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"filebox/internal/files"
)

const (
	apiTokenEnvKey    = "FILEBOX_API_TOKEN"
	adminTokenEnvKey  = "FILEBOX_ADMIN_TOKEN"
	allowRemoteEnvKey = "FILEBOX_ALLOW_REMOTE"
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 10 * time.Minute
	writeTimeout      = 10 * time.Minute
	idleTimeout       = 60 * time.Second

	uploadConcurrencyLimit = 8
	checkConcurrencyLimit  = 1

	defaultMaxUploadBytes = 100 << 20 // 100 MiB
)

// Options configures request limits.
type Options struct {
	// MaxUploadBytes caps the size of one uploaded file.
	MaxUploadBytes int64
	// MaxFilesPerOwner caps how many files one owner may hold. 0 disables
	// the quota.
	MaxFilesPerOwner int
}

// Server wraps HTTP handlers for the filebox API.
type Server struct {
	addr             string
	files            *files.Service
	logger           *slog.Logger
	apiToken         string
	adminToken       string
	maxUploadBytes   int64
	maxFilesPerOwner int
	uploadLimiter    chan struct{}
	checkLimiter     chan struct{}
}

// New creates a new server instance.
func New(addr string, svc *files.Service, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.MaxFilesPerOwner < 0 {
		opts.MaxFilesPerOwner = 0
	}

	return &Server{
		addr:             addr,
		files:            svc,
		logger:           logger.With("component", "server"),
		apiToken:         strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken:       strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
		maxUploadBytes:   opts.MaxUploadBytes,
		maxFilesPerOwner: opts.MaxFilesPerOwner,
		uploadLimiter:    make(chan struct{}, uploadConcurrencyLimit),
		checkLimiter:     make(chan struct{}, checkConcurrencyLimit),
	}
}

// Handler returns the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.withRequestLogging(s.withAuth(s.routes()))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log().Info("starting server", "addr", s.addr, "max_upload_bytes", s.maxUploadBytes, "max_files_per_owner", s.maxFilesPerOwner)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	return server.ListenAndServe()
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) acquireLimiter(limiter chan struct{}, w http.ResponseWriter, r *http.Request, name string) bool {
	if limiter == nil {
		return true
	}
	select {
	case limiter <- struct{}{}:
		return true
	default:
		err := apiError{
			status:  http.StatusTooManyRequests,
			code:    "resource_exhausted",
			errCode: ErrCodeResourceExhausted,
			err:     fmt.Errorf("too many concurrent %s requests", name),
		}
		s.writeErrorReq(w, r, http.StatusTooManyRequests, err)
		return false
	}
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Server) releaseLimiter(limiter chan struct{}) {
	if limiter == nil {
		return
	}
	select {
	case <-limiter:
	default:
	}
}
