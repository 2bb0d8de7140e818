package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPTimeoutFromEnv(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})

	t.Run("duration format", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "45s")
		if got := httpTimeoutFromEnv(); got != 45*time.Second {
			t.Fatalf("expected 45s timeout, got %v", got)
		}
	})

	t.Run("integer seconds", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "25")
		if got := httpTimeoutFromEnv(); got != 25*time.Second {
			t.Fatalf("expected 25s timeout, got %v", got)
		}
	})

	t.Run("invalid falls back", func(t *testing.T) {
		t.Setenv(httpTimeoutEnvKey, "invalid")
		if got := httpTimeoutFromEnv(); got != defaultHTTPTimeout {
			t.Fatalf("expected default timeout %v, got %v", defaultHTTPTimeout, got)
		}
	})
}

func TestClientSendsOwnerAndToken(t *testing.T) {
	t.Setenv(apiTokenEnvKey, "secret")
	t.Setenv(adminTokenEnvKey, "")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(OwnerHeader); got != "alice" {
			t.Errorf("owner header = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization header = %q", got)
		}
		_ = json.NewEncoder(w).Encode(FileListResponse{Count: 0})
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL+"/", "alice").ListFiles(context.Background())
	if err != nil {
		t.Fatalf("list files: %v", err)
	}
	if resp.Count != 0 {
		t.Fatalf("expected empty list, got %d", resp.Count)
	}
}

func TestClientDecodesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "file not found", Code: "not_found", ErrorCode: 2001})
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "alice").GetFile(context.Background(), "fl-abc12345")
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if !strings.Contains(err.Error(), "file not found") {
		t.Fatalf("expected server message in error, got %q", err.Error())
	}
}

func TestClientDecodesNonJSONError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "alice").DeleteFile(context.Background(), "fl-abc12345")
	if !IsForbidden(err) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestClientUploadStreamsMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mr, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		fields := map[string]string{}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Errorf("next part: %v", err)
				return
			}
			data, _ := io.ReadAll(part)
			fields[part.FormName()] = string(data)
		}
		if fields["name"] != "hello.txt" || fields["size"] != "11" || fields["content"] != "Hello World" {
			t.Errorf("unexpected form fields: %#v", fields)
		}
		w.WriteHeader(http.StatusCreated)
		resp := UploadResponse{}
		resp.File.ID = "fl-abc12345"
		resp.File.Name = fields["name"]
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "alice").Upload(context.Background(), "hello.txt", strings.NewReader("Hello World"), 11)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.File.ID != "fl-abc12345" || resp.File.Name != "hello.txt" {
		t.Fatalf("unexpected upload response: %+v", resp.File)
	}
}

func TestClientDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/files/fl-abc12345/content" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Disposition", `attachment; filename="report.pdf"`)
		_, _ = io.WriteString(w, "payload")
	}))
	defer srv.Close()

	var buf bytes.Buffer
	name, n, err := NewClient(srv.URL, "alice").Download(context.Background(), "fl-abc12345", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if name != "report.pdf" || n != 7 || buf.String() != "payload" {
		t.Fatalf("unexpected download: name=%q n=%d body=%q", name, n, buf.String())
	}
}

func TestClientAdminTokenOnlyOnAdminRoutes(t *testing.T) {
	t.Setenv(apiTokenEnvKey, "")
	t.Setenv(adminTokenEnvKey, "root")

	seen := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen[r.URL.Path] = r.Header.Get("X-Admin-Token")
		if r.URL.Path == "/v1/admin/check" {
			var req CheckRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.Repair {
				t.Errorf("expected repair request, got %+v (%v)", req, err)
			}
			_ = json.NewEncoder(w).Encode(CheckResponse{})
			return
		}
		_ = json.NewEncoder(w).Encode(FileListResponse{})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "alice")
	if _, err := c.Check(context.Background(), true); err != nil {
		t.Fatalf("check: %v", err)
	}
	if _, err := c.ListFiles(context.Background()); err != nil {
		t.Fatalf("list: %v", err)
	}
	if seen["/v1/admin/check"] != "root" {
		t.Fatalf("expected admin token on check, got %q", seen["/v1/admin/check"])
	}
	if seen["/v1/files"] != "" {
		t.Fatalf("admin token leaked to files route")
	}
}
