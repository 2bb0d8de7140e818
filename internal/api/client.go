package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"filebox/internal/models"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	httpTimeoutEnvKey  = "FILEBOX_HTTP_TIMEOUT"
	apiTokenEnvKey     = "FILEBOX_API_TOKEN"
	adminTokenEnvKey   = "FILEBOX_ADMIN_TOKEN"
)

// Client is a simple HTTP client for the filebox API.
type Client struct {
	baseURL    string
	owner      string
	http       *http.Client
	authToken  string
	adminToken string
}

// NewClient creates a new API client acting on behalf of owner.
func NewClient(baseURL, owner string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		owner:      strings.TrimSpace(owner),
		http:       &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken:  strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
		adminToken: strings.TrimSpace(os.Getenv(adminTokenEnvKey)),
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// ListFiles lists the owner's files.
func (c *Client) ListFiles(ctx context.Context) (FileListResponse, error) {
	var resp FileListResponse
	err := c.do(ctx, http.MethodGet, "/v1/files", nil, nil, &resp)
	return resp, err
}

// GetFile returns one file's metadata.
func (c *Client) GetFile(ctx context.Context, id string) (models.FileRecord, error) {
	var resp models.FileRecord
	err := c.do(ctx, http.MethodGet, "/v1/files/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// DeleteFile deletes one file.
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/v1/files/"+url.PathEscape(id), nil, nil, nil)
}

// Check runs a consistency check on the server.
func (c *Client) Check(ctx context.Context, repair bool) (CheckResponse, error) {
	var resp CheckResponse
	err := c.do(ctx, http.MethodPost, "/v1/admin/check", nil, CheckRequest{Repair: repair}, &resp)
	return resp, err
}

// Upload streams content as a multipart upload. size < 0 means unknown.
func (c *Client) Upload(ctx context.Context, name string, content io.Reader, size int64) (UploadResponse, error) {
	var resp UploadResponse

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUploadForm(mw, name, content, size))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/files", pr)
	if err != nil {
		_ = pr.Close()
		return resp, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.setHeaders(req)

	httpResp, err := c.http.Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

// writeUploadForm writes name and size before the content part so the
// server can read them before streaming the body.
func writeUploadForm(mw *multipart.Writer, name string, content io.Reader, size int64) error {
	if err := mw.WriteField("name", name); err != nil {
		return err
	}
	if size >= 0 {
		if err := mw.WriteField("size", strconv.FormatInt(size, 10)); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("content", name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return err
	}
	return mw.Close()
}

// Download streams a file's content into w and returns its display name and
// byte count.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/files/"+url.PathEscape(id)+"/content", nil)
	if err != nil {
		return "", 0, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", 0, decodeError(resp)
	}

	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	n, err := io.Copy(w, resp.Body)
	return name, n, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func (c *Client) setHeaders(req *http.Request) {
	if req == nil {
		return
	}
	if c.owner != "" {
		req.Header.Set(OwnerHeader, c.owner)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if c.adminToken != "" && strings.HasPrefix(req.URL.Path, "/v1/admin/") {
		req.Header.Set("X-Admin-Token", c.adminToken)
	}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
