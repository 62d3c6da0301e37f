package planapi

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/planport/pkg/clients"
	"github.com/ajitpratap0/planport/pkg/errors"
)

// maxErrorBody bounds how much of an error response is kept for diagnostics.
const maxErrorBody = 2048

// UploadOptions controls chunked uploads.
type UploadOptions struct {
	// ChunkSize is the uncompressed size at which a chunk is sent
	ChunkSize int
	// Compress gzips chunks before sending
	Compress         bool
	CompressionLevel int
}

// DefaultUploadOptions returns 1 MiB gzip compressed chunks.
func DefaultUploadOptions() UploadOptions {
	return UploadOptions{ChunkSize: 1 << 20, Compress: true, CompressionLevel: 6}
}

// Client calls the planning API on behalf of one authenticated principal.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *clients.HTTPClient
	auth    clients.Authenticator
	upload  UploadOptions
	logger  *zap.Logger
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, hc *clients.HTTPClient, auth clients.Authenticator, upload UploadOptions, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if upload.ChunkSize <= 0 {
		upload.ChunkSize = DefaultUploadOptions().ChunkSize
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		auth:    auth,
		upload:  upload,
		logger:  logger.With(zap.String("component", "planapi")),
	}
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	accept      string
}

// send performs an authenticated request and returns the response for any
// 2xx status. Other statuses are mapped to typed errors.
func (c *Client) send(ctx context.Context, r request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to build request").
			WithDetail("path", r.path)
	}

	header, err := c.auth.Authorization(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", header)
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.TypeOf(err), r.method+" "+r.path+" failed")
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return nil, statusError(r, resp.StatusCode, body)
}

// doJSON sends a request with an optional JSON body and decodes a JSON
// response into out when out is non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	r := request{method: method, path: path}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode request body")
		}
		r.body = bytes.NewReader(payload)
		r.contentType = "application/json"
	}

	resp, err := c.send(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrorTypeRemote, "malformed response").
			WithDetail("path", path)
	}
	return nil
}

func statusError(r request, status int, body []byte) error {
	var errType errors.ErrorType
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		errType = errors.ErrorTypeAuthentication
	case status == http.StatusNotFound:
		errType = errors.ErrorTypeNotFound
	case status == http.StatusTooManyRequests:
		errType = errors.ErrorTypeRateLimit
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		errType = errors.ErrorTypeTimeout
	default:
		errType = errors.ErrorTypeRemote
	}
	return errors.Newf(errType, "%s %s returned status %d", r.method, r.path, status).
		WithDetail("status", status).
		WithDetail("body", strings.TrimSpace(string(body)))
}
