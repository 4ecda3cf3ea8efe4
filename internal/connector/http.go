package connector

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
	"strings"
	"time"
)

// HTTPConnector is the required connector variant: it speaks plain HTTP(S)
// to one remote host, with optional basic auth or a JWT bearer token.
type HTTPConnector struct {
	host     string
	client   *http.Client
	username string
	password string
	bearer   string
}

// HTTPOption configures an HTTPConnector at construction time.
type HTTPOption func(*HTTPConnector)

// WithBasicAuth sets HTTP basic auth credentials, used when the server
// definition's username is set (spec.md §6).
func WithBasicAuth(username, password string) HTTPOption {
	return func(c *HTTPConnector) {
		c.username = username
		c.password = password
	}
}

// WithBearerToken sets an Authorization: Bearer header on every request,
// the JWT auth path described in SPEC_FULL.md's domain stack.
func WithBearerToken(token string) HTTPOption {
	return func(c *HTTPConnector) {
		c.bearer = token
	}
}

// WithTimeout overrides the connector's per-request timeout (spec.md §5
// recommends >= 30s; the stdlib http.Client default of none is too
// permissive for a resumable long-running migration).
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPConnector) {
		c.client.Timeout = d
	}
}

// NewHTTPConnector builds a connector bound to host (e.g.
// "https://old.example.org").
func NewHTTPConnector(host string, opts ...HTTPOption) *HTTPConnector {
	c := &HTTPConnector{
		host:   strings.TrimRight(host, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPConnector) resolve(path string, isAbsolute bool) string {
	if isAbsolute {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return c.host + path
	}
	return c.host + "/" + path
}

func (c *HTTPConnector) authenticate(req *http.Request) {
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
		return
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
}

// Get issues a GET request, joining path to the connector's host unless
// opts.IsAbsolute is set (spec.md §4.3).
func (c *HTTPConnector) Get(ctx context.Context, path string, opts GetOptions) (*Response, error) {
	target := c.resolve(path, opts.IsAbsolute)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("building GET request for %s: %w", target, err)
	}

	if len(opts.Params) > 0 {
		q := req.URL.Query()
		for k, v := range opts.Params {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	c.authenticate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", req.URL.String(), err)
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

// Post issues a POST request carrying either a JSON body or a multipart
// body (files + fields), never both (spec.md §4.3).
func (c *HTTPConnector) Post(ctx context.Context, path string, body PostBody) (*Response, error) {
	target := c.resolve(path, false)

	var (
		payload     io.Reader
		contentType string
	)

	switch {
	case body.Multipart != nil:
		buf := &bytes.Buffer{}
		writer := multipart.NewWriter(buf)

		for field, value := range body.Multipart.Fields {
			if err := writer.WriteField(field, value); err != nil {
				return nil, fmt.Errorf("writing multipart field %s: %w", field, err)
			}
		}
		for field, file := range body.Multipart.Files {
			part, err := writer.CreateFormFile(field, file.Filename)
			if err != nil {
				return nil, fmt.Errorf("creating multipart file field %s: %w", field, err)
			}
			if _, err := io.Copy(part, file.Content); err != nil {
				return nil, fmt.Errorf("writing multipart file field %s: %w", field, err)
			}
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("closing multipart writer: %w", err)
		}

		payload = buf
		contentType = writer.FormDataContentType()

	case body.JSON != nil:
		encoded, err := json.Marshal(body.JSON)
		if err != nil {
			return nil, fmt.Errorf("encoding JSON body: %w", err)
		}
		payload = bytes.NewReader(encoded)
		contentType = "application/json"

	default:
		payload = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, payload)
	if err != nil {
		return nil, fmt.Errorf("building POST request for %s: %w", target, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.authenticate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", target, err)
	}
	defer resp.Body.Close()

	return readResponse(resp)
}

func readResponse(resp *http.Response) (*Response, error) {
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body from %s: %w", resp.Request.URL, err)
	}

	return &Response{
		OK:      resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:  resp.StatusCode,
		URL:     resp.Request.URL.String(),
		Headers: resp.Header,
		Content: content,
	}, nil
}

func parseContentDispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	name := params["filename"]
	if name == "" {
		return ""
	}
	if decoded, err := url.QueryUnescape(name); err == nil {
		return decoded
	}
	return name
}

var _ Connector = (*HTTPConnector)(nil)
