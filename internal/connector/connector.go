// Package connector implements the request/response abstraction the
// transfer engine speaks to a remote endpoint through (spec.md §4.3): JSON
// GET, binary GET, JSON POST, and multipart POST, behind one interface with
// an HTTP and a shell-stream variant. The connector never retries, and no
// other layer retries a failed request either: internal/stage classifies
// the failure (internal/walker's error types) and the progress observer
// decides whether the stage continues or aborts.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Response is what every Connector operation returns, regardless of
// variant: status, raw bytes, and a lazily-decoded JSON view.
type Response struct {
	OK      bool
	Status  int
	URL     string
	Headers http.Header
	Content []byte
}

// Text returns the response body decoded as a UTF-8 string.
func (r *Response) Text() string {
	return string(r.Content)
}

// JSON decodes the response body into v.
func (r *Response) JSON(v interface{}) error {
	if len(r.Content) == 0 {
		return fmt.Errorf("empty response body, cannot decode JSON")
	}
	if err := json.Unmarshal(r.Content, v); err != nil {
		return fmt.Errorf("decoding JSON response from %s: %w", r.URL, err)
	}
	return nil
}

// Filename returns the filename carried by a Content-Disposition header, if
// present, per spec.md §4.5's FETCH file handler.
func (r *Response) Filename() string {
	return parseContentDispositionFilename(r.Headers.Get("Content-Disposition"))
}

// GetOptions modifies a GET request.
type GetOptions struct {
	// IsAbsolute treats path as a full URL rather than one joined to the
	// connector's configured host.
	IsAbsolute bool
	// Params are extra query parameters appended to the request, e.g.
	// spec.md §4.5's journals `paths=<csv>` filter.
	Params map[string]string
	// Binary hints the connector to skip JSON-oriented defaults (content
	// type negotiation) when fetching a file attachment.
	Binary bool
}

// MultipartFile is one file entry in a multipart POST body.
type MultipartFile struct {
	Filename string
	Content  io.Reader
}

// PostBody is either a JSON value or a multipart payload, never both.
type PostBody struct {
	JSON      interface{}
	Multipart *Multipart
}

// Multipart carries the files and plain fields of a multipart POST, per
// spec.md §4.3.
type Multipart struct {
	Files  map[string]MultipartFile
	Fields map[string]string
}

// Connector is the capability set every variant (HTTP, shell-stream)
// implements. The engine depends only on this interface, never on a
// concrete variant (Design Notes, "Polymorphism over connectors").
type Connector interface {
	Get(ctx context.Context, path string, opts GetOptions) (*Response, error)
	Post(ctx context.Context, path string, body PostBody) (*Response, error)
}
