package offline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultMaxResponseBytes bounds a single buffered response.
const DefaultMaxResponseBytes = 32 << 20

// hopHeaders are connection-level headers that must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Connection",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// HTTPFetcher fetches requests over HTTP and buffers the response.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher creates a fetcher. A nil client uses one with a 30 second timeout.
func NewHTTPFetcher(client *http.Client, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxResponseBytes
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

// Fetch performs req. Non-2xx answers are returned as responses, not errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vv := range req.Header {
		for _, v := range vv {
			httpReq.Header.Add(k, v)
		}
	}
	stripHopHeaders(httpReq.Header)
	// Let the transport negotiate and decode compression itself.
	httpReq.Header.Del("Accept-Encoding")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("response from %s exceeds %d bytes", req.URL, f.maxBytes)
	}

	header := resp.Header.Clone()
	stripHopHeaders(header)
	header.Del("Content-Length")

	return &Response{Status: resp.StatusCode, Header: header, Body: data}, nil
}

func stripHopHeaders(h http.Header) {
	for _, k := range hopHeaders {
		h.Del(k)
	}
}
