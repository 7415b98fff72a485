package preload

import (
	"context"
	"fmt"
	"net/http"
)

// HTTPProber probes stream URLs with HEAD, falling back to a one-byte ranged GET for
// servers that refuse HEAD. Icecast and Shoutcast servers commonly do.
type HTTPProber struct {
	client    *http.Client
	userAgent string
}

// NewHTTPProber creates a prober. A nil client uses one with the default probe timeout.
func NewHTTPProber(client *http.Client, userAgent string) *HTTPProber {
	if client == nil {
		client = &http.Client{Timeout: DefaultProbeTimeout}
	}
	return &HTTPProber{client: client, userAgent: userAgent}
}

// Probe returns nil when the URL answers with a status below 400.
func (p *HTTPProber) Probe(ctx context.Context, url string) error {
	status, err := p.do(ctx, http.MethodHead, url)
	if err != nil {
		return err
	}
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		status, err = p.do(ctx, http.MethodGet, url)
		if err != nil {
			return err
		}
	}
	if status >= 400 {
		return fmt.Errorf("probe %s: status %d", url, status)
	}
	return nil
}

func (p *HTTPProber) do(ctx context.Context, method, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-0")
		req.Header.Set("Icy-MetaData", "0")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probe %s: %w", url, err)
	}
	// Live streams never end; the body is not read.
	resp.Body.Close()
	return resp.StatusCode, nil
}
