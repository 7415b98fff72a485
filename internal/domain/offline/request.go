package offline

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Kind is the asset type used to pick a fallback.
type Kind int

const (
	KindOther Kind = iota
	KindStyle
	KindImage
	KindScript
)

// Request is an intercepted request.
type Request struct {
	Method      string
	URL         *url.URL
	Mode        string // Sec-Fetch-Mode, "navigate" for page loads
	Destination string // Sec-Fetch-Dest: "style", "image", "script", ...
	Header      http.Header
	Body        []byte
}

// NewRequest creates a request for an absolute URL.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("url %q is not absolute", rawURL)
	}
	return &Request{Method: method, URL: u, Header: http.Header{}}, nil
}

// RequestFromHTTP builds the request an incoming HTTP request stands for on origin.
// The incoming path is mounted under the origin's path, so an origin of
// https://host/app/ maps /index.html to https://host/app/index.html. The body is
// read in full for methods that carry one.
func RequestFromHTTP(r *http.Request, origin *url.URL, maxBody int64) (*Request, error) {
	u := *origin
	u.Path = strings.TrimSuffix(origin.Path, "/") + r.URL.Path
	u.RawPath = ""
	if r.URL.RawPath != "" {
		u.RawPath = strings.TrimSuffix(origin.EscapedPath(), "/") + r.URL.RawPath
	}
	u.RawQuery = r.URL.RawQuery
	u.Fragment = ""

	req := &Request{
		Method:      r.Method,
		URL:         &u,
		Mode:        r.Header.Get("Sec-Fetch-Mode"),
		Destination: r.Header.Get("Sec-Fetch-Dest"),
		Header:      r.Header.Clone(),
	}

	if r.Body != nil && r.Method != http.MethodGet && r.Method != http.MethodHead {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if int64(len(body)) > maxBody {
			return nil, fmt.Errorf("request body exceeds %d bytes", maxBody)
		}
		req.Body = body
	}
	return req, nil
}

// Key is the exact identity the request is stored under.
func (r *Request) Key() string {
	return r.URL.String()
}

// NormalizedKey is the request URL without query string or fragment.
func (r *Request) NormalizedKey() string {
	return NormalizeURL(r.URL)
}

// NormalizeURL strips the query string and fragment.
func NormalizeURL(u *url.URL) string {
	n := *u
	n.RawQuery = ""
	n.ForceQuery = false
	n.Fragment = ""
	n.RawFragment = ""
	return n.String()
}

// IsNavigation reports whether the request is a top-level page load.
func (r *Request) IsNavigation() bool {
	if r.Mode == "navigate" {
		return true
	}
	return r.Method == http.MethodGet && strings.Contains(r.Header.Get("Accept"), "text/html")
}

// Kind classifies the request for fallback purposes.
func (r *Request) Kind() Kind {
	switch r.Destination {
	case "style":
		return KindStyle
	case "image":
		return KindImage
	case "script":
		return KindScript
	}

	switch strings.ToLower(path.Ext(r.URL.Path)) {
	case ".css":
		return KindStyle
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".ico":
		return KindImage
	case ".js", ".mjs":
		return KindScript
	}
	return KindOther
}
