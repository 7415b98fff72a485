// Package offline implements the offline cache controller that sits in front of the
// application shell. Navigations go to the network first and fall back to the cached
// shell; every other asset is served cache-first with typed fallbacks.
package offline

import (
	"context"
	"errors"
	"net/http"
)

// Common errors
var (
	// ErrNotCached is returned by CacheStorage when nothing is stored under a key.
	ErrNotCached = errors.New("not cached")

	// ErrNoVersion is returned by CacheStorage when writing to a version that does not
	// exist, for example one deleted by a concurrent activation.
	ErrNoVersion = errors.New("cache version does not exist")

	// ErrInstallFailed means a manifest entry could not be fetched or stored.
	ErrInstallFailed = errors.New("install failed")

	// ErrNotWaiting is returned when activation is requested before a successful install.
	ErrNotWaiting = errors.New("no installed version is waiting")

	// ErrNetwork wraps fetch failures that no fallback could satisfy.
	ErrNetwork = errors.New("network request failed")

	// ErrUnknownMessage is returned for unsupported page messages.
	ErrUnknownMessage = errors.New("unknown message type")
)

// DefaultVersion is the cache version compiled into this build.
const DefaultVersion = "radio-app-v7"

// State is the lifecycle state of the controller.
type State string

const (
	StateIdle       State = "idle"
	StateInstalling State = "installing"
	StateWaiting    State = "waiting"
	StateActive     State = "active"
	StateRedundant  State = "redundant"
)

// Source tells where a response came from.
type Source string

const (
	SourceNetwork   Source = "network"
	SourceCache     Source = "cache"
	SourceFallback  Source = "fallback"
	SourceSynthetic Source = "synthetic"
)

// MessageSkipWaiting asks a waiting controller to activate.
const MessageSkipWaiting = "SKIP_WAITING"

// Message is sent by the page to the controller.
type Message struct {
	Type string `json:"type"`
}

// Response is a fully buffered HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Clone returns a deep copy.
func (r *Response) Clone() *Response {
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   append([]byte(nil), r.Body...),
	}
}

// Result is what the controller answers a request with.
type Result struct {
	Response *Response
	Source   Source
}

// Fetcher performs network requests. A non-nil error means the network failed; any
// HTTP status, including errors, is returned as a Response.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// CacheStorage holds named cache versions of responses keyed by request URL.
type CacheStorage interface {
	Versions(ctx context.Context) ([]string, error)
	Create(ctx context.Context, version string) error
	Delete(ctx context.Context, version string) error
	Match(ctx context.Context, version, key string) (*Response, error)
	Put(ctx context.Context, version, key string, resp *Response) error
	PutAll(ctx context.Context, version string, entries map[string]*Response) error
	ActiveVersion(ctx context.Context) (string, error)
	SetActiveVersion(ctx context.Context, version string) error
}

// Status is a snapshot of the controller for diagnostics.
type Status struct {
	State   State  `json:"state"`
	Version string `json:"version"`
	Serving string `json:"serving,omitempty"`
	Claimed bool   `json:"claimed"`
}
