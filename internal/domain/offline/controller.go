package offline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// offlineStub is served for scripts that cannot be loaded; it only logs.
const offlineStub = `console.log("Failed to load script: Offline mode");`

// Config describes the shell the controller caches.
type Config struct {
	// Version names the cache store. Bumping it is the only upgrade mechanism.
	Version string

	// Scope is the base URL manifest entries and documents are resolved against.
	Scope *url.URL

	// Manifest lists the shell assets fetched on install.
	Manifest []string

	ShellDocument     string
	OfflineDocument   string
	DefaultStylesheet string
	PlaceholderIcon   string

	// LivenessPath is always sent to the network and never cached.
	LivenessPath string

	// SkipWaiting activates a freshly installed version without waiting for a message.
	SkipWaiting bool

	// InstallConcurrency bounds parallel manifest fetches.
	InstallConcurrency int
}

// DefaultConfig returns the configuration for the radio shell served at scope.
func DefaultConfig(scope *url.URL, manifest []string) Config {
	return Config{
		Version:            DefaultVersion,
		Scope:              scope,
		Manifest:           manifest,
		ShellDocument:      "index.html",
		OfflineDocument:    "offline.html",
		DefaultStylesheet:  "styles/main.css",
		PlaceholderIcon:    "icons/icon-192x192.png",
		LivenessPath:       "/ping",
		SkipWaiting:        true,
		InstallConcurrency: 4,
	}
}

// Controller arbitrates between the versioned cache and the network.
type Controller struct {
	cfg     Config
	fetcher Fetcher
	storage CacheStorage

	mu      sync.RWMutex
	state   State
	serving string
	claimed bool
}

// NewController creates a controller. A version recorded as active by a previous run
// keeps serving until a newer version activates.
func NewController(ctx context.Context, cfg Config, fetcher Fetcher, storage CacheStorage) (*Controller, error) {
	if cfg.Version == "" {
		return nil, errors.New("offline: version must not be empty")
	}
	if cfg.Scope == nil || !cfg.Scope.IsAbs() {
		return nil, errors.New("offline: scope must be an absolute url")
	}
	if cfg.InstallConcurrency <= 0 {
		cfg.InstallConcurrency = 4
	}

	active, err := storage.ActiveVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read active version: %w", err)
	}

	c := &Controller{
		cfg:     cfg,
		fetcher: fetcher,
		storage: storage,
		state:   StateIdle,
		serving: active,
	}
	if active == cfg.Version {
		c.state = StateActive
		c.claimed = true
	}
	return c, nil
}

// Status returns a snapshot of the lifecycle.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{
		State:   c.state,
		Version: c.cfg.Version,
		Serving: c.serving,
		Claimed: c.claimed,
	}
}

// Resolve turns a manifest-relative path into the absolute URL it is cached under.
func (c *Controller) Resolve(p string) string {
	ref, err := url.Parse(p)
	if err != nil {
		return p
	}
	return c.cfg.Scope.ResolveReference(ref).String()
}

// Install fetches every manifest entry and stores them in the current version in one
// step. If any entry fails, no entry is stored, the controller becomes redundant and the
// previously active version keeps serving.
func (c *Controller) Install(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateInstalling {
		c.mu.Unlock()
		return fmt.Errorf("%w: install already in progress", ErrInstallFailed)
	}
	c.state = StateInstalling
	c.mu.Unlock()

	log.Info().Str("version", c.cfg.Version).Int("assets", len(c.cfg.Manifest)).Msg("Installing offline cache")

	if err := c.install(ctx); err != nil {
		c.setState(StateRedundant)
		log.Error().Err(err).Str("version", c.cfg.Version).Msg("Offline cache install failed")
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	c.setState(StateWaiting)
	log.Info().Str("version", c.cfg.Version).Msg("Offline cache installed")

	if c.cfg.SkipWaiting {
		return c.Activate(ctx)
	}
	return nil
}

func (c *Controller) install(ctx context.Context) error {
	if err := c.storage.Create(ctx, c.cfg.Version); err != nil {
		return fmt.Errorf("open cache %s: %w", c.cfg.Version, err)
	}

	var (
		mu      sync.Mutex
		entries = make(map[string]*Response, len(c.cfg.Manifest))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.InstallConcurrency)
	for _, p := range c.cfg.Manifest {
		key := c.Resolve(p)
		g.Go(func() error {
			req, err := NewRequest(http.MethodGet, key)
			if err != nil {
				return err
			}
			resp, err := c.fetcher.Fetch(gctx, req)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", key, err)
			}
			if resp.Status != http.StatusOK {
				return fmt.Errorf("fetch %s: status %d", key, resp.Status)
			}
			mu.Lock()
			entries[key] = resp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := c.storage.PutAll(ctx, c.cfg.Version, entries); err != nil {
		return fmt.Errorf("store manifest: %w", err)
	}
	return nil
}

// Activate deletes every other cache version, records the current one as active and
// takes control of all requests.
func (c *Controller) Activate(ctx context.Context) error {
	c.mu.RLock()
	state := c.state
	c.mu.RUnlock()
	if state != StateWaiting && state != StateActive {
		return ErrNotWaiting
	}

	versions, err := c.storage.Versions(ctx)
	if err != nil {
		return fmt.Errorf("list caches: %w", err)
	}
	for _, v := range versions {
		if v == c.cfg.Version {
			continue
		}
		log.Info().Str("version", v).Msg("Deleting old offline cache")
		if err := c.storage.Delete(ctx, v); err != nil {
			return fmt.Errorf("delete cache %s: %w", v, err)
		}
	}

	if err := c.storage.SetActiveVersion(ctx, c.cfg.Version); err != nil {
		return fmt.Errorf("record active version: %w", err)
	}

	c.mu.Lock()
	c.state = StateActive
	c.serving = c.cfg.Version
	c.claimed = true
	c.mu.Unlock()

	log.Info().Str("version", c.cfg.Version).Msg("Offline cache activated")
	return nil
}

// HandleMessage processes a message from the page.
func (c *Controller) HandleMessage(ctx context.Context, msg Message) error {
	switch msg.Type {
	case MessageSkipWaiting:
		c.mu.RLock()
		state := c.state
		c.mu.RUnlock()
		if state != StateWaiting {
			log.Debug().Str("state", string(state)).Msg("Skip waiting ignored")
			return nil
		}
		return c.Activate(ctx)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
}

// Fetch answers an intercepted request.
func (c *Controller) Fetch(ctx context.Context, req *Request) (*Result, error) {
	c.mu.RLock()
	serving := c.serving
	c.mu.RUnlock()

	if serving == "" || (req.Method != http.MethodGet && !c.isLiveness(req)) {
		return c.network(ctx, req)
	}

	switch {
	case c.isLiveness(req):
		return c.fetchLiveness(ctx, req)
	case req.IsNavigation():
		return c.fetchNavigation(ctx, serving, req)
	default:
		return c.fetchAsset(ctx, serving, req)
	}
}

func (c *Controller) isLiveness(req *Request) bool {
	return c.cfg.LivenessPath != "" && strings.HasSuffix(req.URL.Path, c.cfg.LivenessPath)
}

func (c *Controller) network(ctx context.Context, req *Request) (*Result, error) {
	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	return &Result{Response: resp, Source: SourceNetwork}, nil
}

func (c *Controller) fetchLiveness(ctx context.Context, req *Request) (*Result, error) {
	resp, err := c.fetcher.Fetch(ctx, req)
	if err == nil {
		return &Result{Response: resp, Source: SourceNetwork}, nil
	}

	log.Debug().Err(err).Msg("Liveness request failed, server offline")
	return &Result{
		Response: &Response{
			Status: http.StatusOK,
			Header: http.Header{"Content-Type": []string{"application/json"}},
			Body:   []byte(`{"status":"offline"}`),
		},
		Source: SourceSynthetic,
	}, nil
}

func (c *Controller) fetchNavigation(ctx context.Context, serving string, req *Request) (*Result, error) {
	resp, err := c.fetcher.Fetch(ctx, req)
	if err == nil {
		return &Result{Response: resp, Source: SourceNetwork}, nil
	}

	if cached, merr := c.match(ctx, serving, c.Resolve(c.cfg.ShellDocument)); merr == nil {
		log.Debug().Str("url", req.Key()).Msg("Serving cached shell for offline navigation")
		return &Result{Response: cached, Source: SourceFallback}, nil
	}
	if cached, merr := c.match(ctx, serving, c.Resolve(c.cfg.OfflineDocument)); merr == nil {
		log.Debug().Str("url", req.Key()).Msg("Serving offline page")
		return &Result{Response: cached, Source: SourceFallback}, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNetwork, err)
}

func (c *Controller) fetchAsset(ctx context.Context, serving string, req *Request) (*Result, error) {
	for _, key := range []string{req.NormalizedKey(), req.Key()} {
		if cached, err := c.match(ctx, serving, key); err == nil {
			log.Debug().Str("url", req.Key()).Msg("Cache hit")
			return &Result{Response: cached, Source: SourceCache}, nil
		}
	}

	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return c.fallback(ctx, serving, req, err)
	}

	if resp.Status == http.StatusOK {
		c.store(ctx, serving, req, resp)
	}
	return &Result{Response: resp, Source: SourceNetwork}, nil
}

// store keeps a network response in the version that was serving when the request
// started. An activation that replaced that version meanwhile wins: the response is
// dropped rather than bringing the deleted version back.
func (c *Controller) store(ctx context.Context, serving string, req *Request, resp *Response) {
	c.mu.RLock()
	current := c.serving
	c.mu.RUnlock()
	if current != serving {
		log.Debug().Str("url", req.Key()).Str("version", serving).Msg("Cache version replaced during fetch, not storing")
		return
	}

	err := c.storage.Put(ctx, serving, req.Key(), resp)
	switch {
	case errors.Is(err, ErrNoVersion):
		log.Debug().Str("url", req.Key()).Str("version", serving).Msg("Cache version deleted during fetch, not storing")
	case err != nil:
		log.Warn().Err(err).Str("url", req.Key()).Msg("Failed to cache response")
	default:
		log.Debug().Str("url", req.Key()).Msg("Cached network response")
	}
}

func (c *Controller) fallback(ctx context.Context, serving string, req *Request, cause error) (*Result, error) {
	var path string
	switch req.Kind() {
	case KindStyle:
		path = c.cfg.DefaultStylesheet
	case KindImage:
		path = c.cfg.PlaceholderIcon
	case KindScript:
		log.Debug().Str("url", req.Key()).Msg("Script fetch failed, serving stub")
		return &Result{
			Response: &Response{
				Status: http.StatusOK,
				Header: http.Header{"Content-Type": []string{"application/javascript"}},
				Body:   []byte(offlineStub),
			},
			Source: SourceSynthetic,
		}, nil
	}

	if path != "" {
		if cached, err := c.match(ctx, serving, c.Resolve(path)); err == nil {
			log.Debug().Str("url", req.Key()).Str("fallback", path).Msg("Serving fallback asset")
			return &Result{Response: cached, Source: SourceFallback}, nil
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrNetwork, cause)
}

func (c *Controller) match(ctx context.Context, version, key string) (*Response, error) {
	resp, err := c.storage.Match(ctx, version, key)
	if err != nil {
		if !errors.Is(err, ErrNotCached) {
			log.Warn().Err(err).Str("key", key).Msg("Cache lookup failed")
		}
		return nil, err
	}
	return resp, nil
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}
