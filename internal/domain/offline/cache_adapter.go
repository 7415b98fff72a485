package offline

import (
	"context"
	"errors"

	"github.com/edumarques81/radiowave-backend/internal/infra/shellcache"
)

// ShellCacheAdapter adapts shellcache.Store to the CacheStorage interface.
type ShellCacheAdapter struct {
	store *shellcache.Store
}

// NewShellCacheAdapter creates a new adapter for shellcache.Store.
func NewShellCacheAdapter(store *shellcache.Store) *ShellCacheAdapter {
	return &ShellCacheAdapter{store: store}
}

func (a *ShellCacheAdapter) Versions(ctx context.Context) ([]string, error) {
	return a.store.Versions(ctx)
}

func (a *ShellCacheAdapter) Create(ctx context.Context, version string) error {
	return a.store.Create(ctx, version)
}

func (a *ShellCacheAdapter) Delete(ctx context.Context, version string) error {
	return a.store.Delete(ctx, version)
}

// Match returns the response stored under key, or ErrNotCached.
func (a *ShellCacheAdapter) Match(ctx context.Context, version, key string) (*Response, error) {
	entry, err := a.store.Get(ctx, version, key)
	if errors.Is(err, shellcache.ErrNotFound) {
		return nil, ErrNotCached
	}
	if err != nil {
		return nil, err
	}
	return &Response{Status: entry.Status, Header: entry.Header, Body: entry.Body}, nil
}

// Put stores one response, or returns ErrNoVersion when the version is gone.
func (a *ShellCacheAdapter) Put(ctx context.Context, version, key string, resp *Response) error {
	return storeErr(a.store.Put(ctx, version, key, toEntry(resp)))
}

func (a *ShellCacheAdapter) PutAll(ctx context.Context, version string, entries map[string]*Response) error {
	converted := make(map[string]shellcache.Entry, len(entries))
	for key, resp := range entries {
		converted[key] = toEntry(resp)
	}
	return storeErr(a.store.PutAll(ctx, version, converted))
}

// ActiveVersion returns the version recorded as active.
func (a *ShellCacheAdapter) ActiveVersion(ctx context.Context) (string, error) {
	return a.store.ActiveVersion(ctx)
}

// SetActiveVersion records version as active.
func (a *ShellCacheAdapter) SetActiveVersion(ctx context.Context, version string) error {
	return a.store.SetActiveVersion(ctx, version)
}

func storeErr(err error) error {
	if errors.Is(err, shellcache.ErrNotFound) {
		return ErrNoVersion
	}
	return err
}

func toEntry(resp *Response) shellcache.Entry {
	return shellcache.Entry{Status: resp.Status, Header: resp.Header, Body: resp.Body}
}
