package model

import (
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	handle *Handle
	err    error
}

// Cache loads model artifacts at most once per path and hands every caller
// the same Handle. Failed loads are remembered for the life of the cache.
type Cache struct {
	opener Opener
	labels []Label

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCache(opener Opener, labels []Label) *Cache {
	return &Cache{
		opener:  opener,
		labels:  append([]Label(nil), labels...),
		entries: make(map[string]cacheEntry),
	}
}

func (c *Cache) lookup(key string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

// Load returns the handle for path, loading it on first use. Concurrent
// first loads of the same path share one in-flight load.
func (c *Cache) Load(path string) (*Handle, error) {
	key := filepath.Clean(path)
	if e, ok := c.lookup(key); ok {
		return e.handle, e.err
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		if e, ok := c.lookup(key); ok {
			return e.handle, e.err
		}
		h, err := c.load(key)

		c.mu.Lock()
		c.entries[key] = cacheEntry{handle: h, err: err}
		c.mu.Unlock()
		return h, err
	})
	if shared {
		slog.Debug("model load shared", "path", key)
	}
	if err != nil {
		return nil, err
	}
	return v.(*Handle), nil
}

func (c *Cache) load(path string) (*Handle, error) {
	start := time.Now()
	if err := Check(path); err != nil {
		slog.Warn("model artifact rejected", "path", path, "error", err)
		return nil, err
	}

	runner, sig, err := c.opener.Open(path)
	if err != nil {
		return nil, &Error{Kind: ErrArtifactInvalid, Err: err}
	}
	input, err := checkSignature(sig, c.labels)
	if err != nil {
		if cerr := runner.Close(); cerr != nil {
			slog.Warn("closing rejected model", "path", path, "error", cerr)
		}
		return nil, &Error{Kind: ErrArtifactInvalid, Err: err}
	}

	slog.Info("model loaded", "path", path, "input", input, "output", sig.Output, "took", time.Since(start))
	return &Handle{
		path:   path,
		labels: c.labels,
		input:  input,
		runner: runner,
	}, nil
}

// Close releases every loaded model. The cache must not be used afterwards.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key, e := range c.entries {
		if e.handle != nil {
			errs = append(errs, e.handle.runner.Close())
		}
		delete(c.entries, key)
	}
	return errors.Join(errs...)
}
