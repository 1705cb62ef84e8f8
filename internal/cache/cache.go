package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Cache stores fetched resource bodies keyed by a per-module cache
// identifier. Freshness is decided at read time against the TTL the caller
// supplies, so a long-idle caller naturally refetches on its next lookup
// after expiry. One entry exists per remote resource, not per query.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
	client  *http.Client
	logger  *logrus.Entry

	// now is swapped out by tests to control entry age.
	now func() time.Time
}

type entry struct {
	body     []byte
	storedAt time.Time
}

// FetchOptions describe one remote list resource.
type FetchOptions struct {
	URL       string
	TTL       time.Duration
	Timeout   time.Duration
	UserAgent string
}

// New returns an empty cache. State lives for the process only.
func New(logger *logrus.Entry) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		client:  &http.Client{},
		logger:  logger,
		now:     time.Now,
	}
}

// Get returns the stored body for key while it is younger than ttl.
// An expired entry is treated as absent.
func (c *Cache) Get(key string, ttl time.Duration) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.storedAt) >= ttl {
		return nil, false
	}
	return e.body, true
}

// Put stores body under key, replacing any previous entry whole.
func (c *Cache) Put(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{body: body, storedAt: c.now()}
}

// FetchAndCache returns the cached body for key when still fresh, otherwise
// performs a single GET and stores the result before returning it.
// Concurrent refreshes for the same key collapse to one in-flight request;
// the other callers wait and share its outcome. A non-2xx response or an
// empty body is a fetch failure and nothing is cached.
func (c *Cache) FetchAndCache(ctx context.Context, key string, opts FetchOptions) ([]byte, error) {
	if body, ok := c.Get(key, opts.TTL); ok {
		return body, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A refresh may have landed while this caller queued behind the
		// in-flight request.
		if body, ok := c.Get(key, opts.TTL); ok {
			return body, nil
		}
		body, err := c.fetch(ctx, opts)
		if err != nil {
			return nil, err
		}
		c.Put(key, body)
		return body, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Cache) fetch(ctx context.Context, opts FetchOptions) ([]byte, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", opts.URL, err)
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	if c.logger != nil {
		c.logger.WithField("url", opts.URL).Debug("fetching remote list")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", opts.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", opts.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body from %s: %w", opts.URL, err)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("fetch %s: empty body", opts.URL)
	}
	return body, nil
}
