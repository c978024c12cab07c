// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Enovale/matrix-url-previewer-bot/lib/clock"
	"github.com/Enovale/matrix-url-previewer-bot/lib/config"
)

// PageFetcher is the fetch dependency of the cache. *Fetcher satisfies
// it; tests substitute a fake.
type PageFetcher interface {
	Fetch(ctx context.Context, spec FetchSpec) (*Page, error)
}

// entry is a cache slot. An entry with a nil done channel is settled;
// otherwise a fetch is in flight and done closes when it settles.
// metadata, err, and fetchedAt are written exactly once, before done
// is closed, and are immutable afterwards.
type entry struct {
	done      chan struct{}
	metadata  Metadata
	err       error
	fetchedAt time.Time
}

func (e *entry) inFlight() bool {
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

// Cache deduplicates preview lookups. Concurrent requests for the same
// normalized URL share one fetch, successful results are reused for
// the refetch interval, and failures are reused for the shorter
// failure interval so a broken site is not hammered.
type Cache struct {
	rules   *Rules
	fetcher PageFetcher
	clock   clock.Clock
	logger  *slog.Logger

	refetchInterval time.Duration
	failureInterval time.Duration
	maxEntries      int

	// rootCtx bounds fetch lifetimes. Fetches deliberately do not run
	// on the requesting caller's context: a caller whose interest
	// lapses (a superseded edit) must not kill a fetch another caller,
	// or the cache itself, still wants.
	rootCtx context.Context

	mu      sync.Mutex
	entries map[string]*entry
}

// NewCache creates a preview cache. rootCtx bounds all fetch work; when
// it is canceled, in-flight fetches fail and settle as errors.
func NewCache(rootCtx context.Context, cfg config.CacheConfig, rules *Rules, fetcher PageFetcher, clk clock.Clock, logger *slog.Logger) *Cache {
	cache := &Cache{
		rules:           rules,
		fetcher:         fetcher,
		clock:           clk,
		logger:          logger,
		refetchInterval: cfg.RefetchInterval.Std(),
		failureInterval: cfg.FailureInterval.Std(),
		maxEntries:      cfg.MaxEntries,
		rootCtx:         rootCtx,
		entries:         make(map[string]*entry),
	}
	return cache
}

// GetOrFetch returns the preview metadata for a normalized URL,
// fetching it if no fresh cached outcome exists. ctx cancellation
// abandons this caller's wait only; the underlying fetch continues and
// its result is cached for the next caller.
func (c *Cache) GetOrFetch(ctx context.Context, normalizedURL string) (Metadata, error) {
	c.mu.Lock()

	existing := c.entries[normalizedURL]
	if existing != nil {
		if existing.inFlight() {
			c.mu.Unlock()
			return c.wait(ctx, existing)
		}
		if c.fresh(existing) {
			c.mu.Unlock()
			return existing.metadata, existing.err
		}
	}

	// Stale or absent: this caller starts the fetch.
	slot := &entry{done: make(chan struct{})}
	c.entries[normalizedURL] = slot
	c.evictLocked()
	c.mu.Unlock()

	go c.fill(normalizedURL, slot)
	return c.wait(ctx, slot)
}

// fresh reports whether a settled entry is still within its reuse
// interval. Must be called with the cache locked.
func (c *Cache) fresh(e *entry) bool {
	age := c.clock.Now().Sub(e.fetchedAt)
	if e.err != nil {
		return age < c.failureInterval
	}
	return age < c.refetchInterval
}

func (c *Cache) wait(ctx context.Context, e *entry) (Metadata, error) {
	select {
	case <-e.done:
		return e.metadata, e.err
	case <-ctx.Done():
		return Metadata{}, ctx.Err()
	}
}

// fill resolves, fetches, and extracts, then settles the entry. It
// runs on the cache's root context.
func (c *Cache) fill(normalizedURL string, e *entry) {
	metadata, err := c.lookup(c.rootCtx, normalizedURL)
	if err != nil {
		c.logger.Debug("preview lookup failed", "url", normalizedURL, "error", err)
	}

	c.mu.Lock()
	e.metadata = metadata
	e.err = err
	e.fetchedAt = c.clock.Now()
	close(e.done)
	c.mu.Unlock()
}

func (c *Cache) lookup(ctx context.Context, normalizedURL string) (Metadata, error) {
	spec, err := c.rules.Resolve(normalizedURL)
	if err != nil {
		return Metadata{}, err
	}
	page, err := c.fetcher.Fetch(ctx, spec)
	if err != nil {
		return Metadata{}, err
	}
	return Extract(page, spec.Hint)
}

// evictLocked drops the oldest settled entries until the cache is back
// under its bound. In-flight entries are never evicted; waiters hold
// them by pointer anyway, so eviction only bounds memory, never tears
// a result out from under a reader.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.maxEntries {
		oldestKey := ""
		var oldest time.Time
		for key, e := range c.entries {
			if e.inFlight() {
				continue
			}
			if oldestKey == "" || e.fetchedAt.Before(oldest) {
				oldestKey = key
				oldest = e.fetchedAt
			}
		}
		if oldestKey == "" {
			return
		}
		delete(c.entries, oldestKey)
	}
}
