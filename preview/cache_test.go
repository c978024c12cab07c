// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Enovale/matrix-url-previewer-bot/lib/clock"
	"github.com/Enovale/matrix-url-previewer-bot/lib/config"
)

// blockingFetcher serves canned pages and can hold fetches open until
// released, for exercising the in-flight coalescing path.
type blockingFetcher struct {
	mu      sync.Mutex
	pages   map[string]*Page
	errs    map[string]error
	calls   atomic.Int64
	block   chan struct{} // if non-nil, Fetch waits on it
	started chan string   // if non-nil, Fetch announces its target
}

func (f *blockingFetcher) Fetch(ctx context.Context, spec FetchSpec) (*Page, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- spec.Target
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, &FetchError{Kind: FetchTimeout, cause: ctx.Err()}
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[spec.Target]; ok {
		return nil, err
	}
	if page, ok := f.pages[spec.Target]; ok {
		return page, nil
	}
	return nil, &FetchError{Kind: FetchHTTPStatus, Status: 404}
}

func titledPage(url, title string) *Page {
	return &Page{
		URL:         url,
		Body:        []byte(`<html><head><meta property="og:title" content="` + title + `"></head><body></body></html>`),
		ContentType: "text/html; charset=utf-8",
	}
}

func testCacheConfig() config.CacheConfig {
	return config.CacheConfig{
		RefetchInterval: config.Duration(time.Hour),
		FailureInterval: config.Duration(10 * time.Minute),
		MaxEntries:      4096,
	}
}

func newTestCache(t *testing.T, fetcher PageFetcher, clk clock.Clock, cfg config.CacheConfig) *Cache {
	t.Helper()
	rules, err := CompileRules(nil)
	if err != nil {
		t.Fatalf("CompileRules: %v", err)
	}
	return NewCache(context.Background(), cfg, rules, fetcher, clk, discardLogger())
}

func TestCacheReusesFreshSuccess(t *testing.T) {
	fetcher := &blockingFetcher{pages: map[string]*Page{
		"https://example.org/a": titledPage("https://example.org/a", "A"),
	}}
	clk := clock.Fake(time.Unix(1700000000, 0))
	cache := newTestCache(t, fetcher, clk, testCacheConfig())
	ctx := context.Background()

	first, err := cache.GetOrFetch(ctx, "https://example.org/a")
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if first.Title != "A" {
		t.Errorf("Title = %q", first.Title)
	}

	// Within the refetch interval the result is served from cache.
	clk.Advance(59 * time.Minute)
	if _, err := cache.GetOrFetch(ctx, "https://example.org/a"); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if calls := fetcher.calls.Load(); calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}

	// Past the interval the entry is stale and refetched.
	clk.Advance(2 * time.Minute)
	if _, err := cache.GetOrFetch(ctx, "https://example.org/a"); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if calls := fetcher.calls.Load(); calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
}

func TestCacheReusesFreshFailure(t *testing.T) {
	fetcher := &blockingFetcher{errs: map[string]error{
		"https://example.org/down": &FetchError{Kind: FetchHTTPStatus, Status: 503},
	}}
	clk := clock.Fake(time.Unix(1700000000, 0))
	cache := newTestCache(t, fetcher, clk, testCacheConfig())
	ctx := context.Background()

	if _, err := cache.GetOrFetch(ctx, "https://example.org/down"); err == nil {
		t.Fatal("expected error")
	}

	// Failures are cached but for the shorter failure interval.
	clk.Advance(9 * time.Minute)
	if _, err := cache.GetOrFetch(ctx, "https://example.org/down"); err == nil {
		t.Fatal("expected cached error")
	}
	if calls := fetcher.calls.Load(); calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}

	clk.Advance(2 * time.Minute)
	if _, err := cache.GetOrFetch(ctx, "https://example.org/down"); err == nil {
		t.Fatal("expected error")
	}
	if calls := fetcher.calls.Load(); calls != 2 {
		t.Errorf("fetch calls = %d, want 2", calls)
	}
}

func TestCacheCoalescesInFlight(t *testing.T) {
	fetcher := &blockingFetcher{
		pages: map[string]*Page{
			"https://example.org/slow": titledPage("https://example.org/slow", "Slow"),
		},
		block:   make(chan struct{}),
		started: make(chan string, 1),
	}
	clk := clock.Fake(time.Unix(1700000000, 0))
	cache := newTestCache(t, fetcher, clk, testCacheConfig())
	ctx := context.Background()

	const waiters = 5
	results := make(chan error, waiters)
	for n := 0; n < waiters; n++ {
		go func() {
			_, err := cache.GetOrFetch(ctx, "https://example.org/slow")
			results <- err
		}()
	}

	// Exactly one fetch starts; the rest pile onto it.
	<-fetcher.started
	close(fetcher.block)

	for n := 0; n < waiters; n++ {
		if err := <-results; err != nil {
			t.Errorf("GetOrFetch: %v", err)
		}
	}
	if calls := fetcher.calls.Load(); calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
}

func TestCacheWaiterCancellationIsLocal(t *testing.T) {
	fetcher := &blockingFetcher{
		pages: map[string]*Page{
			"https://example.org/slow": titledPage("https://example.org/slow", "Slow"),
		},
		block:   make(chan struct{}),
		started: make(chan string, 1),
	}
	clk := clock.Fake(time.Unix(1700000000, 0))
	cache := newTestCache(t, fetcher, clk, testCacheConfig())

	canceled, cancel := context.WithCancel(context.Background())
	firstResult := make(chan error, 1)
	go func() {
		_, err := cache.GetOrFetch(canceled, "https://example.org/slow")
		firstResult <- err
	}()
	<-fetcher.started

	// The first caller gives up. The fetch it started keeps going and
	// its result lands in the cache for the second caller.
	cancel()
	if err := <-firstResult; err != context.Canceled {
		t.Fatalf("canceled waiter error = %v, want context.Canceled", err)
	}

	close(fetcher.block)
	metadata, err := cache.GetOrFetch(context.Background(), "https://example.org/slow")
	if err != nil {
		t.Fatalf("GetOrFetch after cancellation: %v", err)
	}
	if metadata.Title != "Slow" {
		t.Errorf("Title = %q", metadata.Title)
	}
	if calls := fetcher.calls.Load(); calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
}

func TestCacheAppliesRewriteRules(t *testing.T) {
	// The fetcher only knows the rewritten target; a fetch of the
	// original URL would come back 404.
	fetcher := &blockingFetcher{
		pages: map[string]*Page{
			"https://mirror.test/article/42": titledPage("https://mirror.test/article/42", "Mirrored"),
		},
		started: make(chan string, 1),
	}
	rules, err := CompileRules([]config.RewriteRule{{
		Pattern: `https://example\.com/(.+)`,
		Target:  "https://mirror.test/$1",
	}})
	if err != nil {
		t.Fatalf("CompileRules: %v", err)
	}
	clk := clock.Fake(time.Unix(1700000000, 0))
	cache := NewCache(context.Background(), testCacheConfig(), rules, fetcher, clk, discardLogger())
	ctx := context.Background()

	metadata, err := cache.GetOrFetch(ctx, "https://example.com/article/42")
	if err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if target := <-fetcher.started; target != "https://mirror.test/article/42" {
		t.Errorf("fetched %q, want the rewritten target", target)
	}
	if metadata.Title != "Mirrored" {
		t.Errorf("Title = %q", metadata.Title)
	}

	// The cache is keyed by the original URL, not the fetch target.
	if _, err := cache.GetOrFetch(ctx, "https://example.com/article/42"); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if calls := fetcher.calls.Load(); calls != 1 {
		t.Errorf("fetch calls = %d, want 1", calls)
	}
}

func TestCacheEvictsOldestBeyondBound(t *testing.T) {
	fetcher := &blockingFetcher{pages: map[string]*Page{
		"https://example.org/1": titledPage("https://example.org/1", "One"),
		"https://example.org/2": titledPage("https://example.org/2", "Two"),
		"https://example.org/3": titledPage("https://example.org/3", "Three"),
	}}
	clk := clock.Fake(time.Unix(1700000000, 0))
	cfg := testCacheConfig()
	cfg.MaxEntries = 2
	cache := newTestCache(t, fetcher, clk, cfg)
	ctx := context.Background()

	for _, url := range []string{"https://example.org/1", "https://example.org/2", "https://example.org/3"} {
		if _, err := cache.GetOrFetch(ctx, url); err != nil {
			t.Fatalf("GetOrFetch(%s): %v", url, err)
		}
		clk.Advance(time.Minute)
	}
	if calls := fetcher.calls.Load(); calls != 3 {
		t.Fatalf("fetch calls = %d, want 3", calls)
	}

	// URL 1 was oldest and evicted; asking again refetches it. URL 3
	// is still resident.
	if _, err := cache.GetOrFetch(ctx, "https://example.org/1"); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if calls := fetcher.calls.Load(); calls != 4 {
		t.Errorf("fetch calls = %d, want 4 after eviction refetch", calls)
	}
	if _, err := cache.GetOrFetch(ctx, "https://example.org/3"); err != nil {
		t.Fatalf("GetOrFetch: %v", err)
	}
	if calls := fetcher.calls.Load(); calls != 4 {
		t.Errorf("fetch calls = %d, want 4 still cached", calls)
	}
}
