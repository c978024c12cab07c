// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/Enovale/matrix-url-previewer-bot/lib/config"
)

// Page is a fetched HTML document. ContentType is the raw
// Content-Type header, kept for charset detection during extraction.
type Page struct {
	// URL is the final URL after redirects.
	URL         string
	Body        []byte
	ContentType string
}

var errRedirectLimit = errors.New("redirect limit reached")

// Fetcher downloads pages under the crawler limits: a wall-clock
// timeout, a redirect cap, a body size cap, a global concurrency
// bound, and request pacing. One Fetcher is shared by all rooms.
type Fetcher struct {
	client      *http.Client
	limiter     *rate.Limiter
	concurrency *semaphore.Weighted
	userAgent   string
	acceptLang  string
	maxBodySize int64
	logger      *slog.Logger
}

// NewFetcher creates a fetcher from the crawler configuration.
func NewFetcher(cfg config.CrawlerConfig, logger *slog.Logger) (*Fetcher, error) {
	maxRedirects := cfg.MaxRedirects
	client := &http.Client{
		Timeout: cfg.Timeout.Std(),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errRedirectLimit
			}
			return nil
		},
	}
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("preview: invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	}
	return &Fetcher{
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		concurrency: semaphore.NewWeighted(cfg.MaxConcurrent),
		userAgent:   cfg.UserAgent,
		acceptLang:  cfg.AcceptLanguage,
		maxBodySize: cfg.MaxBodySize,
		logger:      logger,
	}, nil
}

// CloseIdleConnections releases pooled connections.
func (f *Fetcher) CloseIdleConnections() {
	f.client.CloseIdleConnections()
}

// Fetch downloads spec.Target and returns the page body.
// Failures come back as *FetchError; the caller decides whether they
// are worth logging.
func (f *Fetcher) Fetch(ctx context.Context, spec FetchSpec) (*Page, error) {
	if err := f.concurrency.Acquire(ctx, 1); err != nil {
		return nil, &FetchError{Kind: FetchTimeout, cause: err}
	}
	defer f.concurrency.Release(1)

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, &FetchError{Kind: FetchTimeout, cause: err}
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.Target, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchConnectionFailed, cause: err}
	}
	request.Header.Set("User-Agent", f.userAgent)
	if f.acceptLang != "" {
		request.Header.Set("Accept-Language", f.acceptLang)
	}
	request.Header.Set("Accept", "text/html,application/xhtml+xml")

	f.logger.Debug("fetching page", "url", spec.Target)

	response, err := f.client.Do(request)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &FetchError{Kind: FetchHTTPStatus, Status: response.StatusCode}
	}

	contentType := response.Header.Get("Content-Type")
	if !isHTMLContentType(contentType) {
		return nil, &FetchError{
			Kind:  FetchUnsupported,
			cause: fmt.Errorf("content type %q", contentType),
		}
	}

	// Read one byte past the limit to distinguish "exactly at the
	// limit" from "over it".
	body, err := io.ReadAll(io.LimitReader(response.Body, f.maxBodySize+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, &FetchError{Kind: FetchTooLarge}
	}

	final := spec.Target
	if response.Request != nil && response.Request.URL != nil {
		final = response.Request.URL.String()
	}
	return &Page{URL: final, Body: body, ContentType: contentType}, nil
}

func classifyTransportError(err error) *FetchError {
	if errors.Is(err, errRedirectLimit) {
		return &FetchError{Kind: FetchTooManyRedirects, cause: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &FetchError{Kind: FetchTimeout, cause: err}
	}
	var timeoutErr interface{ Timeout() bool }
	if errors.As(err, &timeoutErr) && timeoutErr.Timeout() {
		return &FetchError{Kind: FetchTimeout, cause: err}
	}
	return &FetchError{Kind: FetchConnectionFailed, cause: err}
}

func isHTMLContentType(contentType string) bool {
	if contentType == "" {
		// Servers that omit the header get the benefit of the doubt;
		// extraction will fail cleanly on non-HTML bytes.
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}
