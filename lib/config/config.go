// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the bot.
//
// Configuration is loaded from a single file passed via the --config
// flag. There are no fallbacks, no ~/.config discovery, and no
// automatic file search. This ensures deterministic, auditable
// configuration with no hidden overrides.
//
// Environment variable expansion (${HOME}, ${XDG_STATE_HOME}) is
// performed on the state directory path after loading. No other
// environment variables override config values.
//
// The loaded Config is an immutable snapshot for the process lifetime.
// Changing rewrite rules or crawler limits requires a restart.
package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the bot.
type Config struct {
	// HomeserverURL is the base URL of the Matrix homeserver
	// (e.g., "https://matrix.example.org").
	HomeserverURL string `yaml:"homeserver_url"`

	// StateDir holds the bot's persistent state: session.json with the
	// Matrix credentials, and url-previewer.sqlite3 with the reply
	// mapping. Supports ${VAR} expansion.
	StateDir string `yaml:"state_dir"`

	// Crawler configures the HTTP fetcher for preview pages.
	Crawler CrawlerConfig `yaml:"crawler"`

	// Cache configures preview result freshness windows.
	Cache CacheConfig `yaml:"cache"`

	// Rewrite lists URL rewrite rules, evaluated in order; the first
	// matching pattern wins. List the most specific patterns first.
	Rewrite []RewriteRule `yaml:"rewrite"`
}

// CrawlerConfig configures the preview page fetcher.
type CrawlerConfig struct {
	// UserAgent identifies the bot to website operators. Stable and
	// documented so operators can apply their own rate limiting.
	UserAgent string `yaml:"user_agent"`

	// AcceptLanguage is sent on every fetch so sites serve a
	// predictable localization.
	AcceptLanguage string `yaml:"accept_language"`

	// Timeout bounds the wall-clock time of a single fetch, covering
	// both connection and body download.
	Timeout Duration `yaml:"timeout"`

	// MaxBodySize bounds the downloaded page body in bytes. Pages
	// larger than this fail with a TooLarge error — metadata lives in
	// <head>, so a page that big is not worth previewing anyway.
	MaxBodySize int64 `yaml:"max_body_size"`

	// MaxRedirects caps the redirect chain to avoid redirect loops.
	MaxRedirects int `yaml:"max_redirects"`

	// MaxConcurrent bounds the number of simultaneous fetches.
	MaxConcurrent int64 `yaml:"max_concurrent"`

	// RequestsPerSecond paces outgoing fetches across all rooms.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Proxy routes all preview fetches through an http, https, or
	// socks5 proxy. Empty means direct connections. Sync traffic to
	// the homeserver is never proxied.
	Proxy string `yaml:"proxy"`
}

// CacheConfig configures preview result freshness.
type CacheConfig struct {
	// RefetchInterval is the minimum interval between two fetches of
	// the same normalized URL. A cached success younger than this is
	// always reused.
	RefetchInterval Duration `yaml:"refetch_interval"`

	// FailureInterval is the validity window for cached failures.
	// Shorter than RefetchInterval so a transiently unreachable site
	// gets previewed once it recovers, while still avoiding hammering
	// an unreachable host.
	FailureInterval Duration `yaml:"failure_interval"`

	// MaxEntries bounds the number of cached URLs. When exceeded, the
	// oldest entries are evicted.
	MaxEntries int `yaml:"max_entries"`
}

// RewriteRule maps URLs matching a pattern to an alternate fetch
// target and/or alternate extraction properties. Exists so operators
// can cope with sites whose standard markup is unsuitable for preview
// extraction (client-rendered pages) by substituting a fetch target
// that serves static markup.
type RewriteRule struct {
	// Pattern is an RE2 regular expression matched against the
	// normalized URL string. It must match the entire URL (patterns
	// are anchored at both ends), so use capture groups to carry the
	// path into the target: pattern 'https://twitter\.com/(.*)' with
	// target 'https://nitter.example.net/$1'.
	Pattern string `yaml:"pattern"`

	// Target is the replacement template. Supports $1 group
	// references. Empty means the URL is fetched unmodified (useful
	// when only the extraction properties change).
	Target string `yaml:"target"`

	// TitleProperty overrides the meta property consulted for the
	// title (default "og:title").
	TitleProperty string `yaml:"title_property"`

	// DescriptionProperty overrides the meta property consulted for
	// the description (default "og:description").
	DescriptionProperty string `yaml:"description_property"`
}

// Duration wraps time.Duration with YAML string parsing ("30s", "1h").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultUserAgent is the stable, documented user-agent token. The
// "like ..." suffix coaxes sites that special-case known chat bots
// into serving their Open Graph markup.
const DefaultUserAgent = "Mozilla/5.0 (compatible; matrix-url-previewer-bot; " +
	"+https://github.com/Enovale/matrix-url-previewer-bot; " +
	"like Discordbot, TelegramBot, Twitterbot)"

// Default returns a Config with production defaults. LoadFile applies
// these for any field the file leaves unset.
func Default() Config {
	return Config{
		Crawler: CrawlerConfig{
			UserAgent:         DefaultUserAgent,
			AcceptLanguage:    "en-US,en;q=0.9",
			Timeout:           Duration(30 * time.Second),
			MaxBodySize:       10 << 20,
			MaxRedirects:      5,
			MaxConcurrent:     8,
			RequestsPerSecond: 4,
		},
		Cache: CacheConfig{
			RefetchInterval: Duration(time.Hour),
			FailureInterval: Duration(10 * time.Minute),
			MaxEntries:      4096,
		},
	}
}

// LoadFile reads, expands, defaults, and validates the configuration
// file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.StateDir = os.ExpandEnv(cfg.StateDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the configuration for structural errors. Called by
// LoadFile; exported for tests that build configs programmatically.
func (c *Config) Validate() error {
	if c.HomeserverURL == "" {
		return fmt.Errorf("homeserver_url is required")
	}
	parsed, err := url.Parse(c.HomeserverURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("homeserver_url %q is not an absolute URL", c.HomeserverURL)
	}
	if c.StateDir == "" {
		return fmt.Errorf("state_dir is required")
	}
	if c.Crawler.Timeout <= 0 {
		return fmt.Errorf("crawler.timeout must be positive")
	}
	if c.Crawler.MaxBodySize <= 0 {
		return fmt.Errorf("crawler.max_body_size must be positive")
	}
	if c.Crawler.MaxRedirects < 0 {
		return fmt.Errorf("crawler.max_redirects must not be negative")
	}
	if c.Crawler.MaxConcurrent <= 0 {
		return fmt.Errorf("crawler.max_concurrent must be positive")
	}
	if c.Crawler.RequestsPerSecond <= 0 {
		return fmt.Errorf("crawler.requests_per_second must be positive")
	}
	if c.Crawler.Proxy != "" {
		proxy, err := url.Parse(c.Crawler.Proxy)
		if err != nil || proxy.Host == "" {
			return fmt.Errorf("crawler.proxy %q is not an absolute URL", c.Crawler.Proxy)
		}
		switch proxy.Scheme {
		case "http", "https", "socks5":
		default:
			return fmt.Errorf("crawler.proxy scheme %q is not supported (http, https, socks5)", proxy.Scheme)
		}
	}
	if c.Cache.RefetchInterval <= 0 {
		return fmt.Errorf("cache.refetch_interval must be positive")
	}
	if c.Cache.FailureInterval <= 0 {
		return fmt.Errorf("cache.failure_interval must be positive")
	}
	if c.Cache.FailureInterval > c.Cache.RefetchInterval {
		return fmt.Errorf("cache.failure_interval must not exceed cache.refetch_interval")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive")
	}

	for i, rule := range c.Rewrite {
		if rule.Pattern == "" {
			return fmt.Errorf("rewrite[%d]: pattern is required", i)
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("rewrite[%d]: invalid pattern: %w", i, err)
		}
		if rule.Target == "" && rule.TitleProperty == "" && rule.DescriptionProperty == "" {
			return fmt.Errorf("rewrite[%d]: rule has no effect (no target or extraction override)", i)
		}
	}
	return nil
}
