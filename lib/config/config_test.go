// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
homeserver_url: https://matrix.example.org
state_dir: /var/lib/previewer
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Crawler.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q, want default", cfg.Crawler.UserAgent)
	}
	if cfg.Crawler.Timeout.Std() != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", cfg.Crawler.Timeout.Std())
	}
	if cfg.Cache.RefetchInterval.Std() != time.Hour {
		t.Errorf("RefetchInterval = %v, want 1h", cfg.Cache.RefetchInterval.Std())
	}
	if cfg.Cache.FailureInterval.Std() != 10*time.Minute {
		t.Errorf("FailureInterval = %v, want 10m", cfg.Cache.FailureInterval.Std())
	}
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
homeserver_url: https://matrix.example.org
state_dir: /var/lib/previewer
crawler:
  timeout: 5s
  max_body_size: 1048576
  max_concurrent: 2
  proxy: socks5://127.0.0.1:9050
cache:
  refetch_interval: 2h
  failure_interval: 5m
rewrite:
  - pattern: '^https?://(?:www\.)?twitter\.com/(.*)$'
    target: 'https://nitter.example.net/$1'
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Crawler.Timeout.Std() != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Crawler.Timeout.Std())
	}
	if cfg.Crawler.MaxBodySize != 1048576 {
		t.Errorf("MaxBodySize = %d, want 1048576", cfg.Crawler.MaxBodySize)
	}
	if cfg.Crawler.Proxy != "socks5://127.0.0.1:9050" {
		t.Errorf("Proxy = %q", cfg.Crawler.Proxy)
	}
	if cfg.Cache.RefetchInterval.Std() != 2*time.Hour {
		t.Errorf("RefetchInterval = %v, want 2h", cfg.Cache.RefetchInterval.Std())
	}
	if len(cfg.Rewrite) != 1 {
		t.Fatalf("len(Rewrite) = %d, want 1", len(cfg.Rewrite))
	}
	if cfg.Rewrite[0].Target != "https://nitter.example.net/$1" {
		t.Errorf("Rewrite[0].Target = %q", cfg.Rewrite[0].Target)
	}
}

func TestLoadFileExpandsStateDir(t *testing.T) {
	t.Setenv("PREVIEWER_TEST_HOME", "/home/previewer")
	path := writeConfig(t, `
homeserver_url: https://matrix.example.org
state_dir: ${PREVIEWER_TEST_HOME}/.local/state/previewer
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.StateDir != "/home/previewer/.local/state/previewer" {
		t.Errorf("StateDir = %q", cfg.StateDir)
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing homeserver", func(c *Config) { c.HomeserverURL = "" }},
		{"relative homeserver", func(c *Config) { c.HomeserverURL = "matrix.example.org" }},
		{"missing state dir", func(c *Config) { c.StateDir = "" }},
		{"zero timeout", func(c *Config) { c.Crawler.Timeout = 0 }},
		{"zero body size", func(c *Config) { c.Crawler.MaxBodySize = 0 }},
		{"zero concurrency", func(c *Config) { c.Crawler.MaxConcurrent = 0 }},
		{"proxy without host", func(c *Config) { c.Crawler.Proxy = "http://" }},
		{"proxy with unsupported scheme", func(c *Config) { c.Crawler.Proxy = "ftp://proxy.example.org:3128" }},
		{"failure interval above refetch", func(c *Config) {
			c.Cache.FailureInterval = Duration(2 * time.Hour)
		}},
		{"rewrite without pattern", func(c *Config) {
			c.Rewrite = []RewriteRule{{Target: "https://example.org/"}}
		}},
		{"rewrite with invalid pattern", func(c *Config) {
			c.Rewrite = []RewriteRule{{Pattern: "([unclosed", Target: "x"}}
		}},
		{"rewrite with no effect", func(c *Config) {
			c.Rewrite = []RewriteRule{{Pattern: "^https://example"}}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.HomeserverURL = "https://matrix.example.org"
			cfg.StateDir = "/var/lib/previewer"
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate succeeded, want error")
			}
		})
	}
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
homeserver_url: https://matrix.example.org
state_dir: /var/lib/previewer
crawler:
  timeout: not-a-duration
`)
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile with invalid duration succeeded, want error")
	}
}
