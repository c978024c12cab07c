// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"testing"

	"github.com/Enovale/matrix-url-previewer-bot/lib/config"
)

func TestResolve(t *testing.T) {
	rules, err := CompileRules([]config.RewriteRule{
		{
			Pattern: `https://twitter\.com/(.*)`,
			Target:  "https://nitter.example.org/$1",
		},
		{
			Pattern:             `https://example\.com/special/.*`,
			TitleProperty:       "custom:headline",
			DescriptionProperty: "custom:summary",
		},
		{
			// Later, broader rule that also matches /special/ URLs;
			// must lose to the one above.
			Pattern: `https://example\.com/.*`,
			Target:  "https://mirror.example.com/page",
		},
		{
			Pattern: `https://broken\.example/(.*)`,
			Target:  "not a url $1",
		},
	})
	if err != nil {
		t.Fatalf("CompileRules: %v", err)
	}

	t.Run("substitution", func(t *testing.T) {
		spec, err := rules.Resolve("https://twitter.com/someone/status/123")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if spec.Target != "https://nitter.example.org/someone/status/123" {
			t.Errorf("Target = %q", spec.Target)
		}
	})

	t.Run("hint only keeps target", func(t *testing.T) {
		spec, err := rules.Resolve("https://example.com/special/page")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if spec.Target != "https://example.com/special/page" {
			t.Errorf("Target = %q", spec.Target)
		}
		if spec.Hint.TitleProperty != "custom:headline" {
			t.Errorf("TitleProperty = %q", spec.Hint.TitleProperty)
		}
		if spec.Hint.DescriptionProperty != "custom:summary" {
			t.Errorf("DescriptionProperty = %q", spec.Hint.DescriptionProperty)
		}
	})

	t.Run("first match wins", func(t *testing.T) {
		spec, err := rules.Resolve("https://example.com/other")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if spec.Target != "https://mirror.example.com/page" {
			t.Errorf("Target = %q", spec.Target)
		}
	})

	t.Run("identity default", func(t *testing.T) {
		spec, err := rules.Resolve("https://unrelated.org/page")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if spec.Target != "https://unrelated.org/page" {
			t.Errorf("Target = %q", spec.Target)
		}
		if spec.Hint != (ExtractHint{}) {
			t.Errorf("Hint = %+v, want empty", spec.Hint)
		}
	})

	t.Run("partial match does not rewrite", func(t *testing.T) {
		// Pattern is anchored; a URL merely containing twitter.com
		// must not match.
		spec, err := rules.Resolve("https://evil.org/https://twitter.com/x")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if spec.Target != "https://evil.org/https://twitter.com/x" {
			t.Errorf("Target = %q", spec.Target)
		}
	})

	t.Run("invalid rewrite target", func(t *testing.T) {
		if _, err := rules.Resolve("https://broken.example/x"); err == nil {
			t.Error("expected error for rewrite producing a non-URL")
		}
	})
}

func TestCompileRulesRejectsBadPattern(t *testing.T) {
	_, err := CompileRules([]config.RewriteRule{{Pattern: `https://(`}})
	if err == nil {
		t.Fatal("expected compile error")
	}
}
