// Copyright 2026 The URL Previewer Bot Authors
// SPDX-License-Identifier: Apache-2.0

package preview

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/Enovale/matrix-url-previewer-bot/lib/config"
)

// ExtractHint overrides the metadata property names consulted during
// extraction. Some sites put their useful text under non-standard
// properties, and a rewrite rule can point the extractor at them.
type ExtractHint struct {
	// TitleProperty, if non-empty, replaces "og:title" as the preferred
	// title source.
	TitleProperty string
	// DescriptionProperty, if non-empty, replaces "og:description" as
	// the preferred description source.
	DescriptionProperty string
}

// FetchSpec is the outcome of resolving a URL through the rewrite
// rules: the URL to actually fetch plus any extraction hint.
type FetchSpec struct {
	Target string
	Hint   ExtractHint
}

type compiledRule struct {
	pattern *regexp.Regexp
	target  string
	hint    ExtractHint
}

// Rules is an ordered set of compiled rewrite rules. The zero value
// resolves every URL to itself.
type Rules struct {
	rules []compiledRule
}

// CompileRules compiles the configured rewrite rules. Patterns are
// anchored to the full URL so a partial match never rewrites.
func CompileRules(configured []config.RewriteRule) (*Rules, error) {
	rules := make([]compiledRule, 0, len(configured))
	for i, rule := range configured {
		pattern, err := regexp.Compile(`\A(?:` + rule.Pattern + `)\z`)
		if err != nil {
			return nil, fmt.Errorf("preview: rewrite rule %d: invalid pattern %q: %w", i, rule.Pattern, err)
		}
		rules = append(rules, compiledRule{
			pattern: pattern,
			target:  rule.Target,
			hint: ExtractHint{
				TitleProperty:       rule.TitleProperty,
				DescriptionProperty: rule.DescriptionProperty,
			},
		})
	}
	return &Rules{rules: rules}, nil
}

// Resolve maps a normalized URL to a fetch spec. Rules are tried in
// configuration order and the first matching pattern wins; a URL no
// rule matches fetches itself with no hint. A rule whose substitution
// produces an unparsable or non-http URL is an error.
func (r *Rules) Resolve(rawURL string) (FetchSpec, error) {
	for _, rule := range r.rules {
		match := rule.pattern.FindStringSubmatchIndex(rawURL)
		if match == nil {
			continue
		}

		target := rawURL
		if rule.target != "" {
			target = string(rule.pattern.ExpandString(nil, rule.target, rawURL, match))
			parsed, err := url.Parse(target)
			if err != nil {
				return FetchSpec{}, fmt.Errorf("preview: rewrite of %q produced invalid URL %q: %w", rawURL, target, err)
			}
			if parsed.Scheme != "http" && parsed.Scheme != "https" {
				return FetchSpec{}, fmt.Errorf("preview: rewrite of %q produced non-http URL %q", rawURL, target)
			}
		}
		return FetchSpec{Target: target, Hint: rule.hint}, nil
	}
	return FetchSpec{Target: rawURL}, nil
}
