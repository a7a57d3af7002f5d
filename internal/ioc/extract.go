// Package ioc extracts indicators of compromise from free text.
// Extraction is pure and deterministic: no I/O, same input always
// yields the same ordered, deduplicated indicator sequence.
package ioc

import (
	"regexp"
	"strings"

	"soc-triage/internal/schema"
)

var (
	addressPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	urlPattern     = regexp.MustCompile(`(?i)https?://[^\s"'>)\]]+`)
	hashPattern    = regexp.MustCompile(`\b(?:[a-fA-F0-9]{32}|[a-fA-F0-9]{64})\b`)
	emailPattern   = regexp.MustCompile(`(?i)\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`)
	domainPattern  = regexp.MustCompile(`(?i)\b(?:[a-z0-9-]+\.)+[a-z]{2,}\b`)
)

// trailingPunct is the set of punctuation commonly stuck to the edges of
// matched tokens in prose.
const trailingPunct = `.,;:)]}>"'`

func clean(s string) string {
	s = strings.TrimSpace(s)
	return strings.Trim(s, trailingPunct)
}

// Extract scans text for indicators. URLs are collected first; the
// address, hash, email and domain passes then run independently over the
// whole original text, so a domain embedded in an already-extracted URL
// is still emitted as a separate domain indicator. The result is
// deduplicated by (kind, lowercase value), preserving first-seen order.
func Extract(text string) []schema.Indicator {
	var found []schema.Indicator

	for _, m := range urlPattern.FindAllString(text, -1) {
		if u := clean(m); u != "" {
			found = append(found, schema.Indicator{Kind: schema.IndicatorURL, Value: u})
		}
	}

	for _, m := range addressPattern.FindAllString(text, -1) {
		if v := clean(m); v != "" {
			found = append(found, schema.Indicator{Kind: schema.IndicatorAddress, Value: v})
		}
	}

	for _, m := range hashPattern.FindAllString(text, -1) {
		if v := clean(m); v != "" {
			found = append(found, schema.Indicator{Kind: schema.IndicatorHash, Value: v})
		}
	}

	for _, m := range emailPattern.FindAllString(text, -1) {
		if v := clean(m); v != "" {
			found = append(found, schema.Indicator{Kind: schema.IndicatorEmail, Value: v})
		}
	}

	for _, m := range domainPattern.FindAllString(text, -1) {
		if v := clean(m); v != "" {
			found = append(found, schema.Indicator{Kind: schema.IndicatorDomain, Value: v})
		}
	}

	return Dedupe(found)
}

// Dedupe removes duplicate indicators under (kind, lowercase value)
// equality, preserving first-seen order.
func Dedupe(indicators []schema.Indicator) []schema.Indicator {
	seen := make(map[string]bool, len(indicators))
	out := make([]schema.Indicator, 0, len(indicators))

	for _, ind := range indicators {
		key := string(ind.Kind) + "\x00" + strings.ToLower(ind.Value)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, ind)
	}
	return out
}
