package recall

import (
	"regexp"
	"strings"
)

var (
	quotedPattern      = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
	capitalizedPattern = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*)*)\b`)
	camelCasePattern   = regexp.MustCompile(`\b[a-z]+(?:[A-Z][a-z0-9]*)+\b`)
	snakeCasePattern   = regexp.MustCompile(`\b[a-z]+(?:_[a-z0-9]+)+\b`)
	wordPattern        = regexp.MustCompile(`\b[a-zA-Z]+\b`)
)

// commonWords excludes ordinary long English words from the bare
// word≥6-chars fallback, so "information" doesn't masquerade as an
// extracted entity the way "Kubernetes" should.
var commonWords = map[string]bool{
	"about": true, "after": true, "again": true, "around": true,
	"before": true, "between": true, "during": true, "either": true,
	"enough": true, "every": true, "however": true, "should": true,
	"something": true, "through": true, "without": true, "because": true,
	"information": true, "different": true, "important": true,
	"recently": true, "related": true, "similar": true, "details": true,
	"question": true, "answer": true, "explain": true, "describe": true,
	"content": true, "regarding": true,
}

// ExtractQueryEntities runs a lightweight, query-time-only pass over
// text: capitalized phrases, quoted substrings, camelCase/snake_case
// identifiers, and long words not on the common-word list. It is
// deliberately simpler than the full episode-write extractor, since a
// query needs fast candidate terms for the entity-relevance score, not
// persisted, typed, resolved entities.
func ExtractQueryEntities(text string) []string {
	seen := map[string]bool{}
	var out []string

	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, s)
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		if m[1] != "" {
			add(m[1])
		} else {
			add(m[2])
		}
	}

	for _, m := range capitalizedPattern.FindAllString(text, -1) {
		add(m)
	}

	for _, m := range camelCasePattern.FindAllString(text, -1) {
		add(m)
	}

	for _, m := range snakeCasePattern.FindAllString(text, -1) {
		add(m)
	}

	for _, m := range wordPattern.FindAllString(text, -1) {
		if len(m) < 6 {
			continue
		}
		if commonWords[strings.ToLower(m)] {
			continue
		}
		add(m)
	}

	return out
}
