package fuzz

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pyneda/xsslab/pkg/encoding"
)

const injectionPlaceholder = "{INJECTION}"

// contextPattern recognizes one context. Group 1 is the prefix and group 2 the suffix.
type contextPattern struct {
	context     InjectionContext
	pattern     string
	description string
}

// contextPatterns is evaluated in order; the first match wins for a window.
var contextPatterns = []contextPattern{
	{HTMLTagContent, `<[^>]+>([^<]*?){INJECTION}([^<]*?)</[^>]+>`, "HTML tag content"},
	{HTMLTagContent, `>([^<]*?){INJECTION}([^<]*?)<`, "Between tags"},
	{HTMLAttributeValue, `<[^>]+\s+\w+=["']([^"']*?){INJECTION}([^"']*?)["'][^>]*>`, "Quoted attribute"},
	{HTMLAttributeValue, `<[^>]+\s+\w+=([^\s>]*?){INJECTION}([^\s>]*?)[\s>]`, "Unquoted attribute"},
	{JSStringSingle, `'([^']*?){INJECTION}([^']*?)'`, "Single-quoted JS string"},
	{JSStringDouble, `"([^"]*?){INJECTION}([^"]*?)"`, "Double-quoted JS string"},
	{JSTemplate, "`([^`]*?){INJECTION}([^`]*?)`", "Template literal"},
	{CSSPropertyValue, `:\s*([^;}\s]*?){INJECTION}([^;}\s]*?)[;\}]`, "CSS property value"},
	{URLQuery, `[?&]\w+=([^&]*?){INJECTION}([^&]*?)(?:&|$)`, "URL query parameter"},
	{JSONValue, `:\s*"([^"]*?){INJECTION}([^"]*?)"`, "JSON string value"},
}

type compiledPattern struct {
	contextPattern
	re *regexp.Regexp
}

// compilePatterns substitutes the escaped marker into every pattern. Patterns
// that fail to compile are logged and skipped.
func compilePatterns(patterns []contextPattern, marker string) []compiledPattern {
	quoted := regexp.QuoteMeta(marker)
	compiled := make([]compiledPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(strings.ReplaceAll(p.pattern, injectionPlaceholder, quoted))
		if err != nil {
			log.Warn().Err(err).Str("context", string(p.context)).Str("pattern", p.description).Msg("Skipping context pattern that does not compile")
			continue
		}
		compiled = append(compiled, compiledPattern{contextPattern: p, re: re})
	}
	return compiled
}

// Selection decides which fingerprint wins when the marker is reflected more than once.
type Selection string

const (
	// SelectFirst keeps the context of the first occurrence that matched.
	SelectFirst Selection = "first"
	// SelectVote keeps the most frequent context, ties going to the first seen.
	SelectVote Selection = "vote"
)

func ParseSelection(s string) Selection {
	if strings.EqualFold(s, string(SelectVote)) {
		return SelectVote
	}
	return SelectFirst
}

func markerPositions(response, marker string) []int {
	if marker == "" {
		return nil
	}
	var positions []int
	for start := 0; start <= len(response); {
		idx := strings.Index(response[start:], marker)
		if idx < 0 {
			break
		}
		positions = append(positions, start+idx)
		start += idx + 1
	}
	return positions
}

// DetectContext infers the injection context from where marker is reflected in response.
func (f *ContextAwareFuzzer) DetectContext(response, marker string) ContextFingerprint {
	logger := log.With().Str("session", f.sessionID).Str("marker", marker).Logger()
	logger.Info().Msg("Detecting injection context")

	positions := markerPositions(response, marker)
	if len(positions) == 0 {
		logger.Warn().Msg("Marker not found in response")
		return ContextFingerprint{
			Context:         HTMLTagContent,
			FiltersDetected: []string{},
			AllowedChars:    CharSet{},
			BlockedChars:    CharSet{},
		}
	}

	patterns := compilePatterns(contextPatterns, marker)
	var candidates []ContextFingerprint
	for _, pos := range positions {
		if fp, ok := f.analyzeAt(response, pos, marker, patterns); ok {
			candidates = append(candidates, fp)
		}
	}

	if len(candidates) == 0 {
		logger.Debug().Int("occurrences", len(positions)).Msg("No context pattern matched, using default")
		return NewFingerprint(HTMLTagContent)
	}

	best := selectBest(candidates, f.selection)
	logger.Info().Str("context", string(best.Context)).Int("occurrences", len(positions)).Int("candidates", len(candidates)).Msg("Context detected")
	return best
}

func (f *ContextAwareFuzzer) analyzeAt(response string, pos int, marker string, patterns []compiledPattern) (ContextFingerprint, bool) {
	start := max(0, pos-f.windowSize)
	end := min(len(response), pos+len(marker)+f.windowSize)
	window := response[start:end]

	for _, p := range patterns {
		m := p.re.FindStringSubmatch(window)
		if m == nil {
			continue
		}
		fp := NewFingerprint(p.context)
		fp.Description = p.description
		if len(m) > 1 {
			fp.Prefix = m[1]
		}
		if len(m) > 2 {
			fp.Suffix = m[2]
		}
		fp.FiltersDetected = DetectFilters(response, marker)
		fp.EncodingRequired = DetectEncoding(response, marker)
		return fp, true
	}
	return ContextFingerprint{}, false
}

func selectBest(candidates []ContextFingerprint, selection Selection) ContextFingerprint {
	if selection != SelectVote {
		return candidates[0]
	}
	counts := make(map[InjectionContext]int)
	for _, c := range candidates {
		counts[c.Context]++
	}
	best := candidates[0]
	for _, c := range candidates {
		if counts[c.Context] > counts[best.Context] {
			best = c
		}
	}
	return best
}

func htmlEscape(s string) string {
	return encoding.MustEncode(encoding.HTMLEscape, s)
}

func urlQuote(s string) string {
	return encoding.QuoteSafe(s, "/")
}

// DetectFilters compares the reflected forms of marker against response.
func DetectFilters(response, marker string) []string {
	filters := []string{}
	reflected := strings.Contains(response, marker)

	if !reflected && strings.Contains(response, strings.ToLower(marker)) {
		filters = append(filters, "lowercase_filter")
	}
	if !reflected && strings.Contains(response, htmlEscape(marker)) {
		filters = append(filters, "html_encoding")
	}
	if !reflected && strings.Contains(response, urlQuote(marker)) {
		filters = append(filters, "url_encoding")
	}
	if !strings.Contains(response, "<") && strings.Contains(marker, "<") {
		filters = append(filters, "tag_stripping")
	}
	return filters
}

// DetectEncoding returns "html" or "url" when the marker only comes back
// encoded that way, or an empty string.
func DetectEncoding(response, marker string) string {
	if strings.Contains(response, marker) {
		return ""
	}
	if strings.Contains(response, htmlEscape(marker)) {
		return "html"
	}
	if strings.Contains(response, urlQuote(marker)) {
		return "url"
	}
	return ""
}

