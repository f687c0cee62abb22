package scan

import (
	"fmt"
	"strings"

	"github.com/pyneda/xsslab/pkg/encoding"
)

// Reflection contexts reported on a TestResult.
const (
	ContextScriptTag         = "script_tag"
	ContextEventHandler      = "event_handler"
	ContextAttributeValue    = "attribute_value"
	ContextHTMLComment       = "html_comment"
	ContextCSS               = "css_context"
	ContextHTMLContent       = "html_content"
	ContextUnknown           = "unknown_context"
	ContextHTMLEncoded       = "html_encoded"
	ContextURLEncoded        = "url_encoded"
	ContextPartialReflection = "partial_reflection"
	ContextNoReflection      = "no_reflection"
	ContextError             = "error"
)

// Reflection confidences, strongest first.
const (
	confidenceDirect      = 0.9
	confidenceHTMLEncoded = 0.7
	confidenceURLEncoded  = 0.6
	confidencePartialBase = 0.3
	confidencePartialSpan = 0.4
)

type reflection struct {
	success    bool
	confidence float64
	evidence   string
	context    string
}

// analyzeResponse looks for the payload as is, html escaped, url quoted and
// finally word by word.
func analyzeResponse(payload, body string) reflection {
	if strings.Contains(body, payload) {
		return reflection{true, confidenceDirect, extractEvidence(payload, body), reflectionContext(payload, body)}
	}

	if escaped := encoding.MustEncode(encoding.HTMLEscape, payload); strings.Contains(body, escaped) {
		return reflection{true, confidenceHTMLEncoded, extractEvidence(escaped, body), ContextHTMLEncoded}
	}

	if quoted := encoding.QuoteSafe(payload, "/"); strings.Contains(body, quoted) {
		return reflection{true, confidenceURLEncoded, extractEvidence(quoted, body), ContextURLEncoded}
	}

	words := strings.Fields(payload)
	matched := 0
	for _, w := range words {
		if strings.Contains(body, w) {
			matched++
		}
	}
	if matched > 0 && len(words) > 1 {
		return reflection{
			success:    true,
			confidence: confidencePartialBase + float64(matched)/float64(len(words))*confidencePartialSpan,
			evidence:   fmt.Sprintf("Partial reflection: %d/%d words found", matched, len(words)),
			context:    ContextPartialReflection,
		}
	}
	return reflection{context: ContextNoReflection}
}

// extractEvidence returns the first line holding needle with two lines of
// context on each side, needle wrapped in ** markers.
func extractEvidence(needle, body string) string {
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if !strings.Contains(line, needle) {
			continue
		}
		window := append([]string(nil), lines[max(0, i-2):min(len(lines), i+3)]...)
		for j, l := range window {
			window[j] = strings.ReplaceAll(l, needle, "**"+needle+"**")
		}
		return strings.Join(window, "\n")
	}
	return fmt.Sprintf("Payload '%s' found in response", needle)
}

var handlerMarkers = []string{"onload=", "onerror=", "onclick=", "onmouseover="}

// reflectionContext classifies the first line where payload is reflected.
func reflectionContext(payload, body string) string {
	for _, line := range strings.Split(body, "\n") {
		if !strings.Contains(line, payload) {
			continue
		}
		lower := strings.ToLower(line)
		switch {
		case strings.Contains(lower, "<script") && strings.Contains(lower, "</script>"):
			return ContextScriptTag
		case containsAny(lower, handlerMarkers):
			return ContextEventHandler
		case strings.Contains(lower, "href=") || strings.Contains(lower, "src="):
			return ContextAttributeValue
		case strings.Contains(line, "<!--") && strings.Contains(line, "-->"):
			return ContextHTMLComment
		case strings.Contains(lower, "<style"):
			return ContextCSS
		default:
			return ContextHTMLContent
		}
	}
	return ContextUnknown
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
