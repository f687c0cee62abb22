package polyglot

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// browsers are the engines compatibility is estimated for.
var browsers = []string{"chrome", "firefox", "safari", "ie", "edge"}

var wafSignatures = []string{
	"<script", "script>", "</script>", "javascript:", "vbscript:", "data:",
	"onload", "onerror", "onclick", "onmouseover",
	"alert", "confirm", "prompt", "eval", "expression", "behavior", "binding",
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func confidence(p *PolyglotPayload, targets ContextSet) float64 {
	score := 0.5
	if len(targets) > 0 {
		score += float64(p.contextSet.Overlap(targets)) / float64(len(targets)) * 0.3
	}
	if len(p.Components) > 0 {
		total := 0
		for _, c := range p.Components {
			total += c.Priority
		}
		score += float64(total) / float64(len(p.Components)) / 10 * 0.2
	}
	switch {
	case p.Length < 100:
		score += 0.1
	case p.Length > 300:
		score -= 0.1
	}
	score -= 0.05 * float64(len(p.EncodingsUsed))
	score += 0.03 * float64(len(p.ObfuscationsUsed))
	return clamp01(score)
}

// browserCompatibility matches features case-sensitively, so mixed case
// variants score like plain text.
func browserCompatibility(payload string) map[string]float64 {
	modernTags := strings.Contains(payload, "<details>") || strings.Contains(payload, "<video>") || strings.Contains(payload, "<audio>")

	out := make(map[string]float64, len(browsers))
	for _, b := range browsers {
		score := 0.7
		if strings.Contains(payload, "<script>") {
			score += 0.2
		}
		if strings.Contains(payload, "onerror=") {
			score += 0.15
		}
		if strings.Contains(payload, "javascript:") {
			if b == "ie" {
				score += 0.1
			} else {
				score -= 0.05
			}
		}
		if modernTags {
			switch b {
			case "chrome", "firefox", "safari":
				score += 0.1
			case "ie":
				score -= 0.2
			}
		}
		if strings.Contains(payload, "{{") {
			score += 0.05
		}
		out[b] = clamp01(score)
	}
	return out
}

func hasMixedCase(s string) bool {
	var upper, lower bool
	for _, r := range s {
		upper = upper || unicode.IsUpper(r)
		lower = lower || unicode.IsLower(r)
	}
	return upper && lower
}

func wafEvasionScore(p *PolyglotPayload) float64 {
	lower := strings.ToLower(p.Payload)
	score := 0.5
	for _, sig := range wafSignatures {
		if strings.Contains(lower, sig) {
			score -= 0.1
		}
	}
	score += 0.1 * float64(len(p.EncodingsUsed))
	score += 0.15 * float64(len(p.ObfuscationsUsed))
	if strings.Contains(p.Payload, "<!--") || strings.Contains(p.Payload, "/*") {
		score += 0.1
	}
	if hasMixedCase(p.Payload) {
		score += 0.05
	}
	return clamp01(score)
}

func complexityScore(p *PolyglotPayload) float64 {
	score := math.Min(float64(p.Length)/100, 3)
	score += 0.5 * float64(len(p.Components))
	score += 0.8 * float64(len(p.EncodingsUsed))
	score += 1.0 * float64(len(p.ObfuscationsUsed))
	score += 0.3 * float64(len(p.Contexts))
	return math.Min(score, 10)
}

// bestBrowsers formats the n best scoring browsers as "name(score)".
func bestBrowsers(compat map[string]float64, n int) string {
	names := make([]string, 0, len(compat))
	for b := range compat {
		names = append(names, b)
	}
	sort.Slice(names, func(i, j int) bool {
		if compat[names[i]] != compat[names[j]] {
			return compat[names[i]] > compat[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	parts := make([]string, len(names))
	for i, b := range names {
		parts[i] = fmt.Sprintf("%s(%.1f)", b, compat[b])
	}
	return strings.Join(parts, ", ")
}
