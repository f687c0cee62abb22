package analysis

import (
	"strings"
	"unicode/utf8"
)

// DangerousJS are sinks and evaluators that raise the risk score. Matching is
// case-insensitive.
var DangerousJS = []string{
	"eval", "Function", "setTimeout", "setInterval", "execScript",
	"document.write", "document.writeln", "innerHTML", "outerHTML",
	"insertAdjacentHTML", "location.href", "location.assign",
	"location.replace", "window.open", "execCommand",
}

// HTML5Vector pairs a tag with the events that make it executable.
type HTML5Vector struct {
	Tag    string
	Events []string
}

var HTML5Vectors = []HTML5Vector{
	{Tag: "svg", Events: []string{"onload", "onerror", "onclick"}},
	{Tag: "details", Events: []string{"ontoggle"}},
	{Tag: "video", Events: []string{"onplay", "onended", "onerror"}},
	{Tag: "audio", Events: []string{"onplay", "onended", "onerror"}},
	{Tag: "canvas", Events: []string{"onclick", "onmouseover"}},
	{Tag: "template", Events: []string{"innerHTML content"}},
	{Tag: "math", Events: []string{"href attributes"}},
}

var highRiskContexts = map[Context]bool{
	ContextHTMLContent:    true,
	ContextJSString:       true,
	ContextAttributeValue: true,
	ContextURLParameter:   true,
}

// RiskScorer turns payload features into a risk level and confidence.
type RiskScorer struct{}

func NewRiskScorer() *RiskScorer {
	return &RiskScorer{}
}

// RawScore returns the additive risk score and the unclamped confidence.
func (s *RiskScorer) RawScore(payload string, contexts []Context, techniques []string) (int, float64) {
	score := 0
	confidence := 0.5

	length := utf8.RuneCountInString(payload)
	if length > 200 {
		score += 2
		confidence += 0.1
	} else if length > 100 {
		score++
	}

	risky := 0
	for _, c := range contexts {
		if highRiskContexts[c] {
			risky++
		}
	}
	score += risky * 2
	confidence += float64(risky) * 0.1

	score += len(techniques)
	confidence += float64(len(techniques)) * 0.05

	lower := strings.ToLower(payload)
	if strings.Contains(lower, "<script>") {
		score += 4
		confidence += 0.3
	}

	for _, fn := range DangerousJS {
		if strings.Contains(lower, strings.ToLower(fn)) {
			score += 3
			confidence += 0.2
			break
		}
	}

	for _, v := range HTML5Vectors {
		if !strings.Contains(lower, v.Tag) {
			continue
		}
		for _, ev := range v.Events {
			if strings.Contains(lower, strings.ToLower(ev)) {
				score += 2
				confidence += 0.15
				break
			}
		}
	}
	return score, confidence
}

// Score returns the risk level and a confidence clamped to [0.1, 1].
func (s *RiskScorer) Score(payload string, contexts []Context, techniques []string) (RiskLevel, float64) {
	score, confidence := s.RawScore(payload, contexts, techniques)
	return LevelForScore(score), clamp(confidence, 0.1, 1.0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
