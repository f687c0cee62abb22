package csp

import (
	"fmt"
	"math"
	"strings"

	"github.com/pyneda/xsslab/lib"
	"github.com/rs/zerolog/log"
)

const highConfidence = 0.7

// Score adjustments, applied per directive unless noted.
const (
	scoreBase             = 5.0
	penaltyUnsafeInline   = 3.0
	penaltyUnsafeEval     = 2.5
	penaltyWildcard       = 2.0
	penaltyDataURI        = 1.5
	penaltyPerBypass      = 0.5
	bonusPerRestrictive   = 0.3
	maxSecurityScore      = 10.0
	reportedHighBypassMax = 5
)

type AnalysisResult struct {
	Policy          string             `json:"policy" yaml:"policy"`
	ReportOnly      bool               `json:"report_only" yaml:"report_only"`
	Directives      []*DirectiveConfig `json:"directives" yaml:"directives"`
	Bypasses        []BypassPayload    `json:"bypass_opportunities" yaml:"bypass_opportunities"`
	SecurityScore   float64            `json:"security_score" yaml:"security_score"`
	CriticalIssues  []string           `json:"critical_issues" yaml:"critical_issues"`
	Recommendations []string           `json:"recommendations" yaml:"recommendations"`
	Weaknesses      []Weakness         `json:"weaknesses" yaml:"weaknesses"`
	IsBypassable    bool               `json:"is_bypassable" yaml:"is_bypassable"`
	BypassSummary   string             `json:"bypass_summary" yaml:"bypass_summary"`
}

// HighConfidenceBypasses returns the bypasses above 0.7 confidence, in order.
func (r AnalysisResult) HighConfidenceBypasses() []BypassPayload {
	var out []BypassPayload
	for _, b := range r.Bypasses {
		if b.Confidence > highConfidence {
			out = append(out, b)
		}
	}
	return out
}

func (r AnalysisResult) String() string {
	return fmt.Sprintf("score=%.1f bypassable=%t bypasses=%d %s", r.SecurityScore, r.IsBypassable, len(r.Bypasses), r.Policy)
}

func (r AnalysisResult) Pretty() string {
	bypassable := lib.Colorize("No", lib.Green)
	if r.IsBypassable {
		bypassable = lib.Colorize("Yes", lib.Red)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%sPolicy:%s %s\n", lib.Blue, lib.ResetColor, r.Policy)
	fmt.Fprintf(&sb, "%sSecurity score:%s %.1f/10 (%s)\n", lib.Blue, lib.ResetColor, r.SecurityScore, lib.ColorLevel(scoreLevel(r.SecurityScore)))
	fmt.Fprintf(&sb, "%sBypassable:%s %s\n", lib.Blue, lib.ResetColor, bypassable)
	fmt.Fprintf(&sb, "%sSummary:%s %s\n", lib.Blue, lib.ResetColor, r.BypassSummary)
	for _, issue := range r.CriticalIssues {
		fmt.Fprintf(&sb, "  %s %s\n", lib.Colorize("!", lib.Red), issue)
	}
	for _, b := range r.HighConfidenceBypasses() {
		fmt.Fprintf(&sb, "  %s %s\n", lib.Colorize(string(b.Technique), lib.Yellow), b.Payload)
	}
	return sb.String()
}

// scoreLevel labels a security score for coloring. A low score is a
// critical finding.
func scoreLevel(score float64) string {
	switch {
	case score < 2.5:
		return RiskCritical
	case score < 5:
		return RiskHigh
	case score < 7.5:
		return RiskMedium
	default:
		return RiskLow
	}
}

func (r AnalysisResult) TableHeaders() []string {
	return []string{"Score", "Bypassable", "Bypasses", "Critical", "Policy"}
}

func (r AnalysisResult) TableRow() []string {
	return []string{
		fmt.Sprintf("%.1f", r.SecurityScore),
		fmt.Sprintf("%t", r.IsBypassable),
		fmt.Sprintf("%d", len(r.Bypasses)),
		fmt.Sprintf("%d", len(r.CriticalIssues)),
		lib.Truncate(r.Policy, 60),
	}
}

// Analyzer holds no state; its zero value is ready to use and safe for
// concurrent calls.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

// Analyze parses header and evaluates it.
func (a *Analyzer) Analyze(header string) AnalysisResult {
	return a.AnalyzePolicy(ParsePolicy(header))
}

func (a *Analyzer) AnalyzePolicy(policy *Policy) AnalysisResult {
	log.Info().Int("directives", len(policy.Directives)).Bool("report_only", policy.ReportOnly).Msg("Starting CSP analysis")

	bypasses := []BypassPayload{}
	for _, g := range generators {
		found := g.generate(policy)
		if len(found) > 0 {
			log.Debug().Str("technique", string(g.technique)).Int("payloads", len(found)).Msg("CSP bypass technique applies")
		}
		bypasses = append(bypasses, found...)
	}

	result := AnalysisResult{
		Policy:          policy.Raw,
		ReportOnly:      policy.ReportOnly,
		Directives:      policy.Sorted(),
		Bypasses:        bypasses,
		SecurityScore:   securityScore(policy, bypasses),
		CriticalIssues:  criticalIssues(policy),
		Recommendations: recommendations(policy, bypasses),
		Weaknesses:      policy.Weaknesses(),
		BypassSummary:   bypassSummary(bypasses),
	}
	result.IsBypassable = len(result.HighConfidenceBypasses()) > 0

	log.Info().Int("bypasses", len(bypasses)).Float64("score", result.SecurityScore).Msg("CSP analysis complete")
	return result
}

func countHigh(bypasses []BypassPayload) int {
	n := 0
	for _, b := range bypasses {
		if b.Confidence > highConfidence {
			n++
		}
	}
	return n
}

func securityScore(policy *Policy, bypasses []BypassPayload) float64 {
	score := scoreBase
	for _, d := range policy.Directives {
		if d.HasKeyword(KeywordUnsafeInline) {
			score -= penaltyUnsafeInline
		}
		if d.HasKeyword(KeywordUnsafeEval) {
			score -= penaltyUnsafeEval
		}
		if d.HasSource("*") {
			score -= penaltyWildcard
		}
		if d.SourceContains("data:") {
			score -= penaltyDataURI
		}
		if d.IsRestrictive {
			score += bonusPerRestrictive
		}
	}
	score -= float64(countHigh(bypasses)) * penaltyPerBypass
	return math.Max(0, math.Min(maxSecurityScore, score))
}

func criticalIssues(policy *Policy) []string {
	issues := []string{}
	script := policy.scriptDirective()
	if script != nil {
		if script.HasKeyword(KeywordUnsafeInline) {
			issues = append(issues, "'unsafe-inline' allows arbitrary inline script execution")
		}
		if script.HasKeyword(KeywordUnsafeEval) {
			issues = append(issues, "'unsafe-eval' allows eval() and Function() constructor usage")
		}
		if script.HasSource("*") {
			issues = append(issues, "Wildcard (*) in script-src allows scripts from any domain")
		}
	} else {
		issues = append(issues, "No script-src or default-src directive found")
	}
	if !policy.Has(DirectiveObjectSrc) {
		issues = append(issues, "Missing object-src directive allows plugin execution")
	}
	return issues
}

func recommendations(policy *Policy, bypasses []BypassPayload) []string {
	recs := []string{}
	if script := policy.scriptDirective(); script != nil {
		if script.HasKeyword(KeywordUnsafeInline) {
			recs = append(recs, "Remove 'unsafe-inline' and use nonces or hashes for inline scripts")
		}
		if script.HasKeyword(KeywordUnsafeEval) {
			recs = append(recs, "Remove 'unsafe-eval' and avoid eval(), setTimeout(string), etc.")
		}
		if script.HasSource("*") {
			recs = append(recs, "Replace wildcard (*) with specific trusted domains")
		}
	}
	if !policy.Has(DirectiveObjectSrc) {
		recs = append(recs, "Add 'object-src 'none'' to prevent plugin execution")
	}
	if !policy.Has(DirectiveBaseURI) {
		recs = append(recs, "Add 'base-uri 'self'' to prevent base tag injection")
	}
	if !policy.Has(DirectiveFormAction) {
		recs = append(recs, "Add 'form-action 'self'' to restrict form submission URLs")
	}
	if n := countHigh(bypasses); n > 0 {
		recs = append(recs, fmt.Sprintf("Fix %d high-confidence bypass opportunities", n))
	}
	return recs
}

func bypassSummary(bypasses []BypassPayload) string {
	if len(bypasses) == 0 {
		return "No bypass opportunities identified"
	}
	var high, medium, low int
	for _, b := range bypasses {
		switch {
		case b.Confidence > highConfidence:
			high++
		case b.Confidence >= 0.4:
			medium++
		default:
			low++
		}
	}
	summary := fmt.Sprintf("Found %d potential bypasses: %d high-confidence, %d medium-confidence, %d low-confidence",
		len(bypasses), high, medium, low)
	switch {
	case high > 0:
		return summary + ". CSP is likely bypassable."
	case medium > 0:
		return summary + ". CSP may be bypassable under certain conditions."
	default:
		return summary + ". CSP appears relatively secure."
	}
}

// Report renders the analysis as plain text, listing at most five high
// confidence bypasses.
func Report(r AnalysisResult) string {
	var sb strings.Builder
	sb.WriteString("Content Security Policy Analysis Report\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&sb, "Policy: %s\n", r.Policy)
	fmt.Fprintf(&sb, "Security Score: %.1f/10.0\n", r.SecurityScore)
	bypassable := "No"
	if r.IsBypassable {
		bypassable = "Yes"
	}
	fmt.Fprintf(&sb, "Bypassable: %s\n", bypassable)
	fmt.Fprintf(&sb, "Bypass Summary: %s\n\n", r.BypassSummary)

	if len(r.CriticalIssues) > 0 {
		sb.WriteString("CRITICAL ISSUES:\n" + strings.Repeat("-", 20) + "\n")
		for _, issue := range r.CriticalIssues {
			fmt.Fprintf(&sb, "[!] %s\n", issue)
		}
		sb.WriteString("\n")
	}

	if len(r.Bypasses) > 0 {
		sb.WriteString("BYPASS OPPORTUNITIES:\n" + strings.Repeat("-", 25) + "\n")
		high := r.HighConfidenceBypasses()
		for i, b := range high[:min(reportedHighBypassMax, len(high))] {
			fmt.Fprintf(&sb, "[%d] %s\n", i+1, b.Technique.Title())
			fmt.Fprintf(&sb, "Confidence: %.0f%%\n", b.Confidence*100)
			fmt.Fprintf(&sb, "Payload: %s\n", b.Payload)
			fmt.Fprintf(&sb, "Description: %s\n", b.Description)
			sb.WriteString("Requirements:\n")
			for _, req := range b.Requirements {
				fmt.Fprintf(&sb, "  - %s\n", req)
			}
			sb.WriteString("\n")
		}
	}

	if len(r.Recommendations) > 0 {
		sb.WriteString("RECOMMENDATIONS:\n" + strings.Repeat("-", 20) + "\n")
		for i, rec := range r.Recommendations {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, rec)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
