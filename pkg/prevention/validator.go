package prevention

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/pyneda/xsslab/pkg/csp"
)

const (
	criticalPenalty = 2.0
	maxScore        = 10.0
	strongPassRate  = 0.8
)

// Validator runs fixed suites of attack cases against user supplied
// defences. The suites are read only after construction, so one Validator
// can serve concurrent callers.
type Validator struct {
	sanitization []SanitizationCase
	encoding     []EncodingCase
	csp          []CSPCase
	waf          []WAFCase
}

func NewValidator() *Validator {
	return &Validator{
		sanitization: sanitizationCases(),
		encoding:     encodingCases(),
		csp:          cspCases(),
		waf:          wafCases(),
	}
}

func (v *Validator) SanitizationCases() []SanitizationCase { return v.sanitization }
func (v *Validator) EncodingCases() []EncodingCase         { return v.encoding }
func (v *Validator) CSPCases() []CSPCase                   { return v.csp }
func (v *Validator) WAFCases() []WAFCase                   { return v.waf }

func sanitizationCases() []SanitizationCase {
	return []SanitizationCase{
		{"basic_script_tag", `<script>alert("XSS")</script>`, `&lt;script&gt;alert("XSS")&lt;/script&gt;`,
			"Basic script tag should be encoded or removed", "script_injection", ContextHTMLContent, RiskCritical},
		{"img_onerror_event", `<img src=x onerror=alert("XSS")>`, `<img src="x">`,
			"Event handlers should be stripped from tags", "event_handler", ContextHTMLContent, RiskHigh},
		{"attribute_breaking", `" onmouseover=alert("XSS") "`, `&quot; onmouseover=alert(&quot;XSS&quot;) &quot;`,
			"Attribute breaking attempts should be encoded", "attribute_injection", ContextHTMLAttribute, RiskHigh},
		{"javascript_protocol", `javascript:alert("XSS")`, "",
			"JavaScript protocol should be blocked", "protocol_injection", ContextURLParameter, RiskMedium},
		{"url_encoded_bypass", `%3Cscript%3Ealert("XSS")%3C/script%3E`, `%3Cscript%3Ealert("XSS")%3C/script%3E`,
			"URL encoded payloads should not be decoded before sanitization", "encoding_bypass", ContextURLParameter, RiskMedium},
		{"svg_onload", `<svg onload=alert("XSS")>`, `<svg>`,
			"SVG onload events should be stripped", "html5_injection", ContextHTMLContent, RiskHigh},
		{"angular_template", `{{constructor.constructor("alert(\"XSS\")")()}}`, `{{constructor.constructor("alert(\"XSS\")")()}}`,
			"Template injection syntax should be treated as plain text", "template_injection", ContextHTMLContent, RiskMedium},
	}
}

func encodingCases() []EncodingCase {
	return []EncodingCase{
		{"html_context_encoding", `<script>alert("XSS")</script>`, HTMLEncoding,
			`&lt;script&gt;alert(&quot;XSS&quot;)&lt;/script&gt;`, ContextHTMLContent, `&lt;script&gt;alert("XSS")&lt;/script&gt;`},
		{"attribute_context_encoding", `" onmouseover=alert("XSS") "`, AttributeEncoding,
			`&quot; onmouseover=alert(&quot;XSS&quot;) &quot;`, ContextHTMLAttribute, `" onmouseover=alert("XSS") "`},
		{"url_context_encoding", `javascript:alert("XSS")`, URLEncoding,
			`javascript%3Aalert%28%22XSS%22%29`, ContextURLParameter, `javascript:alert("XSS")`},
		{"javascript_context_encoding", `"; alert("XSS"); //`, JavaScriptEncoding,
			`\x22; alert(\x22XSS\x22); //`, ContextJavaScriptString, `"; alert("XSS"); //`},
	}
}

func cspCases() []CSPCase {
	return []CSPCase{
		{"unsafe_inline_detection", "script-src 'self' 'unsafe-inline'", `<script>alert("CSP Test")</script>`,
			false, "'unsafe-inline' should allow inline scripts"},
		{"strict_policy_enforcement", "script-src 'self'", `<script>alert("CSP Test")</script>`,
			true, "Strict CSP should block inline scripts"},
		{"nonce_validation", "script-src 'nonce-test123'", `<script nonce="test123">alert("CSP Test")</script>`,
			false, "Valid nonce should allow script execution"},
	}
}

func wafCases() []WAFCase {
	return []WAFCase{
		{"basic_script_blocking", `<script>alert("WAF Test")</script>`, true, "script_injection", "Basic script tags should be blocked"},
		{"event_handler_blocking", `<img src=x onerror=alert("WAF Test")>`, true, "event_handler", "Event handlers should be blocked"},
		{"encoded_bypass_attempt", `%3Cscript%3Ealert("WAF Test")%3C/script%3E`, true, "encoding_bypass", "URL encoded scripts should be blocked"},
		{"case_variation_bypass", `<ScRiPt>alert("WAF Test")</ScRiPt>`, true, "case_bypass", "Case variations should be blocked"},
	}
}

// call runs fn and turns a panic into an error.
func call[T any](fn func() (T, error)) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func errorResult(m Mechanism, name, input, expected, remediation string, err error) TestResult {
	log.Warn().Err(err).Str("mechanism", string(m)).Str("test", name).Msg("Defence under test failed")
	return TestResult{
		Mechanism:      m,
		Name:           name,
		Input:          input,
		ActualOutput:   "ERROR: " + err.Error(),
		ExpectedOutput: expected,
		BypassDetected: true,
		RiskLevel:      RiskCritical,
		Remediation:    remediation,
	}
}

// TestSanitization runs every sanitization case through s. A failing or
// panicking sanitizer produces a critical result for that case.
func (v *Validator) TestSanitization(s Sanitizer) []TestResult {
	results := make([]TestResult, 0, len(v.sanitization))
	for _, tc := range v.sanitization {
		out, err := call(func() (string, error) { return s(tc.Input) })
		if err != nil {
			results = append(results, errorResult(InputSanitization, tc.Name, tc.Input, tc.ExpectedSafe, "Fix sanitization function error", err))
			continue
		}
		passed := isOutputSafe(out)
		risk := RiskLow
		if !passed {
			risk = tc.Severity
		}
		results = append(results, TestResult{
			Mechanism:      InputSanitization,
			Name:           tc.Name,
			Passed:         passed,
			Input:          tc.Input,
			ActualOutput:   out,
			ExpectedOutput: tc.ExpectedSafe,
			BypassDetected: hasBypassIndicator(out),
			RiskLevel:      risk,
			Remediation:    sanitizationRemediation(tc.AttackType),
		})
	}
	log.Info().Int("cases", len(results)).Msg("Sanitization suite complete")
	return results
}

// TestEncoding runs every encoding case through e. Output must match the
// expected encoding exactly.
func (v *Validator) TestEncoding(e ContextEncoder) []TestResult {
	results := make([]TestResult, 0, len(v.encoding))
	for _, tc := range v.encoding {
		out, err := call(func() (string, error) { return e(tc.Input, tc.Context) })
		if err != nil {
			results = append(results, errorResult(OutputEncoding, tc.Name, tc.Input, tc.Expected, "Fix encoding function error", err))
			continue
		}
		passed := out == tc.Expected
		risk := RiskLow
		if !passed {
			risk = RiskHigh
		}
		results = append(results, TestResult{
			Mechanism:      OutputEncoding,
			Name:           tc.Name,
			Passed:         passed,
			Input:          tc.Input,
			ActualOutput:   out,
			ExpectedOutput: tc.Expected,
			BypassDetected: encodingBypassed(out, tc.Bypass),
			RiskLevel:      risk,
			Remediation:    fmt.Sprintf("Apply proper %s to all user input in %s context", tc.Type, tc.Context),
		})
	}
	log.Info().Int("cases", len(results)).Msg("Encoding suite complete")
	return results
}

// TestCSP evaluates the policy against each CSP case payload. The case's own
// policy documents the expectation and is not what gets evaluated.
func (v *Validator) TestCSP(policy string) []TestResult {
	parsed := csp.ParsePolicy(policy)
	results := make([]TestResult, 0, len(v.csp))
	for _, tc := range v.csp {
		blocked := wouldBlock(parsed, tc.Payload)
		bypass := !blocked && tc.ShouldBlock
		risk := RiskLow
		if bypass {
			risk = RiskHigh
		}
		results = append(results, TestResult{
			Mechanism:      CSPPolicy,
			Name:           tc.Name,
			Passed:         blocked == tc.ShouldBlock,
			Input:          tc.Payload,
			ActualOutput:   fmt.Sprintf("Blocked: %t", blocked),
			ExpectedOutput: fmt.Sprintf("Should block: %t", tc.ShouldBlock),
			BypassDetected: bypass,
			RiskLevel:      risk,
			Remediation:    cspRemediation(policy, tc.ShouldBlock),
		})
	}
	log.Info().Int("cases", len(results)).Str("policy", policy).Msg("CSP suite complete")
	return results
}

// TestWAF sends each WAF case payload to w.
func (v *Validator) TestWAF(w WAF) []TestResult {
	results := make([]TestResult, 0, len(v.waf))
	for _, tc := range v.waf {
		expected := fmt.Sprintf("Should block: %t", tc.ShouldBlock)
		blocked, err := call(func() (bool, error) { return w(tc.Payload) })
		if err != nil {
			results = append(results, errorResult(WAFRules, tc.Name, tc.Payload, expected, "Fix WAF function error", err))
			continue
		}
		bypass := !blocked && tc.ShouldBlock
		risk := RiskLow
		remediation := "WAF rule is working correctly"
		if bypass {
			risk = RiskHigh
			remediation = fmt.Sprintf("Add or improve WAF rules for %s attacks", tc.RuleType)
		}
		results = append(results, TestResult{
			Mechanism:      WAFRules,
			Name:           tc.Name,
			Passed:         blocked == tc.ShouldBlock,
			Input:          tc.Payload,
			ActualOutput:   fmt.Sprintf("Blocked: %t", blocked),
			ExpectedOutput: expected,
			BypassDetected: bypass,
			RiskLevel:      risk,
			Remediation:    remediation,
		})
	}
	log.Info().Int("cases", len(results)).Msg("WAF suite complete")
	return results
}

var (
	dangerousOutput = []*regexp.Regexp{
		regexp.MustCompile(`(?i)<script[^>]*>`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)<iframe[^>]*>`),
		regexp.MustCompile(`(?i)<object[^>]*>`),
	}
	openTag       = regexp.MustCompile(`<\s*\w+`)
	quotedHandler = regexp.MustCompile(`on\w+\s*=\s*["']`)

	bypassIndicators = []*regexp.Regexp{
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=\s*[^"\s>]+`),
		regexp.MustCompile(`(?i)<\s*script[^>]*>`),
		regexp.MustCompile(`(?i)eval\s*\(`),
		regexp.MustCompile(`(?i)expression\s*\(`),
	}

	scriptNonce = regexp.MustCompile(`(?i)<script[^>]*\snonce=["']?([^"'\s>]+)`)
)

// isOutputSafe accepts dangerous looking text as long as no raw tag or
// quoted event handler survives, which is what entity encoding produces.
func isOutputSafe(out string) bool {
	for _, re := range dangerousOutput {
		if re.MatchString(out) && (openTag.MatchString(out) || quotedHandler.MatchString(out)) {
			return false
		}
	}
	return true
}

func hasBypassIndicator(out string) bool {
	for _, re := range bypassIndicators {
		if re.MatchString(out) {
			return true
		}
	}
	return false
}

func encodingBypassed(out, attempt string) bool {
	if out == attempt {
		return true
	}
	for _, c := range []string{"<", ">", `"`, "'", "&"} {
		if strings.Contains(out, c) && strings.Contains(attempt, c) {
			return true
		}
	}
	return false
}

// wouldBlock decides whether an inline script payload runs under the policy.
// A nonce attribute listed in script-src is allowed, anything else follows
// the policy's inline script rules.
func wouldBlock(p *csp.Policy, payload string) bool {
	if m := scriptNonce.FindStringSubmatch(payload); m != nil {
		if script := p.EffectiveDirective(csp.DirectiveScriptSrc); script != nil {
			for _, n := range script.Nonces {
				if n == m[1] {
					return false
				}
			}
		}
	}
	return p.BlocksInlineScripts()
}

func sanitizationRemediation(attackType string) string {
	switch attackType {
	case "script_injection":
		return "Use HTML encoding or remove <script> tags completely"
	case "event_handler":
		return "Strip all event handler attributes (on*) from HTML tags"
	case "attribute_injection":
		return "Properly encode quotes and other special characters in attributes"
	case "protocol_injection":
		return "Block or remove javascript:, data:, and vbscript: protocols"
	default:
		return "Apply context-appropriate encoding and filtering"
	}
}

func cspRemediation(policy string, shouldBlock bool) string {
	switch {
	case strings.Contains(policy, "'unsafe-inline'"):
		return "Remove 'unsafe-inline' and use nonces or hashes for legitimate inline scripts"
	case !shouldBlock:
		return "Review CSP policy for proper script-src restrictions"
	default:
		return "CSP policy is working correctly"
	}
}

// Assess scores a set of results. The score is the pass rate out of ten,
// minus two points per critical result, clamped to [0, 10].
func (v *Validator) Assess(results []TestResult) Assessment {
	a := Assessment{
		Coverage:        map[Mechanism]float64{},
		Recommendations: []string{},
		Results:         results,
	}
	if len(results) == 0 {
		a.Results = []TestResult{}
		return a
	}

	a.TotalTests = len(results)
	for _, r := range results {
		if r.Passed {
			a.PassedTests++
		}
		if r.RiskLevel == RiskCritical {
			a.CriticalFailures++
		}
	}
	a.FailedTests = a.TotalTests - a.PassedTests
	score := float64(a.PassedTests)/float64(a.TotalTests)*maxScore - float64(a.CriticalFailures)*criticalPenalty
	a.SecurityScore = max(0, min(maxScore, score))

	for _, m := range mechanisms {
		total, passed := 0, 0
		for _, r := range results {
			if r.Mechanism == m {
				total++
				if r.Passed {
					passed++
				}
			}
		}
		a.Coverage[m] = 0
		if total > 0 {
			a.Coverage[m] = float64(passed) / float64(total)
		}
	}
	a.Recommendations = recommendations(results, a)
	log.Info().Float64("score", a.SecurityScore).Int("passed", a.PassedTests).Int("total", a.TotalTests).Msg("Prevention assessment complete")
	return a
}

func recommendations(results []TestResult, a Assessment) []string {
	recs := []string{}
	if a.CriticalFailures > 0 {
		recs = append(recs, fmt.Sprintf("URGENT: Fix %d critical security issues immediately", a.CriticalFailures))
	}
	failing := map[Mechanism]bool{}
	bypass := false
	for _, r := range results {
		if !r.Passed {
			failing[r.Mechanism] = true
		}
		bypass = bypass || r.BypassDetected
	}
	advice := []struct {
		m   Mechanism
		rec string
	}{
		{InputSanitization, "Improve input sanitization to handle script injection and event handlers"},
		{OutputEncoding, "Implement proper context-aware output encoding"},
		{CSPPolicy, "Strengthen Content Security Policy configuration"},
		{WAFRules, "Update WAF rules to catch advanced bypass techniques"},
	}
	for _, ad := range advice {
		if failing[ad.m] {
			recs = append(recs, ad.rec)
		}
	}
	if bypass {
		recs = append(recs, "Implement defense-in-depth with multiple prevention layers")
	}
	if float64(a.PassedTests)/float64(a.TotalTests) > strongPassRate {
		recs = append(recs, "Consider implementing advanced security measures like SRI and trusted types")
	}
	return recs
}
