package prevention

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(input string) (string, error) { return input, nil }

func resultsByName(results []TestResult) map[string]TestResult {
	out := map[string]TestResult{}
	for _, r := range results {
		out[r.Name] = r
	}
	return out
}

func TestSanitizationWithEntityEncoding(t *testing.T) {
	s, err := EncoderSanitizer("html_entities")
	require.NoError(t, err)

	results := NewValidator().TestSanitization(s)
	require.Len(t, results, 7)
	for _, r := range results {
		assert.True(t, r.Passed, r.Name)
		assert.Equal(t, RiskLow, r.RiskLevel, r.Name)
		assert.Equal(t, InputSanitization, r.Mechanism)
	}
	byName := resultsByName(results)
	assert.True(t, byName["img_onerror_event"].BypassDetected)
	assert.False(t, byName["basic_script_tag"].BypassDetected)
}

func TestSanitizationWithoutSanitizer(t *testing.T) {
	byName := resultsByName(NewValidator().TestSanitization(identity))

	tests := []struct {
		name   string
		passed bool
		risk   string
	}{
		{"basic_script_tag", false, RiskCritical},
		{"img_onerror_event", false, RiskHigh},
		{"svg_onload", false, RiskHigh},
		{"url_encoded_bypass", true, RiskLow},
		{"angular_template", true, RiskLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := byName[tt.name]
			assert.Equal(t, tt.passed, r.Passed)
			assert.Equal(t, tt.risk, r.RiskLevel)
		})
	}
	assert.Equal(t, "Use HTML encoding or remove <script> tags completely", byName["basic_script_tag"].Remediation)
}

func TestFailingDefencesBecomeCritical(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name    string
		run     func() []TestResult
		cases   int
		message string
	}{
		{"sanitizer error", func() []TestResult {
			return v.TestSanitization(func(string) (string, error) { return "", errors.New("boom") })
		}, 7, "ERROR: boom"},
		{"sanitizer panic", func() []TestResult {
			return v.TestSanitization(func(string) (string, error) { panic("boom") })
		}, 7, "ERROR: panic: boom"},
		{"encoder error", func() []TestResult {
			return v.TestEncoding(func(string, string) (string, error) { return "", errors.New("boom") })
		}, 4, "ERROR: boom"},
		{"waf panic", func() []TestResult {
			return v.TestWAF(func(string) (bool, error) { panic("boom") })
		}, 4, "ERROR: panic: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := tt.run()
			require.Len(t, results, tt.cases)
			for _, r := range results {
				assert.False(t, r.Passed)
				assert.True(t, r.BypassDetected)
				assert.Equal(t, RiskCritical, r.RiskLevel)
				assert.Equal(t, tt.message, r.ActualOutput)
			}
		})
	}
}

func TestEncodingWithReferenceEncoder(t *testing.T) {
	results := NewValidator().TestEncoding(ReferenceEncoder)
	require.Len(t, results, 4)
	for _, r := range results {
		assert.True(t, r.Passed, r.Name)
		assert.Equal(t, r.ExpectedOutput, r.ActualOutput)
	}

	_, err := ReferenceEncoder("x", "css_value")
	assert.Error(t, err)
}

func TestEncodingMismatch(t *testing.T) {
	byName := resultsByName(NewValidator().TestEncoding(func(input, _ string) (string, error) { return input, nil }))
	r := byName["url_context_encoding"]
	assert.False(t, r.Passed)
	assert.True(t, r.BypassDetected)
	assert.Equal(t, RiskHigh, r.RiskLevel)
	assert.Equal(t, "Apply proper url_encoding to all user input in url_parameter context", r.Remediation)
}

func TestCSPSuite(t *testing.T) {
	tests := []struct {
		policy string
		passed map[string]bool
		bypass []string
	}{
		{"script-src 'self' 'unsafe-inline'", map[string]bool{
			"unsafe_inline_detection": true, "strict_policy_enforcement": false, "nonce_validation": true,
		}, []string{"strict_policy_enforcement"}},
		{"script-src 'nonce-test123'", map[string]bool{
			"unsafe_inline_detection": false, "strict_policy_enforcement": true, "nonce_validation": true,
		}, nil},
		{"script-src 'self'", map[string]bool{
			"unsafe_inline_detection": false, "strict_policy_enforcement": true, "nonce_validation": false,
		}, nil},
		{"img-src *", map[string]bool{
			"unsafe_inline_detection": true, "strict_policy_enforcement": false, "nonce_validation": true,
		}, []string{"strict_policy_enforcement"}},
	}
	for _, tt := range tests {
		t.Run(tt.policy, func(t *testing.T) {
			results := NewValidator().TestCSP(tt.policy)
			require.Len(t, results, 3)
			var bypass []string
			for _, r := range results {
				assert.Equal(t, tt.passed[r.Name], r.Passed, r.Name)
				if r.BypassDetected {
					bypass = append(bypass, r.Name)
					assert.Equal(t, RiskHigh, r.RiskLevel)
				}
			}
			assert.Equal(t, tt.bypass, bypass)
		})
	}

	unsafe := NewValidator().TestCSP("script-src 'unsafe-inline'")
	assert.Equal(t, "Remove 'unsafe-inline' and use nonces or hashes for legitimate inline scripts", unsafe[0].Remediation)
}

func TestRuleWAF(t *testing.T) {
	w, err := RuleWAF(`<script`, `on\w+=`)
	require.NoError(t, err)

	byName := resultsByName(NewValidator().TestWAF(w))
	assert.True(t, byName["basic_script_blocking"].Passed)
	assert.True(t, byName["event_handler_blocking"].Passed)
	assert.True(t, byName["case_variation_bypass"].Passed)

	encoded := byName["encoded_bypass_attempt"]
	assert.False(t, encoded.Passed)
	assert.True(t, encoded.BypassDetected)
	assert.Equal(t, "Blocked: false", encoded.ActualOutput)
	assert.Equal(t, "Add or improve WAF rules for encoding_bypass attacks", encoded.Remediation)

	_, err = RuleWAF()
	assert.Error(t, err)
	_, err = RuleWAF("(")
	assert.Error(t, err)
}

func TestAssess(t *testing.T) {
	v := NewValidator()
	a := v.Assess(v.TestSanitization(identity))

	assert.Equal(t, 7, a.TotalTests)
	assert.Equal(t, 4, a.PassedTests)
	assert.Equal(t, 3, a.FailedTests)
	assert.Equal(t, 1, a.CriticalFailures)
	assert.InDelta(t, 40.0/7-2, a.SecurityScore, 1e-9)
	assert.InDelta(t, 4.0/7, a.Coverage[InputSanitization], 1e-9)
	assert.Equal(t, 0.0, a.Coverage[CSPPolicy])
	assert.Len(t, a.Coverage, 8)
	assert.Equal(t, []string{
		"URGENT: Fix 1 critical security issues immediately",
		"Improve input sanitization to handle script injection and event handlers",
		"Implement defense-in-depth with multiple prevention layers",
	}, a.Recommendations)

	empty := v.Assess(nil)
	assert.Equal(t, 0, empty.TotalTests)
	assert.Equal(t, 0.0, empty.SecurityScore)
	assert.Empty(t, empty.Recommendations)
}

func TestRun(t *testing.T) {
	v := NewValidator()

	a, err := v.Run(Options{Sanitizer: "html_entities", Encoding: true})
	require.NoError(t, err)
	assert.Equal(t, 11, a.TotalTests)
	assert.Equal(t, 10.0, a.SecurityScore)
	assert.Equal(t, 1.0, a.Coverage[OutputEncoding])
	assert.Equal(t, []string{
		"Implement defense-in-depth with multiple prevention layers",
		"Consider implementing advanced security measures like SRI and trusted types",
	}, a.Recommendations)

	a, err = v.Run(Options{CSP: "script-src 'self'", WAFRules: []string{"<script"}})
	require.NoError(t, err)
	assert.Equal(t, 7, a.TotalTests)

	_, err = v.Run(Options{})
	assert.ErrorIs(t, err, ErrNothingSelected)
	_, err = v.Run(Options{Sanitizer: "rot13"})
	assert.Error(t, err)
	_, err = v.Run(Options{WAFRules: []string{"("}})
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	v := NewValidator()
	report := Report(v.Assess(v.TestSanitization(identity)))

	assert.True(t, strings.HasPrefix(report, "XSS Prevention Validation Report\n"))
	assert.Contains(t, report, "Tests Passed: 4/7 (57.1%)")
	assert.Contains(t, report, "Input Sanitization: 57.1%")
	assert.Contains(t, report, "CRITICAL ISSUES")
	assert.Contains(t, report, "[X] basic_script_tag")
	assert.Contains(t, report, "[!] svg_onload")
	assert.Contains(t, report, "1. URGENT: Fix 1 critical security issues immediately")
	assert.Contains(t, report, "Input Sanitization: 4/7 (57.1%)")
	assert.NotContains(t, report, "Output Encoding")

	empty := Report(v.Assess(nil))
	assert.Contains(t, empty, "Tests Passed: 0/0 (0.0%)")
	assert.NotContains(t, empty, "CRITICAL ISSUES")
}

func TestMechanismTitle(t *testing.T) {
	assert.Equal(t, "Input Sanitization", InputSanitization.Title())
	assert.Equal(t, "Waf Rules", WAFRules.Title())
}
