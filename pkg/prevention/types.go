package prevention

import (
	"fmt"
	"strings"

	"github.com/pyneda/xsslab/lib"
)

// Mechanism is a layer of XSS defence that a test suite exercises.
type Mechanism string

const (
	InputSanitization   Mechanism = "input_sanitization"
	OutputEncoding      Mechanism = "output_encoding"
	CSPPolicy           Mechanism = "csp_policy"
	WAFRules            Mechanism = "waf_rules"
	FrameworkProtection Mechanism = "framework_protection"
	SecurityHeaders     Mechanism = "security_headers"
	TemplateEngine      Mechanism = "template_engine"
	ValidationRules     Mechanism = "validation_rules"
)

var mechanisms = []Mechanism{
	InputSanitization, OutputEncoding, CSPPolicy, WAFRules,
	FrameworkProtection, SecurityHeaders, TemplateEngine, ValidationRules,
}

// Title turns input_sanitization into Input Sanitization.
func (m Mechanism) Title() string {
	words := strings.Split(string(m), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

type EncodingType string

const (
	HTMLEncoding       EncodingType = "html_encoding"
	AttributeEncoding  EncodingType = "attribute_encoding"
	URLEncoding        EncodingType = "url_encoding"
	JavaScriptEncoding EncodingType = "javascript_encoding"
	CSSEncoding        EncodingType = "css_encoding"
	JSONEncoding       EncodingType = "json_encoding"
)

// Injection contexts handed to a ContextEncoder.
const (
	ContextHTMLContent      = "html_content"
	ContextHTMLAttribute    = "html_attribute"
	ContextURLParameter     = "url_parameter"
	ContextJavaScriptString = "javascript_string"
)

const (
	RiskCritical = "critical"
	RiskHigh     = "high"
	RiskMedium   = "medium"
	RiskLow      = "low"
)

type SanitizationCase struct {
	Name         string `json:"name" yaml:"name"`
	Input        string `json:"input" yaml:"input"`
	ExpectedSafe string `json:"expected_safe" yaml:"expected_safe"`
	Description  string `json:"description" yaml:"description"`
	AttackType   string `json:"attack_type" yaml:"attack_type"`
	Context      string `json:"context" yaml:"context"`
	Severity     string `json:"severity" yaml:"severity"`
}

type EncodingCase struct {
	Name     string       `json:"name" yaml:"name"`
	Input    string       `json:"input" yaml:"input"`
	Type     EncodingType `json:"type" yaml:"type"`
	Expected string       `json:"expected" yaml:"expected"`
	Context  string       `json:"context" yaml:"context"`
	Bypass   string       `json:"bypass" yaml:"bypass"`
}

type CSPCase struct {
	Name        string `json:"name" yaml:"name"`
	Policy      string `json:"policy" yaml:"policy"`
	Payload     string `json:"payload" yaml:"payload"`
	ShouldBlock bool   `json:"should_block" yaml:"should_block"`
	Description string `json:"description" yaml:"description"`
}

type WAFCase struct {
	Name        string `json:"name" yaml:"name"`
	Payload     string `json:"payload" yaml:"payload"`
	ShouldBlock bool   `json:"should_block" yaml:"should_block"`
	RuleType    string `json:"rule_type" yaml:"rule_type"`
	Description string `json:"description" yaml:"description"`
}

// Sanitizer cleans untrusted input before it is rendered.
type Sanitizer func(input string) (string, error)

// ContextEncoder encodes input for the named injection context.
type ContextEncoder func(input, context string) (string, error)

// WAF reports whether a payload would be blocked.
type WAF func(payload string) (bool, error)

// TestResult is the outcome of one case run against a defence.
type TestResult struct {
	Mechanism      Mechanism `json:"mechanism" yaml:"mechanism"`
	Name           string    `json:"name" yaml:"name"`
	Passed         bool      `json:"passed" yaml:"passed"`
	Input          string    `json:"input" yaml:"input"`
	ActualOutput   string    `json:"actual_output" yaml:"actual_output"`
	ExpectedOutput string    `json:"expected_output" yaml:"expected_output"`
	BypassDetected bool      `json:"bypass_detected" yaml:"bypass_detected"`
	RiskLevel      string    `json:"risk_level" yaml:"risk_level"`
	Remediation    string    `json:"remediation" yaml:"remediation"`
}

func (r TestResult) status() string {
	if r.Passed {
		return "PASS"
	}
	return "FAIL"
}

func (r TestResult) String() string {
	return fmt.Sprintf("%s %s/%s risk=%s %s", r.status(), r.Mechanism, r.Name, r.RiskLevel, r.Input)
}

func (r TestResult) Pretty() string {
	status := lib.Colorize(r.status(), lib.Green)
	if !r.Passed {
		status = lib.Colorize(r.status(), lib.Red)
	}
	return fmt.Sprintf("%s %s%s%s %s [%s]\n  %s\n", status, lib.Cyan, r.Mechanism, lib.ResetColor, r.Name, lib.ColorLevel(r.RiskLevel), r.Remediation)
}

func (r TestResult) TableHeaders() []string {
	return []string{"Mechanism", "Test", "Result", "Bypass", "Risk", "Output"}
}

func (r TestResult) TableRow() []string {
	return []string{
		string(r.Mechanism),
		r.Name,
		r.status(),
		fmt.Sprintf("%t", r.BypassDetected),
		r.RiskLevel,
		lib.Truncate(r.ActualOutput, 50),
	}
}

// Assessment summarises a set of test results.
type Assessment struct {
	TotalTests       int                   `json:"total_tests" yaml:"total_tests"`
	PassedTests      int                   `json:"passed_tests" yaml:"passed_tests"`
	FailedTests      int                   `json:"failed_tests" yaml:"failed_tests"`
	CriticalFailures int                   `json:"critical_failures" yaml:"critical_failures"`
	SecurityScore    float64               `json:"security_score" yaml:"security_score"`
	Coverage         map[Mechanism]float64 `json:"prevention_coverage" yaml:"prevention_coverage"`
	Recommendations  []string              `json:"recommendations" yaml:"recommendations"`
	Results          []TestResult          `json:"test_results" yaml:"test_results"`
}

func (a Assessment) String() string {
	return fmt.Sprintf("score=%.1f passed=%d/%d critical=%d", a.SecurityScore, a.PassedTests, a.TotalTests, a.CriticalFailures)
}

func (a Assessment) Pretty() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%sSecurity score:%s %.1f/10\n", lib.Blue, lib.ResetColor, a.SecurityScore)
	fmt.Fprintf(&sb, "%sPassed:%s %d/%d\n", lib.Blue, lib.ResetColor, a.PassedTests, a.TotalTests)
	if a.CriticalFailures > 0 {
		fmt.Fprintf(&sb, "%sCritical failures:%s %s\n", lib.Blue, lib.ResetColor, lib.Colorize(fmt.Sprintf("%d", a.CriticalFailures), lib.Red))
	}
	for _, r := range a.Results {
		if !r.Passed {
			sb.WriteString(r.Pretty())
		}
	}
	for _, rec := range a.Recommendations {
		fmt.Fprintf(&sb, "  %s %s\n", lib.Colorize("*", lib.Yellow), rec)
	}
	return sb.String()
}

func (a Assessment) TableHeaders() []string {
	return []string{"Score", "Passed", "Failed", "Critical"}
}

func (a Assessment) TableRow() []string {
	return []string{
		fmt.Sprintf("%.1f", a.SecurityScore),
		fmt.Sprintf("%d", a.PassedTests),
		fmt.Sprintf("%d", a.FailedTests),
		fmt.Sprintf("%d", a.CriticalFailures),
	}
}
