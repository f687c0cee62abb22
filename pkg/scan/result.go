package scan

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pyneda/xsslab/lib"
	"github.com/pyneda/xsslab/pkg/analysis"
)

// TestResult is the outcome of sending one payload in one parameter.
type TestResult struct {
	URL              string                    `json:"url" yaml:"url"`
	Parameter        string                    `json:"parameter" yaml:"parameter"`
	Payload          string                    `json:"payload" yaml:"payload"`
	Method           string                    `json:"method" yaml:"method"`
	Success          bool                      `json:"success" yaml:"success"`
	Confidence       float64                   `json:"confidence" yaml:"confidence"`
	ResponseCode     int                       `json:"response_code" yaml:"response_code"`
	ResponseTime     time.Duration             `json:"response_time" yaml:"response_time"`
	Evidence         string                    `json:"evidence" yaml:"evidence"`
	Context          string                    `json:"context" yaml:"context"`
	BypassTechniques []string                  `json:"bypass_techniques" yaml:"bypass_techniques"`
	Analysis         *analysis.PayloadAnalysis `json:"payload_analysis,omitempty" yaml:"payload_analysis,omitempty"`
	Timestamp        time.Time                 `json:"timestamp" yaml:"timestamp"`
	Error            string                    `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorCategory    string                    `json:"error_category,omitempty" yaml:"error_category,omitempty"`
}

// Severity buckets the confidence the way the text report does.
func (r TestResult) Severity() string {
	switch {
	case r.Confidence > 0.8:
		return "high"
	case r.Confidence > 0.5:
		return "medium"
	default:
		return "low"
	}
}

func (r TestResult) String() string {
	status := "no"
	if r.Success {
		status = "yes"
	}
	return fmt.Sprintf("%s %s=%s reflected=%s confidence=%.2f context=%s", r.Method, r.Parameter, r.Payload, status, r.Confidence, r.Context)
}

func (r TestResult) Pretty() string {
	status := lib.Colorize("not reflected", lib.Green)
	if r.Success {
		status = lib.ColorLevel(r.Severity())
	}
	out := fmt.Sprintf(
		"%sURL:%s %s\n%sParameter:%s %s\n%sPayload:%s %s\n%sResult:%s %s\n%sConfidence:%s %s\n%sContext:%s %s\n%sStatus:%s %d (%s)\n",
		lib.Blue, lib.ResetColor, r.URL,
		lib.Blue, lib.ResetColor, r.Parameter,
		lib.Blue, lib.ResetColor, r.Payload,
		lib.Blue, lib.ResetColor, status,
		lib.Blue, lib.ResetColor, lib.ColorScore(r.Confidence, "%.2f"),
		lib.Blue, lib.ResetColor, r.Context,
		lib.Blue, lib.ResetColor, r.ResponseCode, r.ResponseTime.Round(time.Millisecond),
	)
	if r.Error != "" {
		out += fmt.Sprintf("%sError:%s %s (%s)\n", lib.Red, lib.ResetColor, r.Error, r.ErrorCategory)
	}
	return out
}

func (r TestResult) TableHeaders() []string {
	return []string{"Parameter", "Payload", "Reflected", "Confidence", "Context", "Status"}
}

func (r TestResult) TableRow() []string {
	return []string{
		r.Parameter,
		lib.Truncate(r.Payload, 50),
		fmt.Sprintf("%t", r.Success),
		fmt.Sprintf("%.2f", r.Confidence),
		r.Context,
		fmt.Sprintf("%d", r.ResponseCode),
	}
}

// Stats aggregates every result a Scanner has collected.
type Stats struct {
	TotalTests                 int           `json:"total_tests" yaml:"total_tests"`
	TotalRequests              int           `json:"total_requests" yaml:"total_requests"`
	SuccessfulInjections       int           `json:"successful_injections" yaml:"successful_injections"`
	ParametersTested           int           `json:"parameters_tested" yaml:"parameters_tested"`
	SuccessRate                float64       `json:"success_rate" yaml:"success_rate"`
	AverageConfidence          float64       `json:"average_confidence" yaml:"average_confidence"`
	ContextsFound              []string      `json:"contexts_found" yaml:"contexts_found"`
	ParametersVulnerable       []string      `json:"parameters_vulnerable" yaml:"parameters_vulnerable"`
	BypassTechniquesSuccessful []string      `json:"bypass_techniques_successful" yaml:"bypass_techniques_successful"`
	Duration                   time.Duration `json:"scan_duration" yaml:"scan_duration"`
	RequestsPerSecond          float64       `json:"requests_per_second" yaml:"requests_per_second"`
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
