package scan

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gosimple/slug"
)

// Report formats.
const (
	ReportText = "text"
	ReportJSON = "json"
)

const separator = "--------------------------------------------------"

const remediation = `
REMEDIATION RECOMMENDATIONS:
===========================

1. INPUT VALIDATION
   - Implement strict input validation for all user parameters
   - Use whitelist validation where possible
   - Reject or sanitize dangerous characters: < > " ' &

2. OUTPUT ENCODING
   - HTML encode all user data before output
   - Use context-appropriate encoding (HTML, JavaScript, URL)
   - Consider using template engines with auto-escaping

3. CONTENT SECURITY POLICY (CSP)
   - Implement a strict Content Security Policy
   - Use 'nonce' or 'strict-dynamic' for inline scripts
   - Disable 'unsafe-inline' and 'unsafe-eval'

4. SECURE DEVELOPMENT
   - Use security-focused frameworks and libraries
   - Implement automated security testing in CI/CD
   - Regular security code reviews

5. TESTING
   - Implement regular XSS testing
   - Use both automated tools and manual testing
   - Test all user input points and parameters

`

// Report renders the collected results as text or json.
func (s *Scanner) Report(format string) (string, error) {
	st := s.Statistics()
	if st.TotalTests == 0 {
		return "No XSS scan results available.", nil
	}
	vulns := s.Vulnerabilities()
	switch strings.ToLower(format) {
	case ReportText:
		return s.textReport(vulns, st), nil
	case ReportJSON:
		return s.jsonReport(vulns, st)
	}
	return "", fmt.Errorf("unsupported report format: %s", format)
}

func (s *Scanner) targets() []string {
	seen := make(map[string]struct{})
	for _, r := range s.Results() {
		seen[r.URL] = struct{}{}
	}
	return sortedKeys(seen)
}

func (s *Scanner) textReport(vulns []TestResult, st Stats) string {
	var sb strings.Builder
	sb.WriteString("XSS Vulnerability Scan Report\n")
	sb.WriteString("=============================\n\n")
	fmt.Fprintf(&sb, "Target: %s\n", strings.Join(s.targets(), ", "))
	fmt.Fprintf(&sb, "Scan Duration: %.2f seconds\n", st.Duration.Seconds())
	fmt.Fprintf(&sb, "Total Requests: %d\n", st.TotalRequests)
	fmt.Fprintf(&sb, "Parameters Tested: %d\n", st.ParametersTested)
	fmt.Fprintf(&sb, "Vulnerabilities Found: %d\n\n", len(vulns))

	if len(vulns) == 0 {
		sb.WriteString("No XSS vulnerabilities detected.\n")
		return sb.String()
	}

	sb.WriteString("VULNERABILITIES FOUND:\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	for i, r := range vulns {
		fmt.Fprintf(&sb, "[%d] %s - XSS in '%s' parameter\n", i+1, strings.ToUpper(r.Severity()), r.Parameter)
		fmt.Fprintf(&sb, "URL: %s\n", r.URL)
		fmt.Fprintf(&sb, "Payload: %s\n", r.Payload)
		fmt.Fprintf(&sb, "Context: %s\n", r.Context)
		fmt.Fprintf(&sb, "Confidence: %.2f\n", r.Confidence)
		fmt.Fprintf(&sb, "Response Code: %d\n", r.ResponseCode)
		if len(r.BypassTechniques) > 0 {
			fmt.Fprintf(&sb, "Bypass Techniques: %s\n", strings.Join(r.BypassTechniques, ", "))
		}
		fmt.Fprintf(&sb, "Evidence:\n%s\n", r.Evidence)
		sb.WriteString(separator + "\n\n")
	}
	sb.WriteString(remediation)
	sb.WriteString(contextWarnings(vulns))
	return sb.String()
}

func contextWarnings(vulns []TestResult) string {
	var scriptTag, handler, bypass bool
	for _, r := range vulns {
		scriptTag = scriptTag || r.Context == ContextScriptTag
		handler = handler || r.Context == ContextEventHandler
		bypass = bypass || strings.Contains(strings.Join(r.BypassTechniques, " "), "bypass")
	}
	var sb strings.Builder
	if scriptTag {
		sb.WriteString("[!] CRITICAL: Script tag injection found - implement immediate output encoding\n")
	}
	if handler {
		sb.WriteString("[!] HIGH: Event handler injection found - validate attribute values\n")
	}
	if bypass {
		sb.WriteString("[!] WARNING: Bypass techniques successful - review and strengthen filters\n")
	}
	return sb.String()
}

type scanInfo struct {
	Targets              []string `json:"targets"`
	ScanID               string   `json:"scan_id"`
	ScanDuration         float64  `json:"scan_duration"`
	TotalRequests        int      `json:"total_requests"`
	ParametersTested     int      `json:"parameters_tested"`
	VulnerabilitiesFound int      `json:"vulnerabilities_found"`
}

type analysisSummary struct {
	RiskLevel string   `json:"risk_level"`
	Contexts  []string `json:"contexts"`
	XSSTypes  []string `json:"xss_types"`
}

type vulnerability struct {
	URL              string           `json:"url"`
	Parameter        string           `json:"parameter"`
	Payload          string           `json:"payload"`
	Method           string           `json:"method"`
	Confidence       float64          `json:"confidence"`
	Context          string           `json:"context"`
	ResponseCode     int              `json:"response_code"`
	ResponseTime     float64          `json:"response_time"`
	Evidence         string           `json:"evidence"`
	BypassTechniques []string         `json:"bypass_techniques"`
	Timestamp        time.Time        `json:"timestamp"`
	PayloadAnalysis  *analysisSummary `json:"payload_analysis,omitempty"`
}

type jsonReport struct {
	ScanInfo        scanInfo        `json:"scan_info"`
	Vulnerabilities []vulnerability `json:"vulnerabilities"`
}

func (s *Scanner) jsonReport(vulns []TestResult, st Stats) (string, error) {
	report := jsonReport{
		ScanInfo: scanInfo{
			Targets:              s.targets(),
			ScanID:               s.id,
			ScanDuration:         st.Duration.Seconds(),
			TotalRequests:        st.TotalRequests,
			ParametersTested:     st.ParametersTested,
			VulnerabilitiesFound: len(vulns),
		},
		Vulnerabilities: make([]vulnerability, 0, len(vulns)),
	}
	for _, r := range vulns {
		v := vulnerability{
			URL:              r.URL,
			Parameter:        r.Parameter,
			Payload:          r.Payload,
			Method:           r.Method,
			Confidence:       r.Confidence,
			Context:          r.Context,
			ResponseCode:     r.ResponseCode,
			ResponseTime:     r.ResponseTime.Seconds(),
			Evidence:         r.Evidence,
			BypassTechniques: r.BypassTechniques,
			Timestamp:        r.Timestamp,
		}
		if a := r.Analysis; a != nil {
			summary := &analysisSummary{RiskLevel: string(a.RiskLevel)}
			for _, c := range a.Contexts {
				summary.Contexts = append(summary.Contexts, string(c))
			}
			for _, t := range a.XSSTypes {
				summary.XSSTypes = append(summary.XSSTypes, string(t))
			}
			v.PayloadAnalysis = summary
		}
		report.Vulnerabilities = append(report.Vulnerabilities, v)
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ExportResults writes the report to path.
func (s *Scanner) ExportResults(path, format string) error {
	report, err := s.Report(format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(report), 0o644); err != nil {
		return fmt.Errorf("writing scan report: %w", err)
	}
	s.logger.Info().Str("path", path).Str("format", format).Msg("Scan results exported")
	return nil
}

// DefaultReportFilename derives a report name from the first target.
func DefaultReportFilename(target, format string) string {
	name := slug.Make("xss-scan " + target)
	if name == "" {
		name = "xss-scan"
	}
	return name + "." + strings.ToLower(format)
}
