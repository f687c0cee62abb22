package prevention

import (
	"fmt"
	"strings"

	"github.com/pyneda/xsslab/lib"
)

const reportedHighRiskMax = 5

// Report renders an assessment as a plain text report.
func Report(a Assessment) string {
	var sb strings.Builder
	sb.WriteString("XSS Prevention Validation Report\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString("EXECUTIVE SUMMARY\n" + strings.Repeat("-", 20) + "\n")
	fmt.Fprintf(&sb, "Security Score: %.1f/10.0\n", a.SecurityScore)
	rate := 0.0
	if a.TotalTests > 0 {
		rate = float64(a.PassedTests) / float64(a.TotalTests) * 100
	}
	fmt.Fprintf(&sb, "Tests Passed: %d/%d (%.1f%%)\n", a.PassedTests, a.TotalTests, rate)
	fmt.Fprintf(&sb, "Critical Failures: %d\n\n", a.CriticalFailures)

	sb.WriteString("PREVENTION MECHANISM COVERAGE\n" + strings.Repeat("-", 35) + "\n")
	for _, m := range mechanisms {
		if c := a.Coverage[m]; c > 0 {
			fmt.Fprintf(&sb, "%s: %.1f%%\n", m.Title(), c*100)
		}
	}
	sb.WriteString("\n")

	var critical, high []TestResult
	for _, r := range a.Results {
		switch {
		case r.RiskLevel == RiskCritical:
			critical = append(critical, r)
		case r.RiskLevel == RiskHigh && !r.Passed:
			high = append(high, r)
		}
	}
	if len(critical) > 0 {
		sb.WriteString("CRITICAL ISSUES\n" + strings.Repeat("-", 15) + "\n")
		for _, r := range critical {
			fmt.Fprintf(&sb, "[X] %s\n", r.Name)
			fmt.Fprintf(&sb, "   Input: %s\n", lib.Truncate(r.Input, 53))
			fmt.Fprintf(&sb, "   Issue: %s\n\n", r.Remediation)
		}
	}
	if len(high) > 0 {
		sb.WriteString("HIGH-RISK ISSUES\n" + strings.Repeat("-", 15) + "\n")
		for _, r := range high[:min(reportedHighRiskMax, len(high))] {
			fmt.Fprintf(&sb, "[!] %s\n", r.Name)
			fmt.Fprintf(&sb, "   Input: %s\n", lib.Truncate(r.Input, 53))
			fmt.Fprintf(&sb, "   Fix: %s\n\n", r.Remediation)
		}
	}

	if len(a.Recommendations) > 0 {
		sb.WriteString("SECURITY RECOMMENDATIONS\n" + strings.Repeat("-", 25) + "\n")
		for i, rec := range a.Recommendations {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, rec)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("TEST RESULTS SUMMARY\n" + strings.Repeat("-", 20) + "\n")
	type stats struct{ total, passed int }
	var order []Mechanism
	byMechanism := map[Mechanism]*stats{}
	for _, r := range a.Results {
		s, ok := byMechanism[r.Mechanism]
		if !ok {
			s = &stats{}
			byMechanism[r.Mechanism] = s
			order = append(order, r.Mechanism)
		}
		s.total++
		if r.Passed {
			s.passed++
		}
	}
	for _, m := range order {
		s := byMechanism[m]
		fmt.Fprintf(&sb, "%s: %d/%d (%.1f%%)\n", m.Title(), s.passed, s.total, float64(s.passed)/float64(s.total)*100)
	}
	return sb.String()
}
