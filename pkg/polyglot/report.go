package polyglot

import (
	"fmt"
	"strings"
)

// Report renders a plain text summary of generated polyglots.
func Report(payloads []PolyglotPayload) string {
	var sb strings.Builder
	sb.WriteString("Advanced Polyglot XSS Payload Report\n")
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	if len(payloads) == 0 {
		sb.WriteString("No polyglot payloads generated.\n")
		return sb.String()
	}

	best, totalLength := 0.0, 0
	for _, p := range payloads {
		if p.Confidence > best {
			best = p.Confidence
		}
		totalLength += p.Length
	}
	fmt.Fprintf(&sb, "Generated %d polyglot payloads\n", len(payloads))
	fmt.Fprintf(&sb, "Best confidence: %.2f\n", best)
	fmt.Fprintf(&sb, "Average length: %.0f characters\n\n", float64(totalLength)/float64(len(payloads)))

	sb.WriteString("TOP POLYGLOT PAYLOADS:\n")
	sb.WriteString(strings.Repeat("-", 30) + "\n")
	for i, p := range payloads[:min(5, len(payloads))] {
		fmt.Fprintf(&sb, "\n[%d] Confidence: %.2f | Length: %d\n", i+1, p.Confidence, p.Length)
		fmt.Fprintf(&sb, "Payload: %s\n", p.Payload)
		fmt.Fprintf(&sb, "Contexts: %s\n", strings.Join(contextNames(p.Contexts), ", "))
		fmt.Fprintf(&sb, "WAF Evasion: %.2f\n", p.WAFEvasionScore)
		fmt.Fprintf(&sb, "Complexity: %.1f\n", p.ComplexityScore)
		if len(p.EncodingsUsed) > 0 {
			names := make([]string, len(p.EncodingsUsed))
			for j, e := range p.EncodingsUsed {
				names[j] = string(e)
			}
			fmt.Fprintf(&sb, "Encodings: %s\n", strings.Join(names, ", "))
		}
		if len(p.ObfuscationsUsed) > 0 {
			names := make([]string, len(p.ObfuscationsUsed))
			for j, o := range p.ObfuscationsUsed {
				names[j] = string(o)
			}
			fmt.Fprintf(&sb, "Obfuscations: %s\n", strings.Join(names, ", "))
		}
		fmt.Fprintf(&sb, "Best browsers: %s\n", bestBrowsers(p.BrowserCompatibility, 3))
	}
	return sb.String()
}
