package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/pyneda/xsslab/lib"
)

const DefaultBatchConcurrency = 8

// BatchAnalyze analyzes payloads on a bounded worker pool. Results keep the
// input order. Payloads not started before ctx is cancelled are left out.
func (a *PayloadAnalyzer) BatchAnalyze(ctx context.Context, payloads []string, concurrency int) []PayloadAnalysis {
	if concurrency <= 0 {
		concurrency = DefaultBatchConcurrency
	}
	log.Info().Int("payloads", len(payloads)).Int("concurrency", concurrency).Msg("Batch analyzing payloads")

	results := make([]PayloadAnalysis, len(payloads))
	done := make([]bool, len(payloads))
	p := pool.New().WithMaxGoroutines(concurrency)

loop:
	for i, payload := range payloads {
		select {
		case <-ctx.Done():
			log.Warn().Int("scheduled", i).Msg("Batch analysis cancelled")
			break loop
		default:
		}
		i, payload := i, payload
		p.Go(func() {
			results[i] = a.Analyze(payload)
			done[i] = true
		})
	}
	p.Wait()

	out := make([]PayloadAnalysis, 0, len(results))
	for i, r := range results {
		if done[i] {
			out = append(out, r)
		}
	}
	log.Info().Int("analyses", len(out)).Msg("Batch analysis complete")
	return out
}

// Count is a named occurrence count.
type Count struct {
	Name  string `json:"name" yaml:"name"`
	Count int    `json:"count" yaml:"count"`
}

// Summary aggregates a set of analyses.
type Summary struct {
	TotalPayloads          int               `json:"total_payloads" yaml:"total_payloads"`
	AverageConfidence      float64           `json:"average_confidence" yaml:"average_confidence"`
	RiskDistribution       map[RiskLevel]int `json:"risk_distribution" yaml:"risk_distribution"`
	MostCommonContexts     []Count           `json:"most_common_contexts" yaml:"most_common_contexts"`
	MostCommonTechniques   []Count           `json:"most_common_techniques" yaml:"most_common_techniques"`
	HighConfidencePayloads int               `json:"high_confidence_payloads" yaml:"high_confidence_payloads"`
}

func topCounts(counts map[string]int, n int) []Count {
	out := make([]Count, 0, len(counts))
	for name, c := range counts {
		out = append(out, Count{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Summarize returns the zero Summary for an empty input.
func Summarize(analyses []PayloadAnalysis) Summary {
	if len(analyses) == 0 {
		return Summary{}
	}

	risks := make(map[RiskLevel]int)
	contexts := make(map[string]int)
	techniques := make(map[string]int)
	total := 0.0
	high := 0

	for _, a := range analyses {
		risks[a.RiskLevel]++
		for _, c := range a.Contexts {
			contexts[string(c)]++
		}
		for _, t := range a.BypassTechniques {
			techniques[t]++
		}
		total += a.ConfidenceScore
		if a.ConfidenceScore > 0.8 {
			high++
		}
	}

	return Summary{
		TotalPayloads:          len(analyses),
		AverageConfidence:      total / float64(len(analyses)),
		RiskDistribution:       risks,
		MostCommonContexts:     topCounts(contexts, 5),
		MostCommonTechniques:   topCounts(techniques, 5),
		HighConfidencePayloads: high,
	}
}

var riskOrder = []RiskLevel{RiskCritical, RiskHigh, RiskMedium, RiskLow}

// Report renders a plain text report of analyses.
func Report(analyses []PayloadAnalysis) string {
	s := Summarize(analyses)
	var sb strings.Builder
	sep := strings.Repeat("=", 60)

	sb.WriteString(sep + "\n")
	sb.WriteString("XSS PAYLOAD ANALYSIS REPORT\n")
	sb.WriteString(sep + "\n\n")
	fmt.Fprintf(&sb, "Total Payloads Analyzed: %d\n", s.TotalPayloads)
	fmt.Fprintf(&sb, "Average Confidence: %.2f\n", s.AverageConfidence)
	fmt.Fprintf(&sb, "High Confidence Payloads: %d\n\n", s.HighConfidencePayloads)

	sb.WriteString("RISK DISTRIBUTION:\n")
	for _, r := range riskOrder {
		if n := s.RiskDistribution[r]; n > 0 {
			fmt.Fprintf(&sb, "  %s: %d\n", strings.ToUpper(string(r)), n)
		}
	}

	sorted := make([]PayloadAnalysis, len(analyses))
	copy(sorted, analyses)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RiskLevel.Rank() != sorted[j].RiskLevel.Rank() {
			return sorted[i].RiskLevel.Rank() > sorted[j].RiskLevel.Rank()
		}
		return sorted[i].ConfidenceScore > sorted[j].ConfidenceScore
	})
	if len(sorted) > 5 {
		sorted = sorted[:5]
	}

	sb.WriteString("\nTOP RISK PAYLOADS:\n")
	for i, a := range sorted {
		fmt.Fprintf(&sb, "%d. [%s] %s (confidence %.2f)\n", i+1, strings.ToUpper(string(a.RiskLevel)), lib.Truncate(a.Payload, 63), a.ConfidenceScore)
	}

	sb.WriteString("\nCOMMON BYPASS TECHNIQUES:\n")
	for _, c := range s.MostCommonTechniques {
		fmt.Fprintf(&sb, "  %s: %d\n", c.Name, c.Count)
	}

	sb.WriteString("\nCOMMON CONTEXTS:\n")
	for _, c := range s.MostCommonContexts {
		fmt.Fprintf(&sb, "  %s: %d\n", c.Name, c.Count)
	}
	return sb.String()
}
