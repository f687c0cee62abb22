package analysis

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyneda/xsslab/pkg/payloads"
)

func TestContextAnalyzer(t *testing.T) {
	analyzer := NewContextAnalyzer()
	tests := []struct {
		name     string
		payload  string
		expected []Context
	}{
		{"script tag", "<script>alert(1)</script>", []Context{ContextHTMLContent}},
		{"img onerror", "<img src=x onerror=alert(1)>", []Context{ContextHTMLContent, ContextAttributeValue, ContextJSVariable}},
		{"quote breakout", `";alert(1)//`, []Context{ContextJSString}},
		{"protocol", "javascript:alert(1)", []Context{ContextURLParameter}},
		{"css", "expression(alert(1))", []Context{ContextCSSValue}},
		{"comment", "--><b>", []Context{ContextHTMLComment}},
		{"plain", "hello world", []Context{ContextUnknown}},
		{"empty", "", []Context{ContextUnknown}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, analyzer.Analyze(tt.payload))
		})
	}
}

func TestTechniqueDetector(t *testing.T) {
	d := NewTechniqueDetector()
	assert.Len(t, d.Names(), 16)

	got := d.Detect("<script>alert(1)</script>")
	assert.Equal(t, []string{"case_variation", "filter_evasion", "mixed_case_evasion"}, got)

	got = d.Detect(`"x'y"`)
	assert.Contains(t, got, "mixed_quotes")
	assert.Contains(t, got, "quote_imbalance")

	got = d.Detect("%253Cscript%253E")
	assert.Contains(t, got, "double_encoding")
	assert.Contains(t, got, "encoded_chars")

	assert.Empty(t, d.Detect(""))
}

func TestTechniqueDetectorSkipsBrokenPattern(t *testing.T) {
	d := NewTechniqueDetectorWithPatterns([]TechniquePattern{
		{Name: "broken", Pattern: "(unclosed"},
		{Name: "alerting", Pattern: "alert"},
	})
	assert.Equal(t, []string{"alerting"}, d.Names())
	assert.Equal(t, []string{"alerting", "mixed_case_evasion"}, d.Detect("alert"))
}

func TestRiskScorer(t *testing.T) {
	s := NewRiskScorer()
	tests := []struct {
		name       string
		payload    string
		contexts   []Context
		techniques []string
		score      int
		confidence float64
	}{
		{"empty", "", []Context{ContextUnknown}, nil, 0, 0.5},
		{"script", "<script>alert(1)</script>", []Context{ContextHTMLContent}, []string{"a", "b", "c"}, 9, 1.05},
		{"dangerous uppercase", "x.innerHTML=1", nil, nil, 3, 0.7},
		{"details toggle", "<details ontoggle=x>", nil, nil, 2, 0.65},
		{"long", strings.Repeat("a", 150), nil, nil, 1, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, confidence := s.RawScore(tt.payload, tt.contexts, tt.techniques)
			assert.Equal(t, tt.score, score)
			assert.InDelta(t, tt.confidence, confidence, 1e-9)
		})
	}

	level, confidence := s.Score("<script>alert(1)</script>", []Context{ContextHTMLContent}, []string{"a", "b", "c"})
	assert.Equal(t, RiskCritical, level)
	assert.Equal(t, 1.0, confidence)
}

func TestLevelForScore(t *testing.T) {
	assert.Equal(t, RiskLow, LevelForScore(2))
	assert.Equal(t, RiskMedium, LevelForScore(3))
	assert.Equal(t, RiskHigh, LevelForScore(6))
	assert.Equal(t, RiskCritical, LevelForScore(8))
	assert.True(t, RiskCritical.Rank() > RiskHigh.Rank())
	assert.True(t, RiskMedium.Rank() > RiskLow.Rank())
}

func TestAnalyzeScriptTag(t *testing.T) {
	a := NewPayloadAnalyzer()
	result := a.Analyze("<script>alert(1)</script>")

	assert.Contains(t, result.Contexts, ContextHTMLContent)
	assert.GreaterOrEqual(t, result.RiskLevel.Rank(), RiskMedium.Rank())
	assert.Equal(t, []XSSType{XSSReflected}, result.XSSTypes)
	assert.Equal(t, FamilyAlert, result.Metadata.PayloadFamily)
	assert.True(t, result.Metadata.ContainsScriptTag)
	assert.False(t, result.Metadata.EncodingDetected)
	assert.Equal(t, []string{"<", ">", "(", ")", "<", ">"}, result.Metadata.SpecialCharacters)
	assert.Contains(t, result.Explanation, "Uses direct script tag injection.")
	assert.Contains(t, result.ProofOfConcept, "HTML Context: <div><script>alert(1)</script></div>")
	assert.Contains(t, result.ProofOfConcept, "Testing Instructions:")
}

func TestAnalyzeImgOnerror(t *testing.T) {
	result := NewPayloadAnalyzer().Analyze("<img src=x onerror=alert(1)>")

	assert.Contains(t, result.Contexts, ContextHTMLContent)
	assert.Contains(t, result.Contexts, ContextAttributeValue)
	assert.Contains(t, []RiskLevel{RiskHigh, RiskCritical}, result.RiskLevel)
	assert.Contains(t, result.XSSTypes, XSSUniversal)
	assert.Equal(t, []string{"img"}, result.Metadata.DetectedTags)
	assert.Equal(t, []string{"onerror"}, result.Metadata.DetectedEvents)
}

func TestAnalyzeEmpty(t *testing.T) {
	result := NewPayloadAnalyzer().Analyze("")

	assert.Equal(t, RiskLow, result.RiskLevel)
	assert.GreaterOrEqual(t, result.ConfidenceScore, 0.1)
	assert.LessOrEqual(t, result.ConfidenceScore, 0.6)
	assert.Equal(t, []Context{ContextUnknown}, result.Contexts)
	assert.Equal(t, "This payload attempts XSS exploitation through: unknown injection context. Likely to succeed as reflected XSS.", result.Explanation)
}

func TestAnalyzeNeverPanics(t *testing.T) {
	a := NewPayloadAnalyzer()
	inputs := []string{
		"",
		strings.Repeat("<", 10000),
		`.*+?()[]{}|^$\`,
		"%ff%fe",
		"\x00\x01",
		"\\u12",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			result := a.Analyze(in)
			assert.NotEmpty(t, result.Contexts)
			assert.GreaterOrEqual(t, result.ConfidenceScore, 0.1)
			assert.LessOrEqual(t, result.ConfidenceScore, 1.0)
		})
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	a := NewPayloadAnalyzer()
	for _, p := range []string{"<svg onload=alert(1)>", `"><script>x</script>`, "javascript:alert(document.cookie)"} {
		assert.Equal(t, a.Analyze(p), a.Analyze(p))
	}
}

func TestAnalyzeCorpusConfidenceBounds(t *testing.T) {
	a := NewPayloadAnalyzer()
	for _, p := range payloads.NewLibrary().All() {
		result := a.Analyze(p.Payload)
		assert.GreaterOrEqual(t, result.ConfidenceScore, 0.1, p.Payload)
		assert.LessOrEqual(t, result.ConfidenceScore, 1.0, p.Payload)
		assert.NotEmpty(t, result.Contexts, p.Payload)
		assert.NotEmpty(t, result.XSSTypes, p.Payload)
	}
}

type panickyClassifier struct{}

func (panickyClassifier) Analyze(string) []Context {
	panic("classifier exploded")
}

func TestAnalyzeDegradedResult(t *testing.T) {
	a := NewPayloadAnalyzer(WithContextClassifier(panickyClassifier{}))
	result := a.Analyze("<b>")

	assert.Equal(t, "<b>", result.Payload)
	assert.Equal(t, []Context{ContextUnknown}, result.Contexts)
	assert.Equal(t, []XSSType{XSSReflected}, result.XSSTypes)
	assert.Equal(t, RiskLow, result.RiskLevel)
	assert.Equal(t, 0.0, result.ConfidenceScore)
	assert.Equal(t, "Analysis failed: classifier exploded", result.Explanation)
	assert.Equal(t, "Unable to generate PoC", result.ProofOfConcept)
	assert.Equal(t, "classifier exploded", result.Metadata.Error)
}

func TestDetermineXSSTypes(t *testing.T) {
	tests := []struct {
		payload  string
		expected []XSSType
	}{
		{"alert(1)", []XSSType{XSSStored}},
		{"document.cookie", []XSSType{XSSDOMBased}},
		{"javascript:alert(1)", []XSSType{XSSReflected, XSSUniversal}},
		{"<svg onload=x>", []XSSType{XSSReflected, XSSUniversal}},
		{"hello", []XSSType{XSSReflected}},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			assert.Equal(t, tt.expected, DetermineXSSTypes(tt.payload))
		})
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"&lt;SCRIPT&gt;", "<script>"},
		{"%253Cscript%253E", "<script>"},
		{`<b>`, "<b>"},
		{`\x3cimg`, "<img"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Normalize(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}

	got, err := Normalize("%FF")
	assert.Error(t, err)
	assert.Equal(t, "%ff", got)
}

func TestProofOfConceptURLContext(t *testing.T) {
	result := NewPayloadAnalyzer().Analyze("javascript:alert(1)")
	assert.Contains(t, result.ProofOfConcept, "URL Context: https://example.com/page?param=javascript%3Aalert%281%29")
	assert.Contains(t, result.Explanation, "Uses JavaScript protocol injection.")
}

func TestBatchAnalyzeKeepsOrder(t *testing.T) {
	a := NewPayloadAnalyzer()
	input := []string{"<script>alert(1)</script>", "", "javascript:alert(1)", "<img src=x onerror=alert(1)>"}

	results := a.BatchAnalyze(context.Background(), input, 2)
	require.Len(t, results, len(input))
	for i, r := range results {
		assert.Equal(t, input[i], r.Payload)
	}
}

func TestBatchAnalyzeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := NewPayloadAnalyzer().BatchAnalyze(ctx, []string{"a", "b"}, 1)
	assert.Empty(t, results)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))

	analyses := []PayloadAnalysis{
		{RiskLevel: RiskHigh, ConfidenceScore: 0.9, Contexts: []Context{ContextJSString}, BypassTechniques: []string{"b", "a"}},
		{RiskLevel: RiskLow, ConfidenceScore: 0.3, Contexts: []Context{ContextHTMLContent}, BypassTechniques: []string{"a"}},
		{RiskLevel: RiskHigh, ConfidenceScore: 0.6, Contexts: []Context{ContextHTMLContent, ContextJSString}},
	}
	s := Summarize(analyses)

	assert.Equal(t, 3, s.TotalPayloads)
	assert.InDelta(t, 0.6, s.AverageConfidence, 1e-9)
	assert.Equal(t, 2, s.RiskDistribution[RiskHigh])
	assert.Equal(t, 1, s.RiskDistribution[RiskLow])
	assert.Equal(t, 1, s.HighConfidencePayloads)
	assert.Equal(t, []Count{{"html_content", 2}, {"js_string", 2}}, s.MostCommonContexts)
	assert.Equal(t, []Count{{"a", 2}, {"b", 1}}, s.MostCommonTechniques)
}

func TestReport(t *testing.T) {
	a := NewPayloadAnalyzer()
	report := Report(a.BatchAnalyze(context.Background(), []string{"<script>alert(1)</script>", "hello"}, 0))

	assert.Contains(t, report, "XSS PAYLOAD ANALYSIS REPORT")
	assert.Contains(t, report, "Total Payloads Analyzed: 2")
	assert.Contains(t, report, "TOP RISK PAYLOADS:")
	assert.Contains(t, report, "1. [CRITICAL] <script>alert(1)</script>")
	assert.Contains(t, report, "COMMON BYPASS TECHNIQUES:")
}

func TestReportTruncatesOnRuneBoundary(t *testing.T) {
	payload := "<script>alert('" + strings.Repeat("é", 80) + "')</script>"
	report := Report(NewPayloadAnalyzer().BatchAnalyze(context.Background(), []string{payload}, 1))

	assert.True(t, utf8.ValidString(report))
	assert.Contains(t, report, "<script>alert('"+strings.Repeat("é", 45)+"...")
	assert.NotContains(t, report, payload)
}
