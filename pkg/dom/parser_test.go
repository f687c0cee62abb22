package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeDirectFlow(t *testing.T) {
	code := `var payload = location.hash.substring(1);
document.getElementById('out').innerHTML = payload;`

	result := NewParser().Analyze(code)

	require.Len(t, result.Sources, 2)
	assert.Equal(t, SourceLocation, result.Sources[0].Type)
	assert.Equal(t, SourceHash, result.Sources[1].Type)
	assert.Equal(t, "payload", result.Sources[1].Variable)
	assert.Equal(t, RiskHigh, result.Sources[1].RiskLevel)

	require.Len(t, result.Sinks, 1)
	sink := result.Sinks[0]
	assert.Equal(t, SinkInnerHTML, sink.Type)
	assert.Equal(t, "payload", sink.Variable)
	assert.Equal(t, 2, sink.Line)
	assert.False(t, sink.RequiresInteraction)

	require.Len(t, result.Flows, 2)
	hash := result.Flows[1]
	assert.Equal(t, SourceHash, hash.Source.Type)
	assert.Equal(t, 0.9, hash.Confidence)
	assert.Empty(t, hash.Intermediates)
	assert.Equal(t, "#<img src=x onerror=alert('DOM-XSS')>", hash.Payload)
	require.Len(t, hash.Steps, 4)
	assert.Equal(t, "1. Navigate to the vulnerable page", hash.Steps[0])
	assert.Equal(t, "4. The sink (innerHTML) will execute the malicious code", hash.Steps[3])
	assert.Equal(t, defaultPayload, result.Flows[0].Payload)
	assert.True(t, result.Vulnerable())
}

func TestAnalyzeIndirectFlowThroughSanitizer(t *testing.T) {
	code := `var q = location.search;
var safe = encodeURIComponent(q);
eval(safe);`

	result := NewParser().Analyze(code)

	require.Len(t, result.Sinks, 1)
	assert.Equal(t, SinkEval, result.Sinks[0].Type)
	assert.Equal(t, "safe", result.Sinks[0].Variable)
	assert.Equal(t, RiskCritical, result.Sinks[0].RiskLevel)

	require.Len(t, result.Flows, 2)
	for _, f := range result.Flows {
		assert.Equal(t, []string{"safe"}, f.Intermediates)
		assert.Equal(t, []string{"encodeURIComponent"}, f.Transformations)
		assert.InDelta(t, 0.75, f.Confidence, 1e-9)
	}
	assert.Equal(t, SourceSearch, result.Flows[1].Source.Type)
	assert.Equal(t, "#';alert('DOM-XSS');//", result.Flows[1].Payload)
}

func TestAnalyzeTaintedVariableFallback(t *testing.T) {
	code := `var name = window.name;
var msg = localStorage.getItem('m');
$('#out').html(name);`

	result := NewParser().Analyze(code)

	require.Len(t, result.Sinks, 1)
	assert.Equal(t, SinkJQueryHTML, result.Sinks[0].Type)
	assert.Equal(t, "sink_3", result.Sinks[0].Variable)

	require.Len(t, result.Flows, 2)
	assert.Equal(t, SourceWindowName, result.Flows[0].Source.Type)
	assert.Equal(t, 0.9, result.Flows[0].Confidence)

	storage := result.Flows[1]
	assert.Equal(t, SourceLocalStorage, storage.Source.Type)
	assert.Equal(t, 0.7, storage.Confidence)
	assert.Equal(t, []string{"name"}, storage.Intermediates)
	assert.Equal(t, "1. Set malicious data in localStorage", storage.Steps[0])
}

func TestAnalyzeSourcesAndSinks(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		sources []SourceType
		sinks   []SinkType
	}{
		{"no taint", `var greeting = "hello";
el.textContent = greeting;`, nil, nil},
		{"location assignment is not a source", `window.location = "/home";`, nil, []SinkType{SinkLocationHref}},
		{"href assignment from hash", `location.href = location.hash;`, nil, []SinkType{SinkLocationHref}},
		{"anonymous function", `button.addEventListener('click', function() {`, nil, nil},
		{"function constructor", `var run = new Function(code);`, nil, []SinkType{SinkEval}},
		{"input value read", `var v = document.querySelector('#q').value;`, []SourceType{SourceUserInput}, nil},
		{"input value write", `field.value = "x";`, nil, nil},
		{"message handler", `window.addEventListener('message', handle, false);`, []SourceType{SourcePostMessage}, nil},
		{"cookie into write", `document.write(document.cookie);`, []SourceType{SourceCookie}, []SinkType{SinkDocumentWrite}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewParser().Analyze(tt.code)
			var sources []SourceType
			for _, s := range result.Sources {
				sources = append(sources, s.Type)
			}
			var sinks []SinkType
			for _, s := range result.Sinks {
				sinks = append(sinks, s.Type)
			}
			assert.Equal(t, tt.sources, sources)
			assert.Equal(t, tt.sinks, sinks)
		})
	}
}

func TestFlowConfidence(t *testing.T) {
	tests := []struct {
		name            string
		source          SourceType
		sink            Sink
		intermediates   []string
		transformations []string
		expected        float64
	}{
		{"capped at one", SourceHash, Sink{Type: SinkInnerHTML}, nil, nil, 1.0},
		{"one hop", SourceReferrer, Sink{Type: SinkJQueryHTML}, []string{"a"}, nil, 0.45},
		{"floored", SourceCookie, Sink{Type: SinkCreateElement, RequiresInteraction: true}, []string{"a", "b"}, []string{"escape"}, 0.1},
		{"unescape counts as escape", SourcePostMessage, Sink{Type: SinkOuterHTML}, nil, []string{"escape", "unescape"}, 0.7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := flowConfidence(Source{Type: tt.source}, tt.sink, tt.intermediates, tt.transformations)
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestRequiresInteraction(t *testing.T) {
	assert.True(t, requiresInteraction(`btn.onclick = function() { out.innerHTML = x; }`))
	assert.True(t, requiresInteraction(`$('#b').click(function() { eval(x) })`))
	assert.False(t, requiresInteraction(`out.innerHTML = x;`))
}

func TestExploitPayload(t *testing.T) {
	tests := []struct {
		source   SourceType
		sink     SinkType
		expected string
	}{
		{SourceSearch, SinkDocumentWrite, "#<script>alert('DOM-XSS')</script>"},
		{SourceHash, SinkJQueryHTML, "#<img/src/onerror=alert('DOM-XSS')>"},
		{SourceHash, SinkLocationHref, defaultPayload},
		{SourceLocation, SinkLocationHref, "javascript:alert('DOM-XSS')"},
		{SourcePostMessage, SinkEval, `{"code":"alert('DOM-XSS')"}`},
		{SourceSessionStorage, SinkInnerHTML, "<svg onload=alert('DOM-XSS')>"},
		{SourceCookie, SinkInnerHTML, "user=<script>alert('DOM-XSS')</script>"},
		{SourceWindowName, SinkEval, defaultPayload},
	}
	for _, tt := range tests {
		t.Run(string(tt.source)+"/"+string(tt.sink), func(t *testing.T) {
			assert.Equal(t, tt.expected, exploitPayload(tt.source, tt.sink))
		})
	}
}

func TestReport(t *testing.T) {
	result := NewParser().Analyze(`var payload = location.hash.substring(1);
document.getElementById('out').innerHTML = payload;`)
	report := Report(result)
	assert.True(t, strings.HasPrefix(report, "DOM XSS Analysis Report\n"))
	assert.Contains(t, report, "Vulnerable Flows: 2")
	assert.Contains(t, report, "[2] DOM XSS Vulnerability")
	assert.Contains(t, report, "Source: hash (line 1)")
	assert.Contains(t, report, "Risk: HIGH")
	assert.Contains(t, report, "  2. Append the payload to the URL hash: #<img src=x onerror=alert('DOM-XSS')>")

	empty := Report(NewParser().Analyze("var a = 1;"))
	assert.Contains(t, empty, "Vulnerable Flows: 0")
	assert.NotContains(t, empty, "VULNERABILITIES FOUND")
}
