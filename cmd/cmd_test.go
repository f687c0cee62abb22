package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyneda/xsslab/pkg/analysis"
	"github.com/pyneda/xsslab/pkg/dom"
	"github.com/pyneda/xsslab/pkg/encoding"
	"github.com/pyneda/xsslab/pkg/payloads"
	"github.com/pyneda/xsslab/pkg/prevention"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestAnalyzeCommand(t *testing.T) {
	out := run(t, "analyze", "<script>alert(1)</script>", "-f", "json")
	var result analysis.PayloadAnalysis
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "<script>alert(1)</script>", result.Payload)
}

func TestAnalyzeCommandFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "payloads.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\n<svg onload=alert(1)>\n\njavascript:alert(1)\n"), 0o644))

	out := run(t, "analyze", "--file", path, "-f", "json")
	var results []analysis.PayloadAnalysis
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "<svg onload=alert(1)>", results[0].Payload)
	analyzeFile = ""
}

func TestPayloadsStatsCommand(t *testing.T) {
	out := run(t, "payloads", "stats", "-f", "json")
	var stats payloads.Statistics
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 38, stats.TotalPayloads)
}

func TestPayloadsExportCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	run(t, "payloads", "export", "-o", path, "--export-format", "yaml")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "basic:")
	payloadsExportOutput = ""
}

func TestPayloadsCustomCommand(t *testing.T) {
	out := run(t, "payloads", "custom", "<b>", "--context", "attribute_value", "-f", "text")
	assert.Equal(t, "\" <b> \"\n", out)
}

func TestCSPCommand(t *testing.T) {
	out := run(t, "csp", "script-src 'self' 'unsafe-inline'", "-f", "json")
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, true, result["is_bypassable"])
}

func TestFuzzGenerateCommand(t *testing.T) {
	out := run(t, "fuzz", "generate", "--context", "html_tag_content", "--limit", "3", "-f", "json")
	var generated []string
	require.NoError(t, json.Unmarshal([]byte(out), &generated))
	assert.NotEmpty(t, generated)
	assert.LessOrEqual(t, len(generated), 3)
}

func TestPolyglotCommand(t *testing.T) {
	out := run(t, "polyglot", "-c", "html_content", "-n", "2", "--seed", "1", "-f", "json")
	var results []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	assert.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 2)
}

func TestEncodeCommand(t *testing.T) {
	t.Cleanup(func() {
		encodeEncoder = encoding.URL
		encodeDecode = false
		encodeList = false
	})

	out := run(t, "encode", "<b>", "-e", "html_entities+url", "-f", "text")
	assert.Equal(t, "%26lt%3Bb%26gt%3B\n", out)

	out = run(t, "encode", "--decode", "%26lt%3Bb%26gt%3B", "-e", "html_entities+url", "-f", "text")
	assert.Equal(t, "<b>\n", out)
	encodeDecode = false

	out = run(t, "encode", "--list", "-f", "json")
	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.Equal(t, encoding.List(), names)
}

func TestUnknownFormat(t *testing.T) {
	rootCmd.SetArgs([]string{"payloads", "stats", "-f", "xml"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	assert.Error(t, rootCmd.ExecuteContext(context.Background()))
	format = "pretty"
}

func TestDOMCommand(t *testing.T) {
	t.Cleanup(func() {
		domFile = ""
		domFlows = false
		domReport = false
	})
	path := filepath.Join(t.TempDir(), "app.js")
	require.NoError(t, os.WriteFile(path, []byte("var payload = location.hash.substring(1);\nout.innerHTML = payload;\n"), 0o644))

	out := run(t, "dom", "--file", path, "-f", "json")
	var result dom.Analysis
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Len(t, result.Sources, 2)
	require.Len(t, result.Flows, 2)
	assert.Equal(t, dom.SinkInnerHTML, result.Flows[0].Sink.Type)

	domFile = ""
	out = run(t, "dom", "--flows", "var a = 1;", "-f", "json")
	var flows []dom.Flow
	require.NoError(t, json.Unmarshal([]byte(out), &flows))
	assert.Empty(t, flows)

	domFlows = false
	out = run(t, "dom", "--report", "--file", path, "-f", "text")
	assert.Contains(t, out, "DOM XSS Analysis Report")
}

func TestPreventionCommand(t *testing.T) {
	t.Cleanup(func() {
		preventionOpts = prevention.Options{}
		preventionReport = false
		preventionResults = false
	})

	out := run(t, "prevention", "--sanitizer", "html_entities", "--encoding", "-f", "json")
	var assessment prevention.Assessment
	require.NoError(t, json.Unmarshal([]byte(out), &assessment))
	assert.Equal(t, 11, assessment.TotalTests)
	assert.Equal(t, 10.0, assessment.SecurityScore)

	preventionOpts = prevention.Options{}
	out = run(t, "prevention", "--waf-rule", "<script", "--results", "-f", "json")
	var results []prevention.TestResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 4)
	assert.Equal(t, prevention.WAFRules, results[0].Mechanism)

	preventionOpts = prevention.Options{}
	preventionResults = false
	out = run(t, "prevention", "--csp", "script-src 'self' 'unsafe-inline'", "--report", "-f", "text")
	assert.Contains(t, out, "XSS Prevention Validation Report")
	assert.Contains(t, out, "Strengthen Content Security Policy configuration")
}
