package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pyneda/xsslab/pkg/analysis"
	"github.com/pyneda/xsslab/pkg/dom"
	"github.com/pyneda/xsslab/pkg/encoding"
	"github.com/pyneda/xsslab/pkg/payloads"
	"github.com/pyneda/xsslab/pkg/polyglot"
	"github.com/pyneda/xsslab/pkg/prevention"
)

func postJSON(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	var raw []byte
	switch b := body.(type) {
	case string:
		raw = []byte(b)
	default:
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func get(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil), -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out), string(data))
}

func TestRootRoute(t *testing.T) {
	resp := get(t, NewApp(), "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "API Running", string(body))
}

func TestAnalyzeHandler(t *testing.T) {
	app := NewApp()

	resp := postJSON(t, app, "/api/v1/analyze", AnalyzeInput{Payload: "<script>alert(1)</script>"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result analysis.PayloadAnalysis
	decode(t, resp, &result)
	assert.Equal(t, "<script>alert(1)</script>", result.Payload)
	assert.NotEmpty(t, result.RiskLevel)
	assert.Contains(t, result.Contexts, analysis.ContextHTMLContent)
}

func TestAnalyzeHandlerValidation(t *testing.T) {
	app := NewApp()
	tests := []struct {
		name     string
		body     any
		expected string
	}{
		{"missing payload", map[string]string{}, "Validation failed"},
		{"malformed json", "{", "Cannot parse JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, app, "/api/v1/analyze", tt.body)
			require.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var errResp ErrorResponse
			decode(t, resp, &errResp)
			assert.Equal(t, tt.expected, errResp.Error)
			assert.NotEmpty(t, errResp.Message)
		})
	}
}

func TestBatchAnalyzeHandler(t *testing.T) {
	app := NewApp()
	input := BatchAnalyzeInput{Payloads: []string{
		"<script>alert(1)</script>",
		"<img src=x onerror=alert(1)>",
		"javascript:alert(1)",
	}}

	resp := postJSON(t, app, "/api/v1/analyze/batch", input)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result BatchAnalyzeResponse
	decode(t, resp, &result)
	require.Len(t, result.Analyses, 3)
	for i, a := range result.Analyses {
		assert.Equal(t, input.Payloads[i], a.Payload)
	}
	assert.Equal(t, 3, result.Summary.TotalPayloads)

	resp = postJSON(t, app, "/api/v1/analyze/batch", BatchAnalyzeInput{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, app, "/api/v1/analyze/batch", BatchAnalyzeInput{Payloads: []string{"a", ""}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPolyglotHandler(t *testing.T) {
	app := NewApp()

	resp := postJSON(t, app, "/api/v1/polyglot", PolyglotInput{
		Contexts:    []string{"html_content"},
		MaxPayloads: 3,
		Seed:        1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result ListResponse[polyglot.PolyglotPayload]
	decode(t, resp, &result)
	require.NotEmpty(t, result.Data)
	assert.LessOrEqual(t, result.Count, 3)
	assert.Equal(t, len(result.Data), result.Count)
	assert.Equal(t, "<script>alert(1)</script>", result.Data[0].Payload)
	for i := 1; i < len(result.Data); i++ {
		assert.GreaterOrEqual(t, result.Data[i-1].Confidence, result.Data[i].Confidence)
	}
}

func TestPolyglotHandlerMinimal(t *testing.T) {
	resp := postJSON(t, NewApp(), "/api/v1/polyglot", PolyglotInput{
		Contexts: []string{"html_attribute", "html_content"},
		Minimal:  true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result ListResponse[polyglot.PolyglotPayload]
	decode(t, resp, &result)
	require.Len(t, result.Data, 1)
	assert.Equal(t, `"onclick=alert() "`, result.Data[0].Payload)
}

func TestPolyglotHandlerValidation(t *testing.T) {
	app := NewApp()
	tests := []struct {
		name  string
		input PolyglotInput
	}{
		{"no contexts", PolyglotInput{}},
		{"unknown context", PolyglotInput{Contexts: []string{"nowhere"}}},
		{"unknown browser", PolyglotInput{Contexts: []string{"html_content"}, Browsers: []string{"opera"}}},
		{"max length too large", PolyglotInput{Contexts: []string{"html_content"}, MaxLength: 100000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, app, "/api/v1/polyglot", tt.input)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCSPHandler(t *testing.T) {
	app := NewApp()

	resp := postJSON(t, app, "/api/v1/csp", CSPInput{Policy: "script-src 'self' 'unsafe-inline'"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]any
	decode(t, resp, &result)
	assert.Equal(t, true, result["is_bypassable"])
	assert.NotEmpty(t, result["bypass_opportunities"])
	assert.NotEmpty(t, result["critical_issues"])

	resp = postJSON(t, app, "/api/v1/csp", CSPInput{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFuzzDetectHandler(t *testing.T) {
	app := NewApp()

	resp := postJSON(t, app, "/api/v1/fuzz/detect", FuzzDetectInput{Response: `<input value="xCANARYy">`})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var fp map[string]any
	decode(t, resp, &fp)
	assert.Equal(t, "html_attribute_value", fp["context"])
	assert.Equal(t, "x", fp["prefix"])

	resp = postJSON(t, app, "/api/v1/fuzz/detect", FuzzDetectInput{Response: "var a = 'MARK';", Marker: "MARK"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &fp)
	assert.Equal(t, "js_string_single", fp["context"])

	resp = postJSON(t, app, "/api/v1/fuzz/detect", FuzzDetectInput{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFuzzGenerateHandler(t *testing.T) {
	app := NewApp()

	resp := postJSON(t, app, "/api/v1/fuzz/generate", FuzzGenerateInput{Context: "html_tag_content", Limit: 5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result ListResponse[string]
	decode(t, resp, &result)
	assert.NotEmpty(t, result.Data)
	assert.LessOrEqual(t, result.Count, 5)

	resp = postJSON(t, app, "/api/v1/fuzz/generate", FuzzGenerateInput{Context: "nowhere"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, app, "/api/v1/fuzz/generate", FuzzGenerateInput{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFindPayloads(t *testing.T) {
	app := NewApp()
	tests := []struct {
		name   string
		query  string
		status int
		count  int
	}{
		{"all", "", http.StatusOK, 38},
		{"category", "?category=basic", http.StatusOK, 7},
		{"limit", "?limit=2", http.StatusOK, 2},
		{"unknown category", "?category=nope", http.StatusBadRequest, 0},
		{"negative limit", "?limit=-1", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, app, "/api/v1/payloads"+tt.query)
			require.Equal(t, tt.status, resp.StatusCode)
			if tt.status != http.StatusOK {
				return
			}
			var result ListResponse[payloads.Payload]
			decode(t, resp, &result)
			assert.Equal(t, tt.count, result.Count)
			for i := 1; i < len(result.Data); i++ {
				assert.GreaterOrEqual(t, result.Data[i-1].SuccessRate, result.Data[i].SuccessRate)
			}
		})
	}
}

func TestFindPayloadsKeyword(t *testing.T) {
	resp := get(t, NewApp(), "/api/v1/payloads?q=svg&category=basic")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result ListResponse[payloads.Payload]
	decode(t, resp, &result)
	require.NotEmpty(t, result.Data)
	for _, p := range result.Data {
		assert.Equal(t, payloads.CategoryBasic, p.Category)
	}
}

func TestPayloadStats(t *testing.T) {
	resp := get(t, NewApp(), "/api/v1/payloads/stats")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stats payloads.Statistics
	decode(t, resp, &stats)
	assert.Equal(t, 38, stats.TotalPayloads)
	assert.Equal(t, 7, stats.CategoryCounts[payloads.CategoryBasic])
}

func TestListEncoders(t *testing.T) {
	resp := get(t, NewApp(), "/api/v1/encoders")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result ListResponse[string]
	decode(t, resp, &result)
	assert.Equal(t, encoding.List(), result.Data)
	assert.Equal(t, len(result.Data), result.Count)
}

func TestEncodeHandler(t *testing.T) {
	app := NewApp()

	resp := postJSON(t, app, "/api/v1/encode", EncodeInput{Payloads: []string{"<b>", ""}, Encoder: "html_entities+url"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var encoded EncodeResponse
	decode(t, resp, &encoded)
	assert.Equal(t, []string{"%26lt%3Bb%26gt%3B", ""}, encoded.Results)

	resp = postJSON(t, app, "/api/v1/encode", EncodeInput{Payloads: encoded.Results, Encoder: "html_entities+url", Decode: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var decoded EncodeResponse
	decode(t, resp, &decoded)
	assert.True(t, decoded.Decode)
	assert.Equal(t, []string{"<b>", ""}, decoded.Results)

	tests := []struct {
		name  string
		input EncodeInput
	}{
		{"unknown encoder", EncodeInput{Payloads: []string{"x"}, Encoder: "rot13"}},
		{"no payloads", EncodeInput{Encoder: "url"}},
		{"bad base64", EncodeInput{Payloads: []string{"x"}, Encoder: "base64", Decode: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, app, "/api/v1/encode", tt.input)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestDOMHandler(t *testing.T) {
	app := NewApp()

	resp := postJSON(t, app, "/api/v1/dom", DOMInput{Code: "var q = location.search;\ndocument.write(q);"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result dom.Analysis
	decode(t, resp, &result)
	require.Len(t, result.Sinks, 1)
	assert.Equal(t, dom.SinkDocumentWrite, result.Sinks[0].Type)
	require.NotEmpty(t, result.Flows)
	assert.Equal(t, "#<script>alert('DOM-XSS')</script>", result.Flows[1].Payload)

	resp = postJSON(t, app, "/api/v1/dom", DOMInput{Code: "var a = 1;"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var clean map[string][]any
	decode(t, resp, &clean)
	assert.NotNil(t, clean["flows"])
	assert.Empty(t, clean["flows"])

	resp = postJSON(t, app, "/api/v1/dom", DOMInput{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPreventionHandler(t *testing.T) {
	app := NewApp()

	resp := postJSON(t, app, "/api/v1/prevention", PreventionInput{Sanitizer: "html_entities", Encoding: true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var assessment prevention.Assessment
	decode(t, resp, &assessment)
	assert.Equal(t, 11, assessment.TotalTests)
	assert.Equal(t, 1.0, assessment.Coverage[prevention.InputSanitization])

	tests := []struct {
		name  string
		input PreventionInput
	}{
		{"nothing selected", PreventionInput{}},
		{"unknown sanitizer", PreventionInput{Sanitizer: "rot13"}},
		{"bad waf rule", PreventionInput{WAFRules: []string{"("}}},
		{"empty waf rule", PreventionInput{WAFRules: []string{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, app, "/api/v1/prevention", tt.input)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}
