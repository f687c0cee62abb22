package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quic-go/quic-go/http3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"

	"github.com/pyneda/xsslab/pkg/encoding"
	"github.com/pyneda/xsslab/pkg/fuzz"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Delay = 0
	cfg.Timeout = 5 * time.Second
	return cfg
}

func newTestScanner(t *testing.T) *Scanner {
	t.Helper()
	s, err := NewScanner(testConfig())
	require.NoError(t, err)
	return s
}

// reflectingServer echoes q unescaped, or serves a search form when q is absent.
func reflectingServer(t *testing.T, escape bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if !r.URL.Query().Has("q") {
			fmt.Fprint(w, `<html><body><form><input name="q"></form></body></html>`)
			return
		}
		q := r.URL.Query().Get("q")
		if escape {
			q = encoding.MustEncode(encoding.HTMLEscape, q)
		}
		fmt.Fprintf(w, "<html>\n<body>\n<div>%s</div>\n</body>\n</html>", q)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeResponse(t *testing.T) {
	payload := `<img src=x onerror=alert(1)>`
	tests := []struct {
		name       string
		body       string
		success    bool
		confidence float64
		context    string
	}{
		{"direct", "<p>\n" + payload + "\n</p>", true, 0.9, ContextEventHandler},
		{"html escaped", "<p>" + encoding.MustEncode(encoding.HTMLEscape, payload) + "</p>", true, 0.7, ContextHTMLEncoded},
		{"url quoted", "next=" + encoding.QuoteSafe(payload, "/"), true, 0.6, ContextURLEncoded},
		{"partial", "<p>src=x</p>", true, 0.3 + 0.4/3, ContextPartialReflection},
		{"absent", "<p>nothing here</p>", false, 0, ContextNoReflection},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := analyzeResponse(payload, tt.body)
			assert.Equal(t, tt.success, r.success)
			assert.InDelta(t, tt.confidence, r.confidence, 1e-9)
			assert.Equal(t, tt.context, r.context)
		})
	}
}

func TestAnalyzeResponsePartialEvidence(t *testing.T) {
	r := analyzeResponse("<b> hello world", "say hello world")
	assert.Equal(t, "Partial reflection: 2/3 words found", r.evidence)

	single := analyzeResponse("<script>", "script")
	assert.False(t, single.success)
}

func TestReflectionContext(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"script", "<script>var a = 'PAY';</script>", ContextScriptTag},
		{"handler", `<body onload="PAY">`, ContextEventHandler},
		{"attribute", `<a href="PAY">x</a>`, ContextAttributeValue},
		{"comment", "<!-- PAY -->", ContextHTMLComment},
		{"style", "<style>.a{color:PAY}", ContextCSS},
		{"content", "<div>PAY</div>", ContextHTMLContent},
		{"missing", "<div></div>", ContextUnknown},
		{"first line wins", "<div>PAY</div>\n<script>PAY</script>", ContextHTMLContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, reflectionContext("PAY", tt.body))
		})
	}
}

func TestExtractEvidence(t *testing.T) {
	body := "l1\nl2\nl3\nPAY here\nl5\nl6\nl7"
	assert.Equal(t, "l2\nl3\n**PAY** here\nl5\nl6", extractEvidence("PAY", body))
	assert.Equal(t, "**PAY**\nl2", extractEvidence("PAY", "PAY\nl2"))
	assert.Equal(t, "Payload 'PAY' found in response", extractEvidence("PAY", "a PA\nY b"))
}

func TestInjectURL(t *testing.T) {
	u, err := injectURL("http://example.com/search?lang=en", "q", "<a b>/x")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/search?lang=en&q=%3Ca%20b%3E/x", u)

	u, err = injectURL("http://example.com/", "q", "x")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/?q=x", u)

	_, err = injectURL("http://[::1", "q", "x")
	assert.Error(t, err)
}

func TestScanURLDirectReflection(t *testing.T) {
	srv := reflectingServer(t, false)
	s := newTestScanner(t)

	results, err := s.ScanURL(context.Background(), srv.URL, []string{"q"})
	require.NoError(t, err)
	require.Len(t, results, 1+s.cfg.BypassPayloads)

	first := results[0]
	assert.True(t, first.Success)
	assert.Equal(t, 0.9, first.Confidence)
	assert.Equal(t, ContextScriptTag, first.Context)
	assert.Equal(t, http.StatusOK, first.ResponseCode)
	assert.Contains(t, first.Evidence, "**"+first.Payload+"**")
	require.NotNil(t, first.Analysis)
	assert.NotEmpty(t, first.Analysis.RiskLevel)
	for _, r := range results[1:] {
		assert.NotEmpty(t, r.BypassTechniques)
	}

	st := s.Statistics()
	assert.Equal(t, len(results), st.TotalTests)
	assert.Equal(t, len(results), st.TotalRequests)
	assert.Equal(t, 1, st.ParametersTested)
	assert.Equal(t, []string{"q"}, st.ParametersVulnerable)
	assert.Contains(t, st.ContextsFound, ContextScriptTag)
}

func TestScanURLEscapedReflection(t *testing.T) {
	srv := reflectingServer(t, true)
	s := newTestScanner(t)

	results, err := s.ScanURL(context.Background(), srv.URL, []string{"q"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.True(t, results[0].Success)
	assert.Equal(t, 0.7, results[0].Confidence)
	assert.Equal(t, ContextHTMLEncoded, results[0].Context)
}

func TestScanURLNoReflection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "static")
	}))
	defer srv.Close()
	s := newTestScanner(t)

	results, err := s.ScanURL(context.Background(), srv.URL, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, results, 2*s.cfg.BasicPayloads)
	assert.Empty(t, s.Vulnerabilities())
	assert.Zero(t, s.Statistics().SuccessRate)
}

func TestScanURLNoParameters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<p>ok</p>")
	}))
	defer srv.Close()

	_, err := newTestScanner(t).ScanURL(context.Background(), srv.URL, nil)
	assert.True(t, errors.Is(err, ErrNoParameters))
}

func TestScanURLRequestError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()
	s := newTestScanner(t)

	results, err := s.ScanURL(context.Background(), target, []string{"q"})
	require.NoError(t, err)
	require.Len(t, results, s.cfg.BasicPayloads)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Equal(t, ContextError, r.Context)
		assert.NotEmpty(t, r.Error)
		assert.Equal(t, ErrorCategoryConnectionRefused, r.ErrorCategory)
	}
}

func TestScanURLCancelled(t *testing.T) {
	srv := reflectingServer(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := newTestScanner(t).ScanURL(ctx, srv.URL, []string{"q"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
}

func TestScanURLs(t *testing.T) {
	a := reflectingServer(t, false)
	b := reflectingServer(t, true)
	s := newTestScanner(t)

	out := s.ScanURLs(context.Background(), []string{a.URL, b.URL})
	require.Len(t, out, 2)
	for target, results := range out {
		var vulnerable bool
		for _, r := range results {
			if r.Parameter == "q" && r.Success {
				vulnerable = true
			}
		}
		assert.True(t, vulnerable, target)
	}
}

func TestDiscoverParameters(t *testing.T) {
	srv := reflectingServer(t, false)
	params := newTestScanner(t).DiscoverParameters(context.Background(), srv.URL+"/?lang=en")
	assert.Contains(t, params, "q")
	assert.Contains(t, params, "lang")
	assert.IsIncreasing(t, params)
}

func TestDiscoverParametersFallback(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	params := newTestScanner(t).DiscoverParameters(context.Background(), target)
	assert.Equal(t, FallbackParameters, params)
}

func TestParametersFromContent(t *testing.T) {
	content := `<form action="/s"><input name="username"><textarea name="comment"></textarea></form>` +
		`<a href="http://example.com/list?page=2&sort=asc">next</a>`
	params := ParametersFromContent("http://target.test/search?lang=en", content)
	assert.Subset(t, params, []string{"username", "comment", "lang", "page", "sort", "name"})
	assert.NotContains(t, params, "q")
	assert.IsIncreasing(t, params)
}

func TestReportText(t *testing.T) {
	srv := reflectingServer(t, false)
	s := newTestScanner(t)

	empty, err := s.Report(ReportText)
	require.NoError(t, err)
	assert.Equal(t, "No XSS scan results available.", empty)

	_, err = s.ScanURL(context.Background(), srv.URL, []string{"q"})
	require.NoError(t, err)

	report, err := s.Report("text")
	require.NoError(t, err)
	assert.Contains(t, report, "XSS Vulnerability Scan Report")
	assert.Contains(t, report, "Target: "+srv.URL)
	assert.Contains(t, report, "[1] HIGH - XSS in 'q' parameter")
	assert.Contains(t, report, "REMEDIATION RECOMMENDATIONS:")
	assert.Contains(t, report, "CRITICAL: Script tag injection found")

	_, err = s.Report("xml")
	assert.Error(t, err)
}

func TestReportJSON(t *testing.T) {
	srv := reflectingServer(t, false)
	s := newTestScanner(t)
	_, err := s.ScanURL(context.Background(), srv.URL, []string{"q"})
	require.NoError(t, err)

	report, err := s.Report(ReportJSON)
	require.NoError(t, err)

	var parsed jsonReport
	require.NoError(t, json.Unmarshal([]byte(report), &parsed))
	assert.Equal(t, s.ID(), parsed.ScanInfo.ScanID)
	assert.Equal(t, []string{srv.URL}, parsed.ScanInfo.Targets)
	assert.Equal(t, len(parsed.Vulnerabilities), parsed.ScanInfo.VulnerabilitiesFound)
	require.NotEmpty(t, parsed.Vulnerabilities)
	require.NotNil(t, parsed.Vulnerabilities[0].PayloadAnalysis)
	assert.NotEmpty(t, parsed.Vulnerabilities[0].PayloadAnalysis.RiskLevel)
}

func TestExportResults(t *testing.T) {
	srv := reflectingServer(t, false)
	s := newTestScanner(t)
	_, err := s.ScanURL(context.Background(), srv.URL, []string{"q"})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), DefaultReportFilename(srv.URL, "json"))
	require.NoError(t, s.ExportResults(path, ReportJSON))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "{"))
}

func TestDefaultReportFilename(t *testing.T) {
	assert.Equal(t, "xss-scan-https-example-com-search.json", DefaultReportFilename("https://example.com/search", "JSON"))
}

func TestCategorizeRequestError(t *testing.T) {
	tests := []struct {
		err      error
		expected string
	}{
		{nil, ErrorCategoryNone},
		{errors.New("dial tcp 127.0.0.1:1: connect: connection refused"), ErrorCategoryConnectionRefused},
		{errors.New("dial tcp: lookup nope.invalid: no such host"), ErrorCategoryDNSResolution},
		{context.DeadlineExceeded, ErrorCategoryTimeout},
		{context.Canceled, ErrorCategoryCanceled},
		{errors.New("unexpected EOF"), ErrorCategoryConnectionClosed},
		{errors.New("x509: certificate signed by unknown authority"), ErrorCategoryTLS},
		{errors.New("stopped after 5 redirects"), ErrorCategoryRedirects},
		{errors.New("something odd"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, CategorizeRequestError(tt.err))
		})
	}
}

func TestNewTransport(t *testing.T) {
	cfg := testConfig()

	cfg.HTTPVersion = "1.1"
	rt, err := newTransport(cfg)
	require.NoError(t, err)
	assert.IsType(t, &http.Transport{}, rt)

	cfg.HTTPVersion = "2"
	rt, err = newTransport(cfg)
	require.NoError(t, err)
	assert.IsType(t, &http2.Transport{}, rt)

	cfg.HTTPVersion = "3"
	rt, err = newTransport(cfg)
	require.NoError(t, err)
	assert.IsType(t, &http3.RoundTripper{}, rt)

	cfg.HTTPVersion = "4"
	_, err = newTransport(cfg)
	assert.Error(t, err)

	_, err = NewScanner(cfg)
	assert.Error(t, err)
}

func TestRedirectPolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/next", http.StatusFound)
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.FollowRedirects = false
	s, err := NewScanner(cfg)
	require.NoError(t, err)
	resp, err := s.fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.status)

	cfg.FollowRedirects = true
	cfg.MaxRedirects = 2
	s, err = NewScanner(cfg)
	require.NoError(t, err)
	_, err = s.fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, ErrorCategoryRedirects, CategorizeRequestError(err))
}

func TestFetchHeaders(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Header().Set("X-Test", "1")
	}))
	defer srv.Close()

	resp, err := newTestScanner(t).fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, DefaultUserAgent, ua)
	assert.Equal(t, "1", resp.headers.Get("X-Test"))
}

func TestFuzzParameter(t *testing.T) {
	srv := reflectingServer(t, false)
	s := newTestScanner(t)
	fz := fuzz.NewContextAwareFuzzer(fuzz.WithSeed(1))

	fp, results, err := s.FuzzParameter(context.Background(), srv.URL, "q", fz, 5, "")
	require.NoError(t, err)
	assert.Equal(t, fuzz.HTMLTagContent, fp.Context)
	assert.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 5)
	assert.Len(t, s.Results(), len(results))
}

func TestFuzzParameterKeepsStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if strings.ContainsAny(q, "<>") {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, "Request blocked by security policy")
			return
		}
		fmt.Fprintf(w, "<div>%s</div>", q)
	}))
	t.Cleanup(srv.Close)

	s := newTestScanner(t)
	_, results, err := s.FuzzParameter(context.Background(), srv.URL, "q", fuzz.NewContextAwareFuzzer(fuzz.WithSeed(1)), 5, "")
	require.NoError(t, err)
	require.NotEmpty(t, results)

	blocked := 0
	for _, r := range results {
		if r.Indicators.StatusCode == http.StatusForbidden {
			blocked++
			assert.True(t, r.WAFDetected)
		}
	}
	assert.Positive(t, blocked)

	recorded := 0
	for _, r := range s.Results() {
		if r.ResponseCode == http.StatusForbidden {
			recorded++
		}
	}
	assert.Equal(t, blocked, recorded)
}

func TestFuzzParameterBaselineError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	_, _, err := newTestScanner(t).FuzzParameter(context.Background(), target, "q", fuzz.NewContextAwareFuzzer(), 5, "MARK")
	assert.Error(t, err)
}

func TestTestResultFormattable(t *testing.T) {
	r := TestResult{Parameter: "q", Payload: "<b>", Method: "GET", Success: true, Confidence: 0.9, Context: ContextHTMLContent, ResponseCode: 200}
	assert.Equal(t, "high", r.Severity())
	assert.Len(t, r.TableRow(), len(r.TableHeaders()))
	assert.Contains(t, r.String(), "reflected=yes")
	assert.Contains(t, r.Pretty(), "<b>")
	assert.Equal(t, "medium", TestResult{Confidence: 0.7}.Severity())
	assert.Equal(t, "low", TestResult{Confidence: 0.5}.Severity())
}
