package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLEncoder(t *testing.T) {
	enc := Get("url")
	require.NotNil(t, enc)

	result, err := enc.Encode("<script>alert(1)</script>")
	require.NoError(t, err)
	assert.Equal(t, "%3Cscript%3Ealert%281%29%3C%2Fscript%3E", result)

	decoded, err := enc.Decode(result)
	require.NoError(t, err)
	assert.Equal(t, "<script>alert(1)</script>", decoded)
}

func TestURLEncoderSpace(t *testing.T) {
	result, err := Get(URL).Encode("a b+c")
	require.NoError(t, err)
	assert.Equal(t, "a%20b%2Bc", result)
}

func TestDoubleURLEncoder(t *testing.T) {
	enc := Get(DoubleURL)
	require.NotNil(t, enc)

	result, err := enc.Encode("<script>")
	require.NoError(t, err)
	assert.Equal(t, "%253Cscript%253E", result)
}

func TestHTMLEntitiesEncoder(t *testing.T) {
	enc := Get(HTMLEntities)
	require.NotNil(t, enc)

	result, err := enc.Encode(`<a href="x">'&'</a>`)
	require.NoError(t, err)
	assert.Equal(t, "&lt;a href=&quot;x&quot;&gt;&#x27;&amp;&#x27;&lt;/a&gt;", result)
}

func TestEscapeEncoders(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{UnicodeEscape, `<b>"é"`, `\u003cb\u003e\u0022\u00e9\u0022`},
		{HexEscape, `<i>'`, `\x3ci\x3e\x27`},
		{DecimalEntities, `<"&`, "&#60;&#34;&#38;"},
		{Base64Eval, "alert(1)", "eval(atob('YWxlcnQoMSk='))"},
		{URLAll, "<a", "%3c%61"},
		{UnicodeAll, "ab", `\u0061\u0062`},
		{HTMLDecimalAll, "ab", "&#97;&#98;"},
		{HTMLHexAll, "ab", "&#x61;&#x62;"},
		{Base64Raw, "<script>", "PHNjcmlwdD4="},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := Get(tt.name)
			require.NotNil(t, enc)
			result, err := enc.Encode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	inputs := []string{
		"",
		"<script>alert(1)</script>",
		`<img src=x onerror="alert('XSS')">`,
		"javascript:alert(document.cookie)",
		`"; var x = 'a & b'; //`,
	}
	names := []string{HTMLEntities, URL, DoubleURL, UnicodeEscape, HexEscape, Base64Eval}

	for _, name := range names {
		enc := Get(name)
		require.NotNil(t, enc, name)
		for _, in := range inputs {
			t.Run(name, func(t *testing.T) {
				encoded, err := enc.Encode(in)
				require.NoError(t, err)
				decoded, err := enc.Decode(encoded)
				require.NoError(t, err)
				assert.Equal(t, in, decoded)
			})
		}
	}
}

func TestBase64EvalDecodeRejectsUnwrapped(t *testing.T) {
	_, err := Get(Base64Eval).Decode("YWxlcnQoMSk=")
	assert.Error(t, err)
}

func TestChainEncoder(t *testing.T) {
	chain := Chain(HTMLEntities, URL)
	require.NotNil(t, chain)
	assert.Equal(t, "html_entities+url", chain.Name())

	encoded, err := chain.Encode("<b>")
	require.NoError(t, err)
	assert.Equal(t, "%26lt%3Bb%26gt%3B", encoded)

	decoded, err := chain.Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "<b>", decoded)

	assert.Nil(t, Chain("nope"))
}

func TestListAndGet(t *testing.T) {
	names := List()
	assert.Contains(t, names, URL)
	assert.Contains(t, names, HTMLEscape)
	assert.Len(t, names, 13)
	assert.Nil(t, Get("does-not-exist"))
	assert.NotNil(t, Get("URL"))
}

func TestLookup(t *testing.T) {
	enc, err := Lookup(URL)
	require.NoError(t, err)
	assert.Equal(t, URL, enc.Name())

	enc, err = Lookup("html_entities + url")
	require.NoError(t, err)
	assert.Equal(t, "html_entities+url", enc.Name())

	_, err = Lookup("html_entities+nope")
	assert.EqualError(t, err, "encoder not found: nope")
}

func TestEncodeAll(t *testing.T) {
	out, err := EncodeAll(URL, []string{"<", ">"})
	require.NoError(t, err)
	assert.Equal(t, []string{"%3C", "%3E"}, out)

	chained, err := EncodeAll("html_entities+url", []string{"<b>"})
	require.NoError(t, err)
	assert.Equal(t, []string{"%26lt%3Bb%26gt%3B"}, chained)

	decoded, err := DecodeAll("html_entities+url", chained)
	require.NoError(t, err)
	assert.Equal(t, []string{"<b>"}, decoded)

	_, err = EncodeAll("missing", nil)
	assert.Error(t, err)

	_, err = DecodeAll(Base64Eval, []string{"YWxlcnQoMSk="})
	assert.ErrorContains(t, err, "payload 0")
}

func TestDecodeJSEscapes(t *testing.T) {
	assert.Equal(t, "<script>", DecodeJSEscapes(`<script\x3e`))
	assert.Equal(t, `\zz`, DecodeJSEscapes(`\zz`))
}

func TestQuoteSafe(t *testing.T) {
	assert.Equal(t, "/path%3Fa%3D1", QuoteSafe("/path?a=1", "/"))
	assert.Equal(t, "MustEncode", MustEncode("missing", "MustEncode"))
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "<script>", Unquote("%3Cscript%3E"))
	assert.Equal(t, "100%", Unquote("100%"))
	assert.Equal(t, "%zz+a b", Unquote("%zz+a%20b"))
	assert.Equal(t, "%3C", Unquote("%253C"))
}
