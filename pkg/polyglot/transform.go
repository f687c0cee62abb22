package polyglot

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"unicode"

	"github.com/pyneda/xsslab/pkg/encoding"
)

// encodingChains are applied step by step; a chain stops at the first step
// that would exceed the length budget.
var encodingChains = [][]EncodingTechnique{
	{EncodingHTMLEntities, EncodingURL},
	{EncodingUnicode, EncodingURL},
	{EncodingDoubleURL},
	{EncodingBase64, EncodingURL},
	{EncodingDecimal, EncodingHex},
	{EncodingMixedCase, EncodingCommentBreaking},
}

var obfuscationChains = [][]ObfuscationTechnique{
	{ObfuscationStringConcat, ObfuscationBracketNotation},
	{ObfuscationFromCharCode, ObfuscationEvalDecode},
	{ObfuscationTemplateLiterals, ObfuscationMathOps},
	{ObfuscationConstructorChain, ObfuscationPropertyAccess},
	{ObfuscationRegexAbuse, ObfuscationWhitespace},
}

// usedObfuscationChains is how many of obfuscationChains Generate applies.
const usedObfuscationChains = 3

var registryEncodings = map[EncodingTechnique]string{
	EncodingHTMLEntities: encoding.HTMLEntities,
	EncodingURL:          encoding.URL,
	EncodingDoubleURL:    encoding.DoubleURL,
	EncodingUnicode:      encoding.UnicodeEscape,
	EncodingHex:          encoding.HexEscape,
	EncodingBase64:       encoding.Base64Eval,
	EncodingDecimal:      encoding.DecimalEntities,
}

var breakKeywords = []string{"script", "alert", "javascript", "eval"}

var keywordRes = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(breakKeywords))
	for _, k := range breakKeywords {
		m[k] = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(k))
	}
	return m
}()

// applyEncoding runs one encoding step. Unknown techniques leave content as is.
func applyEncoding(content string, technique EncodingTechnique, rng *rand.Rand) string {
	if name, ok := registryEncodings[technique]; ok {
		return encoding.MustEncode(name, content)
	}
	switch technique {
	case EncodingMixedCase:
		var sb strings.Builder
		for _, r := range content {
			if unicode.IsLetter(r) {
				if rng.Float64() > 0.5 {
					r = unicode.ToUpper(r)
				} else {
					r = unicode.ToLower(r)
				}
			}
			sb.WriteRune(r)
		}
		return sb.String()
	case EncodingCommentBreaking:
		for _, k := range breakKeywords {
			if !strings.Contains(strings.ToLower(content), k) {
				continue
			}
			mid := len(k) / 2
			content = keywordRes[k].ReplaceAllLiteralString(content, k[:mid]+"<!---->"+k[mid:])
		}
		return content
	}
	return content
}

var (
	windowDotRe   = regexp.MustCompile(`window\.(\w+)`)
	documentDotRe = regexp.MustCompile(`document\.(\w+)`)
)

var whitespaceVariants = []string{" ", "\t", "\n", "\r", "\f", "\v"}

// applyObfuscation runs one obfuscation step. property_access and
// regex_abuse have no rewrite and return content unchanged.
func applyObfuscation(content string, technique ObfuscationTechnique, rng *rand.Rand) string {
	switch technique {
	case ObfuscationStringConcat:
		content = strings.ReplaceAll(content, "alert", "'ale'+'rt'")
		content = strings.ReplaceAll(content, "script", "'scr'+'ipt'")
	case ObfuscationFromCharCode:
		if strings.Contains(content, "alert") {
			codes := make([]string, 0, 5)
			for _, r := range "alert" {
				codes = append(codes, fmt.Sprintf("%d", r))
			}
			content = strings.ReplaceAll(content, "alert", "String.fromCharCode("+strings.Join(codes, ",")+")")
		}
	case ObfuscationEvalDecode:
		if runeLen(content) < 100 {
			encoded := encoding.MustEncode(encoding.Base64Raw, content)
			content = `eval(atob("` + encoded + `"))`
		}
	case ObfuscationWhitespace:
		var sb strings.Builder
		for _, r := range content {
			if r == ' ' && rng.Float64() > 0.7 {
				sb.WriteString(whitespaceVariants[rng.Intn(len(whitespaceVariants))])
				continue
			}
			sb.WriteRune(r)
		}
		content = sb.String()
	case ObfuscationBracketNotation:
		content = windowDotRe.ReplaceAllString(content, "window['$1']")
		content = documentDotRe.ReplaceAllString(content, "document['$1']")
	case ObfuscationTemplateLiterals:
		content = strings.ReplaceAll(content, "alert", "`ale${\"rt\"}`")
	case ObfuscationMathOps:
		content = strings.ReplaceAll(content, "1", "(1+0)")
	case ObfuscationConstructorChain:
		content = strings.ReplaceAll(content, "alert", `[].constructor.constructor("alert")`)
	}
	return content
}
