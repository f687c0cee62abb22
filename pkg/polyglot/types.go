// Package polyglot combines context specific payload components into
// payloads meant to execute in several injection contexts at once.
package polyglot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pyneda/xsslab/lib"
)

// Context is a location a polyglot is expected to work in.
type Context string

const (
	HTMLContent           Context = "html_content"
	HTMLAttribute         Context = "html_attribute"
	HTMLAttributeUnquoted Context = "html_attribute_unq"
	JSStringSingle        Context = "js_string_single"
	JSStringDouble        Context = "js_string_double"
	JSTemplate            Context = "js_template"
	JSVariable            Context = "js_variable"
	JSComment             Context = "js_comment"
	CSSProperty           Context = "css_property"
	CSSSelector           Context = "css_selector"
	CSSComment            Context = "css_comment"
	URLParameter          Context = "url_parameter"
	URLPath               Context = "url_path"
	URLFragment           Context = "url_fragment"
	JSONValue             Context = "json_value"
	XMLContent            Context = "xml_content"
	XMLAttribute          Context = "xml_attribute"
	SQLString             Context = "sql_string"
	CommandLine           Context = "command_line"
)

// Contexts lists every Context in declaration order.
var Contexts = []Context{
	HTMLContent, HTMLAttribute, HTMLAttributeUnquoted, JSStringSingle, JSStringDouble,
	JSTemplate, JSVariable, JSComment, CSSProperty, CSSSelector, CSSComment,
	URLParameter, URLPath, URLFragment, JSONValue, XMLContent, XMLAttribute,
	SQLString, CommandLine,
}

var contextOrder = func() map[Context]int {
	m := make(map[Context]int, len(Contexts))
	for i, c := range Contexts {
		m[c] = i
	}
	return m
}()

func ParseContext(s string) (Context, error) {
	c := Context(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := contextOrder[c]; !ok {
		return "", fmt.Errorf("unknown polyglot context %q", s)
	}
	return c, nil
}

// ParseContexts parses every name, failing on the first unknown one.
func ParseContexts(names []string) (ContextSet, error) {
	set := make(ContextSet, len(names))
	for _, n := range names {
		c, err := ParseContext(n)
		if err != nil {
			return nil, err
		}
		set[c] = struct{}{}
	}
	return set, nil
}

// ContextSet is an unordered set of contexts.
type ContextSet map[Context]struct{}

func NewContextSet(contexts ...Context) ContextSet {
	set := make(ContextSet, len(contexts))
	for _, c := range contexts {
		set[c] = struct{}{}
	}
	return set
}

func (s ContextSet) Has(c Context) bool {
	_, ok := s[c]
	return ok
}

// Overlap counts the members shared with other.
func (s ContextSet) Overlap(other ContextSet) int {
	n := 0
	for c := range s {
		if other.Has(c) {
			n++
		}
	}
	return n
}

// Sorted returns the members in declaration order.
func (s ContextSet) Sorted() []Context {
	out := make([]Context, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return contextOrder[out[i]] < contextOrder[out[j]] })
	return out
}

func (s ContextSet) union(other ContextSet) ContextSet {
	out := make(ContextSet, len(s)+len(other))
	for c := range s {
		out[c] = struct{}{}
	}
	for c := range other {
		out[c] = struct{}{}
	}
	return out
}

// EncodingTechnique names an encoding step of an encoding chain.
type EncodingTechnique string

const (
	EncodingNone            EncodingTechnique = "none"
	EncodingHTMLEntities    EncodingTechnique = "html_entities"
	EncodingURL             EncodingTechnique = "url_encoding"
	EncodingDoubleURL       EncodingTechnique = "double_url_encoding"
	EncodingUnicode         EncodingTechnique = "unicode_encoding"
	EncodingHex             EncodingTechnique = "hex_encoding"
	EncodingBase64          EncodingTechnique = "base64_encoding"
	EncodingDecimal         EncodingTechnique = "decimal_encoding"
	EncodingOctal           EncodingTechnique = "octal_encoding"
	EncodingMixedCase       EncodingTechnique = "mixed_case"
	EncodingCommentBreaking EncodingTechnique = "comment_breaking"
)

// ObfuscationTechnique names a step of an obfuscation chain.
type ObfuscationTechnique string

const (
	ObfuscationStringConcat     ObfuscationTechnique = "string_concat"
	ObfuscationFromCharCode     ObfuscationTechnique = "fromcharcode"
	ObfuscationEvalDecode       ObfuscationTechnique = "eval_decode"
	ObfuscationWhitespace       ObfuscationTechnique = "whitespace_var"
	ObfuscationBracketNotation  ObfuscationTechnique = "bracket_notation"
	ObfuscationPropertyAccess   ObfuscationTechnique = "property_access"
	ObfuscationMathOps          ObfuscationTechnique = "math_ops"
	ObfuscationRegexAbuse       ObfuscationTechnique = "regex_abuse"
	ObfuscationTemplateLiterals ObfuscationTechnique = "template_literals"
	ObfuscationConstructorChain ObfuscationTechnique = "constructor_chain"
)

// Component is a building block of a polyglot.
type Component struct {
	Content  string     `json:"content" yaml:"content"`
	Contexts ContextSet `json:"-" yaml:"-"`
	Priority int        `json:"priority" yaml:"priority"`
	// CommentSafe components may be wrapped in /* */ when combined.
	CommentSafe bool `json:"-" yaml:"-"`
}

func component(content string, priority int, contexts ...Context) Component {
	return Component{
		Content:     content,
		Contexts:    NewContextSet(contexts...),
		Priority:    priority,
		CommentSafe: true,
	}
}

// PolyglotPayload is a generated payload and its scores.
type PolyglotPayload struct {
	Payload              string                 `json:"payload" yaml:"payload"`
	Contexts             []Context              `json:"contexts" yaml:"contexts"`
	Confidence           float64                `json:"confidence" yaml:"confidence"`
	Length               int                    `json:"length" yaml:"length"`
	ComplexityScore      float64                `json:"complexity_score" yaml:"complexity_score"`
	EncodingsUsed        []EncodingTechnique    `json:"encodings_used" yaml:"encodings_used"`
	ObfuscationsUsed     []ObfuscationTechnique `json:"obfuscations_used" yaml:"obfuscations_used"`
	Components           []Component            `json:"components" yaml:"components"`
	BrowserCompatibility map[string]float64     `json:"browser_compatibility" yaml:"browser_compatibility"`
	WAFEvasionScore      float64                `json:"waf_evasion_score" yaml:"waf_evasion_score"`
	TargetBrowser        string                 `json:"target_browser,omitempty" yaml:"target_browser,omitempty"`

	contextSet ContextSet
}

func contextNames(contexts []Context) []string {
	names := make([]string, len(contexts))
	for i, c := range contexts {
		names[i] = string(c)
	}
	return names
}

func (p PolyglotPayload) String() string {
	return fmt.Sprintf("%s confidence=%.2f length=%d", p.Payload, p.Confidence, p.Length)
}

func (p PolyglotPayload) Pretty() string {
	return fmt.Sprintf(
		"%sPayload:%s %s\n%sConfidence:%s %s\n%sLength:%s %d\n%sContexts:%s %s\n%sWAF evasion:%s %s\n%sComplexity:%s %.1f\n%sBest browsers:%s %s\n",
		lib.Blue, lib.ResetColor, p.Payload,
		lib.Blue, lib.ResetColor, lib.ColorScore(p.Confidence, "%.2f"),
		lib.Blue, lib.ResetColor, p.Length,
		lib.Blue, lib.ResetColor, strings.Join(contextNames(p.Contexts), ", "),
		lib.Blue, lib.ResetColor, lib.ColorScore(p.WAFEvasionScore, "%.2f"),
		lib.Blue, lib.ResetColor, p.ComplexityScore,
		lib.Blue, lib.ResetColor, bestBrowsers(p.BrowserCompatibility, 3),
	)
}

func (p PolyglotPayload) TableHeaders() []string {
	return []string{"Payload", "Confidence", "Length", "WAF", "Complexity", "Contexts"}
}

func (p PolyglotPayload) TableRow() []string {
	return []string{
		lib.Truncate(p.Payload, 60),
		fmt.Sprintf("%.2f", p.Confidence),
		fmt.Sprintf("%d", p.Length),
		fmt.Sprintf("%.2f", p.WAFEvasionScore),
		fmt.Sprintf("%.1f", p.ComplexityScore),
		strings.Join(contextNames(p.Contexts), ","),
	}
}
