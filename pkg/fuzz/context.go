// Package fuzz infers the shape of a reflection point from a response and
// generates, mutates and tests payloads tuned to it.
package fuzz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pyneda/xsslab/lib"
)

// InjectionContext is the syntactic location a reflected marker was found in.
type InjectionContext string

const (
	HTMLTagContent     InjectionContext = "html_tag_content"
	HTMLAttributeValue InjectionContext = "html_attribute_value"
	HTMLAttributeName  InjectionContext = "html_attribute_name"
	HTMLTagName        InjectionContext = "html_tag_name"
	HTMLComment        InjectionContext = "html_comment"
	JSStringSingle     InjectionContext = "js_string_single"
	JSStringDouble     InjectionContext = "js_string_double"
	JSTemplate         InjectionContext = "js_template"
	JSVariable         InjectionContext = "js_variable"
	JSCommentLine      InjectionContext = "js_comment_line"
	JSCommentBlock     InjectionContext = "js_comment_block"
	CSSPropertyValue   InjectionContext = "css_property_value"
	CSSSelector        InjectionContext = "css_selector"
	CSSComment         InjectionContext = "css_comment"
	URLPath            InjectionContext = "url_path"
	URLQuery           InjectionContext = "url_query"
	URLFragment        InjectionContext = "url_fragment"
	JSONValue          InjectionContext = "json_value"
	XMLContent         InjectionContext = "xml_content"
	XMLAttribute       InjectionContext = "xml_attribute"
)

var InjectionContexts = []InjectionContext{
	HTMLTagContent, HTMLAttributeValue, HTMLAttributeName, HTMLTagName, HTMLComment,
	JSStringSingle, JSStringDouble, JSTemplate, JSVariable, JSCommentLine, JSCommentBlock,
	CSSPropertyValue, CSSSelector, CSSComment, URLPath, URLQuery, URLFragment,
	JSONValue, XMLContent, XMLAttribute,
}

// ParseInjectionContext accepts any of the InjectionContexts names.
func ParseInjectionContext(s string) (InjectionContext, error) {
	for _, c := range InjectionContexts {
		if string(c) == strings.ToLower(strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown injection context %q", s)
}

func (c InjectionContext) isJSString() bool {
	return c == JSStringSingle || c == JSStringDouble
}

func (c InjectionContext) isHTML() bool {
	return c == HTMLTagContent || c == HTMLAttributeValue
}

// CharSet is an unordered set of characters.
type CharSet map[rune]struct{}

// NewCharSet builds a set from the characters of s.
func NewCharSet(s string) CharSet {
	cs := make(CharSet, len(s))
	for _, r := range s {
		cs[r] = struct{}{}
	}
	return cs
}

// printable mirrors the ASCII letters, digits, punctuation and whitespace.
const printable = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~ \t\n\r\x0b\x0c"

// PrintableCharSet returns a fresh set of the printable ASCII characters.
func PrintableCharSet() CharSet { return NewCharSet(printable) }

func (cs CharSet) Contains(r rune) bool {
	_, ok := cs[r]
	return ok
}

// String returns the members sorted by code point.
func (cs CharSet) String() string {
	runes := make([]rune, 0, len(cs))
	for r := range cs {
		runes = append(runes, r)
	}
	sort.Slice(runes, func(i, j int) bool { return runes[i] < runes[j] })
	return string(runes)
}

func (cs CharSet) MarshalText() ([]byte, error) {
	return []byte(cs.String()), nil
}

func (cs *CharSet) UnmarshalText(text []byte) error {
	*cs = NewCharSet(string(text))
	return nil
}

// ContextFingerprint is the inferred shape of one injection point.
type ContextFingerprint struct {
	Context          InjectionContext `json:"context" yaml:"context"`
	Prefix           string           `json:"prefix" yaml:"prefix"`
	Suffix           string           `json:"suffix" yaml:"suffix"`
	FiltersDetected  []string         `json:"filters_detected" yaml:"filters_detected"`
	AllowedChars     CharSet          `json:"allowed_chars" yaml:"allowed_chars"`
	BlockedChars     CharSet          `json:"blocked_chars" yaml:"blocked_chars"`
	MaxLength        *int             `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	EncodingRequired string           `json:"encoding_required,omitempty" yaml:"encoding_required,omitempty"`
	Description      string           `json:"description,omitempty" yaml:"description,omitempty"`
}

// NewFingerprint returns a fingerprint for ctx that allows every printable character.
func NewFingerprint(ctx InjectionContext) ContextFingerprint {
	return ContextFingerprint{
		Context:         ctx,
		FiltersDetected: []string{},
		AllowedChars:    PrintableCharSet(),
		BlockedChars:    CharSet{},
	}
}

// Allows reports whether payload passes the blocked and allowed character sets.
// A non-empty blocked set takes precedence over the allowed set.
func (fp ContextFingerprint) Allows(payload string) bool {
	if len(fp.BlockedChars) > 0 {
		for _, r := range payload {
			if fp.BlockedChars.Contains(r) {
				return false
			}
		}
		return true
	}
	if len(fp.AllowedChars) > 0 {
		for _, r := range payload {
			if !fp.AllowedChars.Contains(r) {
				return false
			}
		}
	}
	return true
}

func (fp ContextFingerprint) String() string {
	return fmt.Sprintf("%s prefix=%q suffix=%q filters=%s encoding=%s",
		fp.Context, fp.Prefix, fp.Suffix, strings.Join(fp.FiltersDetected, ","), fp.encodingLabel())
}

func (fp ContextFingerprint) encodingLabel() string {
	if fp.EncodingRequired == "" {
		return "none"
	}
	return fp.EncodingRequired
}

func (fp ContextFingerprint) Pretty() string {
	return fmt.Sprintf(
		"%sContext:%s %s\n%sPrefix:%s %q\n%sSuffix:%s %q\n%sFilters:%s %s\n%sEncoding required:%s %s\n%sAllowed chars:%s %d\n",
		lib.Blue, lib.ResetColor, fp.Context,
		lib.Blue, lib.ResetColor, fp.Prefix,
		lib.Blue, lib.ResetColor, fp.Suffix,
		lib.Blue, lib.ResetColor, strings.Join(fp.FiltersDetected, ", "),
		lib.Blue, lib.ResetColor, fp.encodingLabel(),
		lib.Blue, lib.ResetColor, len(fp.AllowedChars),
	)
}

func (fp ContextFingerprint) TableHeaders() []string {
	return []string{"Context", "Prefix", "Suffix", "Filters", "Encoding"}
}

func (fp ContextFingerprint) TableRow() []string {
	return []string{string(fp.Context), fp.Prefix, fp.Suffix, strings.Join(fp.FiltersDetected, ","), fp.encodingLabel()}
}
