package analysis

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
)

// TechniquePattern names a bypass technique and the expression that reveals it.
type TechniquePattern struct {
	Name    string
	Pattern string
	re      *regexp.Regexp
}

// DefaultTechniquePatterns is evaluated in order, case-insensitively, with dot matching newlines.
var DefaultTechniquePatterns = []TechniquePattern{
	{Name: "case_variation", Pattern: `[sS][cC][rR][iI][pP][tT]|[oO][nN][lL][oO][aA][dD]`},
	{Name: "encoded_chars", Pattern: `&#\d+;|&#x[0-9a-fA-F]+;|%[0-9a-fA-F]{2}`},
	{Name: "unicode_encoding", Pattern: `\\u[0-9a-fA-F]{4}|\\x[0-9a-fA-F]{2}`},
	{Name: "mixed_quotes", Pattern: `['"]+.*['"]+`},
	{Name: "comment_breaking", Pattern: `/\*.*?\*/|<!--.*?-->`},
	{Name: "whitespace_abuse", Pattern: `[\s\n\r\t\f\v]+`},
	{Name: "protocol_confusion", Pattern: `javascript:|data:|vbscript:|about:`},
	{Name: "attribute_breaking", Pattern: `\w+\s*=\s*[^\s>]+`},
	{Name: "tag_breaking", Pattern: `</\w+>.*<\w+`},
	{Name: "double_encoding", Pattern: `%25[0-9a-fA-F]{2}`},
	{Name: "null_byte", Pattern: `%00|\x00`},
	{Name: "newline_injection", Pattern: `%0[aAdD]|\n|\r`},
	{Name: "filter_evasion", Pattern: `script|alert|prompt|confirm`},
	{Name: "obfuscation", Pattern: `String\.fromCharCode|eval\s*\(|atob\s*\(`},
	{Name: "template_literals", Pattern: "`[^`]*`"},
	{Name: "bracket_notation", Pattern: `\[['"]\w+['"]\]`},
}

// TechniqueDetector matches payloads against a compiled technique table.
type TechniqueDetector struct {
	patterns []TechniquePattern
}

// NewTechniqueDetector compiles the default table.
func NewTechniqueDetector() *TechniqueDetector {
	return NewTechniqueDetectorWithPatterns(DefaultTechniquePatterns)
}

// NewTechniqueDetectorWithPatterns compiles patterns once. Entries that do
// not compile are logged and left out of every scan.
func NewTechniqueDetectorWithPatterns(patterns []TechniquePattern) *TechniqueDetector {
	compiled := make([]TechniquePattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(`(?is)` + p.Pattern)
		if err != nil {
			log.Warn().Err(err).Str("technique", p.Name).Msg("Skipping technique pattern that does not compile")
			continue
		}
		p.re = re
		compiled = append(compiled, p)
	}
	return &TechniqueDetector{patterns: compiled}
}

// Names lists the active technique names in evaluation order.
func (d *TechniqueDetector) Names() []string {
	names := make([]string, len(d.patterns))
	for i, p := range d.patterns {
		names[i] = p.Name
	}
	return names
}

// Detect returns the matched technique names plus the heuristic checks.
func (d *TechniqueDetector) Detect(payload string) []string {
	techniques := []string{}
	for _, p := range d.patterns {
		if p.re == nil {
			continue
		}
		if p.re.MatchString(payload) {
			techniques = append(techniques, p.Name)
		}
	}

	if mixedCaseEvasion(payload) {
		techniques = append(techniques, "mixed_case_evasion")
	}
	if strings.Count(payload, `"`) != strings.Count(payload, "'") {
		techniques = append(techniques, "quote_imbalance")
	}
	return techniques
}

// mixedCaseEvasion flags payloads whose distinct letters exceed a third of their length.
func mixedCaseEvasion(payload string) bool {
	letters := make(map[rune]struct{})
	length := 0
	for _, r := range payload {
		length++
		if unicode.IsLetter(r) {
			letters[unicode.ToLower(r)] = struct{}{}
		}
	}
	return len(letters) > length/3
}
