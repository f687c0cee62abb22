package payloads

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pyneda/xsslab/lib"
)

// Category groups corpus payloads by family.
type Category string

const (
	CategoryBasic         Category = "basic"
	CategoryBypass        Category = "bypass"
	CategoryPolyglot      Category = "polyglot"
	CategoryAdvanced      Category = "advanced"
	CategoryObfuscated    Category = "obfuscated"
	CategoryFilterEvasion Category = "filter_evasion"
	CategoryWAFBypass     Category = "waf_bypass"
)

// Categories lists the built-in categories in corpus order.
var Categories = []Category{
	CategoryBasic,
	CategoryBypass,
	CategoryPolyglot,
	CategoryAdvanced,
	CategoryObfuscated,
	CategoryFilterEvasion,
	CategoryWAFBypass,
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownCategory, s)
}

// Payload is a single corpus entry. Values are never mutated after load.
type Payload struct {
	Payload          string   `json:"payload" yaml:"payload"`
	Category         Category `json:"category" yaml:"-"`
	Description      string   `json:"description" yaml:"description"`
	Contexts         []string `json:"contexts" yaml:"contexts"`
	BypassTechniques []string `json:"bypass_techniques" yaml:"bypass_techniques"`
	SuccessRate      float64  `json:"success_rate" yaml:"success_rate"`
	Source           string   `json:"source" yaml:"source"`
	Tags             []string `json:"tags" yaml:"tags"`
	Severity         string   `json:"severity" yaml:"severity"`
	Notes            string   `json:"notes" yaml:"notes"`
}

func (p Payload) String() string {
	return fmt.Sprintf("[%s] %s (%.2f)", p.Category, p.Payload, p.SuccessRate)
}

func (p Payload) Pretty() string {
	return fmt.Sprintf(
		"%sPayload:%s %s\n%sCategory:%s %s\n%sDescription:%s %s\n%sContexts:%s %s\n%sTechniques:%s %s\n%sSuccess rate:%s %s\n%sSeverity:%s %s\n%sTags:%s %s\n%sSource:%s %s\n",
		lib.Blue, lib.ResetColor, p.Payload,
		lib.Blue, lib.ResetColor, p.Category,
		lib.Blue, lib.ResetColor, p.Description,
		lib.Blue, lib.ResetColor, strings.Join(p.Contexts, ", "),
		lib.Blue, lib.ResetColor, strings.Join(p.BypassTechniques, ", "),
		lib.Blue, lib.ResetColor, lib.ColorScore(p.SuccessRate, "%.2f"),
		lib.Blue, lib.ResetColor, lib.ColorLevel(p.Severity),
		lib.Blue, lib.ResetColor, strings.Join(p.Tags, ", "),
		lib.Blue, lib.ResetColor, p.Source,
	)
}

func (p Payload) TableHeaders() []string {
	return []string{"Category", "Payload", "Rate", "Severity", "Contexts"}
}

func (p Payload) TableRow() []string {
	return []string{
		string(p.Category),
		lib.Truncate(p.Payload, 60),
		fmt.Sprintf("%.2f", p.SuccessRate),
		p.Severity,
		strings.Join(p.Contexts, ","),
	}
}

func (p Payload) hasAnyContext(ctxs []string) bool {
	for _, c := range ctxs {
		if slices.Contains(p.Contexts, c) {
			return true
		}
	}
	return false
}

func (p Payload) hasAnyTechnique(techniques []string) bool {
	for _, t := range techniques {
		if slices.Contains(p.BypassTechniques, t) {
			return true
		}
	}
	return false
}
