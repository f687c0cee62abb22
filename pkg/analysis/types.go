package analysis

import (
	"fmt"
	"strings"

	"github.com/pyneda/xsslab/lib"
)

// Context is a static classification of where a payload could be injected.
type Context string

const (
	ContextHTMLContent    Context = "html_content"
	ContextAttributeValue Context = "attribute_value"
	ContextJSString       Context = "js_string"
	ContextJSVariable     Context = "js_variable"
	ContextCSSValue       Context = "css_value"
	ContextURLParameter   Context = "url_parameter"
	ContextHTMLComment    Context = "html_comment"
	ContextUnknown        Context = "unknown"
)

// XSSType is a heuristic guess of which XSS class a payload targets.
type XSSType string

const (
	XSSReflected XSSType = "reflected"
	XSSStored    XSSType = "stored"
	XSSDOMBased  XSSType = "dom_based"
	XSSUniversal XSSType = "universal"
)

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Rank orders risk levels, low being 0.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskCritical:
		return 3
	case RiskHigh:
		return 2
	case RiskMedium:
		return 1
	default:
		return 0
	}
}

// LevelForScore maps a numeric risk score to a level.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= 8:
		return RiskCritical
	case score >= 6:
		return RiskHigh
	case score >= 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// PayloadFamily groups payloads by the primitive they rely on.
type PayloadFamily string

const (
	FamilyAlert         PayloadFamily = "alert_based"
	FamilyEval          PayloadFamily = "eval_based"
	FamilyDocumentWrite PayloadFamily = "document_write"
	FamilyTag           PayloadFamily = "tag_based"
	FamilyUnknown       PayloadFamily = "unknown"
)

// Metadata holds the structural facts collected about a payload.
type Metadata struct {
	OriginalLength             int           `json:"original_length" yaml:"original_length"`
	NormalizedLength           int           `json:"normalized_length" yaml:"normalized_length"`
	EncodingDetected           bool          `json:"encoding_detected" yaml:"encoding_detected"`
	CharacterDiversity         int           `json:"character_diversity" yaml:"character_diversity"`
	ContainsScriptTag          bool          `json:"contains_script_tag" yaml:"contains_script_tag"`
	ContainsEventHandler       bool          `json:"contains_event_handler" yaml:"contains_event_handler"`
	ContainsJavascriptProtocol bool          `json:"contains_javascript_protocol" yaml:"contains_javascript_protocol"`
	ContextCount               int           `json:"context_count" yaml:"context_count"`
	SpecialCharacters          []string      `json:"special_characters" yaml:"special_characters"`
	WordCount                  int           `json:"word_count" yaml:"word_count"`
	PayloadFamily              PayloadFamily `json:"payload_family" yaml:"payload_family"`
	DetectedTags               []string      `json:"detected_tags,omitempty" yaml:"detected_tags,omitempty"`
	DetectedEvents             []string      `json:"detected_events,omitempty" yaml:"detected_events,omitempty"`
	Error                      string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// PayloadAnalysis is the result of analyzing a single payload.
type PayloadAnalysis struct {
	Payload          string    `json:"payload" yaml:"payload"`
	Contexts         []Context `json:"contexts" yaml:"contexts"`
	XSSTypes         []XSSType `json:"xss_types" yaml:"xss_types"`
	BypassTechniques []string  `json:"bypass_techniques" yaml:"bypass_techniques"`
	RiskLevel        RiskLevel `json:"risk_level" yaml:"risk_level"`
	Explanation      string    `json:"explanation" yaml:"explanation"`
	ProofOfConcept   string    `json:"proof_of_concept" yaml:"proof_of_concept"`
	ConfidenceScore  float64   `json:"confidence_score" yaml:"confidence_score"`
	Metadata         Metadata  `json:"metadata" yaml:"metadata"`
}

func (a PayloadAnalysis) contextNames() []string {
	names := make([]string, len(a.Contexts))
	for i, c := range a.Contexts {
		names[i] = string(c)
	}
	return names
}

func (a PayloadAnalysis) typeNames() []string {
	names := make([]string, len(a.XSSTypes))
	for i, t := range a.XSSTypes {
		names[i] = string(t)
	}
	return names
}

func (a PayloadAnalysis) String() string {
	return fmt.Sprintf("%s risk=%s confidence=%.2f contexts=%s",
		a.Payload, a.RiskLevel, a.ConfidenceScore, strings.Join(a.contextNames(), ","))
}

func (a PayloadAnalysis) Pretty() string {
	return fmt.Sprintf(
		"%sPayload:%s %s\n%sRisk:%s %s\n%sConfidence:%s %s\n%sContexts:%s %s\n%sXSS types:%s %s\n%sTechniques:%s %s\n%sFamily:%s %s\n%sExplanation:%s %s\n\n%s\n",
		lib.Blue, lib.ResetColor, a.Payload,
		lib.Blue, lib.ResetColor, lib.ColorLevel(string(a.RiskLevel)),
		lib.Blue, lib.ResetColor, lib.ColorScore(a.ConfidenceScore, "%.2f"),
		lib.Blue, lib.ResetColor, strings.Join(a.contextNames(), ", "),
		lib.Blue, lib.ResetColor, strings.Join(a.typeNames(), ", "),
		lib.Blue, lib.ResetColor, strings.Join(a.BypassTechniques, ", "),
		lib.Blue, lib.ResetColor, a.Metadata.PayloadFamily,
		lib.Blue, lib.ResetColor, a.Explanation,
		a.ProofOfConcept,
	)
}

func (a PayloadAnalysis) TableHeaders() []string {
	return []string{"Payload", "Risk", "Confidence", "Contexts", "Techniques"}
}

func (a PayloadAnalysis) TableRow() []string {
	return []string{
		lib.Truncate(a.Payload, 50),
		string(a.RiskLevel),
		fmt.Sprintf("%.2f", a.ConfidenceScore),
		strings.Join(a.contextNames(), ","),
		fmt.Sprintf("%d", len(a.BypassTechniques)),
	}
}
