package analysis

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/pyneda/xsslab/lib"
	"github.com/pyneda/xsslab/pkg/encoding"
)

// ContextClassifier reports the injection contexts of a payload.
type ContextClassifier interface {
	Analyze(payload string) []Context
}

// TechniqueFinder reports the bypass techniques used by a payload.
type TechniqueFinder interface {
	Detect(payload string) []string
}

// PayloadAnalyzer combines context, technique and risk analysis. It holds no
// mutable state and can be shared between goroutines.
type PayloadAnalyzer struct {
	contexts   ContextClassifier
	techniques TechniqueFinder
	scorer     *RiskScorer
}

type AnalyzerOption func(*PayloadAnalyzer)

// WithContextClassifier replaces the default context analyzer.
func WithContextClassifier(c ContextClassifier) AnalyzerOption {
	return func(a *PayloadAnalyzer) { a.contexts = c }
}

// WithTechniqueFinder replaces the default technique detector.
func WithTechniqueFinder(f TechniqueFinder) AnalyzerOption {
	return func(a *PayloadAnalyzer) { a.techniques = f }
}

func NewPayloadAnalyzer(opts ...AnalyzerOption) *PayloadAnalyzer {
	a := &PayloadAnalyzer{
		contexts:   NewContextAnalyzer(),
		techniques: defaultDetector,
		scorer:     NewRiskScorer(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var defaultDetector = NewTechniqueDetector()

var errInvalidUTF8 = errors.New("decoded payload is not valid UTF-8")

// Normalize decodes HTML entities, up to three rounds of URL encoding and JS
// escapes, then lowercases. On failure the lowercased input is returned with the error.
func Normalize(payload string) (string, error) {
	decoded := html.UnescapeString(payload)
	for i := 0; i < 3; i++ {
		next := encoding.Unquote(decoded)
		if next == decoded {
			break
		}
		decoded = next
	}
	decoded = encoding.DecodeJSEscapes(decoded)
	if !utf8.ValidString(decoded) {
		return strings.ToLower(payload), errInvalidUTF8
	}
	return strings.ToLower(decoded), nil
}

// Analyze never panics. Internal failures produce a degraded low-risk result.
func (a *PayloadAnalyzer) Analyze(payload string) (result PayloadAnalysis) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%v", r)
			log.Error().Err(err).Str("payload", lib.Truncate(payload, 53)).Msg("Error analyzing payload")
			result = degradedAnalysis(payload, err)
		}
	}()

	log.Debug().Str("payload", lib.Truncate(payload, 53)).Msg("Analyzing payload")

	normalized, err := Normalize(payload)
	if err != nil {
		log.Debug().Err(err).Msg("Normalization failed, using lowercased payload")
	}
	contexts := a.contexts.Analyze(payload)
	xssTypes := DetermineXSSTypes(payload)
	techniques := a.techniques.Detect(payload)
	risk, confidence := a.scorer.Score(payload, contexts, techniques)

	result = PayloadAnalysis{
		Payload:          payload,
		Contexts:         contexts,
		XSSTypes:         xssTypes,
		BypassTechniques: techniques,
		RiskLevel:        risk,
		Explanation:      explain(payload, contexts, xssTypes, techniques),
		ProofOfConcept:   proofOfConcept(payload, contexts),
		ConfidenceScore:  confidence,
		Metadata:         collectMetadata(payload, normalized, contexts),
	}

	log.Debug().Str("risk", string(risk)).Float64("confidence", confidence).Msg("Analysis complete")
	return result
}

func degradedAnalysis(payload string, err error) PayloadAnalysis {
	return PayloadAnalysis{
		Payload:          payload,
		Contexts:         []Context{ContextUnknown},
		XSSTypes:         []XSSType{XSSReflected},
		BypassTechniques: []string{},
		RiskLevel:        RiskLow,
		Explanation:      "Analysis failed: " + err.Error(),
		ProofOfConcept:   "Unable to generate PoC",
		ConfidenceScore:  0.0,
		Metadata:         Metadata{Error: err.Error()},
	}
}

var domTerms = []string{
	"document.", "window.", "location.", "eval(", "innerhtml",
	"outerhtml", "document.write", "location.href",
}

// DetermineXSSTypes guesses the XSS classes a payload could achieve.
// Defaults to reflected.
func DetermineXSSTypes(payload string) []XSSType {
	lower := strings.ToLower(payload)
	var types []XSSType

	if strings.Contains(lower, "<script>") || anyIn(lower, EventHandlers) || strings.Contains(lower, "javascript:") {
		types = append(types, XSSReflected)
	}

	// Short, markup free payloads that still reference script primitives.
	if utf8.RuneCountInString(payload) < 100 &&
		!strings.ContainsAny(payload, `<>"'`) &&
		anyIn(lower, []string{"alert", "eval", "script"}) {
		types = append(types, XSSStored)
	}

	if anyIn(lower, domTerms) {
		types = append(types, XSSDOMBased)
	}

	if (strings.Contains(lower, "<img") && strings.Contains(lower, "onerror=")) ||
		(strings.Contains(lower, "svg") && strings.Contains(lower, "onload=")) ||
		strings.Contains(lower, "javascript:") {
		types = append(types, XSSUniversal)
	}

	if len(types) == 0 {
		return []XSSType{XSSReflected}
	}
	return types
}

func humanize(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

func explain(payload string, contexts []Context, types []XSSType, techniques []string) string {
	var sb strings.Builder
	sb.WriteString("This payload attempts XSS exploitation through: ")

	if len(contexts) > 0 && !(len(contexts) == 1 && contexts[0] == ContextUnknown) {
		names := make([]string, len(contexts))
		for i, c := range contexts {
			names[i] = humanize(string(c))
		}
		fmt.Fprintf(&sb, "injection into %s context(s)", strings.Join(names, ", "))
	} else {
		sb.WriteString("unknown injection context")
	}

	if len(techniques) > 0 {
		fmt.Fprintf(&sb, ", using bypass techniques: %s", strings.Join(techniques, ", "))
	}

	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = humanize(string(t))
		}
		fmt.Fprintf(&sb, ". Likely to succeed as %s XSS.", strings.Join(names, ", "))
	}

	lower := strings.ToLower(payload)
	switch {
	case strings.Contains(lower, "<script>"):
		sb.WriteString(" Uses direct script tag injection.")
	case anyIn(lower, []string{"onerror", "onload", "onclick"}):
		sb.WriteString(" Uses event handler injection.")
	case strings.Contains(lower, "javascript:"):
		sb.WriteString(" Uses JavaScript protocol injection.")
	}
	return sb.String()
}

func proofOfConcept(payload string, contexts []Context) string {
	var sb strings.Builder
	sb.WriteString("Proof of Concept:\n\n")
	for _, c := range contexts {
		switch c {
		case ContextHTMLContent:
			fmt.Fprintf(&sb, "HTML Context: <div>%s</div>\n", payload)
		case ContextAttributeValue:
			fmt.Fprintf(&sb, "Attribute Context: <input value=\"%s\">\n", payload)
		case ContextJSString:
			fmt.Fprintf(&sb, "JavaScript Context: var x = \"%s\";\n", payload)
		case ContextURLParameter:
			fmt.Fprintf(&sb, "URL Context: https://example.com/page?param=%s\n", encoding.QuoteSafe(payload, "/"))
		case ContextCSSValue:
			fmt.Fprintf(&sb, "CSS Context: <div style=\"color:%s\">test</div>\n", payload)
		case ContextHTMLComment:
			fmt.Fprintf(&sb, "Comment Context: <!-- %s -->\n", payload)
		}
	}
	fmt.Fprintf(&sb, "\nDirect test: %s\n", payload)
	sb.WriteString("\nTesting Instructions:\n")
	sb.WriteString("1. Inject the payload into the identified context(s)\n")
	sb.WriteString("2. Observe if JavaScript executes (alert boxes, console messages)\n")
	sb.WriteString("3. Check browser developer tools for errors or execution\n")
	return sb.String()
}

const specialChars = `<>"'&%;=()[]{}`

func collectMetadata(payload, normalized string, contexts []Context) Metadata {
	lower := strings.ToLower(payload)

	diversity := make(map[rune]struct{})
	for _, r := range lower {
		diversity[r] = struct{}{}
	}

	special := []string{}
	for _, r := range payload {
		if strings.ContainsRune(specialChars, r) {
			special = append(special, string(r))
		}
	}

	md := Metadata{
		OriginalLength:             utf8.RuneCountInString(payload),
		NormalizedLength:           utf8.RuneCountInString(normalized),
		EncodingDetected:           payload != normalized,
		CharacterDiversity:         len(diversity),
		ContainsScriptTag:          strings.Contains(lower, "<script"),
		ContainsEventHandler:       anyIn(lower, EventHandlers),
		ContainsJavascriptProtocol: strings.Contains(lower, "javascript:"),
		ContextCount:               len(contexts),
		SpecialCharacters:          special,
		WordCount:                  len(strings.Fields(payload)),
		DetectedTags:               DetectTags(payload),
		DetectedEvents:             DetectEvents(payload),
	}

	switch {
	case strings.Contains(lower, "alert("):
		md.PayloadFamily = FamilyAlert
	case strings.Contains(lower, "eval("):
		md.PayloadFamily = FamilyEval
	case strings.Contains(lower, "document.write"):
		md.PayloadFamily = FamilyDocumentWrite
	case anyIn(lower, []string{"<img", "<svg", "<iframe"}):
		md.PayloadFamily = FamilyTag
	default:
		md.PayloadFamily = FamilyUnknown
	}
	return md
}

