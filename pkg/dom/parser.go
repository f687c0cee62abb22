package dom

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

type extractKind int

const (
	extractGeneric extractKind = iota
	extractMarkup
	extractCode
)

// rule is a single line pattern. Patterns that must not be followed by an
// assignment set notAssigned, since regexp has no lookahead.
type rule struct {
	re               *regexp.Regexp
	notAssigned      bool
	mentionsLocation bool
	extract          extractKind
}

var assignmentAhead = regexp.MustCompile(`^\s*=`)

func newRule(pattern string, notAssigned, foldCase bool) rule {
	expr := pattern
	if foldCase {
		expr = "(?i)" + pattern
	}
	r := rule{
		re:               regexp.MustCompile(expr),
		notAssigned:      notAssigned,
		mentionsLocation: strings.Contains(strings.ToLower(pattern), "location"),
	}
	switch {
	case strings.Contains(pattern, "innerHTML"), strings.Contains(pattern, "outerHTML"):
		r.extract = extractMarkup
	case strings.Contains(pattern, "eval"), strings.Contains(pattern, "Function"):
		r.extract = extractCode
	}
	return r
}

func (r rule) match(line string) bool {
	if !r.notAssigned {
		return r.re.MatchString(line)
	}
	for _, loc := range r.re.FindAllStringIndex(line, -1) {
		if !assignmentAhead.MatchString(line[loc[1]:]) {
			return true
		}
	}
	return false
}

func patterns(foldCase bool, exprs ...string) []rule {
	rules := make([]rule, 0, len(exprs))
	for _, e := range exprs {
		rules = append(rules, newRule(e, false, foldCase))
	}
	return rules
}

type sourceGroup struct {
	kind  SourceType
	rules []rule
}

type sinkGroup struct {
	kind  SinkType
	rules []rule
}

// Groups are checked in order and a line yields at most one finding per
// group. WebSocket, ajax and executeScript have no line patterns.
var sourceGroups = []sourceGroup{
	{SourceLocation, append([]rule{
		// an optional .href suffix never changes whether the read is an assignment
		newRule(`(?:window\.|document\.)?location`, true, true),
	}, patterns(true,
		`(?:window\.|document\.)?location\.(?:pathname|search|hash|host|hostname|port|protocol)`,
		`document\.URL`,
		`document\.documentURI`,
		`window\.location\.toString\(\)`,
	)...)},
	{SourceSearch, patterns(true,
		`location\.search`,
		`window\.location\.search`,
		`document\.location\.search`,
		`URLSearchParams\s*\(\s*(?:window\.)?location\.search\s*\)`,
	)},
	{SourceHash, patterns(true,
		`location\.hash`,
		`window\.location\.hash`,
		`document\.location\.hash`,
		`location\.hash\.(?:substr|substring|slice)`,
	)},
	{SourceReferrer, patterns(true,
		`document\.referrer`,
		`document\.referrer\.(?:split|match|indexOf)`,
	)},
	{SourcePostMessage, patterns(true,
		`addEventListener\s*\(\s*["']message["']\s*,`,
		`window\.addEventListener\s*\(\s*["']message["']\s*,`,
		`onmessage\s*=`,
		`event\.data`,
		`e\.data`,
	)},
	{SourceLocalStorage, patterns(true,
		`localStorage\.getItem\s*\(`,
		`localStorage\[["'][^"']+["']\]`,
		`localStorage\.[a-zA-Z_]\w*`,
	)},
	{SourceSessionStorage, patterns(true,
		`sessionStorage\.getItem\s*\(`,
		`sessionStorage\[["'][^"']+["']\]`,
		`sessionStorage\.[a-zA-Z_]\w*`,
	)},
	{SourceCookie, patterns(true,
		`document\.cookie`,
		`document\.cookie\.(?:split|match|indexOf)`,
	)},
	{SourceUserInput, append([]rule{
		newRule(`\.value`, true, true),
	}, patterns(true,
		`prompt\s*\(`,
		`confirm\s*\(`,
		`\.getAttribute\s*\(["']value["']\)`,
		`getElementById\([^)]+\)\.value`,
		`querySelector\([^)]+\)\.value`,
		`\$\([^)]+\)\.val\(\)`,
	)...)},
	{SourceWindowName, patterns(true,
		`window\.name`,
		`window\.name\.(?:split|match|indexOf)`,
	)},
}

var sinkGroups = []sinkGroup{
	{SinkInnerHTML, patterns(true,
		`\.innerHTML\s*=`,
		`\.innerHTML\s*\+=`,
		`innerHTML\s*=`,
		`\.innerHTML\s*\([^)]*\)`,
	)},
	{SinkOuterHTML, patterns(true,
		`\.outerHTML\s*=`,
		`\.outerHTML\s*\+=`,
		`outerHTML\s*=`,
	)},
	{SinkDocumentWrite, patterns(true,
		`document\.write\s*\(`,
		`document\.writeln\s*\(`,
		`document\.open\s*\(\s*\)\.write\s*\(`,
	)},
	// the Function constructor is matched case sensitively so that
	// anonymous function expressions are not reported as eval sinks
	{SinkEval, append(append(patterns(true, `\beval\s*\(`),
		patterns(false, `\bFunction\s*\(`, `new\s+Function\s*\(`)...),
		patterns(true,
			`setTimeout\s*\(\s*["'][^"']+["']\s*\+`,
			`setInterval\s*\(\s*["'][^"']+["']\s*\+`,
		)...)},
	{SinkSetTimeout, patterns(true,
		`setTimeout\s*\(`,
		`setInterval\s*\(`,
		`setImmediate\s*\(`,
	)},
	{SinkScriptSrc, patterns(true,
		`\.src\s*=.*script`,
		`script.*\.src\s*=`,
		`\.setAttribute\s*\(\s*["']src["']\s*,.*script`,
	)},
	{SinkIframeSrc, patterns(true,
		`iframe.*\.src\s*=`,
		`\.src\s*=.*iframe`,
		`\.setAttribute\s*\(\s*["']src["']\s*,.*iframe`,
	)},
	{SinkLocationHref, patterns(true,
		`location\.href\s*=`,
		`window\.location\.href\s*=`,
		`location\.assign\s*\(`,
		`location\.replace\s*\(`,
		`window\.location\s*=`,
	)},
	{SinkJQueryHTML, patterns(true,
		`\$\([^)]+\)\.html\s*\(`,
		`jQuery\([^)]+\)\.html\s*\(`,
		`\.html\s*\([^)]+\)`,
	)},
	{SinkJQueryAppend, patterns(true,
		`\$\([^)]+\)\.append\s*\(`,
		`jQuery\([^)]+\)\.append\s*\(`,
		`\.append\s*\([^)]+\)`,
		`\.prepend\s*\([^)]+\)`,
		`\.after\s*\([^)]+\)`,
		`\.before\s*\([^)]+\)`,
	)},
	{SinkInsertAdjacentHTML, patterns(true,
		`\.insertAdjacentHTML\s*\(`,
		`insertAdjacentHTML\s*\(`,
	)},
	{SinkCreateElement, patterns(true,
		`document\.createElement\s*\(`,
		`createElement\s*\(`,
	)},
}

var (
	declaredAssignment = regexp.MustCompile(`(?:var|let|const)\s+([a-zA-Z_$][\w$]*)\s*=`)
	plainAssignment    = regexp.MustCompile(`([a-zA-Z_$][\w$]*)\s*=`)
	settingLocation    = regexp.MustCompile(`(?i)location(?:\.href)?\s*=`)

	markupTarget  = regexp.MustCompile(`([a-zA-Z_$][\w$]*)\s*\.(?:inner|outer)HTML`)
	codeArgument  = regexp.MustCompile(`(?:eval|Function)\s*\(\s*([a-zA-Z_$][\w$]*)`)
	assignedValue = regexp.MustCompile(`=\s*([a-zA-Z_$][\w$]*)`)

	declarationLine = regexp.MustCompile(`^(?:var|let|const)\s+([a-zA-Z_$][\w$]*)\s*=\s*(.+)`)
	assignmentLine  = regexp.MustCompile(`^([a-zA-Z_$][\w$]*)\s*=\s*([^=].+)`)

	interactionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)onclick`),
		regexp.MustCompile(`(?i)onmouseover`),
		regexp.MustCompile(`(?i)onfocus`),
		regexp.MustCompile(`(?i)onload`),
		regexp.MustCompile(`(?i)addEventListener\s*\(\s*["']click["']`),
		regexp.MustCompile(`(?i)\.click\s*\(\s*function`),
	}
)

// transformationFunctions are recognised by substring, so "unescape" also
// counts as "escape".
var transformationFunctions = []string{
	"decodeURIComponent", "encodeURIComponent", "escape", "unescape",
	"atob", "btoa", "toLowerCase", "toUpperCase", "trim", "replace",
	"substring", "substr", "slice", "split", "join", "concat",
	"parseInt", "parseFloat", "toString", "valueOf",
}

var sanitizingTransforms = map[string]bool{"encodeURIComponent": true, "escape": true}

// Parser finds DOM XSS sources, sinks and the flows between them with line
// based pattern matching. It holds no state and is safe for concurrent use.
type Parser struct{}

func NewParser() *Parser { return &Parser{} }

type assignment struct {
	tainted         bool
	transformations []string
}

// tracker holds the variables seen during one Analyze call. Both maps keep
// a slice of keys so results do not depend on map iteration order.
type tracker struct {
	assignments map[string]assignment
	order       []string
	taintedSet  map[string]bool
	tainted     []string
}

func newTracker() *tracker {
	return &tracker{assignments: map[string]assignment{}, taintedSet: map[string]bool{}}
}

func (t *tracker) assign(name string, a assignment) {
	if _, ok := t.assignments[name]; !ok {
		t.order = append(t.order, name)
	}
	t.assignments[name] = a
	if a.tainted && !t.taintedSet[name] {
		t.taintedSet[name] = true
		t.tainted = append(t.tainted, name)
	}
}

// Analyze scans code line by line and returns the sources, the sinks and
// every source to sink flow it can trace.
func (p *Parser) Analyze(code string) Analysis {
	lines := strings.Split(code, "\n")
	t := newTracker()

	sources := t.findSources(lines)
	sinks := findSinks(lines)
	log.Info().Int("sources", len(sources)).Int("sinks", len(sinks)).Msg("JavaScript sources and sinks located")

	t.trackAssignments(lines)
	var flows []Flow
	for _, sink := range sinks {
		for _, source := range sources {
			if flow, ok := t.flow(source, sink); ok {
				flows = append(flows, flow)
			}
		}
	}
	log.Info().Int("flows", len(flows)).Msg("DOM XSS analysis complete")
	return Analysis{Sources: sources, Sinks: sinks, Flows: flows}
}

func (t *tracker) findSources(lines []string) []Source {
	var sources []Source
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		for _, g := range sourceGroups {
			for _, r := range g.rules {
				if !r.match(line) || (r.mentionsLocation && settingLocation.MatchString(line)) {
					continue
				}
				name := assignedVariable(line)
				src := Source{
					Type:       g.kind,
					Variable:   name,
					Line:       i + 1,
					Code:       line,
					RiskLevel:  sourceRisk(g.kind),
					Tainted:    true,
					Confidence: defaultConfidence,
				}
				if name == "" {
					src.Variable = fmt.Sprintf("source_%d", i+1)
				} else {
					t.assign(name, assignment{tainted: true})
				}
				sources = append(sources, src)
				break
			}
		}
	}
	return sources
}

func findSinks(lines []string) []Sink {
	var sinks []Sink
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		for _, g := range sinkGroups {
			for _, r := range g.rules {
				if !r.match(line) {
					continue
				}
				name := sinkVariable(line, r.extract)
				if name == "" {
					name = fmt.Sprintf("sink_%d", i+1)
				}
				sinks = append(sinks, Sink{
					Type:                g.kind,
					Variable:            name,
					Line:                i + 1,
					Code:                line,
					RiskLevel:           sinkRisk(g.kind),
					RequiresInteraction: requiresInteraction(line),
					Confidence:          defaultConfidence,
				})
				break
			}
		}
	}
	return sinks
}

func (t *tracker) trackAssignments(lines []string) {
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		m := declarationLine.FindStringSubmatch(line)
		if m == nil {
			m = assignmentLine.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		value := m[2]
		t.assign(m[1], assignment{
			tainted:         t.isTainted(value),
			transformations: transformationsIn(value),
		})
	}
}

func (t *tracker) isTainted(value string) bool {
	for _, name := range t.tainted {
		if regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`).MatchString(value) {
			return true
		}
	}
	for _, g := range sourceGroups {
		for _, r := range g.rules {
			if r.match(value) {
				return true
			}
		}
	}
	return false
}

func (t *tracker) flow(source Source, sink Sink) (Flow, bool) {
	newFlow := func(intermediates, transformations []string, confidence float64) (Flow, bool) {
		return Flow{
			Source:          source,
			Sink:            sink,
			Intermediates:   intermediates,
			Transformations: transformations,
			Confidence:      confidence,
			Payload:         exploitPayload(source.Type, sink.Type),
			Steps:           exploitationSteps(source.Type, sink.Type),
		}, true
	}

	if strings.Contains(sink.Code, source.Variable) {
		return newFlow([]string{}, []string{}, 0.9)
	}

	if a, ok := t.assignments[sink.Variable]; ok && a.tainted {
		intermediates := t.intermediates(source, sink)
		transformations := append([]string{}, a.transformations...)
		return newFlow(intermediates, transformations, flowConfidence(source, sink, intermediates, transformations))
	}

	for _, name := range t.tainted {
		if strings.Contains(sink.Code, name) {
			return newFlow([]string{name}, []string{}, 0.7)
		}
	}
	return Flow{}, false
}

func (t *tracker) intermediates(source Source, sink Sink) []string {
	out := []string{}
	for _, name := range t.order {
		if !t.assignments[name].tainted || name == source.Variable {
			continue
		}
		if strings.Contains(sink.Code, name) || name == sink.Variable {
			out = append(out, name)
		}
	}
	return out
}

func flowConfidence(source Source, sink Sink, intermediates, transformations []string) float64 {
	confidence := 0.5
	switch source.Type {
	case SourceLocation, SourceHash, SourceSearch, SourcePostMessage:
		confidence += 0.3
	}
	switch sink.Type {
	case SinkInnerHTML, SinkEval, SinkDocumentWrite, SinkExecuteScript:
		confidence += 0.3
	}
	if len(intermediates) == 0 {
		confidence += 0.2
	} else {
		confidence -= float64(len(intermediates)) * 0.05
	}
	for _, tr := range transformations {
		if sanitizingTransforms[tr] {
			confidence -= 0.3
			break
		}
	}
	if sink.RequiresInteraction {
		confidence -= 0.1
	}
	return min(1.0, max(0.1, confidence))
}

func assignedVariable(line string) string {
	for _, re := range []*regexp.Regexp{declaredAssignment, plainAssignment} {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1]
		}
	}
	return ""
}

func sinkVariable(line string, kind extractKind) string {
	var m []string
	switch kind {
	case extractMarkup:
		m = markupTarget.FindStringSubmatch(line)
	case extractCode:
		m = codeArgument.FindStringSubmatch(line)
	}
	if m == nil {
		m = assignedValue.FindStringSubmatch(line)
	}
	if m == nil {
		return ""
	}
	return m[1]
}

func transformationsIn(value string) []string {
	out := []string{}
	for _, fn := range transformationFunctions {
		if strings.Contains(value, fn) {
			out = append(out, fn)
		}
	}
	return out
}

func requiresInteraction(code string) bool {
	for _, re := range interactionPatterns {
		if re.MatchString(code) {
			return true
		}
	}
	return false
}

func sourceRisk(kind SourceType) string {
	switch kind {
	case SourceLocation, SourceHash, SourcePostMessage, SourceSearch:
		return RiskHigh
	case SourceReferrer, SourceLocalStorage, SourceSessionStorage, SourceWindowName:
		return RiskMedium
	default:
		return RiskLow
	}
}

func sinkRisk(kind SinkType) string {
	switch kind {
	case SinkEval, SinkDocumentWrite, SinkExecuteScript:
		return RiskCritical
	case SinkInnerHTML, SinkOuterHTML, SinkSetTimeout, SinkInsertAdjacentHTML:
		return RiskHigh
	case SinkScriptSrc, SinkIframeSrc, SinkLocationHref, SinkCreateElement:
		return RiskMedium
	default:
		return RiskLow
	}
}
