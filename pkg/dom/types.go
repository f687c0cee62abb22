package dom

import (
	"fmt"
	"strings"

	"github.com/pyneda/xsslab/lib"
)

// SourceType names where attacker controlled data enters client-side code.
type SourceType string

const (
	SourceLocation       SourceType = "location"
	SourceSearch         SourceType = "search"
	SourceHash           SourceType = "hash"
	SourceReferrer       SourceType = "referrer"
	SourcePostMessage    SourceType = "postMessage"
	SourceWebSocket      SourceType = "websocket"
	SourceAjaxResponse   SourceType = "ajax"
	SourceLocalStorage   SourceType = "localStorage"
	SourceSessionStorage SourceType = "sessionStorage"
	SourceCookie         SourceType = "cookie"
	SourceUserInput      SourceType = "input"
	SourceWindowName     SourceType = "window.name"
)

// SinkType names a place where data can turn into markup or code.
type SinkType string

const (
	SinkInnerHTML          SinkType = "innerHTML"
	SinkOuterHTML          SinkType = "outerHTML"
	SinkDocumentWrite      SinkType = "document.write"
	SinkEval               SinkType = "eval"
	SinkSetTimeout         SinkType = "setTimeout"
	SinkScriptSrc          SinkType = "script.src"
	SinkIframeSrc          SinkType = "iframe.src"
	SinkLocationHref       SinkType = "location.href"
	SinkJQueryHTML         SinkType = "jquery.html"
	SinkJQueryAppend       SinkType = "jquery.append"
	SinkExecuteScript      SinkType = "executeScript"
	SinkInsertAdjacentHTML SinkType = "insertAdjacentHTML"
	SinkCreateElement      SinkType = "createElement"
)

const (
	RiskCritical = "critical"
	RiskHigh     = "high"
	RiskMedium   = "medium"
	RiskLow      = "low"

	defaultConfidence = 0.8
)

type Source struct {
	Type       SourceType `json:"type" yaml:"type"`
	Variable   string     `json:"variable" yaml:"variable"`
	Line       int        `json:"line" yaml:"line"`
	Code       string     `json:"code" yaml:"code"`
	RiskLevel  string     `json:"risk_level" yaml:"risk_level"`
	Tainted    bool       `json:"tainted" yaml:"tainted"`
	Confidence float64    `json:"confidence" yaml:"confidence"`
}

type Sink struct {
	Type                SinkType `json:"type" yaml:"type"`
	Variable            string   `json:"variable" yaml:"variable"`
	Line                int      `json:"line" yaml:"line"`
	Code                string   `json:"code" yaml:"code"`
	RiskLevel           string   `json:"risk_level" yaml:"risk_level"`
	RequiresInteraction bool     `json:"requires_interaction" yaml:"requires_interaction"`
	Confidence          float64  `json:"confidence" yaml:"confidence"`
}

// Flow is a path from a source to a sink that is likely exploitable.
type Flow struct {
	Source          Source   `json:"source" yaml:"source"`
	Sink            Sink     `json:"sink" yaml:"sink"`
	Intermediates   []string `json:"intermediate_variables" yaml:"intermediate_variables"`
	Transformations []string `json:"transformations" yaml:"transformations"`
	Confidence      float64  `json:"confidence" yaml:"confidence"`
	Payload         string   `json:"exploit_payload" yaml:"exploit_payload"`
	Steps           []string `json:"exploitation_steps" yaml:"exploitation_steps"`
}

func (f Flow) String() string {
	return fmt.Sprintf("%s:%d -> %s:%d confidence=%.2f %s", f.Source.Type, f.Source.Line, f.Sink.Type, f.Sink.Line, f.Confidence, f.Payload)
}

func (f Flow) Pretty() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s%s%s (line %d) -> %s%s%s (line %d) [%s] %s\n",
		lib.Cyan, f.Source.Type, lib.ResetColor, f.Source.Line,
		lib.Purple, f.Sink.Type, lib.ResetColor, f.Sink.Line,
		lib.ColorLevel(f.Sink.RiskLevel), lib.ColorScore(f.Confidence, "%.2f"))
	fmt.Fprintf(&sb, "  %sSink:%s %s\n", lib.Blue, lib.ResetColor, f.Sink.Code)
	if len(f.Intermediates) > 0 {
		fmt.Fprintf(&sb, "  %sVia:%s %s\n", lib.Blue, lib.ResetColor, strings.Join(f.Intermediates, " -> "))
	}
	fmt.Fprintf(&sb, "  %sPayload:%s %s\n", lib.Blue, lib.ResetColor, f.Payload)
	return sb.String()
}

func (f Flow) TableHeaders() []string {
	return []string{"Source", "Line", "Sink", "Line", "Risk", "Confidence", "Payload"}
}

func (f Flow) TableRow() []string {
	return []string{
		string(f.Source.Type),
		fmt.Sprintf("%d", f.Source.Line),
		string(f.Sink.Type),
		fmt.Sprintf("%d", f.Sink.Line),
		f.Sink.RiskLevel,
		fmt.Sprintf("%.2f", f.Confidence),
		lib.Truncate(f.Payload, 50),
	}
}

// Analysis is everything found in one piece of JavaScript.
type Analysis struct {
	Sources []Source `json:"sources" yaml:"sources"`
	Sinks   []Sink   `json:"sinks" yaml:"sinks"`
	Flows   []Flow   `json:"flows" yaml:"flows"`
}

// Vulnerable reports whether at least one flow was traced.
func (a Analysis) Vulnerable() bool {
	return len(a.Flows) > 0
}

func (a Analysis) String() string {
	return fmt.Sprintf("sources=%d sinks=%d flows=%d", len(a.Sources), len(a.Sinks), len(a.Flows))
}

func (a Analysis) Pretty() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%sSources:%s %d\n", lib.Blue, lib.ResetColor, len(a.Sources))
	fmt.Fprintf(&sb, "%sSinks:%s %d\n", lib.Blue, lib.ResetColor, len(a.Sinks))
	verdict := lib.Colorize("none", lib.Green)
	if a.Vulnerable() {
		verdict = lib.Colorize(fmt.Sprintf("%d", len(a.Flows)), lib.Red)
	}
	fmt.Fprintf(&sb, "%sVulnerable flows:%s %s\n", lib.Blue, lib.ResetColor, verdict)
	for _, f := range a.Flows {
		sb.WriteString(f.Pretty())
	}
	return sb.String()
}

func (a Analysis) TableHeaders() []string {
	return []string{"Sources", "Sinks", "Flows", "Top Confidence"}
}

func (a Analysis) TableRow() []string {
	top := 0.0
	for _, f := range a.Flows {
		top = max(top, f.Confidence)
	}
	return []string{
		fmt.Sprintf("%d", len(a.Sources)),
		fmt.Sprintf("%d", len(a.Sinks)),
		fmt.Sprintf("%d", len(a.Flows)),
		fmt.Sprintf("%.2f", top),
	}
}
