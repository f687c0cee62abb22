package analysis

import (
	"regexp"
	"strings"
)

// ScriptTags can carry JavaScript when injected as markup.
var ScriptTags = []string{
	"script", "img", "svg", "iframe", "object", "embed",
	"video", "audio", "source", "track", "input", "body",
	"html", "meta", "link", "style", "form", "details",
	"math", "template", "canvas", "marquee",
}

// EventHandlers are attribute names that run JavaScript.
var EventHandlers = []string{
	"onload", "onerror", "onclick", "onmouseover", "onfocus",
	"onblur", "onsubmit", "onchange", "onkeyup", "onkeydown",
	"onmousedown", "onmouseup", "ondblclick", "oncontextmenu",
	"onwheel", "ondrag", "ondrop", "onanimationend", "ontransitionend",
	"ontoggle", "onplay", "onpause", "onended", "oncanplay",
	"onloadstart", "onprogress", "onseeking", "onseeked",
}

var jsVariableRe = regexp.MustCompile(`\w+\s*=`)

// contextRule is one ordered classification check.
type contextRule struct {
	context Context
	match   func(payload, lower string) bool
}

func anyIn(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func anyTagIn(lower string) bool {
	for _, tag := range ScriptTags {
		if strings.Contains(lower, "<"+tag) {
			return true
		}
	}
	return false
}

var contextRules = []contextRule{
	{ContextHTMLContent, func(_, lower string) bool { return anyTagIn(lower) }},
	{ContextAttributeValue, func(_, lower string) bool { return anyIn(lower, EventHandlers) }},
	{ContextJSString, func(p, _ string) bool { return strings.ContainsAny(p, "\"'\\\n\r") }},
	{ContextJSVariable, func(p, _ string) bool { return jsVariableRe.MatchString(p) }},
	{ContextCSSValue, func(_, lower string) bool {
		return anyIn(lower, []string{"expression(", "url(", "import", "@"})
	}},
	{ContextURLParameter, func(_, lower string) bool {
		return anyIn(lower, []string{"javascript:", "data:", "vbscript:", "about:"})
	}},
	{ContextHTMLComment, func(p, _ string) bool { return anyIn(p, []string{"-->", "<!--", "*/"}) }},
}

// ContextAnalyzer classifies which injection contexts a payload could exploit.
type ContextAnalyzer struct{}

func NewContextAnalyzer() *ContextAnalyzer {
	return &ContextAnalyzer{}
}

// Analyze never fails and returns [unknown] when no rule matches.
func (a *ContextAnalyzer) Analyze(payload string) []Context {
	lower := strings.ToLower(payload)
	var contexts []Context
	for _, rule := range contextRules {
		if rule.match(payload, lower) {
			contexts = append(contexts, rule.context)
		}
	}
	if len(contexts) == 0 {
		return []Context{ContextUnknown}
	}
	return contexts
}

// DetectTags returns the script capable tags present as "<tag".
func DetectTags(payload string) []string {
	lower := strings.ToLower(payload)
	var tags []string
	for _, tag := range ScriptTags {
		if strings.Contains(lower, "<"+tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

// DetectEvents returns the event handler names present in the payload.
func DetectEvents(payload string) []string {
	lower := strings.ToLower(payload)
	var events []string
	for _, ev := range EventHandlers {
		if strings.Contains(lower, ev) {
			events = append(events, ev)
		}
	}
	return events
}
