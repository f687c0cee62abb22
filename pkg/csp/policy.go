// Package csp parses Content-Security-Policy headers and looks for ways an
// injected payload could still execute under them.
package csp

import (
	"net/http"
	"regexp"
	"strings"
)

type Directive string

const (
	DirectiveDefaultSrc              Directive = "default-src"
	DirectiveScriptSrc               Directive = "script-src"
	DirectiveScriptSrcElem           Directive = "script-src-elem"
	DirectiveScriptSrcAttr           Directive = "script-src-attr"
	DirectiveObjectSrc               Directive = "object-src"
	DirectiveStyleSrc                Directive = "style-src"
	DirectiveStyleSrcElem            Directive = "style-src-elem"
	DirectiveStyleSrcAttr            Directive = "style-src-attr"
	DirectiveImgSrc                  Directive = "img-src"
	DirectiveMediaSrc                Directive = "media-src"
	DirectiveFontSrc                 Directive = "font-src"
	DirectiveConnectSrc              Directive = "connect-src"
	DirectiveChildSrc                Directive = "child-src"
	DirectiveFrameSrc                Directive = "frame-src"
	DirectiveWorkerSrc               Directive = "worker-src"
	DirectiveManifestSrc             Directive = "manifest-src"
	DirectivePrefetchSrc             Directive = "prefetch-src"
	DirectiveNavigateTo              Directive = "navigate-to"
	DirectiveFormAction              Directive = "form-action"
	DirectiveFrameAncestors          Directive = "frame-ancestors"
	DirectiveBaseURI                 Directive = "base-uri"
	DirectivePluginTypes             Directive = "plugin-types"
	DirectiveSandbox                 Directive = "sandbox"
	DirectiveReportURI               Directive = "report-uri"
	DirectiveReportTo                Directive = "report-to"
	DirectiveUpgradeInsecureRequests Directive = "upgrade-insecure-requests"
	DirectiveBlockAllMixedContent    Directive = "block-all-mixed-content"
	DirectiveRequireSRIFor           Directive = "require-sri-for"
)

// Directives lists the recognized directives; anything else is ignored when parsing.
var Directives = []Directive{
	DirectiveDefaultSrc, DirectiveScriptSrc, DirectiveScriptSrcElem, DirectiveScriptSrcAttr,
	DirectiveObjectSrc, DirectiveStyleSrc, DirectiveStyleSrcElem, DirectiveStyleSrcAttr,
	DirectiveImgSrc, DirectiveMediaSrc, DirectiveFontSrc, DirectiveConnectSrc,
	DirectiveChildSrc, DirectiveFrameSrc, DirectiveWorkerSrc, DirectiveManifestSrc,
	DirectivePrefetchSrc, DirectiveNavigateTo, DirectiveFormAction, DirectiveFrameAncestors,
	DirectiveBaseURI, DirectivePluginTypes, DirectiveSandbox, DirectiveReportURI,
	DirectiveReportTo, DirectiveUpgradeInsecureRequests, DirectiveBlockAllMixedContent,
	DirectiveRequireSRIFor,
}

var directiveOrder = func() map[Directive]int {
	m := make(map[Directive]int, len(Directives))
	for i, d := range Directives {
		m[d] = i
	}
	return m
}()

type Keyword string

const (
	KeywordSelf           Keyword = "'self'"
	KeywordUnsafeInline   Keyword = "'unsafe-inline'"
	KeywordUnsafeEval     Keyword = "'unsafe-eval'"
	KeywordUnsafeHashes   Keyword = "'unsafe-hashes'"
	KeywordStrictDynamic  Keyword = "'strict-dynamic'"
	KeywordNone           Keyword = "'none'"
	KeywordReportSample   Keyword = "'report-sample'"
	KeywordWasmUnsafeEval Keyword = "'wasm-unsafe-eval'"
)

var keywords = map[Keyword]struct{}{
	KeywordSelf: {}, KeywordUnsafeInline: {}, KeywordUnsafeEval: {}, KeywordUnsafeHashes: {},
	KeywordStrictDynamic: {}, KeywordNone: {}, KeywordReportSample: {}, KeywordWasmUnsafeEval: {},
}

// Risk levels of a single directive.
const (
	RiskLow      = "low"
	RiskMedium   = "medium"
	RiskHigh     = "high"
	RiskCritical = "critical"
)

// DirectiveConfig is one parsed directive. Sources hold the unquoted tokens
// (hosts, schemes, *), Nonces the nonce values and Hashes the full hash
// expressions without quotes.
type DirectiveConfig struct {
	Directive     Directive `json:"directive" yaml:"directive"`
	Sources       []string  `json:"sources" yaml:"sources"`
	Keywords      []Keyword `json:"keywords" yaml:"keywords"`
	Nonces        []string  `json:"nonces,omitempty" yaml:"nonces,omitempty"`
	Hashes        []string  `json:"hashes,omitempty" yaml:"hashes,omitempty"`
	IsRestrictive bool      `json:"is_restrictive" yaml:"is_restrictive"`
	BypassRisk    string    `json:"bypass_risk" yaml:"bypass_risk"`
}

func (d *DirectiveConfig) HasKeyword(k Keyword) bool {
	for _, kw := range d.Keywords {
		if kw == k {
			return true
		}
	}
	return false
}

func (d *DirectiveConfig) HasSource(s string) bool {
	for _, src := range d.Sources {
		if strings.EqualFold(src, s) {
			return true
		}
	}
	return false
}

// SourceContains reports whether any source contains sub.
func (d *DirectiveConfig) SourceContains(sub string) bool {
	for _, src := range d.Sources {
		if strings.Contains(strings.ToLower(src), sub) {
			return true
		}
	}
	return false
}

type Policy struct {
	Directives map[Directive]*DirectiveConfig `json:"directives" yaml:"directives"`
	ReportOnly bool                           `json:"report_only" yaml:"report_only"`
	Raw        string                         `json:"raw" yaml:"raw"`
}

// ParsePolicy splits the header on ';' and whitespace. Unknown directives are
// skipped and only the first occurrence of a directive counts.
func ParsePolicy(header string) *Policy {
	policy := &Policy{
		Directives: make(map[Directive]*DirectiveConfig),
		Raw:        header,
	}

	for _, part := range strings.Split(header, ";") {
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			continue
		}
		name := Directive(strings.ToLower(tokens[0]))
		if _, known := directiveOrder[name]; !known {
			continue
		}
		if _, seen := policy.Directives[name]; seen {
			continue
		}
		policy.Directives[name] = parseDirective(name, tokens[1:])
	}
	return policy
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

func parseDirective(name Directive, tokens []string) *DirectiveConfig {
	cfg := &DirectiveConfig{Directive: name, Sources: []string{}, Keywords: []Keyword{}}
	for _, token := range tokens {
		if len(token) < 2 || !strings.HasPrefix(token, "'") || !strings.HasSuffix(token, "'") {
			cfg.Sources = appendUnique(cfg.Sources, token)
			continue
		}
		lower := strings.ToLower(token)
		if _, ok := keywords[Keyword(lower)]; ok {
			if !cfg.HasKeyword(Keyword(lower)) {
				cfg.Keywords = append(cfg.Keywords, Keyword(lower))
			}
			continue
		}
		switch {
		case strings.HasPrefix(lower, "'nonce-"):
			cfg.Nonces = appendUnique(cfg.Nonces, token[len("'nonce-"):len(token)-1])
		case strings.HasPrefix(lower, "'sha"):
			cfg.Hashes = appendUnique(cfg.Hashes, token[1:len(token)-1])
		}
	}
	cfg.IsRestrictive = isRestrictive(cfg)
	cfg.BypassRisk = directiveRisk(cfg)
	return cfg
}

func isRestrictive(d *DirectiveConfig) bool {
	if d.HasKeyword(KeywordUnsafeInline) || d.HasKeyword(KeywordUnsafeEval) || d.HasKeyword(KeywordUnsafeHashes) {
		return false
	}
	if d.HasSource("*") {
		return false
	}
	for _, src := range d.Sources {
		if strings.HasPrefix(strings.ToLower(src), "data:") {
			return false
		}
	}
	if d.HasKeyword(KeywordNone) {
		return true
	}
	if d.HasKeyword(KeywordSelf) && len(d.Sources) <= 2 {
		return true
	}
	return len(d.Sources) <= 3
}

// commonWhitelistDomains host content an attacker can often control or JSONP endpoints.
var commonWhitelistDomains = []string{
	"googleapis.com", "google.com", "gstatic.com", "ajax.googleapis.com",
	"cdnjs.cloudflare.com", "code.jquery.com", "maxcdn.bootstrapcdn.com", "unpkg.com",
	"cdn.jsdelivr.net", "raw.githubusercontent.com", "github.io", "netlify.app",
	"herokuapp.com", "firebaseapp.com",
}

func directiveRisk(d *DirectiveConfig) string {
	switch {
	case d.HasKeyword(KeywordUnsafeInline) || d.HasKeyword(KeywordUnsafeEval):
		return RiskCritical
	case d.HasSource("*") || len(d.Sources) > 5:
		return RiskHigh
	}
	for _, src := range d.Sources {
		if strings.HasPrefix(strings.ToLower(src), "data:") {
			return RiskMedium
		}
	}
	for _, domain := range commonWhitelistDomains {
		if d.SourceContains(domain) {
			return RiskMedium
		}
	}
	return RiskLow
}

// ParsePolicyFromHeaders prefers the enforced header over the report-only one.
// It returns nil when neither is present.
func ParsePolicyFromHeaders(headers http.Header) *Policy {
	if v := headers.Get("Content-Security-Policy"); v != "" {
		return ParsePolicy(v)
	}
	if v := headers.Get("Content-Security-Policy-Report-Only"); v != "" {
		policy := ParsePolicy(v)
		policy.ReportOnly = true
		return policy
	}
	return nil
}

func (p *Policy) Has(d Directive) bool {
	_, ok := p.Directives[d]
	return ok
}

// Sorted returns the parsed directives in canonical order.
func (p *Policy) Sorted() []*DirectiveConfig {
	out := make([]*DirectiveConfig, 0, len(p.Directives))
	for _, d := range Directives {
		if cfg, ok := p.Directives[d]; ok {
			out = append(out, cfg)
		}
	}
	return out
}

var fallbacks = map[Directive]Directive{
	DirectiveScriptSrcElem: DirectiveScriptSrc,
	DirectiveScriptSrcAttr: DirectiveScriptSrc,
	DirectiveStyleSrcElem:  DirectiveStyleSrc,
	DirectiveStyleSrcAttr:  DirectiveStyleSrc,
	DirectiveWorkerSrc:     DirectiveChildSrc,
	DirectiveFrameSrc:      DirectiveChildSrc,
	DirectiveChildSrc:      DirectiveDefaultSrc,
	DirectiveScriptSrc:     DirectiveDefaultSrc,
	DirectiveStyleSrc:      DirectiveDefaultSrc,
	DirectiveImgSrc:        DirectiveDefaultSrc,
	DirectiveFontSrc:       DirectiveDefaultSrc,
	DirectiveConnectSrc:    DirectiveDefaultSrc,
	DirectiveMediaSrc:      DirectiveDefaultSrc,
	DirectiveObjectSrc:     DirectiveDefaultSrc,
	DirectiveManifestSrc:   DirectiveDefaultSrc,
	DirectivePrefetchSrc:   DirectiveDefaultSrc,
}

// EffectiveDirective follows the fallback chain (frame-src to child-src to
// default-src and so on). It returns nil when nothing in the chain is set.
func (p *Policy) EffectiveDirective(d Directive) *DirectiveConfig {
	for {
		if cfg, ok := p.Directives[d]; ok {
			return cfg
		}
		next, ok := fallbacks[d]
		if !ok {
			return nil
		}
		d = next
	}
}

var bypassableCDNs = []string{
	"*.googleapis.com", "*.gstatic.com", "*.google.com", "*.cloudflare.com",
	"cdnjs.cloudflare.com", "cdn.jsdelivr.net", "*.jsdelivr.net", "unpkg.com",
	"*.unpkg.com", "ajax.googleapis.com", "*.akamaihd.net", "*.yandex.net",
	"*.yandex.ru", "*.baidu.com",
}

func extractHost(source string) string {
	s := strings.TrimPrefix(strings.TrimPrefix(source, "https://"), "http://")
	if idx := strings.Index(s, "/"); idx != -1 {
		s = s[:idx]
	}
	if idx := strings.Index(s, ":"); idx != -1 {
		s = s[:idx]
	}
	return strings.ToLower(s)
}

func isKnownBypassableCDN(source string) bool {
	host := extractHost(source)
	for _, pattern := range bypassableCDNs {
		if strings.HasPrefix(pattern, "*.") {
			if strings.HasSuffix(host, pattern[1:]) || host == pattern[2:] {
				return true
			}
		} else if host == pattern {
			return true
		}
	}
	return false
}

// Weakness is a configuration problem found without generating payloads.
type Weakness struct {
	Directive   Directive `json:"directive" yaml:"directive"`
	Issue       string    `json:"issue" yaml:"issue"`
	Severity    string    `json:"severity" yaml:"severity"`
	Exploitable bool      `json:"exploitable" yaml:"exploitable"`
	Details     string    `json:"details" yaml:"details"`
}

var noncePattern = regexp.MustCompile(`^[A-Za-z0-9+/=_-]+$`)

func (p *Policy) Weaknesses() []Weakness {
	var out []Weakness
	script := p.EffectiveDirective(DirectiveScriptSrc)

	if script == nil {
		out = append(out, Weakness{DirectiveScriptSrc, "missing_script_src", "high", true,
			"No script-src or default-src directive. Inline scripts and any source allowed."})
	} else {
		guarded := len(script.Nonces) > 0 || len(script.Hashes) > 0 || script.HasKeyword(KeywordStrictDynamic)
		if script.HasKeyword(KeywordUnsafeInline) && !guarded {
			out = append(out, Weakness{DirectiveScriptSrc, "unsafe_inline", "high", true,
				"unsafe-inline allows execution of inline scripts without nonce/hash protection."})
		}
		if script.HasKeyword(KeywordUnsafeEval) {
			out = append(out, Weakness{DirectiveScriptSrc, "unsafe_eval", "medium", true,
				"unsafe-eval allows eval(), Function(), setTimeout/setInterval with strings."})
		}
		if script.HasSource("data:") {
			out = append(out, Weakness{DirectiveScriptSrc, "data_uri_script", "high", true,
				"data: URI in script-src allows data:text/html payloads."})
		}
		for _, nonce := range script.Nonces {
			if len(nonce) < 16 || !noncePattern.MatchString(nonce) {
				out = append(out, Weakness{DirectiveScriptSrc, "weak_nonce", "medium", false,
					"Nonce " + nonce + " is short or malformed and may be guessable."})
			}
		}
		if script.HasSource("*") {
			out = append(out, Weakness{DirectiveScriptSrc, "wildcard_script_src", "high", true,
				"Wildcard (*) in script-src allows scripts from any source."})
		} else {
			for _, src := range script.Sources {
				if isKnownBypassableCDN(src) {
					out = append(out, Weakness{DirectiveScriptSrc, "bypassable_cdn", "medium", true,
						"Host " + src + " is known to host JSONP endpoints or user content."})
				}
			}
		}
	}

	if !p.Has(DirectiveBaseURI) {
		out = append(out, Weakness{DirectiveBaseURI, "missing_base_uri", "medium", true,
			"Missing base-uri allows <base> tag injection for relative URL hijacking."})
	}
	if p.EffectiveDirective(DirectiveObjectSrc) == nil {
		out = append(out, Weakness{DirectiveObjectSrc, "missing_object_src", "medium", true,
			"Missing object-src allows plugin content (Flash, Java applets)."})
	}
	if p.ReportOnly {
		out = append(out, Weakness{"", "report_only", "info", true,
			"Policy is report-only and does not block violations."})
	}
	return out
}

// BlocksInlineScripts reports whether inline <script> blocks are refused.
func (p *Policy) BlocksInlineScripts() bool {
	script := p.EffectiveDirective(DirectiveScriptSrc)
	if script == nil {
		return false
	}
	if script.HasKeyword(KeywordUnsafeInline) {
		return script.HasKeyword(KeywordStrictDynamic) || len(script.Nonces) > 0 || len(script.Hashes) > 0
	}
	return true
}

func (p *Policy) BlocksEval() bool {
	script := p.EffectiveDirective(DirectiveScriptSrc)
	return script != nil && !script.HasKeyword(KeywordUnsafeEval)
}
