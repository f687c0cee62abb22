package fuzz

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"unicode"

	"github.com/pyneda/xsslab/pkg/encoding"
)

type mutator struct {
	name  string
	apply func(payload string, ctx InjectionContext, rng *rand.Rand) string
}

// mutators run in this order on every variant. A mutator returns its input
// unchanged when it does not apply to the context.
var mutators = []mutator{
	{"case", mutateCase},
	{"encoding", mutateEncoding},
	{"whitespace", mutateWhitespace},
	{"comments", mutateComments},
	{"unicode", mutateUnicode},
	{"double_encode", mutateDoubleEncode},
	{"concatenation", mutateConcatenation},
}

// MutatorNames lists the mutation operators in application order.
func MutatorNames() []string {
	names := make([]string, len(mutators))
	for i, m := range mutators {
		names[i] = m.name
	}
	return names
}

var tagNameRe = regexp.MustCompile(`<([a-zA-Z]+)`)

func mutateCase(payload string, ctx InjectionContext, rng *rand.Rand) string {
	if ctx.isJSString() || !strings.Contains(payload, "<") {
		return payload
	}
	return tagNameRe.ReplaceAllStringFunc(payload, func(m string) string {
		var sb strings.Builder
		sb.WriteByte('<')
		for _, r := range m[1:] {
			if rng.Intn(2) == 0 {
				sb.WriteRune(unicode.ToUpper(r))
			} else {
				sb.WriteRune(unicode.ToLower(r))
			}
		}
		return sb.String()
	})
}

func mutateEncoding(payload string, ctx InjectionContext, _ *rand.Rand) string {
	switch {
	case ctx == URLQuery:
		return encoding.Quote(payload)
	case ctx.isHTML():
		return encoding.MustEncode(encoding.DecimalEntities, payload)
	}
	return payload
}

var whitespaceChars = []string{" ", "\t", "\n", "\r", "\f", "\v"}

func mutateWhitespace(payload string, ctx InjectionContext, rng *rand.Rand) string {
	if ctx != HTMLTagContent {
		return payload
	}
	mutated := payload
	for _, i := range rng.Perm(len(whitespaceChars))[:2] {
		ws := whitespaceChars[i]
		mutated = strings.ReplaceAll(mutated, "<", ws+"<")
		mutated = strings.ReplaceAll(mutated, ">", ">"+ws)
	}
	return mutated
}

func mutateComments(payload string, ctx InjectionContext, _ *rand.Rand) string {
	switch {
	case ctx == HTMLTagContent && strings.Contains(payload, "<script>"):
		return strings.ReplaceAll(payload, "<script>", "<scr<!-- -->ipt>")
	case ctx.isJSString():
		return payload + "/*comment*/"
	}
	return payload
}

func mutateUnicode(payload string, ctx InjectionContext, rng *rand.Rand) string {
	if !ctx.isJSString() {
		return payload
	}
	var sb strings.Builder
	for _, r := range payload {
		if rng.Float64() > 0.7 {
			fmt.Fprintf(&sb, "\\u%04x", r)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func mutateDoubleEncode(payload string, ctx InjectionContext, _ *rand.Rand) string {
	switch {
	case ctx == URLQuery:
		return urlQuote(urlQuote(payload))
	case ctx.isHTML():
		return htmlEscape(htmlEscape(payload))
	}
	return payload
}

func mutateConcatenation(payload string, ctx InjectionContext, _ *rand.Rand) string {
	if !strings.Contains(payload, "alert") {
		return payload
	}
	switch ctx {
	case JSStringSingle:
		return strings.ReplaceAll(payload, "alert", "window['al'+'ert']")
	case JSStringDouble:
		return strings.ReplaceAll(payload, "alert", `window["al"+"ert"]`)
	case HTMLTagContent:
		return strings.ReplaceAll(payload, "alert", "al&#101;rt")
	}
	return payload
}

// mutate applies every operator to c and keeps the results that changed it.
func (f *ContextAwareFuzzer) mutate(c candidate, fp ContextFingerprint) []candidate {
	f.rngMu.Lock()
	defer f.rngMu.Unlock()

	var out []candidate
	for _, m := range mutators {
		mutated := m.apply(c.payload, fp.Context, f.rng)
		if mutated == "" || mutated == c.payload {
			continue
		}
		out = append(out, candidate{
			payload:   mutated,
			encoding:  c.encoding,
			mutations: append(append([]string(nil), c.mutations...), m.name),
		})
	}
	return out
}
