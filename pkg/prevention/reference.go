package prevention

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/pyneda/xsslab/pkg/encoding"
)

var contextEncoders = map[string]string{
	ContextHTMLContent:      encoding.HTMLEntities,
	ContextHTMLAttribute:    encoding.HTMLEntities,
	ContextURLParameter:     encoding.URL,
	ContextJavaScriptString: encoding.HexEscape,
}

// ReferenceEncoder picks a registered encoder for each injection context.
// It passes the whole encoding suite.
func ReferenceEncoder(input, context string) (string, error) {
	name, ok := contextEncoders[context]
	if !ok {
		return "", fmt.Errorf("no encoder for context %q", context)
	}
	enc, err := encoding.Lookup(name)
	if err != nil {
		return "", err
	}
	return enc.Encode(input)
}

// EncoderSanitizer uses an encoder spec such as "html_entities" or
// "url+html_entities" as the sanitizer under test.
func EncoderSanitizer(spec string) (Sanitizer, error) {
	enc, err := encoding.Lookup(spec)
	if err != nil {
		return nil, err
	}
	return enc.Encode, nil
}

// RuleWAF blocks any payload matching one of the case-insensitive rules.
func RuleWAF(rules ...string) (WAF, error) {
	if len(rules) == 0 {
		return nil, errors.New("at least one WAF rule is required")
	}
	compiled := make([]*regexp.Regexp, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile("(?i)" + r)
		if err != nil {
			return nil, fmt.Errorf("invalid WAF rule %q: %w", r, err)
		}
		compiled = append(compiled, re)
	}
	return func(payload string) (bool, error) {
		for _, re := range compiled {
			if re.MatchString(payload) {
				return true, nil
			}
		}
		return false, nil
	}, nil
}

// Options selects the suites Run executes. Empty fields skip their suite.
type Options struct {
	Sanitizer string   `json:"sanitizer" yaml:"sanitizer"`
	Encoding  bool     `json:"encoding" yaml:"encoding"`
	CSP       string   `json:"csp" yaml:"csp"`
	WAFRules  []string `json:"waf_rules" yaml:"waf_rules"`
}

var ErrNothingSelected = errors.New("select at least one of sanitizer, encoding, csp or waf rules")

// Run executes the selected suites and assesses the combined results.
func (v *Validator) Run(opts Options) (Assessment, error) {
	var results []TestResult
	if opts.Sanitizer != "" {
		s, err := EncoderSanitizer(opts.Sanitizer)
		if err != nil {
			return Assessment{}, err
		}
		results = append(results, v.TestSanitization(s)...)
	}
	if opts.Encoding {
		results = append(results, v.TestEncoding(ReferenceEncoder)...)
	}
	if opts.CSP != "" {
		results = append(results, v.TestCSP(opts.CSP)...)
	}
	if len(opts.WAFRules) > 0 {
		w, err := RuleWAF(opts.WAFRules...)
		if err != nil {
			return Assessment{}, err
		}
		results = append(results, v.TestWAF(w)...)
	}
	if len(results) == 0 {
		return Assessment{}, ErrNothingSelected
	}
	return v.Assess(results), nil
}
