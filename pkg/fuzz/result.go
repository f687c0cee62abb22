package fuzz

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pyneda/xsslab/lib"
)

// ResponseIndicators are the observations taken from one response.
type ResponseIndicators struct {
	PayloadReflected bool    `json:"payload_reflected" yaml:"payload_reflected"`
	Length           int     `json:"length" yaml:"length"`
	StatusCode       int     `json:"status_code" yaml:"status_code"`
	DiffRatio        float64 `json:"diff_ratio" yaml:"diff_ratio"`
}

// FuzzingResult is the outcome of testing one payload.
type FuzzingResult struct {
	Payload          string             `json:"payload" yaml:"payload"`
	Context          InjectionContext   `json:"context" yaml:"context"`
	Success          bool               `json:"success" yaml:"success"`
	Confidence       float64            `json:"confidence" yaml:"confidence"`
	MutationsApplied []string           `json:"mutations_applied" yaml:"mutations_applied"`
	EncodingUsed     string             `json:"encoding_used" yaml:"encoding_used"`
	Indicators       ResponseIndicators `json:"response_indicators" yaml:"response_indicators"`
	WAFDetected      bool               `json:"waf_detected" yaml:"waf_detected"`
	WAFType          string             `json:"waf_type,omitempty" yaml:"waf_type,omitempty"`
}

func (r FuzzingResult) String() string {
	return fmt.Sprintf("%s success=%t confidence=%.2f waf=%s", r.Payload, r.Success, r.Confidence, r.WAFType)
}

func (r FuzzingResult) Pretty() string {
	status := lib.Colorize("no", lib.Red)
	if r.Success {
		status = lib.Colorize("yes", lib.Green)
	}
	waf := "none"
	if r.WAFDetected {
		waf = lib.Colorize(r.WAFType, lib.Yellow)
	}
	return fmt.Sprintf(
		"%sPayload:%s %s\n%sContext:%s %s\n%sSuccess:%s %s\n%sConfidence:%s %s\n%sReflected:%s %t\n%sMutations:%s %s\n%sEncoding:%s %s\n%sWAF:%s %s\n",
		lib.Blue, lib.ResetColor, r.Payload,
		lib.Blue, lib.ResetColor, r.Context,
		lib.Blue, lib.ResetColor, status,
		lib.Blue, lib.ResetColor, lib.ColorScore(r.Confidence, "%.2f"),
		lib.Blue, lib.ResetColor, r.Indicators.PayloadReflected,
		lib.Blue, lib.ResetColor, strings.Join(r.MutationsApplied, ", "),
		lib.Blue, lib.ResetColor, r.EncodingUsed,
		lib.Blue, lib.ResetColor, waf,
	)
}

func (r FuzzingResult) TableHeaders() []string {
	return []string{"Payload", "Success", "Confidence", "Reflected", "Mutations", "WAF"}
}

func (r FuzzingResult) TableRow() []string {
	return []string{
		lib.Truncate(r.Payload, 50),
		fmt.Sprintf("%t", r.Success),
		fmt.Sprintf("%.2f", r.Confidence),
		fmt.Sprintf("%t", r.Indicators.PayloadReflected),
		strings.Join(r.MutationsApplied, ","),
		r.WAFType,
	}
}

var successIndicators = []string{
	"alert", "confirm", "prompt",
	"onerror", "onload", "onclick",
	"<script", "<img", "<svg",
}

var blockIndicators = []string{
	"blocked", "forbidden", "403", "406",
	"security", "firewall", "denied",
}

type wafSignature struct {
	vendor     string
	signatures []string
}

// wafSignatures is checked in order; the first vendor with a match wins.
var wafSignatures = []wafSignature{
	{"ModSecurity", []string{"ModSecurity", "Mod_Security", "NOYB"}},
	{"AWS WAF", []string{"AWS WAF", "AWSalb"}},
	{"Cloudflare", []string{"cloudflare", "cf-ray"}},
	{"Akamai", []string{"akamai", "akamai-ghost"}},
	{"F5 BIG-IP", []string{"F5-", "BIG-IP", "x-waf-status"}},
	{"Barracuda", []string{"barracuda", "barra"}},
	{"Sucuri", []string{"sucuri", "x-sucuri-id"}},
	{"Wordfence", []string{"wordfence", "wf-"}},
}

var genericWAFIndicators = []string{
	"blocked", "forbidden", "not acceptable",
	"security policy", "access denied", "suspicious",
}

const GenericWAF = "Generic"

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// DetectWAF looks for vendor signatures, then generic block wording.
func DetectWAF(response string) (bool, string) {
	lower := strings.ToLower(response)
	for _, w := range wafSignatures {
		for _, sig := range w.signatures {
			if strings.Contains(lower, strings.ToLower(sig)) {
				return true, w.vendor
			}
		}
	}
	if containsAny(lower, genericWAFIndicators) {
		return true, GenericWAF
	}
	return false, ""
}

// looksBlocked is looser than DetectWAF and only lowers confidence.
func looksBlocked(response string) bool {
	return containsAny(strings.ToLower(response), blockIndicators)
}

func analyzeResult(c candidate, resp Response, fp ContextFingerprint) FuzzingResult {
	response := resp.Body
	status := resp.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	lower := strings.ToLower(response)
	reflected := strings.Contains(response, c.payload)
	success := containsAny(lower, successIndicators)

	confidence := 0.0
	if reflected {
		confidence += 0.5
	}
	if success {
		confidence += 0.3
	}
	if !looksBlocked(response) {
		confidence += 0.2
	}

	waf, vendor := DetectWAF(response)
	mutations := c.mutations
	if mutations == nil {
		mutations = []string{}
	}
	return FuzzingResult{
		Payload:          c.payload,
		Context:          fp.Context,
		Success:          success,
		Confidence:       min(1.0, confidence),
		MutationsApplied: mutations,
		EncodingUsed:     c.encoding,
		Indicators: ResponseIndicators{
			PayloadReflected: reflected,
			Length:           len(response),
			StatusCode:       status,
		},
		WAFDetected: waf,
		WAFType:     vendor,
	}
}
