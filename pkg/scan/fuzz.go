package scan

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pyneda/xsslab/pkg/fuzz"
)

// FuzzParameter reflects a marker through param to fingerprint the injection
// context, then fuzzes that context with live requests.
func (s *Scanner) FuzzParameter(ctx context.Context, target, param string, fz *fuzz.ContextAwareFuzzer, maxAttempts int, marker string) (fuzz.ContextFingerprint, []fuzz.FuzzingResult, error) {
	if marker == "" {
		marker = fuzz.DefaultMarker
	}
	send := func(payload string) (fuzz.Response, error) {
		u, err := injectURL(target, param, payload)
		if err != nil {
			return fuzz.Response{}, err
		}
		resp, err := s.fetch(ctx, u)
		if err != nil {
			return fuzz.Response{}, err
		}
		return fuzz.Response{Body: resp.body, StatusCode: resp.status}, nil
	}

	base, err := send(marker)
	if err != nil {
		return fuzz.ContextFingerprint{}, nil, fmt.Errorf("baseline request: %w", err)
	}
	baseline := base.Body
	fp := fz.DetectContext(baseline, marker)
	s.logger.Info().Str("url", target).Str("param", param).Str("context", string(fp.Context)).Msg("Detected injection context")

	results := fz.FuzzResponses(ctx, send, fp, maxAttempts, baseline)
	for _, r := range results {
		s.record(TestResult{
			URL:              target,
			Parameter:        param,
			Payload:          r.Payload,
			Method:           http.MethodGet,
			Success:          r.Success,
			Confidence:       r.Confidence,
			ResponseCode:     r.Indicators.StatusCode,
			Context:          string(fp.Context),
			BypassTechniques: r.MutationsApplied,
			Evidence:         fuzzEvidence(r),
			Timestamp:        time.Now(),
		})
	}
	return fp, results, nil
}

func fuzzEvidence(r fuzz.FuzzingResult) string {
	if r.WAFDetected {
		return fmt.Sprintf("Blocked by %s", r.WAFType)
	}
	if r.Indicators.PayloadReflected {
		return fmt.Sprintf("Payload reflected, diff ratio %.2f", r.Indicators.DiffRatio)
	}
	return ""
}
