// Package scan tests URL parameters for reflected XSS by sending corpus
// payloads and looking for their reflection in the response.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/pyneda/xsslab/pkg/analysis"
	"github.com/pyneda/xsslab/pkg/encoding"
	"github.com/pyneda/xsslab/pkg/payloads"
)

// ErrNoParameters is returned when neither the caller nor discovery provide a parameter.
var ErrNoParameters = errors.New("no parameters to test")

const maxBodySize = 10 << 20

// Scanner sends payloads to targets and records every attempt. It is safe
// for concurrent use.
type Scanner struct {
	id       string
	cfg      Config
	client   *http.Client
	limiter  *rate.Limiter
	analyzer *analysis.PayloadAnalyzer
	library  *payloads.Library
	logger   zerolog.Logger

	mu       sync.Mutex
	results  []TestResult
	requests int
	params   map[string]struct{}
	start    time.Time
	end      time.Time
}

type Option func(*Scanner)

// WithHTTPClient replaces the client built from the config.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scanner) { s.client = c }
}

func WithLibrary(l *payloads.Library) Option {
	return func(s *Scanner) { s.library = l }
}

func WithAnalyzer(a *analysis.PayloadAnalyzer) Option {
	return func(s *Scanner) { s.analyzer = a }
}

func NewScanner(cfg Config, opts ...Option) (*Scanner, error) {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	s := &Scanner{
		id:      uuid.New().String(),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		params:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		client, err := newHTTPClient(cfg)
		if err != nil {
			return nil, err
		}
		s.client = client
	}
	if s.library == nil {
		s.library = payloads.NewLibrary()
	}
	if s.analyzer == nil {
		s.analyzer = analysis.NewPayloadAnalyzer()
	}
	s.logger = log.With().Str("scan", s.id).Logger()
	return s, nil
}

func (s *Scanner) ID() string { return s.id }

type response struct {
	status  int
	body    string
	headers http.Header
	elapsed time.Duration
}

func (s *Scanner) fetch(ctx context.Context, target string) (response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return response{}, err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Cache-Control", "no-cache")

	s.mu.Lock()
	s.requests++
	s.mu.Unlock()

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return response{elapsed: time.Since(start)}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return response{status: resp.StatusCode, elapsed: time.Since(start)}, err
	}
	return response{
		status:  resp.StatusCode,
		body:    string(body),
		headers: resp.Header,
		elapsed: time.Since(start),
	}, nil
}

// injectURL appends param=payload to the target's existing query.
func injectURL(target, param, payload string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	pair := url.QueryEscape(param) + "=" + encoding.QuoteSafe(payload, "/")
	if u.RawQuery == "" {
		u.RawQuery = pair
	} else {
		u.RawQuery += "&" + pair
	}
	return u.String(), nil
}

// TestPayload sends one payload in param and scores the reflection.
func (s *Scanner) TestPayload(ctx context.Context, target, param string, p payloads.Payload) TestResult {
	result := TestResult{
		URL:              target,
		Parameter:        param,
		Payload:          p.Payload,
		Method:           http.MethodGet,
		BypassTechniques: p.BypassTechniques,
		Timestamp:        time.Now(),
	}

	testURL, err := injectURL(target, param, p.Payload)
	if err == nil {
		var resp response
		resp, err = s.fetch(ctx, testURL)
		result.ResponseCode = resp.status
		result.ResponseTime = resp.elapsed
		if err == nil {
			r := analyzeResponse(p.Payload, resp.body)
			result.Success = r.success
			result.Confidence = r.confidence
			result.Evidence = r.evidence
			result.Context = r.context
			if r.success {
				a := s.analyzer.Analyze(p.Payload)
				result.Analysis = &a
			}
		}
	}
	if err != nil {
		result.Context = ContextError
		result.Error = err.Error()
		result.ErrorCategory = CategorizeRequestError(err)
		s.logger.Debug().Err(err).Str("param", param).Str("category", result.ErrorCategory).Msg("Request failed")
	}

	s.record(result)
	return result
}

func (s *Scanner) record(r TestResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.start.IsZero() {
		s.start = r.Timestamp
	}
	s.end = time.Now()
	s.results = append(s.results, r)
	s.params[r.URL+"\x00"+r.Parameter] = struct{}{}
}

func (s *Scanner) selectPayloads(category payloads.Category, n int) []payloads.Payload {
	var out []payloads.Payload
	for _, p := range s.library.ByCategory(category) {
		if len(out) >= n {
			break
		}
		if s.cfg.MaxPayloadLength > 0 && len(p.Payload) > s.cfg.MaxPayloadLength {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ScanURL tests each parameter with basic payloads and, after the first
// reflection, with bypass payloads. A nil params triggers discovery.
func (s *Scanner) ScanURL(ctx context.Context, target string, params []string) ([]TestResult, error) {
	if params == nil {
		params = s.DiscoverParameters(ctx, target)
	}
	if len(params) == 0 {
		return nil, ErrNoParameters
	}
	s.logger.Info().Str("url", target).Strs("params", params).Msg("Scanning target")

	basic := s.selectPayloads(payloads.CategoryBasic, s.cfg.BasicPayloads)
	bypass := s.selectPayloads(payloads.CategoryBypass, s.cfg.BypassPayloads)

	var results []TestResult
	for _, param := range params {
		for _, p := range basic {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			r := s.TestPayload(ctx, target, param, p)
			results = append(results, r)
			if !r.Success {
				continue
			}
			s.logger.Warn().Str("url", target).Str("param", param).Str("payload", p.Payload).
				Float64("confidence", r.Confidence).Str("context", r.Context).Msg("Reflection found")
			for _, bp := range bypass {
				if err := ctx.Err(); err != nil {
					return results, err
				}
				results = append(results, s.TestPayload(ctx, target, param, bp))
			}
			break
		}
	}
	return results, nil
}

// ScanURLs scans every target with discovery, at most MaxConcurrent at a time.
// Targets that fail are logged and map to whatever was collected.
func (s *Scanner) ScanURLs(ctx context.Context, targets []string) map[string][]TestResult {
	var mu sync.Mutex
	out := make(map[string][]TestResult, len(targets))
	p := pool.New().WithMaxGoroutines(s.cfg.MaxConcurrent)
	for _, target := range targets {
		target := target
		p.Go(func() {
			results, err := s.ScanURL(ctx, target, nil)
			if err != nil {
				s.logger.Error().Err(err).Str("url", target).Msg("Scan failed")
			}
			mu.Lock()
			out[target] = results
			mu.Unlock()
		})
	}
	p.Wait()
	return out
}

// Results returns a copy of every recorded attempt.
func (s *Scanner) Results() []TestResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TestResult(nil), s.results...)
}

// Vulnerabilities returns the successful attempts.
func (s *Scanner) Vulnerabilities() []TestResult {
	var out []TestResult
	for _, r := range s.Results() {
		if r.Success {
			out = append(out, r)
		}
	}
	return out
}

func (s *Scanner) Statistics() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalTests:       len(s.results),
		TotalRequests:    s.requests,
		ParametersTested: len(s.params),
	}
	contexts := make(map[string]struct{})
	vulnerable := make(map[string]struct{})
	techniques := make(map[string]struct{})
	var confidence float64
	for _, r := range s.results {
		if !r.Success {
			continue
		}
		st.SuccessfulInjections++
		confidence += r.Confidence
		contexts[r.Context] = struct{}{}
		vulnerable[r.Parameter] = struct{}{}
		for _, t := range r.BypassTechniques {
			techniques[t] = struct{}{}
		}
	}
	if st.TotalTests > 0 {
		st.SuccessRate = float64(st.SuccessfulInjections) / float64(st.TotalTests)
	}
	if st.SuccessfulInjections > 0 {
		st.AverageConfidence = confidence / float64(st.SuccessfulInjections)
	}
	st.ContextsFound = sortedKeys(contexts)
	st.ParametersVulnerable = sortedKeys(vulnerable)
	st.BypassTechniquesSuccessful = sortedKeys(techniques)
	if !s.start.IsZero() {
		st.Duration = s.end.Sub(s.start)
		if secs := st.Duration.Seconds(); secs > 0 {
			st.RequestsPerSecond = float64(s.requests) / secs
		}
	}
	return st
}

func (st Stats) String() string {
	return fmt.Sprintf("tests=%d successful=%d rate=%.2f avg_confidence=%.2f duration=%s",
		st.TotalTests, st.SuccessfulInjections, st.SuccessRate, st.AverageConfidence, st.Duration.Round(time.Millisecond))
}
