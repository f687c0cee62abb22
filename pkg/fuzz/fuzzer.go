package fuzz

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMarker        = "CANARY"
	DefaultWindowSize    = 100
	DefaultMaxAttempts   = 100
	DefaultMutationLimit = 5
	adaptInterval        = 10
	lowSuccessRate       = 0.1
)

// TestFunc sends a payload to the target and returns the response text.
type TestFunc func(payload string) (string, error)

// Response is what a ResponseFunc observed for one payload. A zero
// StatusCode is read as 200.
type Response struct {
	Body       string
	StatusCode int
}

// ResponseFunc is a TestFunc that also reports the status code.
type ResponseFunc func(payload string) (Response, error)

func (t TestFunc) withStatus() ResponseFunc {
	return func(payload string) (Response, error) {
		body, err := t(payload)
		return Response{Body: body, StatusCode: http.StatusOK}, err
	}
}

// ContextAwareFuzzer adapts payloads to a detected context and learns which
// ones work. One instance may be shared between goroutines.
type ContextAwareFuzzer struct {
	sessionID     string
	windowSize    int
	mutationLimit int
	selection     Selection

	rngMu sync.Mutex
	rng   *rand.Rand

	mu         sync.Mutex
	successful map[InjectionContext][]string
	blocked    map[string]struct{}
}

type Option func(*ContextAwareFuzzer)

// WithSeed makes mutation randomness reproducible. Zero keeps the time based seed.
func WithSeed(seed int64) Option {
	return func(f *ContextAwareFuzzer) {
		if seed != 0 {
			f.rng = rand.New(rand.NewSource(seed))
		}
	}
}

func WithWindowSize(n int) Option {
	return func(f *ContextAwareFuzzer) {
		if n > 0 {
			f.windowSize = n
		}
	}
}

func WithSelection(s Selection) Option {
	return func(f *ContextAwareFuzzer) { f.selection = s }
}

// WithMutationLimit sets how many variants per base payload are mutated.
func WithMutationLimit(n int) Option {
	return func(f *ContextAwareFuzzer) {
		if n >= 0 {
			f.mutationLimit = n
		}
	}
}

func NewContextAwareFuzzer(opts ...Option) *ContextAwareFuzzer {
	f := &ContextAwareFuzzer{
		sessionID:     uuid.New().String(),
		windowSize:    DefaultWindowSize,
		mutationLimit: DefaultMutationLimit,
		selection:     SelectFirst,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		successful:    make(map[InjectionContext][]string),
		blocked:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	log.Debug().Str("session", f.sessionID).Str("selection", string(f.selection)).Msg("Fuzzer created")
	return f
}

func (f *ContextAwareFuzzer) SessionID() string { return f.sessionID }

// callTest shields the fuzzing loop from errors and panics raised by test.
func callTest(test ResponseFunc, payload string) (response Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("test function panicked: %v", r)
		}
	}()
	return test(payload)
}

// FuzzContext tests up to maxAttempts generated payloads against test.
// Failing attempts are logged and skipped. Cancelling ctx stops the loop.
func (f *ContextAwareFuzzer) FuzzContext(ctx context.Context, test TestFunc, fp ContextFingerprint, maxAttempts int) []FuzzingResult {
	return f.fuzz(ctx, test.withStatus(), fp, maxAttempts, "")
}

// FuzzContextWithBaseline is FuzzContext plus a diff ratio of every response
// against baseline, the response to the bare marker.
func (f *ContextAwareFuzzer) FuzzContextWithBaseline(ctx context.Context, test TestFunc, fp ContextFingerprint, maxAttempts int, baseline string) []FuzzingResult {
	return f.fuzz(ctx, test.withStatus(), fp, maxAttempts, baseline)
}

// FuzzResponses is FuzzContextWithBaseline for callers that see status codes.
// An empty baseline skips the diff.
func (f *ContextAwareFuzzer) FuzzResponses(ctx context.Context, test ResponseFunc, fp ContextFingerprint, maxAttempts int, baseline string) []FuzzingResult {
	return f.fuzz(ctx, test, fp, maxAttempts, baseline)
}

func (f *ContextAwareFuzzer) fuzz(ctx context.Context, test ResponseFunc, fp ContextFingerprint, maxAttempts int, baseline string) []FuzzingResult {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	logger := log.With().Str("session", f.sessionID).Str("context", string(fp.Context)).Logger()

	candidates := f.generate(fp, nil)
	if len(candidates) > maxAttempts {
		candidates = candidates[:maxAttempts]
	}
	logger.Info().Int("payloads", len(candidates)).Msg("Starting context fuzzing")

	var results []FuzzingResult
	for i, c := range candidates {
		select {
		case <-ctx.Done():
			logger.Warn().Int("attempt", i).Msg("Fuzzing cancelled")
			return results
		default:
		}

		response, err := callTest(test, c.payload)
		if err != nil {
			logger.Error().Err(err).Str("payload", c.payload).Msg("Error fuzzing with payload")
			continue
		}

		result := analyzeResult(c, response, fp)
		if baseline != "" {
			result.Indicators.DiffRatio = ResponseDiff(baseline, response.Body)
		}
		results = append(results, result)
		f.learn(result)

		if i%adaptInterval == 0 {
			f.evaluate(results, logger)
		}
	}
	logger.Info().Int("results", len(results)).Int("successful", countSuccessful(results)).Msg("Context fuzzing complete")
	return results
}

func countSuccessful(results []FuzzingResult) int {
	n := 0
	for _, r := range results {
		if r.Success {
			n++
		}
	}
	return n
}

func (f *ContextAwareFuzzer) learn(r FuzzingResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.Success {
		f.successful[r.Context] = append(f.successful[r.Context], r.Payload)
	}
	if r.WAFDetected {
		f.blocked[r.Payload] = struct{}{}
	}
}

func (f *ContextAwareFuzzer) evaluate(results []FuzzingResult, logger zerolog.Logger) {
	if len(results) == 0 {
		return
	}
	rate := float64(countSuccessful(results)) / float64(len(results))
	if rate < lowSuccessRate {
		logger.Info().Float64("success_rate", rate).Int("attempts", len(results)).Msg("Low success rate, adapting strategy")
	}
}

// SuccessfulPayloads returns the payloads that succeeded in ctx so far.
func (f *ContextAwareFuzzer) SuccessfulPayloads(ctx InjectionContext) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.successful[ctx]...)
}

// BlockedPatterns returns the payloads that triggered a WAF, sorted.
func (f *ContextAwareFuzzer) BlockedPatterns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.blocked))
	for p := range f.blocked {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Reset forgets everything learned.
func (f *ContextAwareFuzzer) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successful = make(map[InjectionContext][]string)
	f.blocked = make(map[string]struct{})
}

const cannedPolyglot = "javascript:/*-/*`/*\\`/*'/*\"/**/(/* */oNcliCk=alert() )//%0D%0A%0d%0a//</stYle/</titLe/</teXtarEa/</scRipt/--!>\\x3csVg/<sVg/oNloAd=alert()//"

// GeneratePolyglot returns a payload meant to fire in many contexts at once.
// The context list is not used to tailor it.
func (f *ContextAwareFuzzer) GeneratePolyglot(contexts []InjectionContext) string {
	log.Debug().Str("session", f.sessionID).Int("contexts", len(contexts)).Msg("Returning canned polyglot")
	return cannedPolyglot
}
