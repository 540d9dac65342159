// Package retry provides the retry-cycle loop for resilient LLM calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"researchagent/pkg/agent/llmerrors"
	"researchagent/pkg/agent/middleware/resilience/circuit"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxRetries    int           `json:"max_retries" yaml:"max_retries"`       // Number of cycles; 0 runs none
	Delay         time.Duration `json:"delay" yaml:"delay"`                   // Wait after the first failed cycle
	MaxDelay      time.Duration `json:"max_delay" yaml:"max_delay"`           // Cap on any single wait; 0 means uncapped
	BackoffFactor float64       `json:"backoff_factor" yaml:"backoff_factor"` // Multiplier per further failed cycle
	Jitter        bool          `json:"jitter" yaml:"jitter"`                 // +/-10% random jitter on each wait
}

// DefaultDelay is the fixed pause between failed cycles.
const DefaultDelay = 1500 * time.Millisecond

// DefaultConfig waits a fixed 1.5s between two cycles.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxRetries:    2,
	Delay:         DefaultDelay,
	MaxDelay:      DefaultDelay,
	BackoffFactor: 1.0,
	Jitter:        false,
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// RetryAll retries every failure except cancellation. Any error from the
// remote call counts as a transient call failure. A per-attempt
// DeadlineExceeded is retryable; the loop checks the caller's context itself.
func RetryAll(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// ShouldRetry is the selective classifier: it retries only errors that look
// transient and gives up immediately on auth or malformed-request failures.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// Never retry cancellation. DeadlineExceeded from a per-attempt timeout is retryable.
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// Never retry circuit breaker errors - let the circuit breaker handle recovery
	var circuitErr *circuit.Error
	if errors.As(err, &circuitErr) {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())

	// Don't retry unclassified auth or malformed-request failures
	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	// Everything else (network, 5xx, rate limits, EOF) is retried
	return true
}

//nolint:gochecknoglobals // Static pattern table
var nonRetryablePatterns = []string{
	"400", "401", "403", "404",
	"unauthorized", "forbidden", "invalid api key", "bad request",
}

// Policy encapsulates retry configuration and logic.
//
//nolint:govet // Simple struct, logical grouping preferred
type Policy struct {
	Config     Config
	Classifier Classifier
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
// A nil classifier uses RetryAll.
func NewPolicy(config Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = RetryAll
	}
	return &Policy{
		Config:     config,
		Classifier: classifier,
	}
}

// CalculateDelay computes the wait after the given number of failed cycles.
// With the default config every wait is exactly Delay.
func (p *Policy) CalculateDelay(failedCycles int) time.Duration {
	if failedCycles < 1 || p.Config.Delay <= 0 {
		return 0
	}

	factor := p.Config.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay := time.Duration(float64(p.Config.Delay) * math.Pow(factor, float64(failedCycles-1)))

	if p.Config.MaxDelay > 0 && delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		jitter := time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
		delay += jitter
		if delay < 0 {
			delay = p.Config.Delay
		}
	}

	return delay
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
