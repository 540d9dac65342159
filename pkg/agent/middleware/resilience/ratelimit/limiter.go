// Package ratelimit throttles provider calls with a token bucket and a
// concurrency cap.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/logx"
	"researchagent/pkg/utils"
)

const (
	// BufferFactor keeps the bucket below the provider's published limit to
	// absorb token estimation error.
	BufferFactor = 0.9

	refillInterval = 6 * time.Second
	pollInterval   = 100 * time.Millisecond
)

// Config defines rate limiting for one provider.
type Config struct {
	TokensPerMinute int `json:"tokens_per_minute" yaml:"tokens_per_minute"` // 0 disables the limiter
	MaxConcurrency  int `json:"max_concurrency" yaml:"max_concurrency"`     // 0 means unbounded
}

// Enabled reports whether a limiter should be installed.
func (c Config) Enabled() bool {
	return c.TokensPerMinute > 0
}

// TokenEstimator estimates the number of tokens a request will consume.
type TokenEstimator interface {
	EstimatePrompt(req llm.CompletionRequest) int
}

// DefaultTokenEstimator counts prompt tokens with tiktoken.
type DefaultTokenEstimator struct{}

// EstimatePrompt estimates prompt tokens for req.
//
//nolint:gocritic // CompletionRequest is passed by value across the llm package
func (DefaultTokenEstimator) EstimatePrompt(req llm.CompletionRequest) int {
	total := 0
	for i := range req.Messages {
		total += utils.CountTokensSimple(req.Messages[i].Text())
	}
	return total
}

// Stats is a snapshot of limiter state.
type Stats struct {
	AvailableTokens int   `json:"available_tokens"`
	MaxCapacity     int   `json:"max_capacity"`
	ActiveRequests  int   `json:"active_requests"`
	MaxConcurrency  int   `json:"max_concurrency"`
	TokenLimitHits  int64 `json:"token_limit_hits"`
	ConcurrencyHits int64 `json:"concurrency_hits"`
}

// Limiter implements a token bucket refilled every six seconds with a tenth
// of the per-minute budget, combined with a concurrency semaphore.
//
//nolint:govet // Logical field grouping preferred over memory alignment
type Limiter struct {
	mu     sync.Mutex
	now    func() time.Time
	logger *logx.Logger

	provider        string
	availableTokens int
	tokensPerRefill int
	maxCapacity     int
	lastRefill      time.Time

	activeRequests int
	maxConcurrency int

	tokenLimitHits  int64
	concurrencyHits int64
}

// New creates a limiter for provider starting with a full bucket.
func New(provider string, cfg Config, logger *logx.Logger) *Limiter {
	return newWithClock(provider, cfg, logger, time.Now)
}

func newWithClock(provider string, cfg Config, logger *logx.Logger, now func() time.Time) *Limiter {
	maxCapacity := int(float64(cfg.TokensPerMinute) * BufferFactor)
	tokensPerRefill := max(cfg.TokensPerMinute/10, 1)
	return &Limiter{
		now:             now,
		logger:          logger,
		provider:        provider,
		availableTokens: maxCapacity,
		tokensPerRefill: tokensPerRefill,
		maxCapacity:     maxCapacity,
		lastRefill:      now(),
		maxConcurrency:  cfg.MaxConcurrency,
	}
}

// Acquire takes tokens and a concurrency slot, waiting until both are
// available or ctx is done. The returned release function must be called
// once the provider call finishes; consumed tokens are not refunded.
func (l *Limiter) Acquire(ctx context.Context, tokens int) (func(), error) {
	if tokens > l.maxCapacity {
		return nil, fmt.Errorf("request needs %d tokens but %s bucket holds at most %d", tokens, l.provider, l.maxCapacity)
	}

	firstAttempt := true
	for {
		if release, ok := l.tryAcquire(tokens, firstAttempt); ok {
			return release, nil
		}
		firstAttempt = false

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("rate limit wait cancelled: %w", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

func (l *Limiter) tryAcquire(tokens int, firstAttempt bool) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	hasTokens := l.availableTokens >= tokens
	hasSlot := l.maxConcurrency <= 0 || l.activeRequests < l.maxConcurrency
	if hasTokens && hasSlot {
		l.availableTokens -= tokens
		l.activeRequests++
		var once sync.Once
		return func() { once.Do(l.release) }, true
	}

	// Record what blocked us once per Acquire to keep the log readable.
	if firstAttempt {
		if !hasTokens {
			l.tokenLimitHits++
			l.log("%s token limit hit, waiting for refill (need %d, have %d)", l.provider, tokens, l.availableTokens)
		}
		if !hasSlot {
			l.concurrencyHits++
			l.log("%s concurrency limit hit, waiting for slot (active: %d/%d)", l.provider, l.activeRequests, l.maxConcurrency)
		}
	}
	return nil, false
}

func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeRequests--
}

// refill credits every whole interval elapsed since the last refill. Called under lock.
func (l *Limiter) refill() {
	intervals := int(l.now().Sub(l.lastRefill) / refillInterval)
	if intervals <= 0 {
		return
	}
	l.lastRefill = l.lastRefill.Add(time.Duration(intervals) * refillInterval)
	l.availableTokens += intervals * l.tokensPerRefill
	if l.availableTokens > l.maxCapacity {
		l.availableTokens = l.maxCapacity
	}
}

func (l *Limiter) log(format string, args ...any) {
	if l.logger != nil {
		l.logger.Info("RATELIMIT: "+format, args...)
	}
}

// GetStats returns current limiter statistics.
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refill()
	return Stats{
		AvailableTokens: l.availableTokens,
		MaxCapacity:     l.maxCapacity,
		ActiveRequests:  l.activeRequests,
		MaxConcurrency:  l.maxConcurrency,
		TokenLimitHits:  l.tokenLimitHits,
		ConcurrencyHits: l.concurrencyHits,
	}
}
