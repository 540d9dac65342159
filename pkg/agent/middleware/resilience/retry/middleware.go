package retry

import (
	"context"
	"fmt"
	"time"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/agent/llmerrors"
	"researchagent/pkg/logx"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customizes the retry middleware.
type Option func(*options)

type options struct {
	logger   *logx.Logger
	onFailed func(cycle int, err error)
	sleep    Sleeper
	agent    string
	provider string
}

// WithAgent names the agent and provider used in logs and the terminal error.
func WithAgent(agent, provider string) Option {
	return func(o *options) {
		o.agent = agent
		o.provider = provider
	}
}

// WithLogger sets the logger for per-cycle failure lines.
func WithLogger(logger *logx.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithFailureHook registers fn to be called after every failed cycle.
func WithFailureHook(fn func(cycle int, err error)) Option {
	return func(o *options) { o.onFailed = fn }
}

// WithSleeper replaces the context-aware timer used between cycles.
func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// Middleware returns a middleware that repeats the wrapped call up to
// policy.Config.MaxRetries times. Every failed cycle is logged with its count,
// the configured delay is applied between failed cycles, and exhaustion
// returns an llmerrors retries_exhausted error naming the agent.
func Middleware(policy *Policy, opts ...Option) llm.Middleware {
	o := options{
		agent:    "agent",
		provider: "provider",
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logx.NewLogger(o.agent)
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				maxRetries := policy.Config.MaxRetries
				var lastErr error

				for cycle := 1; cycle <= maxRetries; cycle++ {
					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if ctxErr := ctx.Err(); ctxErr != nil {
						return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctxErr)
					}

					o.logger.Error("Error during %s call: %v. Retry %d/%d", o.provider, err, cycle, maxRetries)
					if o.onFailed != nil {
						o.onFailed(cycle, err)
					}

					if !policy.ShouldRetry(err) {
						return llm.CompletionResponse{}, err
					}

					if cycle < maxRetries {
						if sleepErr := o.sleep(ctx, policy.CalculateDelay(cycle)); sleepErr != nil {
							return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", sleepErr)
						}
					}
				}

				o.logger.Error("Failed to get response from %s after %d retries", o.provider, maxRetries)
				return llm.CompletionResponse{}, llmerrors.NewRetriesExhaustedError(o.agent, o.provider, maxRetries, lastErr)
			},
			next.GetModelName,
		)
	}
}
