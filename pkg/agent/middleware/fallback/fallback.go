// Package fallback switches to a secondary model inside one retry cycle.
package fallback

import (
	"context"
	"fmt"

	"researchagent/pkg/agent/llm"
	"researchagent/pkg/logx"
)

// Outcome describes one retry cycle: the primary call and, if it failed, the
// single inline fallback call.
//
//nolint:govet // Logical field grouping preferred over memory alignment
type Outcome struct {
	Response    llm.CompletionResponse
	Primary     string // Model tried first
	Fallback    string // Model tried second, empty if none was configured
	Answered    string // Model whose response is in Response, empty on failure
	PrimaryErr  error
	FallbackErr error
}

// Failed reports whether neither model answered.
func (o Outcome) Failed() bool {
	return o.Answered == ""
}

// UsedFallback reports whether the fallback model produced the response.
func (o Outcome) UsedFallback() bool {
	return o.Answered != "" && o.Answered == o.Fallback && o.PrimaryErr != nil
}

// Err returns the error that ends a failed cycle: the fallback's error wrapped
// together with the primary's, or the primary's when no fallback ran.
func (o Outcome) Err() error {
	if !o.Failed() {
		return nil
	}
	if o.FallbackErr == nil {
		return o.PrimaryErr
	}
	return fmt.Errorf("fallback model %s: %w (primary model %s: %v)", o.Fallback, o.FallbackErr, o.Primary, o.PrimaryErr)
}

// Attempt runs one cycle against next. The primary model is req.Model, or
// next's default when empty. On a primary failure the identical request is
// re-issued once with fallbackModel, without delay. An empty fallbackModel
// disables the second call. A cancelled ctx skips the fallback.
func Attempt(ctx context.Context, next llm.LLMClient, req llm.CompletionRequest, fallbackModel string) Outcome {
	out := Outcome{
		Primary:  req.ResolveModel(next.GetModelName()),
		Fallback: fallbackModel,
	}

	req.Model = out.Primary
	resp, err := next.Complete(ctx, req)
	if err == nil {
		out.Response, out.Answered = withModel(resp, out.Primary), out.Primary
		return out
	}
	out.PrimaryErr = err

	if fallbackModel == "" || ctx.Err() != nil {
		return out
	}

	req.Model = fallbackModel
	resp, err = next.Complete(ctx, req)
	if err != nil {
		out.FallbackErr = err
		return out
	}
	out.Response, out.Answered = withModel(resp, fallbackModel), fallbackModel
	return out
}

func withModel(resp llm.CompletionResponse, model string) llm.CompletionResponse {
	if resp.Model == "" {
		resp.Model = model
	}
	return resp
}

// Middleware runs Attempt on every call. A recovered primary failure is
// logged at warn level and reported to onFallback; it is not an error.
func Middleware(fallbackModel string, logger *logx.Logger, onFallback func(from, to string)) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				out := Attempt(ctx, next, req, fallbackModel)
				if out.Failed() {
					return llm.CompletionResponse{}, out.Err()
				}
				if out.UsedFallback() {
					if logger != nil {
						logger.Warn("Primary model %s failed: %v. Answered by fallback model %s", out.Primary, out.PrimaryErr, out.Fallback)
					}
					if onFallback != nil {
						onFallback(out.Primary, out.Fallback)
					}
				}
				return out.Response, nil
			},
			next.GetModelName,
		)
	}
}
