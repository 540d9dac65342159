// Package metrics provides metrics recording for agent calls.
package metrics

import (
	"time"
)

// Request statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Recorder defines the interface for recording agent call metrics.
type Recorder interface {
	// ObserveRequest records one completed send call.
	ObserveRequest(
		agent, model, status, errorType string,
		duration time.Duration,
		promptTokens, completionTokens int,
	)

	// IncFallback counts a primary failure absorbed by the fallback model.
	IncFallback(agent, from, to string)

	// IncFailedCycle counts a retry cycle in which primary and fallback both failed.
	IncFailedCycle(agent string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveRequest(_, _, _, _ string, _ time.Duration, _, _ int) {}

func (n *NoopRecorder) IncFallback(_, _, _ string) {}

func (n *NoopRecorder) IncFailedCycle(_ string) {}

type multiRecorder []Recorder

// Multi fans every observation out to all recorders. Nil entries are ignored.
func Multi(recorders ...Recorder) Recorder {
	var m multiRecorder
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	if len(m) == 0 {
		return Nop()
	}
	return m
}

func (m multiRecorder) ObserveRequest(agent, model, status, errorType string, duration time.Duration, promptTokens, completionTokens int) {
	for _, r := range m {
		r.ObserveRequest(agent, model, status, errorType, duration, promptTokens, completionTokens)
	}
}

func (m multiRecorder) IncFallback(agent, from, to string) {
	for _, r := range m {
		r.IncFallback(agent, from, to)
	}
}

func (m multiRecorder) IncFailedCycle(agent string) {
	for _, r := range m {
		r.IncFailedCycle(agent)
	}
}
