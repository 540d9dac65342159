package metrics

import (
	"sync"
	"time"
)

// InternalRecorder implements the Recorder interface using in-memory aggregation.
type InternalRecorder struct {
	agents map[string]*AgentMetrics
	mu     sync.RWMutex
}

// AgentMetrics represents aggregated metrics for one agent.
//
//nolint:govet
type AgentMetrics struct {
	Agent            string        `json:"agent"`
	RequestCount     int64         `json:"request_count"`
	FailureCount     int64         `json:"failure_count"`
	FallbackCount    int64         `json:"fallback_count"`
	FailedCycles     int64         `json:"failed_cycles"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	TotalDuration    time.Duration `json:"total_duration"`
	LastUpdated      time.Time     `json:"last_updated"`
}

// NewInternalRecorder returns an empty in-memory recorder.
func NewInternalRecorder() *InternalRecorder {
	return &InternalRecorder{
		agents: make(map[string]*AgentMetrics),
	}
}

// get returns the entry for agent, creating it. Callers hold r.mu.
func (r *InternalRecorder) get(agent string) *AgentMetrics {
	m, ok := r.agents[agent]
	if !ok {
		m = &AgentMetrics{Agent: agent}
		r.agents[agent] = m
	}
	m.LastUpdated = time.Now()
	return m
}

func (r *InternalRecorder) ObserveRequest(
	agent, _, status, _ string,
	duration time.Duration,
	promptTokens, completionTokens int,
) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.get(agent)
	m.RequestCount++
	m.TotalDuration += duration
	if status != StatusSuccess {
		m.FailureCount++
		return
	}
	m.PromptTokens += int64(promptTokens)
	m.CompletionTokens += int64(completionTokens)
}

func (r *InternalRecorder) IncFallback(agent, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(agent).FallbackCount++
}

func (r *InternalRecorder) IncFailedCycle(agent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(agent).FailedCycles++
}

// GetAgentMetrics returns a copy of the aggregated metrics for agent, or nil.
func (r *InternalRecorder) GetAgentMetrics(agent string) *AgentMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if m, ok := r.agents[agent]; ok {
		cp := *m
		return &cp
	}
	return nil
}

// GetAllAgentMetrics returns copies of the metrics for every agent.
func (r *InternalRecorder) GetAllAgentMetrics() map[string]*AgentMetrics {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]*AgentMetrics, len(r.agents))
	for name, m := range r.agents {
		cp := *m
		result[name] = &cp
	}
	return result
}

// Reset clears all metrics.
func (r *InternalRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents = make(map[string]*AgentMetrics)
}
