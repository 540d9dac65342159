// Package circuit stops an agent from calling a provider that keeps failing.
//
// The breaker counts whole Send calls, each of which already spans every
// retry cycle and fallback attempt. After FailureThreshold consecutive failed
// calls it opens and rejects further calls until Timeout has passed. The next
// call is then let through as a probe, and SuccessThreshold successful probes
// close it again.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State is the breaker position.
type State int

// Breaker states.
const (
	Closed   State = iota // calls pass through
	Open                  // calls are rejected without reaching the provider
	HalfOpen              // probe calls decide whether to close or reopen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config sets the breaker thresholds. The zero FailureThreshold disables it.
type Config struct {
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold"`
	SuccessThreshold int           `json:"success_threshold" yaml:"success_threshold"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout"` // how long an open breaker waits before probing
}

// Enabled reports whether the factory should install a breaker.
func (c Config) Enabled() bool {
	return c.FailureThreshold > 0
}

// DefaultConfig is disabled; setting FailureThreshold turns it on with a
// single-probe recovery after 30s.
//
//nolint:gochecknoglobals // default value shared by config and tests
var DefaultConfig = Config{
	SuccessThreshold: 1,
	Timeout:          30 * time.Second,
}

// Error rejects a Send while the breaker is open.
type Error struct {
	State State
}

func (e *Error) Error() string {
	return fmt.Sprintf("circuit breaker is %s", e.State)
}

// Breaker is shared by every ChatClient built from one Factory.
type Breaker interface {
	// Allow reports whether a Send may reach the provider. An open breaker
	// whose timeout has passed moves to HalfOpen and allows the probe.
	Allow() bool

	// Record reports the outcome of an allowed Send.
	Record(success bool)

	GetState() State

	// Reset closes the breaker and clears its counters.
	Reset()
}

//nolint:govet // grouped by role
type breaker struct {
	cfg      Config
	now      func() time.Time
	mu       sync.Mutex
	state    State
	failures int // consecutive failed calls
	probes   int // successful probes while half-open
	openedAt time.Time
}

// New returns a closed breaker.
func New(cfg Config) Breaker {
	return newWithClock(cfg, time.Now)
}

func newWithClock(cfg Config, now func() time.Time) *breaker {
	cfg.SuccessThreshold = max(cfg.SuccessThreshold, 1)
	return &breaker{cfg: cfg, now: now}
}

func (b *breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != Open {
		return true
	}
	if b.now().Sub(b.openedAt) < b.cfg.Timeout {
		return false
	}
	b.state = HalfOpen
	b.probes = 0
	return true
}

func (b *breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !success {
		b.failures++
		if b.state == HalfOpen || b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
		return
	}

	if b.state != HalfOpen {
		b.failures = 0
		return
	}
	b.probes++
	if b.probes >= b.cfg.SuccessThreshold {
		b.closeLocked()
	}
}

func (b *breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
}

// trip opens the breaker and restarts the timeout. Called under lock.
func (b *breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.probes = 0
}

func (b *breaker) closeLocked() {
	b.state = Closed
	b.failures = 0
	b.probes = 0
}
