// Package circuit provides a process-wide circuit breaker guarding
// outbound LLM calls: after a run of consecutive failures it opens for a
// cooldown window, then admits calls again in a half-open state, closing
// on the first recorded success and reopening on the first failure.
package circuit

import (
	"sync"
	"time"
)

// State is the breaker's current disposition.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
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

// Config tunes breaker behavior.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before allowing a probe.
	Cooldown time.Duration
}

// DefaultConfig matches the spec: 3 consecutive failures, 60s cooldown.
var DefaultConfig = Config{
	FailureThreshold: 3,
	Cooldown:         60 * time.Second,
}

// Breaker is a single process-wide failure gate, never held across I/O.
type Breaker struct {
	cfg Config

	mu           sync.Mutex
	state        State
	failureCount int
	openedAt     time.Time
}

// New creates a breaker in the Closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: Closed}
}

// Allow reports whether a call should proceed. An Open breaker
// transitions to HalfOpen once the cooldown has elapsed; while HalfOpen,
// every call is allowed until Record reports an outcome.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) >= b.cfg.Cooldown {
			b.state = HalfOpen
			return true
		}
		return false
	case HalfOpen:
		return true
	default:
		return false
	}
}

// Record reports the outcome of a call admitted by Allow. A success
// always resets the breaker to Closed; a failure increments the streak
// and opens the circuit once the threshold is reached (immediately, from
// HalfOpen).
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.state = Closed
		b.failureCount = 0
		return
	}

	b.failureCount++
	if b.state == HalfOpen || b.failureCount >= b.cfg.FailureThreshold {
		b.state = Open
		b.openedAt = time.Now()
	}
}

// GetState returns the current state.
func (b *Breaker) GetState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker back to Closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failureCount = 0
}
