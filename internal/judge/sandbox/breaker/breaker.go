// Package breaker implements the circuit breaker guarding the remote
// execution service. Transitions are deterministic so callers can reason
// about when traffic resumes after an outage.
package breaker

import (
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes the breaker. Now is injectable for deterministic tests and
// defaults to time.Now.
type Config struct {
	FailureThreshold int           // consecutive failures that trip the breaker
	Cooldown         time.Duration // how long Open lasts before a probe is admitted
	Now              func() time.Time
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a Closed -> Open -> HalfOpen state machine. In HalfOpen a
// single probe is admitted; its outcome decides between Closed and Open.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New builds a breaker, applying defaults for zero config fields.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// Allow reports whether a request may go out right now. An Open breaker
// whose cooldown has elapsed moves to HalfOpen and admits one probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.cfg.Now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.state = HalfOpen
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return false
	}
}

// ReportSuccess records a successful call. A HalfOpen probe success closes
// the breaker and resets the failure count.
func (b *Breaker) ReportSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	b.state = Closed
}

// ReportFailure records a failed call. Consecutive failures at or above the
// threshold trip the breaker; a HalfOpen probe failure reopens it.
func (b *Breaker) ReportFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	switch b.state {
	case HalfOpen:
		b.state = Open
		b.openedAt = b.cfg.Now()
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = Open
			b.openedAt = b.cfg.Now()
		}
	}
}

// State returns the current position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
