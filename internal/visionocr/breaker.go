package visionocr

import (
	"sync"
	"time"

	"ragctx/internal/clock"
)

// State is one of Closed (serve), Open (reject), HalfOpen (probe) per the
// glossary and §3.4.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

type breakerEntry struct {
	state        State
	failureCount int
	openedAt     time.Time
}

// Breaker is the per-operation circuit breaker of §4.2. One instance is
// shared process-wide across all decode callers; each operation label
// ("decode", "index", "status") has independent state.
type Breaker struct {
	mu              sync.Mutex
	entries         map[string]*breakerEntry
	failureThreshold int
	resetTimeout     time.Duration
	clock            clock.Clock
}

// NewBreaker constructs a Breaker with the given failure threshold and
// reset timeout, shared across operation labels.
func NewBreaker(failureThreshold int, resetTimeout time.Duration, c clock.Clock) *Breaker {
	if c == nil {
		c = clock.System{}
	}
	return &Breaker{
		entries:          make(map[string]*breakerEntry),
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		clock:            c,
	}
}

func (b *Breaker) entry(op string) *breakerEntry {
	e, ok := b.entries[op]
	if !ok {
		e = &breakerEntry{state: StateClosed}
		b.entries[op] = e
	}
	return e
}

// IsOpen reports whether op currently rejects calls. Observing Open after
// the reset timeout transitions the breaker to HalfOpen and returns false,
// per §4.2 ("HalfOpen is observed by is_open returning false").
func (b *Breaker) IsOpen(op string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(op)
	if e.state != StateOpen {
		return false
	}
	if b.clock.Now().Sub(e.openedAt) >= b.resetTimeout {
		e.state = StateHalfOpen
		return false
	}
	return true
}

// MarkSuccess resets failure_count to 0 and, from HalfOpen, transitions to
// Closed (§3.4, §4.2).
func (b *Breaker) MarkSuccess(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(op)
	e.failureCount = 0
	e.state = StateClosed
}

// MarkFailure records a failure. From Closed, the failure_threshold-th
// failure opens the breaker. From HalfOpen, any failure reopens it with a
// fresh opened_at.
func (b *Breaker) MarkFailure(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(op)
	switch e.state {
	case StateHalfOpen:
		e.state = StateOpen
		e.openedAt = b.clock.Now()
		e.failureCount = 1
	default:
		e.failureCount++
		if e.failureCount >= b.failureThreshold {
			e.state = StateOpen
			e.openedAt = b.clock.Now()
		}
	}
}

// Reset forces op back to Closed with a zeroed failure count, from any
// state.
func (b *Breaker) Reset(op string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entry(op)
	e.state = StateClosed
	e.failureCount = 0
}

// StateOf returns the current observed state for op (for tests/metrics).
func (b *Breaker) StateOf(op string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry(op).state
}
