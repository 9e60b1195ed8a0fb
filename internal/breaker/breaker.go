// Package breaker implements the circuit breaker shared by every call to an
// external collaborator (auth, session lookup, exchange, container API):
// 3 consecutive failures trips it, it resets after 30s, and the half-open
// state admits exactly one probe call.
package breaker

import (
	"sync"
	"time"

	"simcore/pkg/apierr"
)

type state int

const (
	closed state = iota
	open
	halfOpen
)

// Breaker guards a single downstream collaborator.
type Breaker struct {
	mu               sync.Mutex
	st               state
	consecutiveFails int
	openedAt         time.Time

	failureThreshold int
	resetTimeout     time.Duration
}

// New creates a Breaker with the platform defaults (3 failures, 30s reset).
func New() *Breaker {
	return &Breaker{failureThreshold: 3, resetTimeout: 30 * time.Second}
}

// NewWithConfig allows overriding the defaults (used in tests).
func NewWithConfig(failureThreshold int, resetTimeout time.Duration) *Breaker {
	return &Breaker{failureThreshold: failureThreshold, resetTimeout: resetTimeout}
}

// Allow reports whether a call may proceed right now, transitioning
// open->half-open once resetTimeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.st {
	case closed:
		return true
	case open:
		if time.Since(b.openedAt) >= b.resetTimeout {
			b.st = halfOpen
			return true
		}
		return false
	case halfOpen:
		// Only one probe admitted; subsequent callers are rejected until
		// the probe reports back via RecordSuccess/RecordFailure.
		return false
	}
	return false
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.st = closed
	b.consecutiveFails = 0
}

// RecordFailure counts a failure, tripping the breaker once the threshold is hit.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.st == halfOpen {
		b.st = open
		b.openedAt = time.Now()
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= b.failureThreshold {
		b.st = open
		b.openedAt = time.Now()
	}
}

// Call runs fn if the breaker admits it, else returns an UNAVAILABLE error
// without attempting the call at all.
func (b *Breaker) Call(fn func() error) error {
	if !b.Allow() {
		return apierr.New(apierr.Unavailable, "circuit open")
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}
