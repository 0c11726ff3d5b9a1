package resilience

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures the circuit breaker behavior
type Settings struct {
	// MaxRequests is the maximum number of probe requests allowed in half-open state
	MaxRequests uint32
	// Timeout is the period of the open state until transitioning to half-open
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures that trips the breaker
	FailureThreshold uint32
	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from State, to State)
}

// Breaker implements the circuit breaker pattern for remote identity
// and registry calls. Failures trip the breaker; after Timeout a
// limited number of probes are allowed through.
type Breaker struct {
	name     string
	settings Settings

	mu           sync.Mutex
	state        State
	failures     uint32
	halfOpenReqs uint32
	openedAt     time.Time
}

// New creates a new circuit breaker with the given settings
func New(name string, settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = 1
	}
	if settings.Timeout == 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
	}
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, accounting for timeout expiry
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Execute runs fn if the breaker allows it, recording the outcome.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn()
	b.record(err == nil)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshLocked()

	switch b.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.halfOpenReqs >= b.settings.MaxRequests {
			return ErrTooManyRequests
		}
		b.halfOpenReqs++
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		if b.state == StateHalfOpen {
			b.transitionLocked(StateClosed)
		}
		b.failures = 0
		return
	}

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.settings.FailureThreshold {
		b.transitionLocked(StateOpen)
	}
}

// refreshLocked moves open breakers to half-open once the timeout has
// elapsed. Caller must hold mu.
func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.settings.Timeout {
		b.transitionLocked(StateHalfOpen)
	}
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	switch to {
	case StateOpen:
		b.openedAt = time.Now()
	case StateHalfOpen:
		b.halfOpenReqs = 0
	case StateClosed:
		b.failures = 0
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}
