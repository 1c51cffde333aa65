// Package circuit is a count-based breaker for outbound channels. Closed, it
// counts consecutive failures; open, it counts consecutive successes. There
// is no half-open timer: callers choose how to test an open circuit.
package circuit

import "sync"

type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

// Transition is what a single Record call did to the circuit.
type Transition int

const (
	NoChange Transition = iota
	Opened
	Closed
)

// Counts is a snapshot of the breaker's streak counters.
type Counts struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	Trips                int
}

type Breaker struct {
	name       string
	openAfter  int
	closeAfter int

	mu     sync.Mutex
	state  State
	counts Counts
}

type Option func(*Breaker)

// WithFailureThreshold opens the circuit after n consecutive failures.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.openAfter = n
		}
	}
}

// WithSuccessThreshold closes an open circuit after n consecutive successes.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.closeAfter = n
		}
	}
}

func New(name string, opts ...Option) *Breaker {
	b := &Breaker{name: name, openAfter: 5, closeAfter: 2, state: StateClosed}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) IsOpen() bool { return b.State() == StateOpen }

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Record feeds one call outcome into the breaker; a nil err is a success.
func (b *Breaker) Record(err error) Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.counts.ConsecutiveSuccesses = 0
		if b.state == StateOpen {
			return NoChange
		}
		b.counts.ConsecutiveFailures++
		if b.counts.ConsecutiveFailures < b.openAfter {
			return NoChange
		}
		b.state = StateOpen
		b.counts.ConsecutiveFailures = 0
		b.counts.Trips++
		return Opened
	}

	b.counts.ConsecutiveFailures = 0
	if b.state == StateClosed {
		return NoChange
	}
	b.counts.ConsecutiveSuccesses++
	if b.counts.ConsecutiveSuccesses < b.closeAfter {
		return NoChange
	}
	b.state = StateClosed
	b.counts.ConsecutiveSuccesses = 0
	return Closed
}

// Reset forces the circuit closed and clears the streaks. Trips survive.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.counts = Counts{Trips: b.counts.Trips}
}
