// Package breaker implements a count-based sliding-window circuit breaker.
//
// A Breaker starts CLOSED. Once at least MinimumCalls outcomes sit in the
// window and the failure rate reaches FailureRateThreshold it opens and
// rejects calls for OpenTimeout. After that it lets HalfOpenMaxCalls trial
// calls through: one failure reopens it, all trials succeeding closes it.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	ErrOpen          = errors.New("circuit breaker is open")
	ErrTooManyTrials = errors.New("circuit breaker half-open trial limit reached")
)

type Settings struct {
	Name                 string
	WindowSize           int
	MinimumCalls         int
	FailureRateThreshold float64
	OpenTimeout          time.Duration
	HalfOpenMaxCalls     int

	// OnStateChange runs after the breaker lock is released.
	OnStateChange func(name string, from, to State)
	Now           func() time.Time
}

type Counts struct {
	Calls    int
	Failures int
}

type Breaker struct {
	s Settings

	mu         sync.Mutex
	state      State
	generation uint64
	window     []bool // true = failure
	next       int
	filled     int
	failures   int
	openedAt   time.Time
	trials     int // half-open calls admitted
	trialOK    int
}

func New(s Settings) (*Breaker, error) {
	switch {
	case s.WindowSize <= 0:
		return nil, errors.New("breaker: window size must be positive")
	case s.MinimumCalls <= 0 || s.MinimumCalls > s.WindowSize:
		return nil, errors.New("breaker: minimum calls must be in (0, window size]")
	case s.FailureRateThreshold <= 0 || s.FailureRateThreshold > 1:
		return nil, errors.New("breaker: failure rate threshold must be in (0, 1]")
	case s.OpenTimeout <= 0:
		return nil, errors.New("breaker: open timeout must be positive")
	case s.HalfOpenMaxCalls <= 0:
		return nil, errors.New("breaker: half-open calls must be positive")
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Breaker{s: s, window: make([]bool, s.WindowSize)}, nil
}

type transition struct {
	from, to State
	changed  bool
}

func (b *Breaker) notify(t transition) {
	if t.changed && b.s.OnStateChange != nil {
		b.s.OnStateChange(b.s.Name, t.from, t.to)
	}
}

// Allow asks permission for one call. On success the caller must invoke done
// exactly once with the call's outcome.
func (b *Breaker) Allow() (done func(success bool), err error) {
	b.mu.Lock()
	t := b.refresh(b.s.Now())
	switch b.state {
	case StateOpen:
		b.mu.Unlock()
		b.notify(t)
		return nil, ErrOpen
	case StateHalfOpen:
		if b.trials >= b.s.HalfOpenMaxCalls {
			b.mu.Unlock()
			b.notify(t)
			return nil, ErrTooManyTrials
		}
		b.trials++
	}
	gen := b.generation
	b.mu.Unlock()
	b.notify(t)

	var once sync.Once
	return func(success bool) {
		once.Do(func() { b.record(gen, success) })
	}, nil
}

func (b *Breaker) record(gen uint64, success bool) {
	b.mu.Lock()
	var t transition
	// outcomes of calls admitted in an earlier state period are dropped
	if gen == b.generation {
		now := b.s.Now()
		switch b.state {
		case StateClosed:
			b.push(!success)
			if b.filled >= b.s.MinimumCalls && b.failureRate() >= b.s.FailureRateThreshold {
				t = b.setState(StateOpen, now)
			}
		case StateHalfOpen:
			if !success {
				t = b.setState(StateOpen, now)
			} else {
				b.trialOK++
				if b.trialOK >= b.s.HalfOpenMaxCalls {
					t = b.setState(StateClosed, now)
				}
			}
		}
	}
	b.mu.Unlock()
	b.notify(t)
}

func (b *Breaker) State() State {
	b.mu.Lock()
	t := b.refresh(b.s.Now())
	s := b.state
	b.mu.Unlock()
	b.notify(t)
	return s
}

func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counts{Calls: b.filled, Failures: b.failures}
}

func (b *Breaker) Name() string { return b.s.Name }

// refresh moves OPEN to HALF_OPEN once the cool-down has elapsed.
func (b *Breaker) refresh(now time.Time) transition {
	if b.state == StateOpen && !now.Before(b.openedAt.Add(b.s.OpenTimeout)) {
		return b.setState(StateHalfOpen, now)
	}
	return transition{}
}

func (b *Breaker) setState(to State, now time.Time) transition {
	from := b.state
	if from == to {
		return transition{}
	}
	b.state = to
	b.generation++
	b.trials, b.trialOK = 0, 0
	b.resetWindow()
	if to == StateOpen {
		b.openedAt = now
	}
	return transition{from: from, to: to, changed: true}
}

func (b *Breaker) push(failure bool) {
	if b.filled == len(b.window) {
		if b.window[b.next] {
			b.failures--
		}
	} else {
		b.filled++
	}
	b.window[b.next] = failure
	if failure {
		b.failures++
	}
	b.next = (b.next + 1) % len(b.window)
}

func (b *Breaker) resetWindow() {
	for i := range b.window {
		b.window[i] = false
	}
	b.next, b.filled, b.failures = 0, 0, 0
}

func (b *Breaker) failureRate() float64 {
	if b.filled == 0 {
		return 0
	}
	return float64(b.failures) / float64(b.filled)
}
