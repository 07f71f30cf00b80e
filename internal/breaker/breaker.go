package breaker

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker is rejecting calls.
var ErrOpen = errors.New("circuit open")

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// Breaker is a three-state circuit breaker for one (provider, operation)
// class. Consecutive failures up to the threshold trip it OPEN; after the
// cooldown a single trial call is admitted (HALF_OPEN); the trial's outcome
// closes or re-opens the circuit. The clock is injected so transitions are
// testable without real time.
type Breaker struct {
	mu            sync.Mutex
	name          string
	threshold     int
	cooldown      time.Duration
	now           func() time.Time
	onStateChange func(name string, from, to State, reason string)

	state         State
	failures      int
	openedAt      time.Time
	trialInFlight bool
	lastReason    string
}

// New creates a closed breaker. A nil now defaults to time.Now.
func New(name string, threshold int, cooldown time.Duration, now func() time.Time) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       now,
		state:     StateClosed,
	}
}

// OnStateChange registers a hook invoked after every transition, in addition
// to the transition log line.
func (b *Breaker) OnStateChange(fn func(name string, from, to State, reason string)) {
	b.mu.Lock()
	b.onStateChange = fn
	b.mu.Unlock()
}

// Allow reports whether a call may proceed. In OPEN it fails fast with
// ErrOpen until the cooldown elapses, then admits exactly one trial call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return fmt.Errorf("%s: %w", b.name, ErrOpen)
		}
		b.transition(StateHalfOpen, "cooldown elapsed")
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return fmt.Errorf("%s: trial in flight: %w", b.name, ErrOpen)
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// RecordSuccess closes the circuit and resets the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.trialInFlight = false
	if b.state != StateClosed {
		b.transition(StateClosed, "trial call succeeded")
	}
}

// AbandonTrial releases a half-open trial whose call never reached a verdict,
// typically because the caller's context was canceled mid-operation. The
// circuit re-opens with a fresh cooldown; without this, the occupied trial
// slot would reject every later call forever.
func (b *Breaker) AbandonTrial(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateHalfOpen || !b.trialInFlight {
		return
	}
	b.trialInFlight = false
	b.openedAt = b.now()
	b.transition(StateOpen, "trial abandoned: "+reason)
}

// RecordFailure counts one logical-operation failure. The caller must invoke
// it once per logical operation, not once per retry attempt.
func (b *Breaker) RecordFailure(reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastReason = reason
	switch b.state {
	case StateHalfOpen:
		b.trialInFlight = false
		b.openedAt = b.now()
		b.transition(StateOpen, "trial call failed: "+reason)
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.openedAt = b.now()
			b.transition(StateOpen, fmt.Sprintf("%d consecutive failures, last: %s", b.failures, reason))
		}
	case StateOpen:
		// Late failure from a call admitted before the trip; already open.
	}
}

// State returns the current position, applying the OPEN->HALF_OPEN cooldown
// check so readers see the effective state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Snapshot is a point-in-time view for dashboards and logs.
type Snapshot struct {
	Name     string     `json:"name"`
	State    string     `json:"state"`
	Failures int        `json:"failures"`
	OpenedAt *time.Time `json:"opened_at,omitempty"`
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{Name: b.name, State: b.state.String(), Failures: b.failures}
	if b.state == StateOpen {
		opened := b.openedAt
		snap.OpenedAt = &opened
	}
	return snap
}

// transition swaps states under b.mu and logs the reason.
func (b *Breaker) transition(to State, reason string) {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	log.Printf("breaker %s: %s -> %s (%s)", b.name, from, to, reason)
	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to, reason)
	}
}
