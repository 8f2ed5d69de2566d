package circuitbreaker

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

type State int32

const (
	StateClosed State = iota // Normal operation
	StateOpen                // Blocking requests
	StateHalfOpen            // Probing with a single trial request
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
		return "UNKNOWN"
	}
}

// CircuitBreaker gates requests to one logical target based on the failure
// rate observed over a trailing sliding window.
//
// All methods are safe for concurrent use. The current state is readable
// from an atomic field without locking; every multi-field transition runs
// under a small mutex with a state re-check, so transitions are atomic and
// never undone by a stale report. Exactly one trial request is admitted per
// half-open episode, granted through a compare-and-swap on an atomic flag.
type CircuitBreaker struct {
	name    string
	opts    options
	logger  *slog.Logger
	counter *eventCounter

	state      atomic.Int32
	trialTaken atomic.Bool

	// mu guards transitions and the episode timestamps below. It is never
	// held while invoking listeners or while counting outcomes.
	mu         sync.Mutex
	openedAt   time.Time
	halfOpenAt time.Time

	listenersMu sync.RWMutex
	listeners   []Listener
}

// New creates a circuit breaker in the closed state. The name identifies
// the breaker in listener events and logs; by convention it is the mapping
// key the breaker was created for.
func New(name string, opts ...Option) (*CircuitBreaker, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	if o.counterUpdateInterval >= o.counterSlidingWindow {
		return nil, fmt.Errorf("counter update interval (%v) must be shorter than the sliding window (%v)",
			o.counterUpdateInterval, o.counterSlidingWindow)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	cb := &CircuitBreaker{
		name:      name,
		opts:      o,
		logger:    o.logger,
		counter:   newEventCounter(o.counterSlidingWindow, o.counterUpdateInterval),
		listeners: o.listeners,
	}
	cb.state.Store(int32(StateClosed))
	return cb, nil
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state without evaluating any due transition.
func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

// Snapshot returns the current sliding window counts.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	return cb.counter.snapshot(time.Now())
}

// AddListener registers a listener after construction.
func (cb *CircuitBreaker) AddListener(l Listener) {
	cb.listenersMu.Lock()
	cb.listeners = append(cb.listeners, l)
	cb.listenersMu.Unlock()
}

// CanRequest evaluates any due state transition and reports whether a live
// call may proceed. In the half-open state only the single trial slot gets
// true; everyone else is rejected. Rejections notify listeners but never
// touch the counter, because a rejected call carries no information about
// peer health.
func (cb *CircuitBreaker) CanRequest() bool {
	now := time.Now()
	cb.advance(now)

	switch cb.State() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.trialTaken.CompareAndSwap(false, true) {
			return true
		}
	}
	cb.notifyRejected()
	return false
}

// OnSuccess reports a successful call. Counted while closed; while
// half-open it resolves the trial and closes the breaker. Reports arriving
// in the open state belong to an earlier episode and are discarded.
func (cb *CircuitBreaker) OnSuccess() {
	now := time.Now()
	switch cb.State() {
	case StateClosed:
		cb.counter.recordSuccess(now)
		cb.notifyCounterUpdated(cb.counter.snapshot(now))
		cb.tripIfDue(now)
	case StateHalfOpen:
		if !cb.trialTaken.Load() {
			return
		}
		cb.counter.recordSuccess(now)
		cb.notifyCounterUpdated(cb.counter.snapshot(now))
		cb.transitionIf(StateHalfOpen, StateClosed, now, nil)
	}
}

// OnFailure reports a failed call. Counted while closed, re-evaluating the
// trip threshold; while half-open it fails the trial and re-opens the
// breaker with a fresh open window. Reports arriving in the open state are
// discarded.
func (cb *CircuitBreaker) OnFailure() {
	now := time.Now()
	switch cb.State() {
	case StateClosed:
		cb.counter.recordFailure(now)
		cb.notifyCounterUpdated(cb.counter.snapshot(now))
		cb.tripIfDue(now)
	case StateHalfOpen:
		if !cb.trialTaken.Load() {
			return
		}
		cb.counter.recordFailure(now)
		cb.notifyCounterUpdated(cb.counter.snapshot(now))
		cb.transitionIf(StateHalfOpen, StateOpen, now, nil)
	}
}

// advance performs any transition that has become due by the passage of
// time: open breakers become half-open once the open window elapses, and
// half-open breakers whose trial never completed re-open once the trial
// interval elapses.
func (cb *CircuitBreaker) advance(now time.Time) {
	switch cb.State() {
	case StateClosed:
		cb.tripIfDue(now)
	case StateOpen:
		cb.transitionIf(StateOpen, StateHalfOpen, now, func() bool {
			return !now.Before(cb.openedAt.Add(cb.opts.circuitOpenWindow))
		})
	case StateHalfOpen:
		cb.transitionIf(StateHalfOpen, StateOpen, now, func() bool {
			return !now.Before(cb.halfOpenAt.Add(cb.opts.trialRequestInterval))
		})
	}
}

// tripIfDue opens a closed breaker once the window holds enough events and
// the failure rate is at or above the threshold.
func (cb *CircuitBreaker) tripIfDue(now time.Time) {
	snap := cb.counter.snapshot(now)
	if snap.Total() < uint64(cb.opts.minimumRequestThreshold) {
		return
	}
	if snap.FailureRate() < cb.opts.failureRateThreshold {
		return
	}
	cb.transitionIf(StateClosed, StateOpen, now, nil)
}

// transitionIf atomically moves the breaker from one state to another,
// provided it is still in the expected state and the optional due condition
// holds under the lock. Listeners are notified after the lock is released.
func (cb *CircuitBreaker) transitionIf(from, to State, now time.Time, due func() bool) bool {
	cb.mu.Lock()
	if cb.State() != from || (due != nil && !due()) {
		cb.mu.Unlock()
		return false
	}

	switch to {
	case StateOpen:
		cb.openedAt = now
	case StateHalfOpen:
		cb.halfOpenAt = now
		cb.trialTaken.Store(false)
	case StateClosed:
		cb.counter.reset()
	}
	cb.state.Store(int32(to))
	cb.mu.Unlock()

	cb.logger.Debug("circuit breaker state changed",
		slog.String("breaker", cb.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	cb.notifyStateChanged(from, to)
	return true
}

func (cb *CircuitBreaker) notifyStateChanged(from, to State) {
	cb.eachListener(func(l Listener) {
		l.OnStateChanged(cb.name, from, to)
	})
}

func (cb *CircuitBreaker) notifyCounterUpdated(snap Snapshot) {
	cb.eachListener(func(l Listener) {
		l.OnCounterUpdated(cb.name, snap)
	})
}

func (cb *CircuitBreaker) notifyRejected() {
	cb.eachListener(func(l Listener) {
		l.OnRequestRejected(cb.name)
	})
}

// eachListener invokes fn per listener, isolating panics so observability
// can never abort a transition or an in-flight call.
func (cb *CircuitBreaker) eachListener(fn func(Listener)) {
	cb.listenersMu.RLock()
	listeners := cb.listeners
	cb.listenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					cb.logger.Error("circuit breaker listener panicked",
						slog.String("breaker", cb.name),
						slog.Any("panic", r))
				}
			}()
			fn(l)
		}()
	}
}
