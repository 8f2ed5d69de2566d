package circuitbreaker

import (
	"fmt"
	"log/slog"
	"time"
)

const (
	DefaultFailureRateThreshold    = 0.5
	DefaultMinimumRequestThreshold = 10
	DefaultTrialRequestInterval    = 3 * time.Second
	DefaultCircuitOpenWindow       = 10 * time.Second
	DefaultCounterSlidingWindow    = 20 * time.Second
	DefaultCounterUpdateInterval   = 1 * time.Second
)

type options struct {
	failureRateThreshold    float64
	minimumRequestThreshold int
	trialRequestInterval    time.Duration
	circuitOpenWindow       time.Duration
	counterSlidingWindow    time.Duration
	counterUpdateInterval   time.Duration
	listeners               []Listener
	logger                  *slog.Logger
}

func defaultOptions() options {
	return options{
		failureRateThreshold:    DefaultFailureRateThreshold,
		minimumRequestThreshold: DefaultMinimumRequestThreshold,
		trialRequestInterval:    DefaultTrialRequestInterval,
		circuitOpenWindow:       DefaultCircuitOpenWindow,
		counterSlidingWindow:    DefaultCounterSlidingWindow,
		counterUpdateInterval:   DefaultCounterUpdateInterval,
	}
}

// Option configures a circuit breaker at construction time. Invalid values
// fail construction; nothing is deferred to the request path.
type Option func(*options) error

// WithFailureRateThreshold sets the failure rate at or above which a closed
// breaker opens. Must be within [0, 1].
func WithFailureRateThreshold(rate float64) Option {
	return func(o *options) error {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("failure rate threshold must be within [0, 1], got %v", rate)
		}
		o.failureRateThreshold = rate
		return nil
	}
}

// WithMinimumRequestThreshold sets the minimum number of counted events the
// window must hold before the failure rate is considered meaningful.
func WithMinimumRequestThreshold(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return fmt.Errorf("minimum request threshold must be at least 1, got %d", n)
		}
		o.minimumRequestThreshold = n
		return nil
	}
}

// WithTrialRequestInterval sets how long a half-open breaker waits for its
// trial request's outcome before giving up and re-opening.
func WithTrialRequestInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("trial request interval must be positive, got %v", d)
		}
		o.trialRequestInterval = d
		return nil
	}
}

// WithCircuitOpenWindow sets how long the breaker stays open before
// admitting a trial request.
func WithCircuitOpenWindow(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("circuit open window must be positive, got %v", d)
		}
		o.circuitOpenWindow = d
		return nil
	}
}

// WithCounterSlidingWindow sets the trailing time span over which outcomes
// are aggregated for the threshold decision.
func WithCounterSlidingWindow(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("counter sliding window must be positive, got %v", d)
		}
		o.counterSlidingWindow = d
		return nil
	}
}

// WithCounterUpdateInterval sets the bucket width of the sliding window.
// Must be shorter than the sliding window itself.
func WithCounterUpdateInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("counter update interval must be positive, got %v", d)
		}
		o.counterUpdateInterval = d
		return nil
	}
}

// WithListener registers a listener notified on state changes, counter
// updates and rejected requests. Listeners are invoked in registration order.
func WithListener(l Listener) Option {
	return func(o *options) error {
		if l == nil {
			return fmt.Errorf("listener must not be nil")
		}
		o.listeners = append(o.listeners, l)
		return nil
	}
}

// WithLogger sets the logger used for breaker-internal reporting, such as
// a listener panicking. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}
