package circuitbreaker

import (
	"net/http"
	"sync"
)

// KeySelector derives the grouping key for a request. Requests with the
// same key share one breaker instance.
type KeySelector func(r *http.Request) string

// PerHost keys breakers by the remote host of the request.
func PerHost(r *http.Request) string {
	return requestHost(r)
}

// PerMethod keys breakers by the HTTP method of the request.
func PerMethod(r *http.Request) string {
	return r.Method
}

// PerHostAndMethod keys breakers by host and method, formatted as
// "<host>#<method>".
func PerHostAndMethod(r *http.Request) string {
	return requestHost(r) + "#" + r.Method
}

func requestHost(r *http.Request) string {
	if r.URL != nil && r.URL.Host != "" {
		return r.URL.Host
	}
	return r.Host
}

// Factory builds the breaker for a key. It is invoked at most once per
// distinct key, on first resolution.
type Factory func(key string) (*CircuitBreaker, error)

// Mapping routes a request to the circuit breaker guarding its key. One
// breaker is cached per distinct key for the lifetime of the mapping; there
// is no eviction, which is acceptable because keys are operator-controlled
// values such as hosts and methods, not unbounded user input.
type Mapping struct {
	mutex    sync.RWMutex
	breakers map[string]*CircuitBreaker
	selector KeySelector
	factory  Factory
}

func NewMapping(selector KeySelector, factory Factory) *Mapping {
	return &Mapping{
		breakers: make(map[string]*CircuitBreaker),
		selector: selector,
		factory:  factory,
	}
}

// Resolve returns the breaker for the request's key, creating it through
// the factory on first use. Concurrent first resolutions of the same key
// still invoke the factory exactly once.
func (m *Mapping) Resolve(r *http.Request) (*CircuitBreaker, error) {
	key := m.selector(r)

	m.mutex.RLock()
	cb, exists := m.breakers[key]
	m.mutex.RUnlock()

	if exists {
		return cb, nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = m.breakers[key]; exists {
		return cb, nil
	}

	cb, err := m.factory(key)
	if err != nil {
		return nil, err
	}
	m.breakers[key] = cb
	return cb, nil
}

// Get returns the breaker cached for key, or nil when the key has not been
// resolved yet.
func (m *Mapping) Get(key string) *CircuitBreaker {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.breakers[key]
}

// Reset drops every cached breaker.
func (m *Mapping) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.breakers = make(map[string]*CircuitBreaker)
}

// States returns the current state of every cached breaker by key.
func (m *Mapping) States() map[string]State {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	states := make(map[string]State, len(m.breakers))
	for key, cb := range m.breakers {
		states[key] = cb.State()
	}
	return states
}
