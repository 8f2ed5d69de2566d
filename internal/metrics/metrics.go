package metrics

import (
	"sync"
	"time"

	"github.com/gary-lo/circuit-breaker/internal/circuitbreaker"
)

type Metrics struct {
	mutex       sync.RWMutex
	states      map[string]circuitbreaker.State
	transitions map[string]int64
	opens       map[string]int64
	rejections  map[string]int64
	windows     map[string]circuitbreaker.Snapshot
	startTime   time.Time
}

type Snapshot struct {
	TotalRejections int64                     `json:"total_rejections"`
	Uptime          time.Duration             `json:"uptime"`
	Breakers        map[string]BreakerMetrics `json:"breakers"`
}

type BreakerMetrics struct {
	State       string  `json:"state"`
	Transitions int64   `json:"transitions"`
	Opens       int64   `json:"opens"`
	Rejections  int64   `json:"rejections"`
	Successes   uint64  `json:"successes"`
	Failures    uint64  `json:"failures"`
	FailureRate float64 `json:"failure_rate"`
}

func NewMetrics() *Metrics {
	return &Metrics{
		states:      make(map[string]circuitbreaker.State),
		transitions: make(map[string]int64),
		opens:       make(map[string]int64),
		rejections:  make(map[string]int64),
		windows:     make(map[string]circuitbreaker.Snapshot),
		startTime:   time.Now(),
	}
}

func (m *Metrics) RecordStateChange(breaker string, from, to circuitbreaker.State) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.states[breaker] = to
	m.transitions[breaker]++
	if to == circuitbreaker.StateOpen {
		m.opens[breaker]++
	}
}

func (m *Metrics) RecordRejection(breaker string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.rejections[breaker]++
}

func (m *Metrics) RecordWindow(breaker string, window circuitbreaker.Snapshot) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.windows[breaker] = window
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		Uptime:   time.Since(m.startTime),
		Breakers: make(map[string]BreakerMetrics),
	}

	// Collect every breaker seen by any event kind
	allBreakers := make(map[string]bool)
	for breaker := range m.states {
		allBreakers[breaker] = true
	}
	for breaker := range m.rejections {
		allBreakers[breaker] = true
	}
	for breaker := range m.windows {
		allBreakers[breaker] = true
	}

	for breaker := range allBreakers {
		snap.TotalRejections += m.rejections[breaker]

		state, known := m.states[breaker]
		if !known {
			state = circuitbreaker.StateClosed
		}

		window := m.windows[breaker]
		snap.Breakers[breaker] = BreakerMetrics{
			State:       state.String(),
			Transitions: m.transitions[breaker],
			Opens:       m.opens[breaker],
			Rejections:  m.rejections[breaker],
			Successes:   window.Successes,
			Failures:    window.Failures,
			FailureRate: window.FailureRate(),
		}
	}

	return snap
}
