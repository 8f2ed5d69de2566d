package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gary-lo/circuit-breaker/internal/circuitbreaker"
)

// instruments holds the Prometheus view of the same events the Metrics
// store aggregates. Each collector owns its registry so tests never fight
// over global registration.
type instruments struct {
	registry        *prometheus.Registry
	rejections      *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	state           *prometheus.GaugeVec
	windowSuccesses *prometheus.GaugeVec
	windowFailures  *prometheus.GaugeVec
}

func newInstruments() *instruments {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &instruments{
		registry: registry,
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "circuitbreaker_rejected_requests_total",
			Help: "Requests rejected without remote I/O because the breaker was open.",
		}, []string{"breaker"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "circuitbreaker_state_transitions_total",
			Help: "State transitions by breaker and destination state.",
		}, []string{"breaker", "to"}),
		state: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuitbreaker_state",
			Help: "Current breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"breaker"}),
		windowSuccesses: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuitbreaker_window_successes",
			Help: "Successes counted in the current sliding window.",
		}, []string{"breaker"}),
		windowFailures: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuitbreaker_window_failures",
			Help: "Failures counted in the current sliding window.",
		}, []string{"breaker"}),
	}
}

func (i *instruments) recordStateChange(breaker string, to circuitbreaker.State) {
	i.transitions.WithLabelValues(breaker, to.String()).Inc()
	i.state.WithLabelValues(breaker).Set(float64(to))
}

func (i *instruments) recordRejection(breaker string) {
	i.rejections.WithLabelValues(breaker).Inc()
}

func (i *instruments) recordWindow(breaker string, window circuitbreaker.Snapshot) {
	i.windowSuccesses.WithLabelValues(breaker).Set(float64(window.Successes))
	i.windowFailures.WithLabelValues(breaker).Set(float64(window.Failures))
}

// PrometheusHandler exposes the collector's registry in Prometheus
// exposition format.
func (c *Collector) PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(c.instruments.registry, promhttp.HandlerOpts{})
}
