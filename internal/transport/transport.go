package transport

import (
	"log/slog"
	"net/http"

	"github.com/gary-lo/circuit-breaker/internal/circuitbreaker"
	"github.com/gary-lo/circuit-breaker/internal/outcome"
)

// Transport is an http.RoundTripper that guards every outbound call with
// the circuit breaker keyed for it: resolve the breaker, gate the call,
// issue it through the next round tripper, classify the result and report
// it back. Rejected calls fail fast with *circuitbreaker.OpenStateError and
// never reach the network.
type Transport struct {
	next     http.RoundTripper
	mapping  *circuitbreaker.Mapping
	strategy outcome.Strategy
	logger   *slog.Logger
}

// New wraps next with circuit breaking. A nil next falls back to
// http.DefaultTransport, a nil strategy to outcome.Default() and a nil
// logger to slog.Default().
func New(next http.RoundTripper, mapping *circuitbreaker.Mapping, strategy outcome.Strategy, logger *slog.Logger) *Transport {
	if next == nil {
		next = http.DefaultTransport
	}
	if strategy == nil {
		strategy = outcome.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		next:     next,
		mapping:  mapping,
		strategy: strategy,
		logger:   logger,
	}
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	cb, err := t.mapping.Resolve(req)
	if err != nil {
		return nil, err
	}

	if !cb.CanRequest() {
		t.logger.Warn("request rejected by circuit breaker",
			slog.String("breaker", cb.Name()),
			slog.String("method", req.Method),
			slog.String("url", req.URL.String()))
		return nil, &circuitbreaker.OpenStateError{Name: cb.Name()}
	}

	res, err := t.next.RoundTrip(req)
	if err != nil {
		// A call cancelled before completion carries no information about
		// peer health and is never reported.
		if req.Context().Err() == nil {
			t.report(cb, t.strategy.Classify(nil, err))
		}
		return nil, err
	}

	if cs, ok := t.strategy.(outcome.ContentStrategy); ok {
		if res.Body == nil || res.Body == http.NoBody {
			t.report(cb, cs.ClassifyContent(res, nil))
			return res, nil
		}
		res.Body = watchBody(res, req.Context(), cs, func(o outcome.Outcome) {
			t.report(cb, o)
		})
		return res, nil
	}

	t.report(cb, t.strategy.Classify(res, nil))
	return res, nil
}

func (t *Transport) report(cb *circuitbreaker.CircuitBreaker, o outcome.Outcome) {
	switch o {
	case outcome.Success:
		cb.OnSuccess()
	case outcome.Failure:
		cb.OnFailure()
	}
}
