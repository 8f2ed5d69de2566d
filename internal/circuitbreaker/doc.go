// Package circuitbreaker implements a client-side circuit breaker: it tracks
// recent call outcomes per target and blocks further calls once the failure
// rate over a sliding window crosses a threshold, then periodically admits a
// single trial call to detect recovery.
//
// A breaker cycles through three states:
//
//   - CLOSED: Normal operation, requests pass through
//   - OPEN: Target failing, requests rejected without remote I/O
//   - HALF_OPEN: A single trial request probes whether the target recovered
//
// Usage:
//
//	mapping := circuitbreaker.NewMapping(circuitbreaker.PerHost, func(key string) (*circuitbreaker.CircuitBreaker, error) {
//	    return circuitbreaker.New(key)
//	})
//	cb, err := mapping.Resolve(req)
//	if !cb.CanRequest() {
//	    // Fail fast, do not contact the remote peer.
//	}
//	// Issue the call, then report:
//	cb.OnSuccess() // or cb.OnFailure()
package circuitbreaker
