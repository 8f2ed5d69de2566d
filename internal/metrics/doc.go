// Package metrics provides real-time metrics collection for circuit
// breakers.
//
// The Collector implements circuitbreaker.Listener and uses a channel-based
// event pipeline to asynchronously collect:
//   - State transitions per breaker (and how often each breaker opened)
//   - Rejected request counts
//   - Sliding window success/failure counts and failure rate
//
// The collector runs in a dedicated goroutine and processes events without
// blocking the request path. Events are sent via buffered channels with
// non-blocking semantics to prevent performance degradation under load.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	cb, _ := circuitbreaker.New("api.example.com", circuitbreaker.WithListener(collector))
//
//	// Get metrics snapshot
//	snapshot := collector.Snapshot()
//
// The same events feed a per-collector Prometheus registry, exposed through
// Collector.PrometheusHandler, alongside the JSON snapshot handler.
// Snapshot state is guarded by sync.RWMutex and shutdown drains pending
// events to prevent data loss.
package metrics
