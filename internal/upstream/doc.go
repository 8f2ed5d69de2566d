// Package upstream models the remote targets the proxy daemon forwards to.
// Each upstream owns a reverse proxy wired through the circuit breaker
// transport, so breaker rejections turn into immediate 503 responses
// instead of outbound connections.
package upstream
