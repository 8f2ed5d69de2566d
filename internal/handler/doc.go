// Package handler implements the main HTTP request handler for the proxy
// daemon. It resolves the upstream named by the request path and forwards
// through that upstream's breaker-guarded reverse proxy.
package handler
