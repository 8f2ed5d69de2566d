package upstream

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/gary-lo/circuit-breaker/internal/circuitbreaker"
)

// Upstream is a named remote target reached through a reverse proxy whose
// transport carries the circuit breaker. A rejected call surfaces here as
// circuitbreaker.ErrCircuitOpen and is answered with 503 without any remote
// I/O having happened.
type Upstream struct {
	name  string
	url   *url.URL
	proxy *httputil.ReverseProxy
}

// New creates an Upstream proxying to target through rt.
func New(name string, target *url.URL, rt http.RoundTripper, logger *slog.Logger) *Upstream {
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = rt
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
			logger.Warn("Upstream circuit open, failing fast",
				slog.String("upstream", name),
				slog.String("path", r.URL.Path))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":    "circuit open",
				"upstream": name,
			})
			return
		}

		logger.Error("Upstream request failed",
			slog.String("upstream", name),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}

	return &Upstream{
		name:  name,
		url:   target,
		proxy: proxy,
	}
}

// Name returns the upstream's configured name.
func (u *Upstream) Name() string {
	return u.name
}

// URL returns the upstream target URL.
func (u *Upstream) URL() *url.URL {
	return u.url
}

// ReverseProxy returns the HTTP reverse proxy for this upstream.
func (u *Upstream) ReverseProxy() *httputil.ReverseProxy {
	return u.proxy
}
