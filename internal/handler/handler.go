package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gary-lo/circuit-breaker/internal/upstream"
)

// ProxyHandler routes requests to a named upstream: the first path segment
// selects the upstream and the remainder is forwarded through its guarded
// reverse proxy.
type ProxyHandler struct {
	logger    *slog.Logger
	upstreams map[string]*upstream.Upstream
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (h *ProxyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	name, rest := splitUpstreamPath(r.URL.Path)
	target, ok := h.upstreams[name]
	if !ok {
		h.logger.Warn("No such upstream",
			slog.String("from", clientIP),
			slog.String("upstream", name),
			slog.String("path", r.URL.Path))
		http.Error(w, "Unknown upstream", http.StatusNotFound)
		return
	}

	h.logger.Info("Forwarding to upstream",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("upstream", target.Name()),
		slog.String("path", rest),
		slog.String("user_agent", r.UserAgent()))

	r.URL.Path = rest
	w.Header().Set("X-Upstream", target.URL().String())

	start := time.Now()
	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
	target.ReverseProxy().ServeHTTP(wrapped, r)

	h.logger.Debug("Upstream response completed",
		slog.String("upstream", target.Name()),
		slog.Int("status", wrapped.statusCode),
		slog.Duration("duration", time.Since(start)))
}

// splitUpstreamPath splits "/name/rest/of/path" into ("name", "/rest/of/path").
func splitUpstreamPath(path string) (string, string) {
	trimmed := strings.TrimPrefix(path, "/")
	name, rest, found := strings.Cut(trimmed, "/")
	if !found {
		return name, "/"
	}
	return name, "/" + rest
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func NewProxyHandler(logger *slog.Logger, upstreams []*upstream.Upstream) *ProxyHandler {
	byName := make(map[string]*upstream.Upstream, len(upstreams))
	for _, u := range upstreams {
		byName[u.Name()] = u
	}

	return &ProxyHandler{
		logger:    logger,
		upstreams: byName,
	}
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
