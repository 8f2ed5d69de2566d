package main

import (
	"net/http"

	"github.com/gary-lo/circuit-breaker/internal/handler"
	"github.com/gary-lo/circuit-breaker/internal/metrics"
)

func setupRouter(proxyHandler *handler.ProxyHandler, metricsCollector *metrics.Collector) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/", proxyHandler.ServeHTTP)
	mux.HandleFunc("/metrics", metricsCollector.Handler())
	mux.Handle("/metrics/prometheus", metricsCollector.PrometheusHandler())

	return mux
}
