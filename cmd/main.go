package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gary-lo/circuit-breaker/config"
	"github.com/gary-lo/circuit-breaker/internal/circuitbreaker"
	"github.com/gary-lo/circuit-breaker/internal/handler"
	"github.com/gary-lo/circuit-breaker/internal/httpserver"
	"github.com/gary-lo/circuit-breaker/internal/metrics"
	"github.com/gary-lo/circuit-breaker/internal/outcome"
	"github.com/gary-lo/circuit-breaker/internal/transport"
	"github.com/gary-lo/circuit-breaker/internal/upstream"
	"github.com/gary-lo/circuit-breaker/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, true, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	collector := metrics.NewCollector(1024, log)
	collector.Start(ctx)

	mapping, err := initializeMapping(cfg.Breaker, collector, log)
	if err != nil {
		log.Error("Failed to initialize circuit breakers", slog.Any("err", err))
		os.Exit(1)
	}

	guarded := transport.New(http.DefaultTransport, mapping, outcome.Default(), log)

	upstreams, err := initializeUpstreams(cfg, guarded, log)
	if err != nil {
		log.Error("Failed to initialize upstreams", slog.Any("err", err))
		os.Exit(1)
	}

	proxyHandler := handler.NewProxyHandler(log, upstreams)

	srv, err := httpserver.New(cfg.Server.Address, setupRouter(proxyHandler, collector))
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting proxy", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// initializeMapping builds the keyed breaker mapping from config: every
// distinct key lazily gets its own breaker wired to the metrics collector.
func initializeMapping(bc config.BreakerConfig, collector *metrics.Collector, log *slog.Logger) (*circuitbreaker.Mapping, error) {
	opts, err := breakerOptions(bc)
	if err != nil {
		return nil, err
	}

	factory := func(key string) (*circuitbreaker.CircuitBreaker, error) {
		log.Info("Creating circuit breaker", slog.String("key", key))
		return circuitbreaker.New(key,
			append(opts,
				circuitbreaker.WithListener(collector),
				circuitbreaker.WithLogger(log),
			)...)
	}

	return circuitbreaker.NewMapping(selectKeyBy(bc.KeyBy), factory), nil
}

func breakerOptions(bc config.BreakerConfig) ([]circuitbreaker.Option, error) {
	durations := make(map[string]time.Duration, 4)
	for name, raw := range map[string]string{
		"trial_request_interval":  bc.TrialRequestInterval,
		"circuit_open_window":     bc.CircuitOpenWindow,
		"counter_sliding_window":  bc.CounterSlidingWindow,
		"counter_update_interval": bc.CounterUpdateInterval,
	} {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", name, err)
		}
		durations[name] = d
	}

	return []circuitbreaker.Option{
		circuitbreaker.WithFailureRateThreshold(bc.FailureRateThreshold),
		circuitbreaker.WithMinimumRequestThreshold(bc.MinimumRequestThreshold),
		circuitbreaker.WithTrialRequestInterval(durations["trial_request_interval"]),
		circuitbreaker.WithCircuitOpenWindow(durations["circuit_open_window"]),
		circuitbreaker.WithCounterSlidingWindow(durations["counter_sliding_window"]),
		circuitbreaker.WithCounterUpdateInterval(durations["counter_update_interval"]),
	}, nil
}

func selectKeyBy(keyBy string) circuitbreaker.KeySelector {
	switch keyBy {
	case config.KeyByMethod:
		return circuitbreaker.PerMethod
	case config.KeyByHostAndMethod:
		return circuitbreaker.PerHostAndMethod
	default:
		return circuitbreaker.PerHost
	}
}

func initializeUpstreams(cfg *config.Config, rt http.RoundTripper, log *slog.Logger) ([]*upstream.Upstream, error) {
	var upstreams []*upstream.Upstream

	for _, uc := range cfg.Upstreams {
		u, err := url.Parse(uc.URL)
		if err != nil {
			log.Error("Failed to parse upstream URL",
				slog.String("upstream", uc.Name),
				slog.String("url", uc.URL),
				slog.String("error", err.Error()))
			continue
		}

		upstreams = append(upstreams, upstream.New(uc.Name, u, rt, log))
	}

	if len(upstreams) == 0 {
		return nil, fmt.Errorf("no valid upstreams configured")
	}

	return upstreams, nil
}
