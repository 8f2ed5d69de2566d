package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/gary-lo/circuit-breaker/internal/circuitbreaker"
)

type EventType string

const (
	EventStateChanged    EventType = "state_changed"
	EventCounterUpdated  EventType = "counter_updated"
	EventRequestRejected EventType = "request_rejected"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Breaker   string
	From      circuitbreaker.State
	To        circuitbreaker.State
	Window    circuitbreaker.Snapshot
}

// Collector aggregates circuit breaker events into queryable metrics. It
// implements circuitbreaker.Listener: events are handed off through a
// buffered channel with non-blocking sends, so the request path is never
// slowed down by metrics bookkeeping; under overload events are dropped
// rather than queued.
type Collector struct {
	eventCh     chan Event
	metrics     *Metrics
	instruments *instruments
	logger      *slog.Logger
}

var _ circuitbreaker.Listener = (*Collector)(nil)

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh:     make(chan Event, bufferSize),
		metrics:     NewMetrics(),
		instruments: newInstruments(),
		logger:      logger,
	}
}

func (c *Collector) OnStateChanged(name string, from, to circuitbreaker.State) {
	c.emit(Event{
		Type:      EventStateChanged,
		Timestamp: time.Now(),
		Breaker:   name,
		From:      from,
		To:        to,
	})
}

func (c *Collector) OnCounterUpdated(name string, snapshot circuitbreaker.Snapshot) {
	c.emit(Event{
		Type:      EventCounterUpdated,
		Timestamp: time.Now(),
		Breaker:   name,
		Window:    snapshot,
	})
}

func (c *Collector) OnRequestRejected(name string) {
	c.emit(Event{
		Type:      EventRequestRejected,
		Timestamp: time.Now(),
		Breaker:   name,
	})
}

func (c *Collector) emit(event Event) {
	select {
	case c.eventCh <- event:
	default:
	}
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventStateChanged:
		c.metrics.RecordStateChange(event.Breaker, event.From, event.To)
		c.instruments.recordStateChange(event.Breaker, event.To)

	case EventCounterUpdated:
		c.metrics.RecordWindow(event.Breaker, event.Window)
		c.instruments.recordWindow(event.Breaker, event.Window)

	case EventRequestRejected:
		c.metrics.RecordRejection(event.Breaker)
		c.instruments.recordRejection(event.Breaker)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
