// Package metrics provides Prometheus collectors for the agreement engine.
// Every collector lives on a private registry so tests and multiple engines
// in one process never collide.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "agreements"

// Collector holds the engine's metrics.
type Collector struct {
	registry *prometheus.Registry

	// Command metrics
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	// Gateway metrics
	repliesTotal *prometheus.CounterVec

	// Ingestion metrics
	pollsTotal       *prometheus.CounterVec
	messagesIngested prometheus.Counter
	duplicatesTotal  prometheus.Counter

	// Event loop metrics
	queueDepth prometheus.Gauge
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "commands_total",
			Help:      "Commands handled, by command keyword and outcome",
		},
		[]string{"command", "outcome"},
	)

	c.commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "command_duration_seconds",
			Help:      "Time taken to handle a command",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"command"},
	)

	c.repliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "replies_total",
			Help:      "Replies emitted, by result (sent, duplicate, cannot_reply, error)",
		},
		[]string{"result"},
	)

	c.pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "polls_total",
			Help:      "Mention polls, by result",
		},
		[]string{"result"},
	)

	c.messagesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "messages_total",
		Help:      "Messages handed to the engine",
	})

	c.duplicatesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "duplicates_total",
		Help:      "Re-delivered messages skipped",
	})

	c.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "queue_depth",
		Help:      "Messages waiting in the event loop queue",
	})

	c.registry.MustRegister(
		c.commandsTotal,
		c.commandDuration,
		c.repliesTotal,
		c.pollsTotal,
		c.messagesIngested,
		c.duplicatesTotal,
		c.queueDepth,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// MustRegister adds extra collectors, such as store gauges, to the registry.
func (c *Collector) MustRegister(cs ...prometheus.Collector) {
	c.registry.MustRegister(cs...)
}

// RecordCommand records one handled command.
func (c *Collector) RecordCommand(command, outcome string, duration time.Duration) {
	c.commandsTotal.WithLabelValues(command, outcome).Inc()
	c.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordReply records the result of one emitted reply.
func (c *Collector) RecordReply(result string) {
	c.repliesTotal.WithLabelValues(result).Inc()
}

// RecordPoll records one mention poll.
func (c *Collector) RecordPoll(err error, messages, duplicates int) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.pollsTotal.WithLabelValues(result).Inc()
	c.messagesIngested.Add(float64(messages))
	c.duplicatesTotal.Add(float64(duplicates))
}

// RecordQueueDepth records the current event loop backlog.
func (c *Collector) RecordQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}
