// Package metrics holds the Prometheus collectors of the consumer and API processes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names
const (
	MetricMessagesReceived         = "viewer_ingest_messages_received_total"
	MetricParseErrors              = "viewer_ingest_parse_errors_total"
	MetricEventsFlushed            = "viewer_ingest_events_flushed_total"
	MetricFlushFailures            = "viewer_ingest_flush_failures_total"
	MetricConsecutiveFlushFailures = "viewer_ingest_consecutive_flush_failures"
	MetricBufferedEvents           = "viewer_ingest_buffered_events"
	MetricFlushDuration            = "viewer_ingest_flush_duration_seconds"
	MetricQueryDuration            = "viewer_query_duration_seconds"
	MetricQueryErrors              = "viewer_query_errors_total"
	MetricCacheRequests            = "viewer_query_cache_requests_total"
	MetricSnapshotEvents           = "viewer_query_snapshot_events"
)

// Ingest contains the collectors of the ingestion buffer
type Ingest struct {
	messagesReceived         prometheus.Counter
	parseErrors              prometheus.Counter
	eventsFlushed            prometheus.Counter
	flushFailures            prometheus.Counter
	consecutiveFlushFailures prometheus.Gauge
	bufferedEvents           prometheus.Gauge
	flushDuration            prometheus.Histogram
}

// NewIngest creates the ingestion collectors. They are not registered; call Register.
func NewIngest() *Ingest {
	return &Ingest{
		messagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMessagesReceived,
			Help: "Total number of messages pulled from the message source",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricParseErrors,
			Help: "Total number of malformed messages that were discarded",
		}),
		eventsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricEventsFlushed,
			Help: "Total number of events durably written to the event log",
		}),
		flushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFlushFailures,
			Help: "Total number of failed batch writes",
		}),
		consecutiveFlushFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricConsecutiveFlushFailures,
			Help: "Number of batch writes that failed in a row since the last successful flush",
		}),
		bufferedEvents: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricBufferedEvents,
			Help: "Number of parsed events waiting in the ingestion buffer",
		}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricFlushDuration,
			Help:    "Histogram of batch write latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers all ingestion collectors with reg
func (m *Ingest) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all ingestion collectors
func (m *Ingest) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.messagesReceived,
		m.parseErrors,
		m.eventsFlushed,
		m.flushFailures,
		m.consecutiveFlushFailures,
		m.bufferedEvents,
		m.flushDuration,
	}
}

func (m *Ingest) IncMessagesReceived() { m.messagesReceived.Inc() }

func (m *Ingest) IncParseErrors() { m.parseErrors.Inc() }

// ObserveFlush records a successful flush of n events
func (m *Ingest) ObserveFlush(n int, seconds float64) {
	m.eventsFlushed.Add(float64(n))
	m.flushDuration.Observe(seconds)
	m.consecutiveFlushFailures.Set(0)
}

// ObserveFlushFailure records a failed flush and the current failure streak
func (m *Ingest) ObserveFlushFailure(consecutive int, seconds float64) {
	m.flushFailures.Inc()
	m.flushDuration.Observe(seconds)
	m.consecutiveFlushFailures.Set(float64(consecutive))
}

func (m *Ingest) SetBufferedEvents(n int) { m.bufferedEvents.Set(float64(n)) }

// Query contains the collectors of the analytics API
type Query struct {
	duration       *prometheus.HistogramVec
	errors         *prometheus.CounterVec
	cacheRequests  *prometheus.CounterVec
	snapshotEvents prometheus.Histogram
}

// NewQuery creates the query collectors. They are not registered; call Register.
func NewQuery() *Query {
	return &Query{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricQueryDuration,
			Help:    "Histogram of analytics query latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"query"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricQueryErrors,
			Help: "Total number of analytics queries that failed",
		}, []string{"query"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCacheRequests,
			Help: "Total number of query cache lookups by result",
		}, []string{"result"}),
		snapshotEvents: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricSnapshotEvents,
			Help:    "Histogram of events fetched per query snapshot",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		}),
	}
}

// Register registers all query collectors with reg
func (m *Query) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all query collectors
func (m *Query) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.duration,
		m.errors,
		m.cacheRequests,
		m.snapshotEvents,
	}
}

// ObserveQuery records the latency of one query and counts it as failed when err is set
func (m *Query) ObserveQuery(query string, seconds float64, err error) {
	m.duration.WithLabelValues(query).Observe(seconds)
	if err != nil {
		m.errors.WithLabelValues(query).Inc()
	}
}

// IncCache counts a cache lookup; hit selects the result label
func (m *Query) IncCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *Query) ObserveSnapshot(events int) { m.snapshotEvents.Observe(float64(events)) }
