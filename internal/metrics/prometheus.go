package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "matchers"

var (
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds the metrics shared by the matcher services.
type Collector struct {
	registry *prometheus.Registry

	// Invocation metrics
	InvocationsTotal  *prometheus.CounterVec
	InvocationLatency *prometheus.HistogramVec
	ExecutionPrice    *prometheus.GaugeVec

	// Indexer metrics
	IndexedRecords  *prometheus.GaugeVec
	IndexerLastSlot prometheus.Gauge

	// Keeper metrics
	KeeperSyncsTotal    *prometheus.CounterVec
	KeeperSourceUpdates *prometheus.CounterVec

	// API metrics
	APIRequestsTotal    *prometheus.CounterVec
	WSConnectionsActive prometheus.Gauge
}

// GetCollector returns the process-wide collector.
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = NewCollector()
		collector.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return collector
}

// NewCollector builds a collector on its own registry.
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.InvocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "invocations_total",
			Help:      "Matcher invocations by program, opcode and outcome",
		},
		[]string{"program", "op", "result"},
	)
	c.InvocationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "invocation_seconds",
			Help:      "Matcher invocation latency including record load and commit",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
		[]string{"program", "op"},
	)
	c.ExecutionPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "executor",
			Name:      "execution_price",
			Help:      "Last execution price returned per context, e6 fixed point",
		},
		[]string{"program", "context"},
	)

	c.IndexedRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "records",
			Help:      "Context records seen in the last scan",
		},
		[]string{"program"},
	)
	c.IndexerLastSlot = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "last_slot",
			Help:      "Slot of the last completed scan",
		},
	)

	c.KeeperSyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "syncs_total",
			Help:      "Sync transactions by program and outcome",
		},
		[]string{"program", "result"},
	)
	c.KeeperSourceUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "keeper",
			Name:      "source_updates_total",
			Help:      "Observations received per signal source",
		},
		[]string{"source"},
	)

	c.APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "API requests by route and status code",
		},
		[]string{"route", "code"},
	)
	c.WSConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "ws_connections",
			Help:      "Open websocket connections",
		},
	)

	c.registerAll()
	return c
}

func (c *Collector) registerAll() {
	c.registry.MustRegister(
		c.InvocationsTotal,
		c.InvocationLatency,
		c.ExecutionPrice,
		c.IndexedRecords,
		c.IndexerLastSlot,
		c.KeeperSyncsTotal,
		c.KeeperSourceUpdates,
		c.APIRequestsTotal,
		c.WSConnectionsActive,
	)
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
