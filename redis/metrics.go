package redis

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments the dispatch path. The vectors are created
// unregistered; callers register them with their own registry.
type Metrics struct {
	CommandsExecuted *prometheus.CounterVec
	CommandDuration  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		CommandsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "redis_commands_total",
			Help: "Total number of dispatched commands",
		}, []string{"command", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "redis_command_duration_seconds",
			Help:    "Command round-trip time",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}, []string{"command"}),
	}
}

type poolStatsCollector struct {
	client *Client

	hits     *prometheus.Desc
	misses   *prometheus.Desc
	timeouts *prometheus.Desc

	totalConns *prometheus.Desc
	idleConns  *prometheus.Desc
	staleConns *prometheus.Desc
}

// NewPoolStatsCollector returns a collector exporting the connection pool
// counters of the given handle.
func NewPoolStatsCollector(client *Client, name string) prometheus.Collector {
	fqName := func(name string) string {
		return "redis_pool_" + name
	}

	return &poolStatsCollector{
		client: client,

		hits: prometheus.NewDesc(
			fqName("hits"),
			"Total number of times a free connection was found in the pool.",
			nil, prometheus.Labels{"name": name},
		),
		misses: prometheus.NewDesc(
			fqName("misses"),
			"Total number of times a free connection was NOT found in the pool.",
			nil, prometheus.Labels{"name": name},
		),
		timeouts: prometheus.NewDesc(
			fqName("timeouts"),
			"Total number of times a wait timeout occurred.",
			nil, prometheus.Labels{"name": name},
		),
		totalConns: prometheus.NewDesc(
			fqName("conns"),
			"Number of total connections in the pool.",
			nil, prometheus.Labels{"name": name},
		),
		idleConns: prometheus.NewDesc(
			fqName("idle_conns"),
			"Number of idle connections in the pool.",
			nil, prometheus.Labels{"name": name},
		),
		staleConns: prometheus.NewDesc(
			fqName("stale_conns"),
			"Total number of stale connections removed from the pool.",
			nil, prometheus.Labels{"name": name},
		),
	}
}

// Describe implements Collector.
func (c *poolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.timeouts
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.staleConns
}

// Collect implements Collector.
func (c *poolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.client.PoolStats()
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(stats.Misses))
	ch <- prometheus.MustNewConstMetric(c.timeouts, prometheus.CounterValue, float64(stats.Timeouts))
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stats.TotalConns))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stats.IdleConns))
	ch <- prometheus.MustNewConstMetric(c.staleConns, prometheus.CounterValue, float64(stats.StaleConns))
}
