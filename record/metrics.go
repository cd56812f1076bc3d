package record

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/CaliLuke/go-activerecord/storage"
)

const metricsNamespace = "activerecord"

// Collector exports identity cache counters and, when the engine keeps
// them, statement counters of a Database.
//
//	prometheus.MustRegister(record.NewCollector(db))
type Collector struct {
	db *Database

	cacheHits    *prometheus.Desc
	cacheMisses  *prometheus.Desc
	cacheEntries *prometheus.Desc
	statements   *prometheus.Desc
	slow         *prometheus.Desc
	errors       *prometheus.Desc
	seconds      *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector for db.
func NewCollector(db *Database) *Collector {
	return &Collector{
		db: db,
		cacheHits: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "cache", "hits_total"),
			"Identity cache lookups that returned a live instance.", nil, nil),
		cacheMisses: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "cache", "misses_total"),
			"Identity cache lookups that found no live instance.", nil, nil),
		cacheEntries: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "cache", "entries"),
			"Live instances held by the identity cache.", nil, nil),
		statements: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "storage", "statements_total"),
			"Statements executed by the storage engine.", []string{"kind"}, nil),
		slow: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "storage", "slow_statements_total"),
			"Statements that exceeded the slow threshold.", nil, nil),
		errors: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "storage", "errors_total"),
			"Statements that failed.", nil, nil),
		seconds: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "storage", "statement_seconds_total"),
			"Total time spent executing statements.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.cacheEntries
	ch <- c.statements
	ch <- c.slow
	ch <- c.errors
	ch <- c.seconds
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	cs := c.db.CacheStats()
	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(cs.Hits))
	ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(cs.Misses))
	ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(cs.Entries))

	sp, ok := c.db.engine.(storage.StatsProvider)
	if !ok {
		return
	}
	s := sp.QueryStats().Stats()
	ch <- prometheus.MustNewConstMetric(c.statements, prometheus.CounterValue, float64(s.TotalQueries), "query")
	ch <- prometheus.MustNewConstMetric(c.statements, prometheus.CounterValue, float64(s.TotalExecs), "exec")
	ch <- prometheus.MustNewConstMetric(c.slow, prometheus.CounterValue, float64(s.SlowQueries))
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(s.Errors))
	ch <- prometheus.MustNewConstMetric(c.seconds, prometheus.CounterValue, s.TotalDuration.Seconds())
}
