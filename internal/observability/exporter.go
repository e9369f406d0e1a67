// Package observability exports governor metrics in Prometheus format.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dev.mobile.governor/internal/governor"
	"dev.mobile.governor/internal/lifecycle"
)

// Exporter implements prometheus.Collector over a governor's snapshots.
// Collection is pull-based: component counters are atomics, so scraping
// never contends with the hot path.
type Exporter struct {
	gov *governor.Governor

	cacheSize        *prometheus.Desc
	cacheEntries     *prometheus.Desc
	cacheCapacity    *prometheus.Desc
	cacheUtilization *prometheus.Desc
	cacheHits        *prometheus.Desc
	cacheMisses      *prometheus.Desc
	cacheEvictions   *prometheus.Desc
	cacheExpirations *prometheus.Desc
	mirrorDrops      *prometheus.Desc
	mirrorErrors     *prometheus.Desc

	executions  *prometheus.Desc
	flightJoins *prometheus.Desc
	rateLimited *prometheus.Desc
	shed        *prometheus.Desc
	timeouts    *prometheus.Desc
	retries     *prometheus.Desc
	failures    *prometheus.Desc

	lifecycleState     *prometheus.Desc
	intervalMultiplier *prometheus.Desc
}

// NewExporter creates a collector for the given governor.
func NewExporter(gov *governor.Governor) *Exporter {
	return &Exporter{
		gov: gov,

		cacheSize:        prometheus.NewDesc("governor_cache_size_bytes", "Live cache payload bytes", nil, nil),
		cacheEntries:     prometheus.NewDesc("governor_cache_entries", "Live cache entry count", nil, nil),
		cacheCapacity:    prometheus.NewDesc("governor_cache_capacity_bytes", "Effective cache capacity", nil, nil),
		cacheUtilization: prometheus.NewDesc("governor_cache_utilization_ratio", "Cache size over capacity", nil, nil),
		cacheHits:        prometheus.NewDesc("governor_cache_hits_total", "Cache hits", nil, nil),
		cacheMisses:      prometheus.NewDesc("governor_cache_misses_total", "Cache misses", nil, nil),
		cacheEvictions:   prometheus.NewDesc("governor_cache_evictions_total", "Entries evicted for capacity", nil, nil),
		cacheExpirations: prometheus.NewDesc("governor_cache_expirations_total", "Entries removed by TTL", nil, nil),
		mirrorDrops:      prometheus.NewDesc("governor_mirror_drops_total", "Mirror writes dropped on overflow", nil, nil),
		mirrorErrors:     prometheus.NewDesc("governor_mirror_errors_total", "Mirror backend failures", nil, nil),

		executions:  prometheus.NewDesc("governor_executions_total", "Work executions completed", nil, nil),
		flightJoins: prometheus.NewDesc("governor_flight_joins_total", "Calls that joined an in-flight execution", nil, nil),
		rateLimited: prometheus.NewDesc("governor_rate_limited_total", "Calls refused by the rate limiter", nil, nil),
		shed:        prometheus.NewDesc("governor_shed_total", "Calls shed under critical pressure", nil, nil),
		timeouts:    prometheus.NewDesc("governor_timeouts_total", "Attempts abandoned on timeout", nil, nil),
		retries:     prometheus.NewDesc("governor_retries_total", "Retry attempts", nil, nil),
		failures:    prometheus.NewDesc("governor_failures_total", "Executions failed after retries", nil, nil),

		lifecycleState:     prometheus.NewDesc("governor_lifecycle_state", "Current lifecycle state (value is always 1)", []string{"phase", "pressure"}, nil),
		intervalMultiplier: prometheus.NewDesc("governor_interval_multiplier", "Current interval scaling factor", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(e, ch)
}

// Collect implements prometheus.Collector.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	snap := e.gov.Snapshot()

	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}

	gauge(e.cacheSize, float64(snap.Cache.SizeBytes))
	gauge(e.cacheEntries, float64(snap.Cache.EntryCount))
	gauge(e.cacheCapacity, float64(snap.Cache.Capacity))
	gauge(e.cacheUtilization, snap.Cache.UtilizationRatio)
	counter(e.cacheHits, snap.CacheTotals.Hits)
	counter(e.cacheMisses, snap.CacheTotals.Misses)
	counter(e.cacheEvictions, snap.CacheTotals.Evictions)
	counter(e.cacheExpirations, snap.CacheTotals.Expirations)
	counter(e.mirrorDrops, snap.CacheTotals.MirrorDrops)
	counter(e.mirrorErrors, snap.CacheTotals.MirrorErrors)

	counter(e.executions, snap.Coordinator.Executions)
	counter(e.flightJoins, snap.Coordinator.FlightJoins)
	counter(e.rateLimited, snap.Coordinator.RateLimited)
	counter(e.shed, snap.Coordinator.Shed)
	counter(e.timeouts, snap.Coordinator.Timeouts)
	counter(e.retries, snap.Coordinator.Retries)
	counter(e.failures, snap.Coordinator.Failures)

	e.collectState(ch, snap.State)
	gauge(e.intervalMultiplier, snap.Multiplier)
}

func (e *Exporter) collectState(ch chan<- prometheus.Metric, state lifecycle.State) {
	ch <- prometheus.MustNewConstMetric(
		e.lifecycleState, prometheus.GaugeValue, 1,
		state.Phase.String(), state.Pressure.String(),
	)
}

// Handler returns the scrape endpoint for a registry containing this
// exporter.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
