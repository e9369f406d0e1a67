package coordinator

import "sync/atomic"

// Metrics tracks cumulative coordinator activity.
type Metrics struct {
	executions         atomic.Int64
	cacheHits          atomic.Int64
	flightJoins        atomic.Int64
	rateLimited        atomic.Int64
	shed               atomic.Int64
	timeouts           atomic.Int64
	retries            atomic.Int64
	failures           atomic.Int64
	cacheWriteFailures atomic.Int64
}

// MetricsSnapshot is a consistent copy of the counters.
type MetricsSnapshot struct {
	Executions         int64 `json:"executions"`
	CacheHits          int64 `json:"cache_hits"`
	FlightJoins        int64 `json:"flight_joins"`
	RateLimited        int64 `json:"rate_limited"`
	Shed               int64 `json:"shed"`
	Timeouts           int64 `json:"timeouts"`
	Retries            int64 `json:"retries"`
	Failures           int64 `json:"failures"`
	CacheWriteFailures int64 `json:"cache_write_failures"`
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Executions:         m.executions.Load(),
		CacheHits:          m.cacheHits.Load(),
		FlightJoins:        m.flightJoins.Load(),
		RateLimited:        m.rateLimited.Load(),
		Shed:               m.shed.Load(),
		Timeouts:           m.timeouts.Load(),
		Retries:            m.retries.Load(),
		Failures:           m.failures.Load(),
		CacheWriteFailures: m.cacheWriteFailures.Load(),
	}
}
