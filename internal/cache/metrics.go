package cache

import "sync/atomic"

// StoreMetrics tracks cumulative store activity. Counters are atomics so
// reads never contend with the store mutex.
type StoreMetrics struct {
	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64

	mirrorWrites atomic.Int64
	mirrorDrops  atomic.Int64
	mirrorErrors atomic.Int64
}

// StoreMetricsSnapshot is a consistent copy of the counters.
type StoreMetricsSnapshot struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Sets         int64 `json:"sets"`
	Evictions    int64 `json:"evictions"`
	Expirations  int64 `json:"expirations"`
	MirrorWrites int64 `json:"mirror_writes"`
	MirrorDrops  int64 `json:"mirror_drops"`
	MirrorErrors int64 `json:"mirror_errors"`
}

// Snapshot copies the current counter values.
func (m *StoreMetrics) Snapshot() StoreMetricsSnapshot {
	return StoreMetricsSnapshot{
		Hits:         m.hits.Load(),
		Misses:       m.misses.Load(),
		Sets:         m.sets.Load(),
		Evictions:    m.evictions.Load(),
		Expirations:  m.expirations.Load(),
		MirrorWrites: m.mirrorWrites.Load(),
		MirrorDrops:  m.mirrorDrops.Load(),
		MirrorErrors: m.mirrorErrors.Load(),
	}
}

// HitRate returns hits / (hits + misses), or 0 when the store is untouched.
func (s StoreMetricsSnapshot) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
