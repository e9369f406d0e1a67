package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrCapacityUnavailable means the store could not admit an entry even
	// after evicting every candidate, e.g. a single value larger than the
	// whole cache.
	ErrCapacityUnavailable = errors.New("cache: capacity unavailable")

	// ErrEncodingFailed means the value could not be serialized for sizing
	// and mirroring.
	ErrEncodingFailed = errors.New("cache: encoding failed")
)

// StoreConfig holds configuration for the cache store.
type StoreConfig struct {
	// Capacity is the maximum total payload size in bytes.
	Capacity int64 `yaml:"capacity"`
	// DefaultTTL applies when Put is called with a zero TTL. Zero means
	// entries without an explicit TTL never expire.
	DefaultTTL time.Duration `yaml:"default_ttl"`
	// MirrorQueueSize bounds the write-behind queue to the durable mirror.
	MirrorQueueSize int `yaml:"mirror_queue_size"`
}

// DefaultStoreConfig returns sensible defaults.
func DefaultStoreConfig() *StoreConfig {
	return &StoreConfig{
		Capacity:        16 << 20, // 16 MiB
		DefaultTTL:      0,
		MirrorQueueSize: 256,
	}
}

// Stats is a point-in-time snapshot of store occupancy.
type Stats struct {
	SizeBytes        int64   `json:"size_bytes"`
	EntryCount       int     `json:"entry_count"`
	Capacity         int64   `json:"capacity"`
	UtilizationRatio float64 `json:"utilization_ratio"`
}

// JanitorReport summarizes one janitor pass.
type JanitorReport struct {
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	RemovedEntries int   `json:"removed_entries"`
}

// Store is a capacity- and TTL-bounded in-memory key/value store with
// usage-weighted eviction. All operations are short critical sections on a
// single mutex; nothing blocks on I/O while holding it.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	size       int64
	capacity   int64 // effective capacity, may be shrunk under pressure
	configured int64 // capacity to restore to

	mirror  *mirrorWriter
	metrics *StoreMetrics
	logger  *logrus.Logger

	defaultTTL time.Duration
	now        func() time.Time
}

// NewStore creates a store. The mirror is optional; pass nil to run purely
// in memory.
func NewStore(cfg *StoreConfig, mirror Mirror, logger *logrus.Logger) *Store {
	if cfg == nil {
		cfg = DefaultStoreConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Store{
		entries:    make(map[string]*entry),
		capacity:   cfg.Capacity,
		configured: cfg.Capacity,
		metrics:    &StoreMetrics{},
		logger:     logger,
		defaultTTL: cfg.DefaultTTL,
		now:        time.Now,
	}
	if mirror != nil {
		s.mirror = newMirrorWriter(mirror, cfg.MirrorQueueSize, s.metrics, logger)
	}
	return s
}

// Put stores value under key. The payload size is the serialized length,
// computed before admission. If admitting the entry would exceed capacity,
// lower-ranked entries are evicted first; if that still cannot make room
// the put fails with ErrCapacityUnavailable and the store is unchanged.
func (s *Store) Put(key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	size := int64(len(payload))

	if ttl == 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	now := s.now()

	if size > s.capacity {
		s.mu.Unlock()
		return fmt.Errorf("%w: entry of %d bytes exceeds capacity %d", ErrCapacityUnavailable, size, s.capacity)
	}

	// Replacing a key frees its old payload before accounting for the new one.
	if old, ok := s.entries[key]; ok {
		s.dropLocked(old, false)
	}

	if !s.evictLocked(size, now) {
		s.mu.Unlock()
		return fmt.Errorf("%w: could not free %d bytes", ErrCapacityUnavailable, size)
	}

	e := &entry{
		key:          key,
		value:        value,
		payload:      payload,
		createdAt:    now,
		lastAccessAt: now,
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	s.entries[key] = e
	s.size += size
	s.mu.Unlock()

	s.metrics.sets.Add(1)
	if s.mirror != nil {
		s.mirror.enqueueSet(key, payload, ttl)
	}
	return nil
}

// Get returns the value for key, or false on a miss. A present but expired
// entry counts as a miss and is removed as a side effect. A hit mutates
// entry metadata, so Get always takes the exclusive lock.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		s.metrics.misses.Add(1)
		return nil, false
	}

	now := s.now()
	if e.expired(now) {
		s.dropLocked(e, true)
		s.mu.Unlock()
		s.metrics.misses.Add(1)
		s.metrics.expirations.Add(1)
		return nil, false
	}

	e.lastAccessAt = now
	e.accessCount++
	v := e.value
	s.mu.Unlock()

	s.metrics.hits.Add(1)
	return v, true
}

// Remove deletes key. Removing an absent key is a no-op.
func (s *Store) Remove(key string) {
	s.mu.Lock()
	if e, ok := s.entries[key]; ok {
		s.dropLocked(e, true)
	}
	s.mu.Unlock()
}

// RunJanitorPass scans the whole store and removes expired entries.
// The caller owns the timer driving this; the store never sweeps on its own.
func (s *Store) RunJanitorPass() JanitorReport {
	s.mu.Lock()
	now := s.now()
	var report JanitorReport
	for _, e := range s.entries {
		if e.expired(now) {
			report.ReclaimedBytes += int64(len(e.payload))
			report.RemovedEntries++
			s.dropLocked(e, true)
		}
	}
	s.mu.Unlock()

	if report.RemovedEntries > 0 {
		s.metrics.expirations.Add(int64(report.RemovedEntries))
		s.logger.WithFields(logrus.Fields{
			"removed_entries": report.RemovedEntries,
			"reclaimed_bytes": report.ReclaimedBytes,
		}).Debug("Janitor pass completed")
	}
	return report
}

// ShrinkTo lowers the effective capacity and evicts down to it immediately.
// Used under critical resource pressure. The store never grows capacity
// back on its own; call RestoreCapacity for that.
func (s *Store) ShrinkTo(target int64) {
	s.mu.Lock()
	if target < 0 {
		target = 0
	}
	s.capacity = target
	s.evictLocked(0, s.now())
	s.mu.Unlock()

	s.logger.WithField("capacity", target).Info("Cache capacity shrunk")
}

// RestoreCapacity returns the effective capacity to its configured value.
func (s *Store) RestoreCapacity() {
	s.mu.Lock()
	s.capacity = s.configured
	s.mu.Unlock()

	s.logger.WithField("capacity", s.configured).Info("Cache capacity restored")
}

// Stats returns a snapshot of current occupancy.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		SizeBytes:  s.size,
		EntryCount: len(s.entries),
		Capacity:   s.capacity,
	}
	if s.capacity > 0 {
		st.UtilizationRatio = float64(s.size) / float64(s.capacity)
	}
	return st
}

// Metrics returns the store's cumulative counters.
func (s *Store) Metrics() StoreMetricsSnapshot {
	return s.metrics.Snapshot()
}

// Close stops the mirror writer, if any. The in-memory store needs no
// teardown.
func (s *Store) Close() {
	if s.mirror != nil {
		s.mirror.stop()
	}
}

// evictLocked frees room for needed extra bytes, lowest-ranked entries
// first. Ties go to the oldest createdAt so eviction order is
// deterministic. Reports whether enough room exists afterwards.
func (s *Store) evictLocked(needed int64, now time.Time) bool {
	if s.size+needed <= s.capacity {
		return true
	}

	candidates := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, j int) bool {
		si, sj := candidates[i].score(now), candidates[j].score(now)
		if si != sj {
			return si < sj
		}
		return candidates[i].createdAt.Before(candidates[j].createdAt)
	})

	for _, e := range candidates {
		if s.size+needed <= s.capacity {
			break
		}
		s.dropLocked(e, true)
		s.metrics.evictions.Add(1)
		s.logger.WithFields(logrus.Fields{
			"key":          e.key,
			"payload_size": len(e.payload),
		}).Debug("Evicted cache entry")
	}
	return s.size+needed <= s.capacity
}

// dropLocked removes an entry from accounting and optionally schedules the
// mirror delete.
func (s *Store) dropLocked(e *entry, mirrorDelete bool) {
	delete(s.entries, e.key)
	s.size -= int64(len(e.payload))
	if mirrorDelete && s.mirror != nil {
		s.mirror.enqueueDelete(e.key)
	}
}
