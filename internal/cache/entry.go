package cache

import "time"

// entry is a live cache record. Timestamps and the access counter mutate
// under the store mutex on every read, so even Get takes the write path.
type entry struct {
	key          string
	value        interface{}
	payload      []byte
	createdAt    time.Time
	lastAccessAt time.Time
	accessCount  int64
	expiresAt    time.Time // zero => no TTL
}

// expired reports whether the entry's TTL has elapsed at now.
func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// score ranks an entry for eviction: accesses per second of idle time.
// Higher means more valuable. An entry hammered a moment ago survives a
// single idle gap longer than one touched once at the same instant.
func (e *entry) score(now time.Time) float64 {
	idle := now.Sub(e.lastAccessAt).Seconds()
	if idle < 1 {
		idle = 1
	}
	return float64(e.accessCount) / idle
}
