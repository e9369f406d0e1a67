// Package cache provides the governor's bounded in-memory key/value store.
//
// The store is capacity- and TTL-bounded. Admission never exceeds the
// configured capacity: eviction happens before a new entry is accepted,
// so no over-capacity state is observable from outside.
//
// # Store
//
// Basic usage:
//
//	store := cache.NewStore(&cache.StoreConfig{
//	    Capacity:   10 << 20, // 10 MiB
//	    DefaultTTL: 30 * time.Minute,
//	}, nil, logger)
//	defer store.Close()
//
//	if err := store.Put("feed:home", payload, 5*time.Minute); err != nil {
//	    // cache full or value not serializable
//	}
//
//	if v, ok := store.Get("feed:home"); ok {
//	    // hit
//	}
//
// # Eviction
//
// Candidates are ranked by recency-weighted frequency: an entry read many
// times recently outranks an entry read once long ago, so the policy is
// deliberately not pure LRU. The lowest-ranked entries go first; ties fall
// to the oldest entry.
//
// # Janitor
//
// Expired entries are removed lazily on read and by RunJanitorPass, which
// an external timer drives. The store never schedules its own sweeps:
//
//	report := store.RunJanitorPass()
//	log.Printf("reclaimed %d bytes", report.ReclaimedBytes)
//
// # Durable mirror
//
// A Mirror is an optional, injected key/value backend the store copies
// writes into asynchronously. Mirroring is best-effort: queue overflow
// drops writes, mirror errors are logged and never surface to callers.
package cache
