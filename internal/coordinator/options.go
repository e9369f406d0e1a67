package coordinator

import "time"

// Priority orders executions by importance. Under critical resource
// pressure low-priority work is shed outright; high-priority work always
// runs (rate limits permitting).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// ExecOptions controls a single Execute call.
type ExecOptions struct {
	// UseCache enables the read-through check and the write-back of a
	// successful result.
	UseCache bool
	// CacheTTL is the TTL for the write-back. Zero falls through to the
	// store's default.
	CacheTTL time.Duration
	// Priority feeds the load-shedding decision. Defaults to low; callers
	// that care should say so.
	Priority Priority
	// Retry enables multiple attempts with exponential backoff.
	Retry bool
}
