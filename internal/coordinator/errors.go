package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited means the action class exhausted its window budget.
	// There is no queuing; the caller backs off and retries later.
	ErrRateLimited = errors.New("coordinator: rate limit exceeded")

	// ErrTimeout means an attempt exceeded its allotted time. The
	// coordinator abandons waiting; it cannot stop the underlying work.
	ErrTimeout = errors.New("coordinator: attempt timed out")

	// ErrLoadShed means a low-priority execution was refused because the
	// process is under critical resource pressure.
	ErrLoadShed = errors.New("coordinator: load shed under pressure")
)

// WorkError wraps the underlying operation's own failure after retries are
// exhausted.
type WorkError struct {
	Key   string
	Cause error
}

func (e *WorkError) Error() string {
	return fmt.Sprintf("coordinator: work failed for %q: %v", e.Key, e.Cause)
}

func (e *WorkError) Unwrap() error {
	return e.Cause
}
