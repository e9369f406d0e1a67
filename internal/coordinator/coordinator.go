package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"dev.mobile.governor/internal/cache"
)

// WorkFunc is a caller-supplied unit of asynchronous work. The context
// carries the per-attempt deadline; honoring it is advisory. The
// coordinator abandons waiting on timeout but cannot force the work to
// stop — cancellation semantics belong to the work's own implementation.
type WorkFunc func(ctx context.Context) (interface{}, error)

// Config holds coordinator tunables.
type Config struct {
	// AttemptTimeout bounds each attempt, not the whole retry sequence.
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	// MaxAttempts caps the attempts when ExecOptions.Retry is set.
	MaxAttempts int `yaml:"max_attempts"`
	// BackoffBase is the delay before the second attempt; it doubles for
	// each attempt after that.
	BackoffBase time.Duration `yaml:"backoff_base"`
	// MaxConcurrentBatch is the batch window size.
	MaxConcurrentBatch int `yaml:"max_concurrent_batch"`
	// RateLimit configures the per-class fixed windows.
	RateLimit *RateLimitConfig `yaml:"rate_limit"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		AttemptTimeout:     10 * time.Second,
		MaxAttempts:        3,
		BackoffBase:        200 * time.Millisecond,
		MaxConcurrentBatch: 4,
		RateLimit:          DefaultRateLimitConfig(),
	}
}

// ShedFunc reports whether the process is under enough pressure that
// non-essential work should be refused. Injected as a plain function so
// the coordinator carries no dependency on the lifecycle package.
type ShedFunc func() bool

// Coordinator wraps asynchronous work with caching, single-flight
// de-duplication, rate limiting, timeout, and retry. Construct one per
// governor; it owns its in-flight registry for its own lifetime.
type Coordinator struct {
	cfg     *Config
	store   *cache.Store
	limiter *rateLimiter
	flight  singleflight.Group
	shed    ShedFunc
	metrics *Metrics
	logger  *logrus.Logger

	sleep func(time.Duration) // backoff, replaceable in tests
}

// New creates a coordinator over the given cache store. The store may be
// nil when callers never set UseCache.
func New(cfg *Config, store *cache.Store, logger *logrus.Logger) *Coordinator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{
		cfg:     cfg,
		store:   store,
		limiter: newRateLimiter(cfg.RateLimit),
		metrics: &Metrics{},
		logger:  logger,
		sleep:   time.Sleep,
	}
}

// SetShedFunc installs the load-shedding probe. Optional; without it no
// execution is shed.
func (c *Coordinator) SetShedFunc(fn ShedFunc) {
	c.shed = fn
}

// Execute runs work under key with the full pipeline: cache, shedding,
// rate limit, single-flight, timeout/retry, write-back.
func (c *Coordinator) Execute(ctx context.Context, key string, work WorkFunc, opts ExecOptions) (interface{}, error) {
	// Cache hits are free: no rate-limit or in-flight interaction.
	if opts.UseCache && c.store != nil {
		if v, ok := c.store.Get(key); ok {
			c.metrics.cacheHits.Add(1)
			return v, nil
		}
	}

	// Shed before consuming rate budget: refused work should not count
	// against the window.
	if c.shed != nil && opts.Priority == PriorityLow && c.shed() {
		c.metrics.shed.Add(1)
		return nil, ErrLoadShed
	}

	class := actionClass(key)
	if !c.limiter.allow(class) {
		c.metrics.rateLimited.Add(1)
		c.logger.WithFields(logrus.Fields{
			"key":   key,
			"class": class,
		}).Debug("Rate limit exceeded")
		return nil, ErrRateLimited
	}

	// DoChan registers the in-flight entry atomically with the winner
	// decision and removes it before delivering results, so a caller
	// arriving after settlement starts a fresh execution.
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		return c.runAttempts(key, work, opts)
	})

	select {
	case res := <-ch:
		if res.Shared {
			c.metrics.flightJoins.Add(1)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val, nil
	case <-ctx.Done():
		// This caller gives up; the shared execution continues for any
		// remaining waiters.
		return nil, ctx.Err()
	}
}

// runAttempts drives the attempt loop. It runs inside the single-flight
// slot, so exactly one of these exists per key at a time.
func (c *Coordinator) runAttempts(key string, work WorkFunc, opts ExecOptions) (interface{}, error) {
	execID := uuid.New().String()
	attempts := 1
	if opts.Retry {
		attempts = c.cfg.MaxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			c.metrics.retries.Add(1)
			c.sleep(c.cfg.BackoffBase << (attempt - 2))
		}

		value, err := c.runOnce(work)
		if err == nil {
			c.metrics.executions.Add(1)
			c.writeBack(key, value, opts)
			return value, nil
		}

		lastErr = err
		c.logger.WithFields(logrus.Fields{
			"key":      key,
			"exec_id":  execID,
			"attempt":  attempt,
			"priority": opts.Priority.String(),
		}).WithError(err).Debug("Work attempt failed")
	}

	c.metrics.failures.Add(1)
	if lastErr == ErrTimeout {
		return nil, ErrTimeout
	}
	return nil, &WorkError{Key: key, Cause: lastErr}
}

// runOnce executes a single attempt under the per-attempt timeout. The
// attempt context is detached from any caller context: a shared execution
// must not die because one of its waiters went away.
func (c *Coordinator) runOnce(work WorkFunc) (interface{}, error) {
	attemptCtx, cancel := context.WithTimeout(context.Background(), c.cfg.AttemptTimeout)
	defer cancel()

	type outcome struct {
		value interface{}
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := work(attemptCtx)
		done <- outcome{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-attemptCtx.Done():
		c.metrics.timeouts.Add(1)
		return nil, ErrTimeout
	}
}

// writeBack stores a successful result. Failures are logged and absorbed:
// the primary value was already obtained.
func (c *Coordinator) writeBack(key string, value interface{}, opts ExecOptions) {
	if !opts.UseCache || c.store == nil {
		return
	}
	if err := c.store.Put(key, value, opts.CacheTTL); err != nil {
		c.metrics.cacheWriteFailures.Add(1)
		c.logger.WithError(err).WithField("key", key).Warn("Cache write-back failed")
	}
}

// Metrics returns the coordinator's cumulative counters.
func (c *Coordinator) Metrics() MetricsSnapshot {
	return c.metrics.Snapshot()
}
