package coordinator

import (
	"strings"
	"sync"
	"time"
)

// RateLimitRule bounds one action class to MaxRequests per Window.
type RateLimitRule struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
}

// RateLimitConfig holds the default rule plus per-class overrides.
type RateLimitConfig struct {
	Default  RateLimitRule            `yaml:"default"`
	PerClass map[string]RateLimitRule `yaml:"per_class"`
}

// DefaultRateLimitConfig returns sensible defaults.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Default: RateLimitRule{MaxRequests: 30, Window: time.Minute},
	}
}

type rateWindow struct {
	start time.Time
	count int
}

// rateLimiter implements fixed-window counting per action class. The
// window rolls over atomically under the mutex: a new window's start and a
// zeroed count are installed together, never piecemeal.
type rateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	cfg     *RateLimitConfig
	now     func() time.Time
}

func newRateLimiter(cfg *RateLimitConfig) *rateLimiter {
	if cfg == nil {
		cfg = DefaultRateLimitConfig()
	}
	return &rateLimiter{
		windows: make(map[string]*rateWindow),
		cfg:     cfg,
		now:     time.Now,
	}
}

func (rl *rateLimiter) rule(class string) RateLimitRule {
	if r, ok := rl.cfg.PerClass[class]; ok {
		return r
	}
	return rl.cfg.Default
}

// allow consumes one slot from the class window, reporting false when the
// window is already at its maximum.
func (rl *rateLimiter) allow(class string) bool {
	rule := rl.rule(class)
	if rule.MaxRequests <= 0 {
		return true // unlimited
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[class]
	if !ok || now.Sub(w.start) >= rule.Window {
		w = &rateWindow{start: now}
		rl.windows[class] = w
	}

	if w.count >= rule.MaxRequests {
		return false
	}
	w.count++
	return true
}

// actionClass maps a cache key to its rate-limit class: everything before
// the first ':', or the whole key when there is no separator. Classes are
// coarser than keys on purpose; one class covers a request family.
func actionClass(key string) string {
	if i := strings.Index(key, ":"); i > 0 {
		return key[:i]
	}
	return key
}
