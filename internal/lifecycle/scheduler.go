package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// SchedulerConfig holds scheduler tunables.
type SchedulerConfig struct {
	// SampleInterval is how often the pressure source is read.
	SampleInterval time.Duration `yaml:"sample_interval"`
	// LowThreshold and HighThreshold split the pressure ratio into
	// Normal (< low), Elevated (low..high) and Critical (>= high).
	LowThreshold  float64 `yaml:"low_threshold"`
	HighThreshold float64 `yaml:"high_threshold"`
	// Multipliers is the interval-scaling policy table.
	Multipliers MultiplierTable `yaml:"multipliers"`
}

// DefaultSchedulerConfig returns sensible defaults.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		SampleInterval: 15 * time.Second,
		LowThreshold:   0.6,
		HighThreshold:  0.85,
		Multipliers:    DefaultMultiplierTable(),
	}
}

// TransitionHook observes state changes. Hooks run synchronously on the
// goroutine that caused the transition; keep them short.
type TransitionHook func(from, to State)

// Scheduler tracks (phase, pressure) and serves the interval policy. It
// runs for the process lifetime; there is no terminal state.
type Scheduler struct {
	cfg    *SchedulerConfig
	source PressureSource
	logger *logrus.Logger

	// state is published as an immutable snapshot for lock-free reads.
	// mu serializes the writers: host lifecycle events and the sampler.
	mu          sync.Mutex
	state       atomic.Value // State
	multipliers atomic.Value // MultiplierTable

	hooks   []TransitionHook
	hooksMu sync.RWMutex

	tasks   map[string]*task
	tasksMu sync.Mutex

	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewScheduler creates a scheduler reading the given pressure source.
func NewScheduler(cfg *SchedulerConfig, source PressureSource, logger *logrus.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultSchedulerConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	s := &Scheduler{
		cfg:    cfg,
		source: source,
		logger: logger,
		tasks:  make(map[string]*task),
	}
	s.state.Store(State{Phase: PhaseForeground, Pressure: PressureNormal})
	s.multipliers.Store(cfg.Multipliers)
	return s
}

// Start launches the periodic pressure sampler. Safe to skip in tests
// that drive SamplePressure directly.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.sampleLoop(ctx)
}

// Stop halts the sampler and cancels every registered task.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	started := s.started
	s.started = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if started {
		cancel()
		<-done
	}

	s.tasksMu.Lock()
	for id, t := range s.tasks {
		close(t.stop)
		delete(s.tasks, id)
	}
	s.tasksMu.Unlock()
}

// CurrentState returns the state snapshot. Lock-free.
func (s *Scheduler) CurrentState() State {
	return s.state.Load().(State)
}

// IntervalMultiplier returns the scaling factor for the current state. It
// is a pure function of (phase, pressure); history plays no part.
func (s *Scheduler) IntervalMultiplier() float64 {
	return s.multipliers.Load().(MultiplierTable).For(s.CurrentState())
}

// OnForeground records a host foreground event.
func (s *Scheduler) OnForeground() {
	s.setPhase(PhaseForeground)
}

// OnBackground records a host background event.
func (s *Scheduler) OnBackground() {
	s.setPhase(PhaseBackground)
}

// OnTransition registers a hook fired on every state change.
func (s *Scheduler) OnTransition(hook TransitionHook) {
	s.hooksMu.Lock()
	s.hooks = append(s.hooks, hook)
	s.hooksMu.Unlock()
}

// SetMultipliers swaps the policy table, e.g. after a config reload.
func (s *Scheduler) SetMultipliers(table MultiplierTable) {
	s.multipliers.Store(table)
}

// SamplePressure reads the source once and folds the result into the
// state. Sampling failures never propagate: the last known level holds
// and the failure is logged.
func (s *Scheduler) SamplePressure(ctx context.Context) {
	ratio, err := s.source.Sample(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Pressure sample failed, holding last level")
		return
	}
	s.setPressure(s.classify(ratio))
}

func (s *Scheduler) classify(ratio float64) PressureLevel {
	switch {
	case ratio >= s.cfg.HighThreshold:
		return PressureCritical
	case ratio >= s.cfg.LowThreshold:
		return PressureElevated
	default:
		return PressureNormal
	}
}

func (s *Scheduler) setPhase(phase Phase) {
	s.transition(func(st State) State {
		st.Phase = phase
		return st
	})
}

func (s *Scheduler) setPressure(level PressureLevel) {
	s.transition(func(st State) State {
		st.Pressure = level
		return st
	})
}

// transition applies a mutation under the writer lock and fires hooks on
// actual changes, outside the lock.
func (s *Scheduler) transition(mutate func(State) State) {
	s.mu.Lock()
	from := s.state.Load().(State)
	to := mutate(from)
	if to == from {
		s.mu.Unlock()
		return
	}
	s.state.Store(to)
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"from": from.String(),
		"to":   to.String(),
	}).Info("Lifecycle transition")

	s.hooksMu.RLock()
	hooks := make([]TransitionHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(from, to)
	}
}

func (s *Scheduler) sampleLoop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SamplePressure(ctx)
		}
	}
}
