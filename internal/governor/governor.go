// Package governor assembles the resource governor: cache store, request
// coordinator, and lifecycle scheduler wired as an explicit dependency
// graph. Nothing here is a process-wide singleton; construct as many
// governors as needed and tear them down independently.
package governor

import (
	"context"

	"github.com/sirupsen/logrus"

	"dev.mobile.governor/internal/cache"
	"dev.mobile.governor/internal/config"
	"dev.mobile.governor/internal/coordinator"
	"dev.mobile.governor/internal/lifecycle"
)

const janitorTaskID = "cache-janitor"

// Governor owns the component graph and the policies that tie the
// components together: the scheduler paces the cache janitor, critical
// pressure shrinks the cache and sheds low-priority work.
type Governor struct {
	Store       *cache.Store
	Coordinator *coordinator.Coordinator
	Scheduler   *lifecycle.Scheduler

	cfg    *config.Config
	logger *logrus.Logger
}

// New builds a governor with the pressure source selected by the config.
func New(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*Governor, error) {
	return NewWithPressureSource(ctx, cfg, newPressureSource(cfg), logger)
}

// NewWithPressureSource builds a governor around an explicit pressure
// source. Tests and host integrations with their own telemetry inject
// through here.
func NewWithPressureSource(ctx context.Context, cfg *config.Config, source lifecycle.PressureSource, logger *logrus.Logger) (*Governor, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logrus.New()
	}

	sched := lifecycle.NewScheduler(cfg.Scheduler, source, logger)

	var mirror cache.Mirror
	if cfg.Mirror.Enabled {
		m, err := cache.NewRedisMirror(ctx, &cfg.Mirror.Redis)
		if err != nil {
			// Mirroring is best-effort; a missing backend degrades to
			// memory-only operation instead of failing construction.
			logger.WithError(err).Warn("Durable mirror unavailable, running memory-only")
		} else {
			mirror = m
		}
	}

	store := cache.NewStore(cfg.Cache, mirror, logger)

	co := coordinator.New(cfg.Coordinator, store, logger)
	co.SetShedFunc(func() bool {
		return sched.CurrentState().Pressure == lifecycle.PressureCritical
	})

	g := &Governor{
		Store:       store,
		Coordinator: co,
		Scheduler:   sched,
		cfg:         cfg,
		logger:      logger,
	}
	sched.OnTransition(g.handleTransition)
	return g, nil
}

func newPressureSource(cfg *config.Config) lifecycle.PressureSource {
	if cfg != nil && cfg.Pressure.Source == "heap" {
		return lifecycle.HeapSource{BudgetBytes: cfg.Pressure.HeapBudgetBytes}
	}
	return lifecycle.SystemMemorySource{}
}

// Start launches the pressure sampler and registers the janitor task. The
// janitor is essential: expired entries must go even under critical
// pressure.
func (g *Governor) Start(ctx context.Context) error {
	g.Scheduler.Start(ctx)
	return g.Scheduler.RegisterTask(janitorTaskID, g.cfg.Janitor.BaseInterval, true, func(ctx context.Context) {
		g.Store.RunJanitorPass()
	})
}

// Stop tears the governor down: scheduler (and its tasks) first, then the
// store's mirror writer.
func (g *Governor) Stop() {
	g.Scheduler.Stop()
	g.Store.Close()
}

// handleTransition applies the capacity policy on critical-pressure
// edges. The store never resizes itself; this is the one place that
// tells it to.
func (g *Governor) handleTransition(from, to lifecycle.State) {
	enteredCritical := to.Pressure == lifecycle.PressureCritical && from.Pressure != lifecycle.PressureCritical
	leftCritical := from.Pressure == lifecycle.PressureCritical && to.Pressure != lifecycle.PressureCritical

	switch {
	case enteredCritical:
		target := int64(float64(g.cfg.Cache.Capacity) * g.cfg.Shrink.Ratio)
		g.logger.WithFields(logrus.Fields{
			"target": target,
			"state":  to.String(),
		}).Warn("Critical pressure, shrinking cache")
		g.Store.ShrinkTo(target)
	case leftCritical:
		g.Store.RestoreCapacity()
	}
}

// Snapshot aggregates component state for the ops surface.
type Snapshot struct {
	State       lifecycle.State             `json:"state"`
	Multiplier  float64                     `json:"interval_multiplier"`
	Cache       cache.Stats                 `json:"cache"`
	CacheTotals cache.StoreMetricsSnapshot  `json:"cache_totals"`
	Coordinator coordinator.MetricsSnapshot `json:"coordinator"`
}

// Snapshot returns a point-in-time view across all components.
func (g *Governor) Snapshot() Snapshot {
	return Snapshot{
		State:       g.Scheduler.CurrentState(),
		Multiplier:  g.Scheduler.IntervalMultiplier(),
		Cache:       g.Store.Stats(),
		CacheTotals: g.Store.Metrics(),
		Coordinator: g.Coordinator.Metrics(),
	}
}
