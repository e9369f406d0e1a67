package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dev.mobile.governor/internal/config"
	"dev.mobile.governor/internal/coordinator"
	"dev.mobile.governor/internal/lifecycle"
)

type stubSource struct {
	mu    sync.Mutex
	ratio float64
}

func (s *stubSource) Sample(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ratio, nil
}

func (s *stubSource) set(ratio float64) {
	s.mu.Lock()
	s.ratio = ratio
	s.mu.Unlock()
}

func newTestGovernor(t *testing.T, mutate func(*config.Config)) (*Governor, *stubSource) {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := config.Default()
	cfg.Mirror.Enabled = false
	cfg.Cache.Capacity = 1000
	cfg.Janitor.BaseInterval = 10 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	source := &stubSource{}
	g, err := NewWithPressureSource(context.Background(), cfg, source, logger)
	require.NoError(t, err)
	t.Cleanup(g.Stop)
	return g, source
}

func TestGovernor_ComponentGraph(t *testing.T) {
	g, _ := newTestGovernor(t, nil)

	// The coordinator writes through to the governor's own store.
	v, err := g.Coordinator.Execute(context.Background(), "feed:1", func(ctx context.Context) (interface{}, error) {
		return "data", nil
	}, coordinator.ExecOptions{UseCache: true, CacheTTL: time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "data", v)

	cached, ok := g.Store.Get("feed:1")
	require.True(t, ok)
	assert.Equal(t, "data", cached)
}

func TestGovernor_CriticalPressureShrinksCache(t *testing.T) {
	g, source := newTestGovernor(t, nil)

	source.set(0.95)
	g.Scheduler.SamplePressure(context.Background())

	st := g.Store.Stats()
	assert.Equal(t, int64(500), st.Capacity, "cache shrinks to the configured ratio under critical pressure")

	// Leaving critical restores capacity; the store is told, it never
	// grows back on its own.
	source.set(0.1)
	g.Scheduler.SamplePressure(context.Background())
	assert.Equal(t, int64(1000), g.Store.Stats().Capacity)
}

func TestGovernor_ShedsLowPriorityUnderCritical(t *testing.T) {
	g, source := newTestGovernor(t, nil)

	source.set(0.95)
	g.Scheduler.SamplePressure(context.Background())

	_, err := g.Coordinator.Execute(context.Background(), "thumb:7", func(ctx context.Context) (interface{}, error) {
		return "bytes", nil
	}, coordinator.ExecOptions{Priority: coordinator.PriorityLow})
	require.ErrorIs(t, err, coordinator.ErrLoadShed)

	_, err = g.Coordinator.Execute(context.Background(), "auth:token", func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	}, coordinator.ExecOptions{Priority: coordinator.PriorityHigh})
	require.NoError(t, err)
}

func TestGovernor_JanitorRunsUnderScheduler(t *testing.T) {
	g, _ := newTestGovernor(t, nil)
	require.NoError(t, g.Start(context.Background()))

	require.NoError(t, g.Store.Put("ephemeral:1", "v", 10*time.Millisecond))

	require.Eventually(t, func() bool {
		return g.Store.Stats().EntryCount == 0
	}, 2*time.Second, 10*time.Millisecond, "scheduler-paced janitor sweeps expired entries")
}

func TestGovernor_Snapshot(t *testing.T) {
	g, _ := newTestGovernor(t, nil)

	require.NoError(t, g.Store.Put("k", "v", 0))
	g.Store.Get("k")

	snap := g.Snapshot()
	assert.Equal(t, lifecycle.PhaseForeground, snap.State.Phase)
	assert.Equal(t, 1.0, snap.Multiplier)
	assert.Equal(t, 1, snap.Cache.EntryCount)
	assert.Equal(t, int64(1), snap.CacheTotals.Hits)
}

func TestGovernor_MirrorUnavailableDegrades(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	cfg := config.Default()
	cfg.Mirror.Enabled = true
	cfg.Mirror.Redis.Addr = "127.0.0.1:1" // nothing listens here

	g, err := NewWithPressureSource(context.Background(), cfg, &stubSource{}, logger)
	require.NoError(t, err, "missing mirror backend must not fail construction")
	t.Cleanup(g.Stop)

	require.NoError(t, g.Store.Put("k", "v", 0))
}
