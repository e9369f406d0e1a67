package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteBatch_OrderPreserved(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	slow := func(d time.Duration, v string) WorkFunc {
		return func(ctx context.Context) (interface{}, error) {
			time.Sleep(d)
			return v, nil
		}
	}

	// f2 resolves well before f1; the result array still follows input order.
	items := []BatchItem{
		{Key: "batch:1", Work: slow(100*time.Millisecond, "r1")},
		{Key: "batch:2", Work: slow(5*time.Millisecond, "r2")},
		{Key: "batch:3", Work: slow(50*time.Millisecond, "r3")},
	}

	results := c.ExecuteBatch(context.Background(), items)
	require.Len(t, results, 3)
	assert.Equal(t, "r1", results[0].Value)
	assert.Equal(t, "r2", results[1].Value)
	assert.Equal(t, "r3", results[2].Value)
}

func TestExecuteBatch_WindowLimit(t *testing.T) {
	cfg := generousConfig()
	cfg.MaxConcurrentBatch = 2
	c, _ := newTestCoordinator(t, cfg)

	var running, peak atomic.Int64
	work := func(ctx context.Context) (interface{}, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	}

	items := make([]BatchItem, 8)
	for i := range items {
		items[i] = BatchItem{Key: fmt.Sprintf("win:%d", i), Work: work}
	}

	c.ExecuteBatch(context.Background(), items)
	assert.LessOrEqual(t, peak.Load(), int64(2), "no more than the window size runs at once")
}

func TestExecuteBatch_MixedOutcomes(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)

	boom := errors.New("boom")
	items := []BatchItem{
		{Key: "mix:ok", Work: func(ctx context.Context) (interface{}, error) { return 1, nil }},
		{Key: "mix:fail", Work: func(ctx context.Context) (interface{}, error) { return nil, boom }},
	}

	results := c.ExecuteBatch(context.Background(), items)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[0].Value)

	var we *WorkError
	require.ErrorAs(t, results[1].Err, &we)
	assert.Equal(t, boom, we.Cause)
}

func TestExecuteBatch_Empty(t *testing.T) {
	c, _ := newTestCoordinator(t, nil)
	results := c.ExecuteBatch(context.Background(), nil)
	assert.Empty(t, results)
}

func TestExecuteBatch_ContextCancelled(t *testing.T) {
	cfg := generousConfig()
	cfg.MaxConcurrentBatch = 1
	c, _ := newTestCoordinator(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())

	first := make(chan struct{})
	items := []BatchItem{
		{Key: "cancel:0", Work: func(ctx context.Context) (interface{}, error) {
			close(first)
			time.Sleep(100 * time.Millisecond)
			return "done", nil
		}},
		{Key: "cancel:1", Work: func(ctx context.Context) (interface{}, error) { return "never", nil }},
	}

	go func() {
		<-first
		cancel()
	}()

	results := c.ExecuteBatch(ctx, items)
	// The queued item never acquired a slot and reports the cancellation.
	require.Error(t, results[1].Err)
	assert.ErrorIs(t, results[1].Err, context.Canceled)
}
