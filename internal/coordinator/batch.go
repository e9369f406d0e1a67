package coordinator

import (
	"context"
	"sync"
)

// BatchItem is one unit of a batch: a keyed work function plus its
// per-call options.
type BatchItem struct {
	Key     string
	Work    WorkFunc
	Options ExecOptions
}

// BatchResult pairs an item's outcome with its input position.
type BatchResult struct {
	Value interface{}
	Err   error
}

// ExecuteBatch runs the items through the full Execute pipeline, at most
// MaxConcurrentBatch at a time. Results land at the index of their input
// item no matter which finishes first: a fixed-size window keeps ordering
// simple and predictable instead of a work-stealing pool.
func (c *Coordinator) ExecuteBatch(ctx context.Context, items []BatchItem) []BatchResult {
	results := make([]BatchResult, len(items))
	if len(items) == 0 {
		return results
	}

	window := c.cfg.MaxConcurrentBatch
	if window <= 0 {
		window = 1
	}
	slots := make(chan struct{}, window)

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, item BatchItem) {
			defer wg.Done()

			select {
			case slots <- struct{}{}:
				defer func() { <-slots }()
			case <-ctx.Done():
				results[i] = BatchResult{Err: ctx.Err()}
				return
			}

			v, err := c.Execute(ctx, item.Key, item.Work, item.Options)
			results[i] = BatchResult{Value: v, Err: err}
		}(i, item)
	}
	wg.Wait()

	return results
}
