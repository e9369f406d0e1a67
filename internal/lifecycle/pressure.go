package lifecycle

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v3/mem"
)

// PressureSource yields a resource-pressure ratio in [0.0, 1.0]. The
// scheduler samples it periodically; implementations should be cheap and
// must never block for long.
type PressureSource interface {
	Sample(ctx context.Context) (float64, error)
}

// PressureSourceFunc adapts a plain function to PressureSource.
type PressureSourceFunc func(ctx context.Context) (float64, error)

func (f PressureSourceFunc) Sample(ctx context.Context) (float64, error) {
	return f(ctx)
}

// SystemMemorySource reports system-wide memory utilization via gopsutil.
// This is the default source on platforms where procfs-style accounting
// is available.
type SystemMemorySource struct{}

func (SystemMemorySource) Sample(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("sample virtual memory: %w", err)
	}
	return vm.UsedPercent / 100, nil
}

// HeapSource reports the process heap's utilization of a fixed budget.
// Useful where system-wide accounting is unavailable or misleading, e.g.
// inside tightly sandboxed mobile processes.
type HeapSource struct {
	// BudgetBytes is the heap size treated as 100% pressure.
	BudgetBytes uint64
}

func (h HeapSource) Sample(ctx context.Context) (float64, error) {
	if h.BudgetBytes == 0 {
		return 0, fmt.Errorf("heap source: zero budget")
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	ratio := float64(ms.HeapAlloc) / float64(h.BudgetBytes)
	if ratio > 1 {
		ratio = 1
	}
	return ratio, nil
}
