package monitor

import (
	"context"
	"errors"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

type (
	// HostReading is the host-level part of a system snapshot
	HostReading struct {
		CPUPercent    float64
		MemoryPercent float64
	}

	// HostCollector reads host utilization
	HostCollector interface {
		Read(ctx context.Context) (HostReading, error)
	}

	// HostCollectorFunc adapts a function to the HostCollector interface
	HostCollectorFunc func(ctx context.Context) (HostReading, error)

	psutilCollector struct{}
)

// PSUtil reads cpu and memory utilization through gopsutil
var PSUtil HostCollector = psutilCollector{}

// Read calls f
func (f HostCollectorFunc) Read(ctx context.Context) (HostReading, error) {
	return f(ctx)
}

func (psutilCollector) Read(ctx context.Context) (HostReading, error) {
	var res HostReading
	var errs []error

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err != nil {
		errs = append(errs, err)
	} else if len(pct) > 0 {
		res.CPUPercent = pct[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, err)
	} else {
		res.MemoryPercent = vm.UsedPercent
	}
	return res, errors.Join(errs...)
}
