// Package metrics reports host vitals for the HEARTBEAT message: uptime,
// whole-system CPU percentage, and memory percentage.
package metrics

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Sampler implements supervisor.MetricsSampler using gopsutil. cpu.Percent
// needs one throwaway call before its first reading is meaningful, so
// NewSampler primes it at construction.
type Sampler struct {
	start time.Time
}

// NewSampler primes the CPU percentage counter and returns a ready Sampler.
func NewSampler() *Sampler {
	// Discard the first sample: with an interval of 0, cpu.Percent compares
	// against the last call, which doesn't exist yet.
	if _, err := cpu.Percent(0, false); err != nil {
		slog.Warn("priming CPU sampler failed", "error", err)
	}
	return &Sampler{start: time.Now()}
}

// Sample returns uptime (seconds since the Sampler was constructed), the
// whole-system CPU percentage, and the whole-system memory percentage.
func (s *Sampler) Sample() (uptime uint64, cpuPercent, memPercent float64) {
	uptime = uint64(time.Since(s.start).Seconds())

	percents, err := cpu.Percent(0, false)
	if err != nil {
		slog.Warn("sampling CPU failed", "error", err)
	} else if len(percents) > 0 {
		cpuPercent = percents[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		slog.Warn("sampling memory failed", "error", err)
	} else {
		memPercent = vm.UsedPercent
	}

	return uptime, cpuPercent, memPercent
}

// OSInfo returns a "<goos>/<goarch>" string, the same format config.Load
// formats on its own as the default os_info for the AUTH payload.
func OSInfo() string {
	return fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
}

// HostUptimeSeconds reports the OS-level uptime via gopsutil's host package,
// used only for diagnostic logging (the HEARTBEAT uptime field is the
// supervisor's own process uptime).
func HostUptimeSeconds() (uint64, error) {
	return host.Uptime()
}
