package telemetry

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
	"go.opentelemetry.io/otel"
)

var perfMeter = otel.Meter("mmry-plugins/perf_stats")
var cpuGauge, _ = perfMeter.Float64Gauge("cpu_usage")
var processMemoryGauge, _ = perfMeter.Int64Gauge("process_rss_mb")
var memoryGauge, _ = perfMeter.Int64Gauge("allocated_mb")
var goroutineGauge, _ = perfMeter.Int64Gauge("goroutine_count")

// PerfStats is a single sample of the process's resource usage.
type PerfStats struct {
	CPUPercent  float64
	RSSMB       int64
	AllocatedMB int64
	Goroutines  int64
}

// ReadPerfStats samples the current process, cpu usage is measured since the
// previous call.
func ReadPerfStats(ctx context.Context) PerfStats {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	stats := PerfStats{
		AllocatedMB: int64(memStats.Alloc / 1_000_000),
		Goroutines:  int64(runtime.NumGoroutine()),
	}

	cpuUsage, err := cpu.PercentWithContext(ctx, 0, false)
	if err == nil && len(cpuUsage) > 0 {
		stats.CPUPercent = cpuUsage[0]
	} else if err != nil {
		slog.Debug("failed to read cpu usage", "err", err)
	}

	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err == nil {
		mem, err := proc.MemoryInfoWithContext(ctx)
		if err == nil {
			stats.RSSMB = int64(mem.RSS / 1_000_000)
		}
	}
	return stats
}

// InstrumentPerfStats records the process's resource usage every `interval`
// until ctx is done.
func InstrumentPerfStats(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := ReadPerfStats(ctx)
				cpuGauge.Record(ctx, stats.CPUPercent)
				processMemoryGauge.Record(ctx, stats.RSSMB)
				memoryGauge.Record(ctx, stats.AllocatedMB)
				goroutineGauge.Record(ctx, stats.Goroutines)
			case <-ctx.Done():
				return
			}
		}
	}()
}
