package workers

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Snapshot couples the registry view with the process footprint.
type Snapshot struct {
	domain.RegistryStats
	RSSBytes   uint64
	CPUPercent float64
}

// StatsReporter logs a Snapshot every interval.
type StatsReporter struct {
	log      *slog.Logger
	registry contract.IRegistry
	interval time.Duration
}

func NewStatsReporter(log *slog.Logger, registry contract.IRegistry, interval time.Duration) *StatsReporter {
	return &StatsReporter{log: log, registry: registry, interval: interval}
}

func (w *StatsReporter) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snapshot := w.Collect(p)
			w.log.Info("Relay stats",
				"sessions", snapshot.Sessions,
				"live_connections", snapshot.LiveConnections,
				"messages", snapshot.Messages,
				"rss_bytes", snapshot.RSSBytes,
				"cpu_percent", snapshot.CPUPercent)
		}
	}
}

// Collect never fails, process figures stay at zero when they cannot be read.
func (w *StatsReporter) Collect(p *process.Process) Snapshot {
	snapshot := Snapshot{RegistryStats: w.registry.Stats()}
	if p == nil {
		return snapshot
	}
	if mem, err := p.MemoryInfo(); err == nil {
		snapshot.RSSBytes = mem.RSS
	} else {
		w.log.Debug("Failed to read memory info", "error", err)
	}
	if cpu, err := p.CPUPercent(); err == nil {
		snapshot.CPUPercent = cpu
	} else {
		w.log.Debug("Failed to read cpu usage", "error", err)
	}
	return snapshot
}
