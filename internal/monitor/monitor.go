// Package monitor samples host resource usage while a load test runs.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"go.uber.org/zap"
)

// Sample is one reading of host resources.
type Sample struct {
	Timestamp         time.Time `json:"timestamp"`
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryPercent     float64   `json:"memory_percent"`
	DiskIO            DiskIO    `json:"disk_io"`
	NetworkIO         NetworkIO `json:"network_io"`
	ActiveConnections int       `json:"active_connections"`
}

// DiskIO holds cumulative counters summed over all disks.
type DiskIO struct {
	ReadCount  uint64 `json:"read_count"`
	WriteCount uint64 `json:"write_count"`
	ReadBytes  uint64 `json:"read_bytes"`
	WriteBytes uint64 `json:"write_bytes"`
	ReadTime   uint64 `json:"read_time"`
	WriteTime  uint64 `json:"write_time"`
}

// NetworkIO holds cumulative counters summed over all interfaces.
type NetworkIO struct {
	BytesSent   uint64 `json:"bytes_sent"`
	BytesRecv   uint64 `json:"bytes_recv"`
	PacketsSent uint64 `json:"packets_sent"`
	PacketsRecv uint64 `json:"packets_recv"`
	ErrIn       uint64 `json:"errin"`
	ErrOut      uint64 `json:"errout"`
	DropIn      uint64 `json:"dropin"`
	DropOut     uint64 `json:"dropout"`
}

// Source takes a sample. A partial sample may be returned with an error.
type Source interface {
	Sample(ctx context.Context) (Sample, error)
}

// HostSource reads the local host through gopsutil.
type HostSource struct {
	// CPUWindow is the CPU measurement window. Default: 1s
	CPUWindow time.Duration
}

// Sample implements Source.
func (h HostSource) Sample(ctx context.Context) (Sample, error) {
	window := h.CPUWindow
	if window <= 0 {
		window = time.Second
	}
	s := Sample{Timestamp: time.Now()}
	var errs []error

	if pct, err := cpu.PercentWithContext(ctx, window, false); err != nil {
		errs = append(errs, fmt.Errorf("cpu: %w", err))
	} else if len(pct) > 0 {
		s.CPUPercent = pct[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("memory: %w", err))
	} else {
		s.MemoryPercent = vm.UsedPercent
	}

	if counters, err := disk.IOCountersWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("disk io: %w", err))
	} else {
		for _, c := range counters {
			s.DiskIO.ReadCount += c.ReadCount
			s.DiskIO.WriteCount += c.WriteCount
			s.DiskIO.ReadBytes += c.ReadBytes
			s.DiskIO.WriteBytes += c.WriteBytes
			s.DiskIO.ReadTime += c.ReadTime
			s.DiskIO.WriteTime += c.WriteTime
		}
	}

	if counters, err := net.IOCountersWithContext(ctx, false); err != nil {
		errs = append(errs, fmt.Errorf("network io: %w", err))
	} else {
		for _, c := range counters {
			s.NetworkIO.BytesSent += c.BytesSent
			s.NetworkIO.BytesRecv += c.BytesRecv
			s.NetworkIO.PacketsSent += c.PacketsSent
			s.NetworkIO.PacketsRecv += c.PacketsRecv
			s.NetworkIO.ErrIn += c.Errin
			s.NetworkIO.ErrOut += c.Errout
			s.NetworkIO.DropIn += c.Dropin
			s.NetworkIO.DropOut += c.Dropout
		}
	}

	if conns, err := net.ConnectionsWithContext(ctx, "all"); err != nil {
		errs = append(errs, fmt.Errorf("connections: %w", err))
	} else {
		s.ActiveConnections = len(conns)
	}

	return s, errors.Join(errs...)
}

// Config configures a Monitor.
type Config struct {
	// Interval is the pause between samples. Default: 5s
	Interval time.Duration
	// Source defaults to HostSource.
	Source Source
	// Output receives one progress line per sample. Default: os.Stdout
	Output io.Writer
}

// Monitor collects samples until stopped.
type Monitor struct {
	interval time.Duration
	source   Source
	out      io.Writer
	log      *zap.Logger
}

// New creates a monitor.
func New(cfg Config, log *zap.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Source == nil {
		cfg.Source = HostSource{}
	}
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{interval: cfg.Interval, source: cfg.Source, out: cfg.Output, log: log}
}

// Collect samples until ctx is done and returns what it gathered.
func (m *Monitor) Collect(ctx context.Context) []Sample {
	fmt.Fprintln(m.out, "Performance monitoring started...")

	var samples []Sample
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return samples
		case <-timer.C:
		}

		s, err := m.source.Sample(ctx)
		if ctx.Err() != nil {
			return samples
		}
		if err != nil {
			m.log.Warn("incomplete host sample", zap.Error(err))
		}
		samples = append(samples, s)
		fmt.Fprintf(m.out, "CPU: %.1f%%, Memory: %.1f%%\n", s.CPUPercent, s.MemoryPercent)

		timer.Reset(m.interval)
	}
}

// Run collects until ctx is done and saves the samples to path, or to
// DefaultPath when path is empty.
func (m *Monitor) Run(ctx context.Context, path string) error {
	samples := m.Collect(ctx)
	if path == "" {
		path = DefaultPath(time.Now())
	}
	if err := Save(path, samples); err != nil {
		return err
	}
	fmt.Fprintf(m.out, "Performance monitoring stopped. %d metrics saved.\n", len(samples))
	m.log.Info("host metrics saved", zap.String("path", path), zap.Int("samples", len(samples)))
	return nil
}

// DefaultPath names the output file after the stop time.
func DefaultPath(t time.Time) string {
	return fmt.Sprintf("performance_metrics_%d.json", t.Unix())
}

// Save writes samples as an indented JSON array.
func Save(path string, samples []Sample) error {
	if samples == nil {
		samples = []Sample{}
	}
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding host metrics: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing host metrics: %w", err)
	}
	return nil
}
