package source

import (
	"context"
	"errors"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/model"
	"github.com/t77yq/kioskmon/internal/monitor"
)

// SystemConfig configures host metric collection
type SystemConfig struct {
	// DiskPath is the filesystem whose free space is reported
	DiskPath string

	// CPUSample is the window cpu usage is measured over
	CPUSample time.Duration
}

// SystemSource reads memory, cpu, disk and temperature from the local host
type SystemSource struct {
	logger *zap.Logger
	config SystemConfig

	memoryUsage func(ctx context.Context) (float64, error)
	cpuUsage    func(ctx context.Context) (float64, error)
	diskFree    func(ctx context.Context) (float64, error)
	temperature func(ctx context.Context) (float64, error)
}

// NewSystemSource creates a host metrics source
func NewSystemSource(config SystemConfig, logger *zap.Logger) *SystemSource {
	if config.DiskPath == "" {
		config.DiskPath = "/"
	}
	if config.CPUSample <= 0 {
		config.CPUSample = time.Second
	}

	s := &SystemSource{
		logger: logger.Named("system-source"),
		config: config,
	}
	s.memoryUsage = s.readMemory
	s.cpuUsage = s.readCPU
	s.diskFree = s.readDisk
	s.temperature = s.readTemperature
	return s
}

func (s *SystemSource) Name() string { return "system" }

// Fetch collects every metric. A metric that cannot be read is left absent;
// the fetch fails only when nothing could be read.
func (s *SystemSource) Fetch(ctx context.Context) (*model.Snapshot, error) {
	var errs error
	read := func(name string, fn func(ctx context.Context) (float64, error)) model.Reading {
		v, err := fn(ctx)
		if err != nil {
			s.logger.Debug("Failed to read metric", zap.String("metric", name), zap.Error(err))
			errs = multierr.Append(errs, err)
			return model.Reading{}
		}
		return model.Measured(v)
	}

	snapshot := &model.Snapshot{
		System: &model.SystemMetrics{
			MemoryUsage: read("memory", s.memoryUsage),
			CPUUsage:    read("cpu", s.cpuUsage),
			DiskSpace:   read("disk", s.diskFree),
		},
		Hardware: &model.Hardware{
			Temperature: read("temperature", s.temperature),
		},
	}

	if len(multierr.Errors(errs)) == 4 {
		return nil, &monitor.FetchError{Source: s.Name(), Err: errs}
	}
	return snapshot, nil
}

func (s *SystemSource) readMemory(ctx context.Context) (float64, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return v.UsedPercent, nil
}

func (s *SystemSource) readCPU(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, s.config.CPUSample, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, errors.New("no cpu samples")
	}
	return percents[0], nil
}

func (s *SystemSource) readDisk(ctx context.Context) (float64, error) {
	usage, err := disk.UsageWithContext(ctx, s.config.DiskPath)
	if err != nil {
		return 0, err
	}
	if usage.Total == 0 {
		return 0, errors.New("disk reports zero capacity")
	}
	return float64(usage.Free) / float64(usage.Total) * 100, nil
}

// readTemperature returns the hottest sensor. Sensor enumeration may return
// partial results alongside a warning error.
func (s *SystemSource) readTemperature(ctx context.Context) (float64, error) {
	temps, err := host.SensorsTemperaturesWithContext(ctx)
	var found bool
	var hottest float64
	for _, t := range temps {
		if t.Temperature <= 0 {
			continue
		}
		if !found || t.Temperature > hottest {
			hottest = t.Temperature
			found = true
		}
	}
	if found {
		return hottest, nil
	}
	if err == nil {
		err = errors.New("no temperature sensors")
	}
	return 0, err
}
