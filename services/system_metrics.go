package services

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"xmrstats/models"
)

const MB = 1024 * 1024

// ProcessMetrics exposes the running process's resource usage.
type ProcessMetrics interface {
	Uptime() time.Duration
	Memory() (models.MemoryUsage, error)
	CPU() (models.CPUUsage, error)
}

// GopsutilMetrics reads process metrics from the OS via gopsutil and from
// the Go runtime.
type GopsutilMetrics struct {
	started time.Time
	proc    *process.Process
}

func NewGopsutilMetrics() (*GopsutilMetrics, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open own process: %w", err)
	}

	started := time.Now()
	if createdMs, err := proc.CreateTime(); err == nil && createdMs > 0 {
		started = time.UnixMilli(createdMs)
	}

	return &GopsutilMetrics{started: started, proc: proc}, nil
}

func (m *GopsutilMetrics) Uptime() time.Duration {
	return time.Since(m.started)
}

// Memory reports heap in use (used), memory obtained from the OS by the Go
// runtime (total) and the resident set size (external).
func (m *GopsutilMetrics) Memory() (models.MemoryUsage, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	usage := models.MemoryUsage{
		Used:  float64(ms.HeapAlloc) / MB,
		Total: float64(ms.Sys) / MB,
	}

	info, err := m.proc.MemoryInfo()
	if err != nil {
		return usage, fmt.Errorf("failed to read process memory: %w", err)
	}
	usage.External = float64(info.RSS) / MB
	return usage, nil
}

func (m *GopsutilMetrics) CPU() (models.CPUUsage, error) {
	times, err := m.proc.Times()
	if err != nil {
		return models.CPUUsage{}, fmt.Errorf("failed to read process cpu times: %w", err)
	}
	return models.CPUUsage{User: times.User, System: times.System}, nil
}

// runtimeMetrics is used when the OS process cannot be inspected.
type runtimeMetrics struct {
	started time.Time
}

func (m runtimeMetrics) Uptime() time.Duration { return time.Since(m.started) }

func (m runtimeMetrics) Memory() (models.MemoryUsage, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return models.MemoryUsage{
		Used:  float64(ms.HeapAlloc) / MB,
		Total: float64(ms.Sys) / MB,
	}, nil
}

func (m runtimeMetrics) CPU() (models.CPUUsage, error) {
	return models.CPUUsage{}, fmt.Errorf("cpu times unavailable")
}

// NewProcessMetrics returns the gopsutil provider, or a runtime-only one if
// the process handle cannot be opened.
func NewProcessMetrics() ProcessMetrics {
	m, err := NewGopsutilMetrics()
	if err != nil {
		return runtimeMetrics{started: time.Now()}
	}
	return m
}
