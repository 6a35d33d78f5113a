package api

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats собирает показатели процесса для /api/status
type ProcessStats struct {
	StartTime time.Time
	proc      *process.Process
}

// ProcessSnapshot - ответ с показателями процесса
type ProcessSnapshot struct {
	Uptime     string  `json:"uptime"`
	UptimeSec  int64   `json:"uptime_sec"`
	MemoryMB   float64 `json:"memory_mb"`
	HeapMB     float64 `json:"heap_mb"`
	CPUPercent float64 `json:"cpu_percent"`
	NumGC      uint32  `json:"num_gc"`
	Goroutines int     `json:"goroutines"`
}

// NewProcessStats создаёт сборщик. Если gopsutil не видит процесс,
// CPU просто не заполняется.
func NewProcessStats() *ProcessStats {
	ps := &ProcessStats{StartTime: time.Now()}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		ps.proc = proc
	}
	return ps
}

// Snapshot возвращает текущие показатели
func (ps *ProcessStats) Snapshot() ProcessSnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(ps.StartTime)
	snap := ProcessSnapshot{
		Uptime:     formatUptime(uptime),
		UptimeSec:  int64(uptime.Seconds()),
		MemoryMB:   float64(m.Alloc) / 1024 / 1024,
		HeapMB:     float64(m.HeapAlloc) / 1024 / 1024,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
	}
	if ps.proc != nil {
		if cpu, err := ps.proc.CPUPercent(); err == nil {
			snap.CPUPercent = cpu
		}
	}
	return snap
}

func formatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dд %dч %dм %dс", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	default:
		return fmt.Sprintf("%dс", seconds)
	}
}
