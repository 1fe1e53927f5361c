// metrics.go - Metrics collection for the EHR ledger node
package server

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
)

// NodeMetrics holds granular health metrics for the node.
type NodeMetrics struct {
	UptimeSeconds  int64   `json:"uptime_seconds"`
	BlockHeight    uint64  `json:"block_height"`
	CPULoadPercent float64 `json:"cpu_load_percent"`
	MemoryMB       float64 `json:"memory_mb"`
	DiskFreeMB     float64 `json:"disk_free_mb"`
	IdleSeconds    int64   `json:"idle_seconds"`
	LastBlockTime  string  `json:"last_block_time"`
	LastBlockHash  string  `json:"last_block_hash"`
	Sealing        bool    `json:"sealing"`
}

// GetNodeMetrics returns current health metrics for the node.
func (s *Server) GetNodeMetrics() NodeMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	diskFreeMB := 0.0
	dir := s.opts.DataDir
	if dir == "" {
		dir = "/"
	}
	if usage, err := disk.Usage(dir); err == nil {
		diskFreeMB = float64(usage.Free) / (1024 * 1024)
	}

	cpuLoad := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuLoad = pct[0]
	}

	tail := s.svc.Tail()
	return NodeMetrics{
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
		BlockHeight:    s.svc.Height(),
		CPULoadPercent: cpuLoad,
		MemoryMB:       float64(m.Alloc) / (1024 * 1024),
		DiskFreeMB:     diskFreeMB,
		IdleSeconds:    int64(time.Since(tail.Timestamp).Seconds()),
		LastBlockTime:  tail.Timestamp.Format(time.RFC3339),
		LastBlockHash:  tail.BlockHash,
		Sealing:        s.svc.Sealing(),
	}
}

// nodeStatus derives a summary status from metrics.
func (s *Server) nodeStatus(m NodeMetrics) string {
	switch {
	case !s.svc.TailIntact():
		return "degraded"
	case m.BlockHeight <= 1:
		return "initializing"
	default:
		return "healthy"
	}
}
