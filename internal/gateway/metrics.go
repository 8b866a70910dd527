package gateway

import (
	"runtime"
	"time"
)

// SystemStats is the runtime snapshot pushed on the system channel and
// served on /api/system.
type SystemStats struct {
	HeapAllocMB float64 `json:"heap_alloc_mb"`
	SysMB       float64 `json:"sys_mb"`
	GCRuns      uint32  `json:"gc_runs"`
	Goroutines  int     `json:"goroutines"`
	CPUCores    int     `json:"cpu_cores"`
	UptimeSec   int64   `json:"uptime_sec"`
	WSClients   int     `json:"ws_clients"`
	LatencyP50  float64 `json:"latency_p50_ms"`
	LatencyP95  float64 `json:"latency_p95_ms"`
	LatencyP99  float64 `json:"latency_p99_ms"`
	TS          string  `json:"ts"`
}

// SystemStats gathers process stats and the hub's broadcast latency.
func (h *Hub) SystemStats(start time.Time) SystemStats {
	now := h.now()
	s := SystemStats{
		Goroutines: runtime.NumGoroutine(),
		CPUCores:   runtime.NumCPU(),
		UptimeSec:  int64(now.Sub(start).Seconds()),
		WSClients:  h.ClientCount(),
		TS:         now.UTC().Format(time.RFC3339Nano),
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.HeapAllocMB = float64(ms.HeapAlloc) / 1024 / 1024
	s.SysMB = float64(ms.Sys) / 1024 / 1024
	s.GCRuns = ms.NumGC

	s.LatencyP50, s.LatencyP95, s.LatencyP99 = h.Latency.Percentiles()
	return s
}
