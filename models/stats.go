package models

import "time"

// SystemStats describes the running backend process. Never cached.
type SystemStats struct {
	Uptime      float64     `json:"uptime"` // seconds
	UptimeHuman string      `json:"uptimeHuman"`
	MemoryUsage MemoryUsage `json:"memoryUsage"`
	CPUUsage    CPUUsage    `json:"cpuUsage"`
	Timestamp   time.Time   `json:"timestamp"`
}

// MemoryUsage in megabytes
type MemoryUsage struct {
	Used     float64 `json:"used"`
	Total    float64 `json:"total"`
	External float64 `json:"external"`
}

// CPUUsage in CPU-seconds consumed by the process
type CPUUsage struct {
	User   float64 `json:"user"`
	System float64 `json:"system"`
}

// AggregatedStats is built fresh on every request from the cached sources
type AggregatedStats struct {
	Monerod     DaemonStats `json:"monerod"`
	P2Pool      PoolStats   `json:"p2pool"`
	System      SystemStats `json:"system"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

// ConnectionStatus reports upstream reachability
type ConnectionStatus struct {
	Monerod bool `json:"monerod"`
	P2Pool  bool `json:"p2pool"`
}

// CacheEntryStatus reports the age of a cached source
type CacheEntryStatus struct {
	Age   int64 `json:"age"` // milliseconds
	Valid bool  `json:"valid"`
}
