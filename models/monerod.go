package models

import "time"

const (
	DaemonStatusConnected    = "connected"
	DaemonStatusDisconnected = "disconnected"

	HashrateMethodWeighted           = "weighted"
	HashrateMethodDifficultyFallback = "difficulty_fallback"
)

// DaemonStats is the normalized per-poll view of the monerod node
type DaemonStats struct {
	Status            string    `json:"status"`
	BlockHeight       uint64    `json:"blockHeight"`
	NetworkHashrate   string    `json:"networkHashrate"`
	Difficulty        uint64    `json:"difficulty"`
	LastBlockTime     time.Time `json:"lastBlockTime"`
	TotalSupply       string    `json:"totalSupply"`       // XMR, 12 decimals
	CirculatingSupply string    `json:"circulatingSupply"` // XMR, 12 decimals
	BlockReward       string    `json:"blockReward"`       // XMR, 12 decimals
	AverageBlockTime  int       `json:"averageBlockTime"`  // seconds
	Version           string    `json:"version"`
	VersionStatus     string    `json:"versionStatus"`
}

// LastBlockInfo holds the timestamp and reward of the chain tip
type LastBlockInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Reward    string    `json:"reward"`
}

// BlockSample is one block collected for hashrate estimation
type BlockSample struct {
	Height     uint64 `json:"height"`
	Timestamp  int64  `json:"timestamp"`
	Difficulty uint64 `json:"difficulty"`
}

// HashrateEstimate is the result of the multi-block network hashrate calculation
type HashrateEstimate struct {
	Hashrate       string  `json:"hashrate"`
	HashrateNumber float64 `json:"hashrateNumber"`
	Method         string  `json:"method"`

	// Diagnostics, only set by the weighted path
	Simple        float64 `json:"simple,omitempty"`
	TimeBased     float64 `json:"timeBased,omitempty"`
	BlocksSampled int     `json:"blocksSampled,omitempty"`
}
