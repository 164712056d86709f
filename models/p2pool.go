package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

const (
	PoolStatusActive   = "active"
	PoolStatusInactive = "inactive"
)

// PoolStats is the normalized per-poll view of the P2Pool API
type PoolStats struct {
	Status          string    `json:"status"`
	PoolHashrate    string    `json:"poolHashrate"`
	NetworkHashrate string    `json:"networkHashrate"`
	LiveHashrate    string    `json:"liveHashrate"`
	Miners          uint64    `json:"miners"`
	Workers         uint64    `json:"workers"`
	Shares          uint64    `json:"shares"`
	LastShareTime   time.Time `json:"lastShareTime"`
	Uptime          uint64    `json:"uptime"` // seconds
	PoolFee         float64   `json:"poolFee"`
	MinPayout       string    `json:"minPayout"` // XMR, 12 decimals
	TotalPaid       string    `json:"totalPaid"` // XMR, 12 decimals
	AverageEffort   float64   `json:"averageEffort"`
	CurrentEffort   float64   `json:"currentEffort"`
}

// ============================================
// Raw P2Pool API bodies. Pointers distinguish
// "absent" from zero for the fallback chains.
// ============================================

// GET /stats
type P2PoolStatsResponse struct {
	PoolHashrate    *float64   `json:"pool_hashrate"`
	NetworkHashrate *float64   `json:"network_hashrate"`
	LiveHashrate    *float64   `json:"live_hashrate"`
	Miners          *MinerList `json:"miners"`
	Workers         *Count     `json:"workers"`
	Shares          *Count     `json:"shares"`
	Uptime          *Count     `json:"uptime"`
	PoolFee         *float64   `json:"pool_fee"`
	MinPayout       *Count     `json:"min_payout"`
	TotalPaid       *Count     `json:"total_paid"`
	AverageEffort   *float64   `json:"average_effort"`
	CurrentEffort   *float64   `json:"current_effort"`
}

// GET /miners
type P2PoolMinersResponse struct {
	Miners  *MinerList `json:"miners"`
	Workers *Count     `json:"workers"`
}

// GET /network
type P2PoolNetworkResponse struct {
	NetworkHashrate *float64 `json:"network_hashrate"`
	Difficulty      *Count   `json:"difficulty"`
	Height          *Count   `json:"height"`
}

// Count is a non-negative integer field that tolerates fractional and
// quoted upstream values. Fractions are truncated, negatives become 0.
type Count uint64

func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	data = bytes.Trim(data, `"`)

	n := json.Number(data)
	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		*c = Count(u)
		return nil
	}
	f, err := n.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("expected a number, got %s", data)
	}
	switch {
	case f <= 0:
		*c = 0
	case f >= math.MaxUint64:
		*c = Count(math.MaxUint64)
	default:
		*c = Count(f)
	}
	return nil
}

type MinerEntry struct {
	Address       string  `json:"address,omitempty"`
	Hashrate      float64 `json:"hashrate,omitempty"`
	LastShareTime int64   `json:"last_share_time"` // unix seconds
}

// MinerList accepts either a bare count or an array of miner entries.
type MinerList struct {
	Count   uint64
	Entries []MinerEntry
	IsList  bool
}

func (m *MinerList) Len() uint64 {
	if m == nil {
		return 0
	}
	if m.IsList {
		return uint64(len(m.Entries))
	}
	return m.Count
}

func (m *MinerList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '[' {
		m.IsList = true
		return json.Unmarshal(data, &m.Entries)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("miners: expected array or number: %w", err)
	}
	f, err := n.Float64()
	if err != nil || f < 0 {
		return fmt.Errorf("miners: invalid count %q", n.String())
	}
	m.Count = uint64(f)
	return nil
}

func (m MinerList) MarshalJSON() ([]byte, error) {
	if m.IsList {
		return json.Marshal(m.Entries)
	}
	return json.Marshal(m.Count)
}
