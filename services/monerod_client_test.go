package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xmrstats/config"
	"xmrstats/models"
	"xmrstats/utils"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeDaemon answers json_rpc calls from canned chain data.
type fakeDaemon struct {
	count      uint64
	difficulty uint64
	headers    map[uint64]models.BlockHeader
	supply     string
	version    string
	failing    map[string]bool
	calls      atomic.Int64
}

func (d *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.calls.Add(1)

	var req struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	resp := map[string]interface{}{"jsonrpc": "2.0", "id": "0"}
	if d.failing[req.Method] {
		resp["error"] = map[string]interface{}{"code": -1, "message": "boom"}
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	switch req.Method {
	case "get_block_count":
		resp["result"] = map[string]interface{}{"count": d.count, "status": "OK"}
	case "get_difficulty":
		resp["result"] = map[string]interface{}{"difficulty": d.difficulty}
	case "get_block":
		var p struct {
			Height uint64 `json:"height"`
		}
		_ = json.Unmarshal(req.Params, &p)
		h, ok := d.headers[p.Height]
		if !ok {
			resp["error"] = map[string]interface{}{"code": -2, "message": "height too big"}
			break
		}
		resp["result"] = map[string]interface{}{"block_header": h}
	case "get_supply":
		supply := d.supply
		if supply == "" {
			supply = "0"
		}
		resp["result"] = json.RawMessage(`{"total_supply":` + supply + `}`)
	case "get_info":
		resp["result"] = map[string]interface{}{"version": d.version, "synchronized": true}
	default:
		resp["error"] = map[string]interface{}{"code": -32601, "message": "Method not found"}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestMonerodClient(t *testing.T, url string) *MonerodClient {
	t.Helper()
	cfg := config.Default()
	cfg.Monerod.RPCURL = url
	cfg.Monerod.Timeout = 2
	c := NewMonerodClient(cfg)
	c.now = func() time.Time { return fixedNow }
	return c
}

// chain builds headers for heights [top-n+1, top] spaced dt seconds apart.
func chain(top uint64, n int, dt int64, difficulty uint64) map[uint64]models.BlockHeader {
	headers := make(map[uint64]models.BlockHeader, n)
	base := fixedNow.Unix()
	for i := 0; i < n; i++ {
		h := top - uint64(i)
		headers[h] = models.BlockHeader{
			Height:     h,
			Timestamp:  base - int64(i)*dt,
			Difficulty: difficulty,
			Reward:     600_000_000_000,
		}
	}
	return headers
}

func TestRPCEndpoint(t *testing.T) {
	assert.Equal(t, "http://node:18081/json_rpc", rpcEndpoint("http://node:18081"))
	assert.Equal(t, "http://node:18081/json_rpc", rpcEndpoint("http://node:18081/"))
	assert.Equal(t, "http://node:18081/json_rpc", rpcEndpoint("http://node:18081/json_rpc"))
}

func TestRPCCallReturnsRPCError(t *testing.T) {
	d := &fakeDaemon{failing: map[string]bool{"get_block_count": true}}
	srv := httptest.NewServer(d)
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	_, err := c.BlockHeight(context.Background())
	require.Error(t, err)

	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, -1, pe.Code)
	assert.Equal(t, "boom", pe.Message)
	assert.Contains(t, err.Error(), "boom")
}

func TestRPCCallHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	_, err := c.Difficulty(context.Background())

	var pe *ProtocolError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.False(t, isRetryable(err))
}

func TestRPCCallRetriesServerErrors(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"0","result":{"count":42}}`))
	}))
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	c.attempts = 2

	height, err := c.BlockHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), height)
	assert.Equal(t, int64(2), hits.Load())
}

func TestRPCCallSendsBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rpcuser" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":"0","result":{"count":7}}`))
	}))
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	c.username, c.password = "rpcuser", "secret"

	height, err := c.BlockHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(7), height)
}

func TestNetworkHashrateFromDifficulty(t *testing.T) {
	d := &fakeDaemon{count: 100, difficulty: 1_200_000}
	srv := httptest.NewServer(d)
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	rate, err := c.NetworkHashrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "10.00 KH/s", rate)
}

func TestCalculateNetworkHashrateWeighted(t *testing.T) {
	d := &fakeDaemon{count: 100, difficulty: 1_200_000, headers: chain(99, 10, 120, 1_200_000)}
	srv := httptest.NewServer(d)
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	est, err := c.CalculateNetworkHashrate(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, models.HashrateMethodWeighted, est.Method)
	assert.Equal(t, 10, est.BlocksSampled)
	assert.InDelta(t, 10_000, est.HashrateNumber, 0.001)
	assert.Equal(t, "10.00 KH/s", est.Hashrate)
}

func TestCalculateNetworkHashrateFallsBackWithOneBlock(t *testing.T) {
	d := &fakeDaemon{count: 1, difficulty: 1_200_000, headers: chain(0, 1, 120, 1_200_000)}
	srv := httptest.NewServer(d)
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	est, err := c.CalculateNetworkHashrate(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, models.HashrateMethodDifficultyFallback, est.Method)
	assert.InDelta(t, 10_000, est.HashrateNumber, 0.001)
}

func TestCalculateNetworkHashrateFallsBackOnBlockError(t *testing.T) {
	// headers missing entirely, every get_block fails
	d := &fakeDaemon{count: 100, difficulty: 2_400_000}
	srv := httptest.NewServer(d)
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	est, err := c.CalculateNetworkHashrate(context.Background(), 10)
	require.NoError(t, err)

	assert.Equal(t, models.HashrateMethodDifficultyFallback, est.Method)
	assert.Equal(t, "20.00 KH/s", est.Hashrate)
}

func TestEstimateHashrate(t *testing.T) {
	_, err := estimateHashrate([]models.BlockSample{{Height: 1, Timestamp: 100, Difficulty: 10}})
	assert.ErrorIs(t, err, ErrInsufficientData)

	// newest interval 60s, older one 120s; weights 1 and 1/2
	blocks := []models.BlockSample{
		{Height: 3, Timestamp: 300, Difficulty: 1200},
		{Height: 2, Timestamp: 240, Difficulty: 1200},
		{Height: 1, Timestamp: 120, Difficulty: 1200},
	}
	est, err := estimateHashrate(blocks)
	require.NoError(t, err)

	want := (1200.0/60*1 + 1200.0/120*0.5) / 1.5
	assert.InDelta(t, want, est.HashrateNumber, 1e-9)
	assert.InDelta(t, 10.0, est.Simple, 1e-9)
	assert.InDelta(t, 1200.0/180, est.TimeBased, 1e-9)
	assert.Equal(t, 3, est.BlocksSampled)

	// non-positive intervals are skipped; none left means failure
	_, err = estimateHashrate([]models.BlockSample{
		{Height: 2, Timestamp: 100, Difficulty: 10},
		{Height: 1, Timestamp: 100, Difficulty: 10},
	})
	assert.Error(t, err)
}

func TestMonerodGetStatsConnected(t *testing.T) {
	d := &fakeDaemon{
		count:      100,
		difficulty: 1_200_000,
		headers:    chain(99, 10, 120, 1_200_000),
		supply:     "18000000000000000000",
		version:    "0.18.4.0-release",
	}
	srv := httptest.NewServer(d)
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	stats, err := c.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.DaemonStatusConnected, stats.Status)
	assert.Equal(t, uint64(100), stats.BlockHeight)
	assert.Equal(t, uint64(1_200_000), stats.Difficulty)
	assert.Equal(t, "10.00 KH/s", stats.NetworkHashrate)
	assert.Equal(t, "0.600000000000", stats.BlockReward)
	assert.Equal(t, "18000000.000000000000", stats.TotalSupply)
	assert.Equal(t, stats.TotalSupply, stats.CirculatingSupply)
	assert.Equal(t, fixedNow, stats.LastBlockTime)
	assert.Equal(t, TargetBlockTime, stats.AverageBlockTime)
	assert.Equal(t, utils.VersionStatusCurrent, stats.VersionStatus)
}

func TestMonerodGetStatsEmptyChainIsDisconnected(t *testing.T) {
	d := &fakeDaemon{count: 0, difficulty: 1_200_000, version: "0.18.4.0-release"}
	srv := httptest.NewServer(d)
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	stats, err := c.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.DaemonStatusDisconnected, stats.Status)
	assert.Equal(t, uint64(0), stats.BlockHeight)
	assert.Equal(t, uint64(1_200_000), stats.Difficulty)
	assert.Equal(t, "10.00 KH/s", stats.NetworkHashrate)
	assert.True(t, c.TestConnection(context.Background()))
}

func TestRPCCallSingleAttemptByDefault(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	_, err := c.BlockHeight(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(1), hits.Load())
}

func TestMonerodGetStatsPartialFailure(t *testing.T) {
	d := &fakeDaemon{
		count:      100,
		difficulty: 1_200_000,
		headers:    chain(99, 10, 120, 1_200_000),
		supply:     "0",
		failing:    map[string]bool{"get_supply": true, "get_info": true},
	}
	srv := httptest.NewServer(d)
	defer srv.Close()

	c := newTestMonerodClient(t, srv.URL)
	stats, err := c.GetStats(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.DaemonStatusConnected, stats.Status)
	assert.Equal(t, "0", stats.TotalSupply)
	assert.Equal(t, utils.VersionStatusUnknown, stats.VersionStatus)
}

func TestMonerodGetStatsUnreachableEqualsDefault(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := newTestMonerodClient(t, url)
	stats, err := c.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, c.DefaultStats(), stats)
}

func TestMonerodGetStatsCancelled(t *testing.T) {
	d := &fakeDaemon{count: 100, difficulty: 1}
	srv := httptest.NewServer(d)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestMonerodClient(t, srv.URL)
	stats, err := c.GetStats(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, c.DefaultStats(), stats)
}

// Connectivity means get_block_count succeeded, not that it returned a
// non-zero height: an unreachable daemon is reported as not connected while
// an empty chain still counts as reachable.
func TestMonerodTestConnection(t *testing.T) {
	d := &fakeDaemon{count: 0}
	srv := httptest.NewServer(d)
	c := newTestMonerodClient(t, srv.URL)
	assert.True(t, c.TestConnection(context.Background()))

	srv.Close()
	assert.False(t, c.TestConnection(context.Background()))
}
