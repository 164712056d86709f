package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"xmrstats/config"
	"xmrstats/models"
	"xmrstats/utils"
)

const (
	// TargetBlockTime is the Monero block target in seconds.
	TargetBlockTime = 120

	DefaultHashrateBlockCount = 10
	defaultUpstreamTimeout    = 10 * time.Second

	zeroHashrate  = "0 H/s"
	sourceMonerod = "monerod"
)

var jsonAPI = sonic.ConfigStd

type MonerodClient struct {
	url        string
	username   string
	password   string
	attempts   int
	blockCount int
	versions   utils.VersionConfig
	httpClient *http.Client
	now        func() time.Time
}

func NewMonerodClient(cfg *config.Config) *MonerodClient {
	timeout := cfg.MonerodTimeoutDuration()
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}

	blockCount := cfg.Monerod.HashrateBlockCount
	if blockCount <= 0 {
		blockCount = DefaultHashrateBlockCount
	}

	return &MonerodClient{
		url:        rpcEndpoint(cfg.Monerod.RPCURL),
		username:   cfg.Monerod.Username,
		password:   cfg.Monerod.Password,
		attempts:   cfg.Monerod.Attempts,
		blockCount: blockCount,
		versions: utils.VersionConfig{
			CurrentStable: cfg.Version.CurrentStable,
			MinSupported:  cfg.Version.MinSupported,
		},
		httpClient: newUpstreamHTTPClient(timeout),
		now:        time.Now,
	}
}

func newUpstreamHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     30 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}
}

// rpcEndpoint turns a daemon base URL into its json_rpc endpoint.
func rpcEndpoint(base string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if strings.HasSuffix(base, "/json_rpc") {
		return base
	}
	return base + "/json_rpc"
}

func (c *MonerodClient) logger() *log.Entry {
	return log.WithField("source", sourceMonerod)
}

// RPCCall performs one JSON-RPC call and decodes the result into out (if non-nil).
func (c *MonerodClient) RPCCall(ctx context.Context, method string, params interface{}, out interface{}) error {
	reqBody := models.RPCRequest{
		JSONRPC: "2.0",
		ID:      "0",
		Method:  method,
		Params:  params,
	}

	jsonData, err := jsonAPI.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	attempts := c.attempts
	if attempts <= 0 {
		attempts = 1
	}

	var body []byte
	delay := 200 * time.Millisecond
	for i := 0; i < attempts; i++ {
		body, err = c.post(ctx, method, jsonData)
		if err == nil || !isRetryable(err) || ctx.Err() != nil {
			break
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
			delay *= 2
		}
	}
	if err != nil {
		return err
	}

	var rpcResp models.RPCResponse
	if err := jsonAPI.Unmarshal(body, &rpcResp); err != nil {
		return &ProtocolError{Source: sourceMonerod, Op: method, Err: fmt.Errorf("decode response: %w", err)}
	}

	if rpcResp.Error != nil {
		return &ProtocolError{
			Source:  sourceMonerod,
			Op:      method,
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
		}
	}

	if out == nil {
		return nil
	}
	if err := jsonAPI.Unmarshal(rpcResp.Result, out); err != nil {
		return &ProtocolError{Source: sourceMonerod, Op: method, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

func (c *MonerodClient) post(ctx context.Context, method string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.username != "" || c.password != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Source: sourceMonerod, Op: method, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Source: sourceMonerod, Op: method, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProtocolError{Source: sourceMonerod, Op: method, StatusCode: resp.StatusCode}
	}
	return body, nil
}

func (c *MonerodClient) BlockHeight(ctx context.Context) (uint64, error) {
	var res models.BlockCountResult
	if err := c.RPCCall(ctx, "get_block_count", nil, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

func (c *MonerodClient) Difficulty(ctx context.Context) (uint64, error) {
	var res models.DifficultyResult
	if err := c.RPCCall(ctx, "get_difficulty", nil, &res); err != nil {
		return 0, err
	}
	return res.Difficulty, nil
}

// NetworkHashrate derives the hashrate from the current difficulty alone.
func (c *MonerodClient) NetworkHashrate(ctx context.Context) (string, error) {
	difficulty, err := c.Difficulty(ctx)
	if err != nil {
		return zeroHashrate, err
	}
	return utils.FormatHashrate(float64(difficulty) / TargetBlockTime), nil
}

func (c *MonerodClient) BlockHeader(ctx context.Context, height uint64) (models.BlockHeader, error) {
	var res models.BlockResult
	params := map[string]uint64{"height": height}
	if err := c.RPCCall(ctx, "get_block", params, &res); err != nil {
		return models.BlockHeader{}, err
	}
	return res.BlockHeader, nil
}

// CalculateNetworkHashrate estimates the network hashrate from the last
// blockCount blocks. The weighted estimator is authoritative; any failure on
// that path falls back to difficulty/120.
func (c *MonerodClient) CalculateNetworkHashrate(ctx context.Context, blockCount int) (models.HashrateEstimate, error) {
	if blockCount <= 0 {
		blockCount = c.blockCount
	}

	blocks, err := c.collectBlocks(ctx, blockCount)
	if err == nil {
		var est models.HashrateEstimate
		est, err = estimateHashrate(blocks)
		if err == nil {
			return est, nil
		}
	}

	c.logger().WithError(err).Warn("Weighted hashrate calculation failed, falling back to difficulty")

	difficulty, derr := c.Difficulty(ctx)
	if derr != nil {
		return models.HashrateEstimate{Hashrate: zeroHashrate, Method: models.HashrateMethodDifficultyFallback},
			fmt.Errorf("difficulty fallback: %w", derr)
	}

	rate := float64(difficulty) / TargetBlockTime
	return models.HashrateEstimate{
		Hashrate:       utils.FormatHashrate(rate),
		HashrateNumber: rate,
		Method:         models.HashrateMethodDifficultyFallback,
	}, nil
}

// collectBlocks walks backwards from the chain tip, one request at a time.
func (c *MonerodClient) collectBlocks(ctx context.Context, blockCount int) ([]models.BlockSample, error) {
	count, err := c.BlockHeight(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrInsufficientData
	}

	top := count - 1
	blocks := make([]models.BlockSample, 0, blockCount)
	for i := 0; i < blockCount; i++ {
		if uint64(i) > top {
			break
		}
		header, err := c.BlockHeader(ctx, top-uint64(i))
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, models.BlockSample{
			Height:     header.Height,
			Timestamp:  header.Timestamp,
			Difficulty: header.Difficulty,
		})
	}
	return blocks, nil
}

// estimateHashrate expects blocks ordered newest first.
func estimateHashrate(blocks []models.BlockSample) (models.HashrateEstimate, error) {
	if len(blocks) < 2 {
		return models.HashrateEstimate{}, ErrInsufficientData
	}

	simple := float64(blocks[0].Difficulty) / TargetBlockTime

	var weightedSum, totalWeight float64
	for i := 0; i < len(blocks)-1; i++ {
		dt := blocks[i].Timestamp - blocks[i+1].Timestamp
		if dt <= 0 {
			continue
		}
		weight := 1 / float64(i+1)
		weightedSum += float64(blocks[i].Difficulty) / float64(dt) * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return models.HashrateEstimate{}, fmt.Errorf("no positive block intervals in %d blocks", len(blocks))
	}
	weighted := weightedSum / totalWeight

	var timeBased float64
	span := blocks[0].Timestamp - blocks[len(blocks)-1].Timestamp
	if span > 0 {
		var sumDifficulty float64
		for _, b := range blocks {
			sumDifficulty += float64(b.Difficulty)
		}
		timeBased = sumDifficulty / float64(len(blocks)) / float64(span)
	}

	return models.HashrateEstimate{
		Hashrate:       utils.FormatHashrate(weighted),
		HashrateNumber: weighted,
		Method:         models.HashrateMethodWeighted,
		Simple:         simple,
		TimeBased:      timeBased,
		BlocksSampled:  len(blocks),
	}, nil
}

func (c *MonerodClient) LastBlockInfo(ctx context.Context) (models.LastBlockInfo, error) {
	count, err := c.BlockHeight(ctx)
	if err != nil {
		return models.LastBlockInfo{}, err
	}
	if count == 0 {
		return models.LastBlockInfo{}, ErrInsufficientData
	}

	header, err := c.BlockHeader(ctx, count-1)
	if err != nil {
		return models.LastBlockInfo{}, err
	}
	return models.LastBlockInfo{
		Timestamp: time.Unix(header.Timestamp, 0).UTC(),
		Reward:    utils.FormatAtomic(header.Reward),
	}, nil
}

func (c *MonerodClient) TotalSupply(ctx context.Context) (string, error) {
	var res models.SupplyResult
	if err := c.RPCCall(ctx, "get_supply", nil, &res); err != nil {
		return "0", err
	}
	supply, err := utils.FormatAtomicNumber(res.TotalSupply)
	if err != nil {
		return "0", &ProtocolError{Source: sourceMonerod, Op: "get_supply", Err: err}
	}
	return supply, nil
}

func (c *MonerodClient) Version(ctx context.Context) (string, error) {
	var res models.InfoResult
	if err := c.RPCCall(ctx, "get_info", nil, &res); err != nil {
		return "", err
	}
	return res.Version, nil
}

// DefaultStats is the snapshot reported when nothing could be fetched.
func (c *MonerodClient) DefaultStats() models.DaemonStats {
	return models.DaemonStats{
		Status:            models.DaemonStatusDisconnected,
		NetworkHashrate:   zeroHashrate,
		LastBlockTime:     c.now(),
		TotalSupply:       "0",
		CirculatingSupply: "0",
		BlockReward:       "0",
		AverageBlockTime:  TargetBlockTime,
		VersionStatus:     utils.VersionStatusUnknown,
	}
}

// GetStats assembles a DaemonStats snapshot. Each accessor failure is logged
// and the field keeps its default, so the result is always complete. The only
// error returned is the context's, with the default snapshot.
func (c *MonerodClient) GetStats(ctx context.Context) (models.DaemonStats, error) {
	var (
		wg         sync.WaitGroup
		height     uint64
		difficulty uint64
		lastBlock  models.LastBlockInfo
		supply     string
		version    string

		heightErr, difficultyErr, lastBlockErr, supplyErr, versionErr error
	)

	wg.Add(5)
	go func() { defer wg.Done(); height, heightErr = c.BlockHeight(ctx) }()
	go func() { defer wg.Done(); difficulty, difficultyErr = c.Difficulty(ctx) }()
	go func() { defer wg.Done(); lastBlock, lastBlockErr = c.LastBlockInfo(ctx) }()
	go func() { defer wg.Done(); supply, supplyErr = c.TotalSupply(ctx) }()
	go func() { defer wg.Done(); version, versionErr = c.Version(ctx) }()
	wg.Wait()

	hashrate, hashrateErr := c.CalculateNetworkHashrate(ctx, c.blockCount)

	if err := ctx.Err(); err != nil {
		return c.DefaultStats(), err
	}

	stats := c.DefaultStats()
	logger := c.logger()

	if heightErr == nil {
		stats.BlockHeight = height
	} else {
		logger.WithError(heightErr).Warn("Failed to get block height")
	}

	if difficultyErr == nil {
		stats.Difficulty = difficulty
	} else {
		logger.WithError(difficultyErr).Warn("Failed to get difficulty")
	}

	if lastBlockErr == nil {
		stats.LastBlockTime = lastBlock.Timestamp
		stats.BlockReward = lastBlock.Reward
	} else {
		logger.WithError(lastBlockErr).Warn("Failed to get last block info")
	}

	if supplyErr == nil {
		stats.TotalSupply = supply
		stats.CirculatingSupply = supply
	} else {
		logger.WithError(supplyErr).Warn("Failed to get total supply")
	}

	if versionErr == nil {
		stats.Version = version
		stats.VersionStatus, _ = utils.CheckVersionStatus(version, &c.versions)
	} else {
		logger.WithError(versionErr).Debug("Failed to get daemon version")
	}

	if hashrateErr == nil {
		stats.NetworkHashrate = hashrate.Hashrate
	} else {
		logger.WithError(hashrateErr).Warn("Failed to calculate network hashrate")
	}

	if stats.BlockHeight > 0 {
		stats.Status = models.DaemonStatusConnected
	}

	return stats, nil
}

// TestConnection reports whether get_block_count succeeds.
func (c *MonerodClient) TestConnection(ctx context.Context) bool {
	if _, err := c.BlockHeight(ctx); err != nil {
		c.logger().WithError(err).Debug("Connection test failed")
		return false
	}
	return true
}
