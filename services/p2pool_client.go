package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"xmrstats/config"
	"xmrstats/models"
	"xmrstats/utils"
)

const sourceP2Pool = "p2pool"

type P2PoolClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	now        func() time.Time
}

func NewP2PoolClient(cfg *config.Config) *P2PoolClient {
	timeout := cfg.P2PoolTimeoutDuration()
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}

	return &P2PoolClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.P2Pool.APIURL), "/"),
		username:   cfg.P2Pool.Username,
		password:   cfg.P2Pool.Password,
		httpClient: newUpstreamHTTPClient(timeout),
		now:        time.Now,
	}
}

func (c *P2PoolClient) logger() *log.Entry {
	return log.WithField("source", sourceP2Pool)
}

// get issues a GET against the pool API and decodes the JSON body into out.
// Failures are logged and returned.
func (c *P2PoolClient) get(ctx context.Context, path string, out interface{}) error {
	err := c.doGet(ctx, path, out)
	if err != nil {
		c.logger().WithError(err).WithField("path", path).Warn("P2Pool API request failed")
	}
	return err
}

func (c *P2PoolClient) doGet(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Source: sourceP2Pool, Op: "GET " + path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Source: sourceP2Pool, Op: "GET " + path, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProtocolError{Source: sourceP2Pool, Op: "GET " + path, StatusCode: resp.StatusCode}
	}

	if err := jsonAPI.Unmarshal(body, out); err != nil {
		return &ProtocolError{Source: sourceP2Pool, Op: "GET " + path, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *P2PoolClient) PoolStats(ctx context.Context) (*models.P2PoolStatsResponse, error) {
	var res models.P2PoolStatsResponse
	if err := c.get(ctx, "/stats", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *P2PoolClient) MinerStats(ctx context.Context) (*models.P2PoolMinersResponse, error) {
	var res models.P2PoolMinersResponse
	if err := c.get(ctx, "/miners", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *P2PoolClient) NetworkStats(ctx context.Context) (*models.P2PoolNetworkResponse, error) {
	var res models.P2PoolNetworkResponse
	if err := c.get(ctx, "/network", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DefaultStats is the snapshot reported when nothing could be fetched.
func (c *P2PoolClient) DefaultStats() models.PoolStats {
	return defaultPoolStats(c.now())
}

func defaultPoolStats(now time.Time) models.PoolStats {
	return models.PoolStats{
		Status:          models.PoolStatusInactive,
		PoolHashrate:    zeroHashrate,
		NetworkHashrate: zeroHashrate,
		LiveHashrate:    zeroHashrate,
		LastShareTime:   now,
		MinPayout:       "0",
		TotalPaid:       "0",
	}
}

// GetStats queries the three endpoints concurrently; any subset may fail
// and the rest is still merged.
func (c *P2PoolClient) GetStats(ctx context.Context) (stats models.PoolStats, err error) {
	var (
		wg      sync.WaitGroup
		pool    *models.P2PoolStatsResponse
		miners  *models.P2PoolMinersResponse
		network *models.P2PoolNetworkResponse
	)

	wg.Add(3)
	go func() { defer wg.Done(); pool, _ = c.PoolStats(ctx) }()
	go func() { defer wg.Done(); miners, _ = c.MinerStats(ctx) }()
	go func() { defer wg.Done(); network, _ = c.NetworkStats(ctx) }()
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return c.DefaultStats(), err
	}

	now := c.now()
	defer func() {
		if r := recover(); r != nil {
			c.logger().Errorf("Recovered while merging pool stats: %v", r)
			stats = defaultPoolStats(now)
			err = nil
		}
	}()

	return mergePoolStats(pool, miners, network, now), nil
}

// mergePoolStats applies the field fallback chains. Nil arguments are
// endpoints that failed.
func mergePoolStats(pool *models.P2PoolStatsResponse, miners *models.P2PoolMinersResponse, network *models.P2PoolNetworkResponse, now time.Time) models.PoolStats {
	stats := defaultPoolStats(now)
	if pool == nil && miners == nil && network == nil {
		return stats
	}
	if pool != nil {
		stats.Status = models.PoolStatusActive
	} else {
		pool = &models.P2PoolStatsResponse{}
	}

	poolHashrate := floatOr(0, pool.PoolHashrate)
	stats.PoolHashrate = utils.FormatHashrate(poolHashrate)

	var networkHashrate *float64
	if network != nil {
		networkHashrate = network.NetworkHashrate
	}
	stats.NetworkHashrate = utils.FormatHashrate(floatOr(0, networkHashrate, pool.NetworkHashrate))
	stats.LiveHashrate = utils.FormatHashrate(floatOr(0, pool.LiveHashrate, pool.PoolHashrate))

	var minerList *models.MinerList
	var minerWorkers *models.Count
	if miners != nil {
		minerList = miners.Miners
		minerWorkers = miners.Workers
	}
	switch {
	case minerList != nil:
		stats.Miners = minerList.Len()
	case pool.Miners != nil:
		stats.Miners = pool.Miners.Len()
	}

	stats.Workers = countOr(0, pool.Workers, minerWorkers)
	stats.Shares = countOr(0, pool.Shares)
	stats.Uptime = countOr(0, pool.Uptime)
	stats.PoolFee = floatOr(0, pool.PoolFee)
	stats.AverageEffort = floatOr(0, pool.AverageEffort)
	stats.CurrentEffort = floatOr(0, pool.CurrentEffort)
	stats.MinPayout = utils.FormatAtomic(countOr(0, pool.MinPayout))
	stats.TotalPaid = utils.FormatAtomic(countOr(0, pool.TotalPaid))

	var latest int64
	for _, list := range []*models.MinerList{minerList, pool.Miners} {
		if list == nil {
			continue
		}
		for _, m := range list.Entries {
			if m.LastShareTime > latest {
				latest = m.LastShareTime
			}
		}
	}
	if latest > 0 {
		stats.LastShareTime = time.Unix(latest, 0).UTC()
	}

	return stats
}

func floatOr(def float64, values ...*float64) float64 {
	for _, v := range values {
		if v != nil {
			return *v
		}
	}
	return def
}

func countOr(def uint64, values ...*models.Count) uint64 {
	for _, v := range values {
		if v != nil {
			return uint64(*v)
		}
	}
	return def
}

// TestConnection reports whether the /stats endpoint answers.
func (c *P2PoolClient) TestConnection(ctx context.Context) bool {
	_, err := c.PoolStats(ctx)
	return err == nil
}
