package services

import (
	"context"
	"sync"
	"time"

	"github.com/hako/durafmt"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"xmrstats/models"
)

const (
	cacheKeyMonerod = "monerod"
	cacheKeyP2Pool  = "p2pool"

	warmerTimeout = 30 * time.Second
)

// DaemonSource is the monerod side of the service.
type DaemonSource interface {
	GetStats(ctx context.Context) (models.DaemonStats, error)
	TestConnection(ctx context.Context) bool
	CalculateNetworkHashrate(ctx context.Context, blockCount int) (models.HashrateEstimate, error)
}

// PoolSource is the P2Pool side of the service.
type PoolSource interface {
	GetStats(ctx context.Context) (models.PoolStats, error)
	TestConnection(ctx context.Context) bool
}

// StatsService combines the daemon, pool and process views behind the cache.
type StatsService struct {
	monerod  DaemonSource
	p2pool   PoolSource
	cache    *CacheService
	metrics  ProcessMetrics
	notifier StatusNotifier
	now      func() time.Time

	statusMutex sync.Mutex
	lastStatus  map[string]string

	stopOnce sync.Once
	stopChan chan struct{}
}

func NewStatsService(monerod DaemonSource, p2pool PoolSource, cache *CacheService, metrics ProcessMetrics, notifier StatusNotifier) *StatsService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if metrics == nil {
		metrics = NewProcessMetrics()
	}
	return &StatsService{
		monerod:    monerod,
		p2pool:     p2pool,
		cache:      cache,
		metrics:    metrics,
		notifier:   notifier,
		now:        time.Now,
		lastStatus: make(map[string]string),
		stopChan:   make(chan struct{}),
	}
}

func (s *StatsService) GetMonerodStats(ctx context.Context) (models.DaemonStats, error) {
	stats, err := GetCachedData(ctx, s.cache, cacheKeyMonerod, s.monerod.GetStats)
	if err != nil {
		return stats, err
	}
	s.observeStatus(sourceMonerod, stats.Status)
	return stats, nil
}

func (s *StatsService) GetP2PoolStats(ctx context.Context) (models.PoolStats, error) {
	stats, err := GetCachedData(ctx, s.cache, cacheKeyP2Pool, s.p2pool.GetStats)
	if err != nil {
		return stats, err
	}
	s.observeStatus(sourceP2Pool, stats.Status)
	return stats, nil
}

// GetSystemStats reads the process metrics. It is not cached and never fails;
// unreadable metrics are reported as zero.
func (s *StatsService) GetSystemStats() models.SystemStats {
	uptime := s.metrics.Uptime()

	memory, err := s.metrics.Memory()
	if err != nil {
		log.WithError(err).Debug("Memory metrics unavailable")
	}
	cpu, err := s.metrics.CPU()
	if err != nil {
		log.WithError(err).Debug("CPU metrics unavailable")
	}

	return models.SystemStats{
		Uptime:      uptime.Seconds(),
		UptimeHuman: durafmt.Parse(uptime.Truncate(time.Second)).String(),
		MemoryUsage: memory,
		CPUUsage:    cpu,
		Timestamp:   s.now(),
	}
}

// GetAllStats fetches both sources concurrently. If either fails the whole
// call fails.
func (s *StatsService) GetAllStats(ctx context.Context) (models.AggregatedStats, error) {
	var (
		daemon models.DaemonStats
		pool   models.PoolStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		daemon, err = s.GetMonerodStats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		pool, err = s.GetP2PoolStats(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("Failed to aggregate stats")
		return models.AggregatedStats{}, err
	}

	return models.AggregatedStats{
		Monerod:     daemon,
		P2Pool:      pool,
		System:      s.GetSystemStats(),
		LastUpdated: s.now(),
	}, nil
}

// TestConnections probes both upstreams concurrently, bypassing the cache.
func (s *StatsService) TestConnections(ctx context.Context) models.ConnectionStatus {
	var (
		wg     sync.WaitGroup
		status models.ConnectionStatus
	)

	wg.Add(2)
	go func() { defer wg.Done(); status.Monerod = s.monerod.TestConnection(ctx) }()
	go func() { defer wg.Done(); status.P2Pool = s.p2pool.TestConnection(ctx) }()
	wg.Wait()

	return status
}

// CalculateNetworkHashrate runs the block-sampling estimator directly,
// without going through the cache.
func (s *StatsService) CalculateNetworkHashrate(ctx context.Context, blockCount int) (models.HashrateEstimate, error) {
	return s.monerod.CalculateNetworkHashrate(ctx, blockCount)
}

func (s *StatsService) ClearCache() {
	s.cache.Clear()
}

func (s *StatsService) GetCacheStatus() map[string]models.CacheEntryStatus {
	return s.cache.Status()
}

func (s *StatsService) CacheMode() CacheMode {
	return s.cache.Mode()
}

// observeStatus notifies on status changes. The first observation of a
// source only records it.
func (s *StatsService) observeStatus(source, status string) {
	s.statusMutex.Lock()
	previous, seen := s.lastStatus[source]
	s.lastStatus[source] = status
	s.statusMutex.Unlock()

	if !seen || previous == status {
		return
	}

	log.WithFields(log.Fields{"source": source, "from": previous, "to": status}).Warn("Upstream status changed")
	if err := s.notifier.NotifyStatusChange(source, previous, status); err != nil {
		log.WithError(err).Warn("Failed to send status notification")
	}
}

// StartCacheWarmer refreshes both sources every interval until Stop is
// called. A non-positive interval disables it.
func (s *StatsService) StartCacheWarmer(interval time.Duration) {
	if interval <= 0 {
		return
	}
	log.Infof("Cache warmer started (every %s)", interval)
	go s.runWarmLoop(interval)
}

func (s *StatsService) runWarmLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.warm()
	for {
		select {
		case <-ticker.C:
			s.warm()
		case <-s.stopChan:
			return
		}
	}
}

func (s *StatsService) warm() {
	ctx, cancel := context.WithTimeout(context.Background(), warmerTimeout)
	defer cancel()

	if _, err := s.GetAllStats(ctx); err != nil {
		log.WithError(err).Warn("Cache warm failed")
	}
}

func (s *StatsService) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
