package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"xmrstats/models"
	"xmrstats/services"
)

// StatsProvider is what the HTTP layer needs from the stats service.
type StatsProvider interface {
	GetAllStats(ctx context.Context) (models.AggregatedStats, error)
	GetMonerodStats(ctx context.Context) (models.DaemonStats, error)
	GetP2PoolStats(ctx context.Context) (models.PoolStats, error)
	GetSystemStats() models.SystemStats
	TestConnections(ctx context.Context) models.ConnectionStatus
	CalculateNetworkHashrate(ctx context.Context, blockCount int) (models.HashrateEstimate, error)
	ClearCache()
	GetCacheStatus() map[string]models.CacheEntryStatus
	CacheMode() services.CacheMode
}

type Handler struct {
	Stats StatsProvider
}

func NewHandler(stats StatsProvider) *Handler {
	return &Handler{Stats: stats}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// MessageResponse is returned by action endpoints
type MessageResponse struct {
	Message string `json:"message"`
}

func fetchFailed(c echo.Context, err error) error {
	log.WithError(err).WithField("path", c.Path()).Error("Request failed")
	return c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   "Failed to fetch statistics",
		Message: err.Error(),
	})
}
