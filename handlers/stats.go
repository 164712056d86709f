package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetStats godoc
// @Summary Get aggregated statistics
// @Description Returns daemon, pool and process statistics in one document
// @Tags stats
// @Produce json
// @Success 200 {object} models.AggregatedStats
// @Failure 500 {object} ErrorResponse
// @Router /api/stats [get]
func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.Stats.GetAllStats(c.Request().Context())
	if err != nil {
		return fetchFailed(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// GetMonerodStats godoc
// @Summary Get monerod statistics
// @Tags stats
// @Produce json
// @Success 200 {object} models.DaemonStats
// @Failure 500 {object} ErrorResponse
// @Router /api/stats/monerod [get]
func (h *Handler) GetMonerodStats(c echo.Context) error {
	stats, err := h.Stats.GetMonerodStats(c.Request().Context())
	if err != nil {
		return fetchFailed(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// GetP2PoolStats godoc
// @Summary Get P2Pool statistics
// @Tags stats
// @Produce json
// @Success 200 {object} models.PoolStats
// @Failure 500 {object} ErrorResponse
// @Router /api/stats/p2pool [get]
func (h *Handler) GetP2PoolStats(c echo.Context) error {
	stats, err := h.Stats.GetP2PoolStats(c.Request().Context())
	if err != nil {
		return fetchFailed(c, err)
	}
	return c.JSON(http.StatusOK, stats)
}

// GetSystemStats godoc
// @Summary Get process statistics
// @Tags stats
// @Produce json
// @Success 200 {object} models.SystemStats
// @Router /api/stats/system [get]
func (h *Handler) GetSystemStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Stats.GetSystemStats())
}
