package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

const maxHashrateBlocks = 720

// GetNetworkHashrate godoc
// @Summary Estimate the network hashrate
// @Description Samples the last N blocks (default from config) and returns the weighted estimate
// @Tags monerod
// @Produce json
// @Param blocks query int false "Blocks to sample (1-720)"
// @Success 200 {object} models.HashrateEstimate
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/monerod/hashrate [get]
func (h *Handler) GetNetworkHashrate(c echo.Context) error {
	blocks := 0 // service default

	if raw := c.QueryParam("blocks"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHashrateBlocks {
			return c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid blocks parameter",
				Message: "blocks must be an integer between 1 and " + strconv.Itoa(maxHashrateBlocks),
			})
		}
		blocks = n
	}

	estimate, err := h.Stats.CalculateNetworkHashrate(c.Request().Context(), blocks)
	if err != nil {
		return fetchFailed(c, err)
	}
	return c.JSON(http.StatusOK, estimate)
}
