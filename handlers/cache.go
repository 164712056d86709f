package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetCacheStatus returns the age and validity of every cache entry
func (h *Handler) GetCacheStatus(c echo.Context) error {
	c.Response().Header().Set("X-Cache-Mode", string(h.Stats.CacheMode()))
	return c.JSON(http.StatusOK, h.Stats.GetCacheStatus())
}

// ClearCache clears all cached data (admin endpoint)
func (h *Handler) ClearCache(c echo.Context) error {
	h.Stats.ClearCache()
	return c.JSON(http.StatusOK, MessageResponse{
		Message: "Cache cleared successfully",
	})
}
