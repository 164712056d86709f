package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetHealth returns OK
func (h *Handler) GetHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// GetConnections reports upstream reachability. Always 200.
func (h *Handler) GetConnections(c echo.Context) error {
	return c.JSON(http.StatusOK, h.Stats.TestConnections(c.Request().Context()))
}
