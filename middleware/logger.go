package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

func LoggerMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			path := req.URL.Path
			if req.URL.RawQuery != "" {
				path += "?" + req.URL.RawQuery
			}

			entry := log.WithFields(log.Fields{
				"method":     req.Method,
				"path":       path,
				"status":     res.Status,
				"latency_ms": time.Since(start).Milliseconds(),
				"ip":         c.RealIP(),
			})

			switch {
			case res.Status >= 500:
				entry.Error("request completed")
			case res.Status >= 400:
				entry.Warn("request completed")
			default:
				entry.Info("request completed")
			}

			return nil
		}
	}
}
