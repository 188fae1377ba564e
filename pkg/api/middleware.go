package api

import (
	"strconv"
	"time"

	"github.com/cuemby/modelhost/pkg/log"
	"github.com/cuemby/modelhost/pkg/metrics"
	"github.com/labstack/echo/v4"
)

// requestLogger logs one line per request with its latency
func requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			begin := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger := log.WithComponent("api")
			logger.Debug().
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(begin)).
				Msg("Request served")
			return nil
		}
	}
}

// requestMetrics counts requests by route and status
func requestMetrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			timer := metrics.NewTimer()
			err := next(c)

			method := c.Request().Method + " " + c.Path()
			timer.ObserveDurationVec(metrics.APIRequestDuration, method)
			metrics.APIRequestsTotal.WithLabelValues(method, strconv.Itoa(c.Response().Status)).Inc()
			return err
		}
	}
}
