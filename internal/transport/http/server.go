// Package http provides the HTTP server for the negotiation service.
package http

import (
	stdhttp "net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/metrics"
	"github.com/xiaot623/dealroom/internal/service"
	v1 "github.com/xiaot623/dealroom/internal/transport/http/v1"
	"github.com/xiaot623/dealroom/internal/transport/ws"
)

// Options configures the HTTP server.
type Options struct {
	// StartRateLimit is the number of negotiation starts per second allowed
	// per client. Zero disables limiting.
	StartRateLimit float64
}

// NewServer creates and configures the HTTP server. wsServer and m may be nil.
func NewServer(svc *service.Service, wsServer *ws.Server, m *metrics.Collector, opts Options, logger *zap.Logger) *echo.Echo {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http"))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(requestLogger(logger, m))

	// Handlers
	v1Handler := v1.NewHandler(svc, logger)

	// Register Routes
	v1Handler.RegisterRoutes(e, startLimiter(opts.StartRateLimit)...)
	if wsServer != nil {
		e.GET("/v1/negotiations/:session_id/ws", wsServer.HandleWebSocket)
	}
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return e
}

// requestLogger writes one access log line per request and records it in m.
func requestLogger(logger *zap.Logger, m *metrics.Collector) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.RecordHTTPRequest(v.Method, path, v.Status, v.Latency)

			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				logger.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			logger.Info("request", fields...)
			return nil
		},
	})
}

// startLimiter returns the per-client limiter applied to negotiation starts.
func startLimiter(limit float64) []echo.MiddlewareFunc {
	if limit <= 0 {
		return nil
	}
	return []echo.MiddlewareFunc{middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(limit),
			Burst:     int(limit) + 1,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return c.JSON(stdhttp.StatusForbidden, domain.Envelope{Error: "unable to identify client"})
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(stdhttp.StatusTooManyRequests, domain.Envelope{Error: "too many negotiation requests"})
		},
	})}
}
