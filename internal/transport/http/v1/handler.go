// Package v1 provides the version 1 HTTP handlers.
package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/negotiation"
	"github.com/xiaot623/dealroom/internal/registry"
	"github.com/xiaot623/dealroom/internal/service"
	"github.com/xiaot623/dealroom/internal/strategy"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	logger  *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers routes with the echo server. startMiddleware is
// applied to the routes that start negotiations.
func (h *Handler) RegisterRoutes(e *echo.Echo, startMiddleware ...echo.MiddlewareFunc) {
	// Agent registry API
	e.POST("/v1/agents/register", h.RegisterAgent)
	e.GET("/v1/agents", h.ListAgents)
	e.GET("/v1/agents/:agent_id", h.GetAgent)

	// Negotiation API
	e.POST("/v1/negotiations", h.StartNegotiation, startMiddleware...)
	e.POST("/v1/agents/start-negotiation", h.StartNegotiation, startMiddleware...)
	e.GET("/v1/negotiations", h.ListNegotiations)
	e.GET("/v1/negotiations/:session_id", h.GetNegotiation)
	e.POST("/v1/negotiations/:session_id/cancel", h.CancelNegotiation)
	e.GET("/v1/negotiations/:session_id/log", h.GetNegotiationLog)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":             "healthy",
		"version":            Version,
		"activeNegotiations": h.service.ActiveNegotiations(),
	})
}

func ok(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, domain.Envelope{Success: true, Data: data})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, domain.Envelope{Error: msg})
}

// failWith maps a service error onto a status code.
func (h *Handler) failWith(c echo.Context, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
	}
	return fail(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, negotiation.ErrInvalidParams),
		errors.Is(err, strategy.ErrProductNotFound):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAdmissionDenied):
		return http.StatusForbidden
	case errors.Is(err, negotiation.ErrNotActive):
		return http.StatusConflict
	case errors.Is(err, negotiation.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
