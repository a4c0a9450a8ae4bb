package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/domain"
)

// defaultLogLimit bounds the audit entries returned when no limit is given.
const defaultLogLimit = 100

// StartNegotiation starts a negotiation. An empty body starts the demo
// negotiation.
// POST /v1/negotiations
// POST /v1/agents/start-negotiation
func (h *Handler) StartNegotiation(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.StartNegotiationRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return fail(c, http.StatusBadRequest, "invalid request body")
		}
	}

	session, err := h.service.StartNegotiation(ctx, req)
	if err != nil {
		return h.failWith(c, err)
	}
	h.logger.Info("negotiation accepted", zap.String("session_id", session.SessionID))
	return ok(c, http.StatusCreated, session)
}

// ListNegotiations lists all sessions.
// GET /v1/negotiations
func (h *Handler) ListNegotiations(c echo.Context) error {
	sessions, err := h.service.ListSessions(c.Request().Context())
	if err != nil {
		return h.failWith(c, err)
	}
	return ok(c, http.StatusOK, sessions)
}

// GetNegotiation gets a session with its message history.
// GET /v1/negotiations/:session_id
func (h *Handler) GetNegotiation(c echo.Context) error {
	session, err := h.service.GetSession(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return h.failWith(c, err)
	}
	return ok(c, http.StatusOK, session)
}

// CancelNegotiation stops a running session.
// POST /v1/negotiations/:session_id/cancel
func (h *Handler) CancelNegotiation(c echo.Context) error {
	session, err := h.service.CancelNegotiation(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return h.failWith(c, err)
	}
	return ok(c, http.StatusOK, session)
}

// GetNegotiationLog returns the audit log entries of a session.
// GET /v1/negotiations/:session_id/log
func (h *Handler) GetNegotiationLog(c echo.Context) error {
	limit := defaultLogLimit
	if l := c.QueryParam("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val <= 0 {
			return fail(c, http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = val
	}

	entries, err := h.service.SessionLog(c.Request().Context(), c.Param("session_id"), limit)
	if err != nil {
		return h.failWith(c, err)
	}
	return ok(c, http.StatusOK, entries)
}
