package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/dealroom/internal/domain"
)

// RegisterAgent registers a new agent identity.
// POST /v1/agents/register
func (h *Handler) RegisterAgent(c echo.Context) error {
	ctx := c.Request().Context()

	var req domain.RegisterAgentRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	agent, err := h.service.RegisterAgent(ctx, req)
	if err != nil {
		return h.failWith(c, err)
	}
	return ok(c, http.StatusCreated, agent)
}

// ListAgents lists all registered agents.
// GET /v1/agents
func (h *Handler) ListAgents(c echo.Context) error {
	agents, err := h.service.ListAgents(c.Request().Context())
	if err != nil {
		return h.failWith(c, err)
	}
	return ok(c, http.StatusOK, agents)
}

// GetAgent gets a specific agent by ID.
// GET /v1/agents/:agent_id
func (h *Handler) GetAgent(c echo.Context) error {
	agent, err := h.service.GetAgent(c.Request().Context(), c.Param("agent_id"))
	if err != nil {
		return h.failWith(c, err)
	}
	return ok(c, http.StatusOK, agent)
}
