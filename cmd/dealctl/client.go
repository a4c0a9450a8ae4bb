package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/dealroom/internal/domain"
)

// APIError is a non-success envelope returned by the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Client calls the dealroom HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return &APIError{Status: resp.StatusCode, Message: "unreadable response"}
	}
	if !env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) ListAgents(ctx context.Context) ([]domain.AgentIdentity, error) {
	var agents []domain.AgentIdentity
	err := c.do(ctx, http.MethodGet, "/v1/agents", nil, &agents)
	return agents, err
}

func (c *Client) RegisterAgent(ctx context.Context, req domain.RegisterAgentRequest) (domain.AgentIdentity, error) {
	var agent domain.AgentIdentity
	err := c.do(ctx, http.MethodPost, "/v1/agents/register", req, &agent)
	return agent, err
}

func (c *Client) StartNegotiation(ctx context.Context, req domain.StartNegotiationRequest) (domain.NegotiationSession, error) {
	var session domain.NegotiationSession
	err := c.do(ctx, http.MethodPost, "/v1/negotiations", req, &session)
	return session, err
}

func (c *Client) ListNegotiations(ctx context.Context) ([]domain.NegotiationSession, error) {
	var sessions []domain.NegotiationSession
	err := c.do(ctx, http.MethodGet, "/v1/negotiations", nil, &sessions)
	return sessions, err
}

func (c *Client) GetNegotiation(ctx context.Context, sessionID string) (domain.NegotiationSession, error) {
	var session domain.NegotiationSession
	err := c.do(ctx, http.MethodGet, "/v1/negotiations/"+url.PathEscape(sessionID), nil, &session)
	return session, err
}

func (c *Client) CancelNegotiation(ctx context.Context, sessionID string) (domain.NegotiationSession, error) {
	var session domain.NegotiationSession
	err := c.do(ctx, http.MethodPost, "/v1/negotiations/"+url.PathEscape(sessionID)+"/cancel", nil, &session)
	return session, err
}

// Watch connects to the event stream of a session.
func (c *Client) Watch(ctx context.Context, sessionID string) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/negotiations/" + url.PathEscape(sessionID) + "/ws"

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, &APIError{Status: resp.StatusCode, Message: "session not found"}
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}
