package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/dealroom/internal/adapter/auditlog"
	"github.com/xiaot623/dealroom/internal/config"
	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/hub"
	"github.com/xiaot623/dealroom/internal/integrity"
	"github.com/xiaot623/dealroom/internal/negotiation"
	"github.com/xiaot623/dealroom/internal/policy"
	"github.com/xiaot623/dealroom/internal/registry"
	"github.com/xiaot623/dealroom/internal/service"
	"github.com/xiaot623/dealroom/internal/strategy"
	handler "github.com/xiaot623/dealroom/internal/transport/http"
	"github.com/xiaot623/dealroom/internal/transport/ws"
)

// startServer runs the full HTTP stack behind an httptest server.
func startServer(t *testing.T, roundDelay time.Duration) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	h := hub.New(nil)
	go h.Run(ctx)

	reg := registry.New(nil, nil)
	audit := auditlog.NewSimulated()
	orch := negotiation.New(negotiation.Config{RoundDelay: roundDelay}, reg, integrity.NewSigner("test-key"),
		strategy.DefaultInventory(), audit, h, nil, nil)
	engine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	require.NoError(t, err)
	svc := service.New(reg, orch, engine, audit, &config.Config{DemoMaxBudget: 120, DemoMinPrice: 80}, nil)
	svc.SeedDemoAgents(ctx)

	e := handler.NewServer(svc, ws.NewServer(ws.Options{}, h, svc, nil), nil, handler.Options{}, nil)
	srv := httptest.NewServer(e)

	t.Cleanup(func() {
		srv.Close()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = svc.Shutdown(shutdownCtx)
		cancel()
	})
	return srv.URL
}

// executeCommand runs dealctl with args and returns captured output.
func executeCommand(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--server", server}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()
	assert.Equal(t, "dealctl", root.Use)

	names := make(map[string]bool)
	for _, cmd := range root.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"agents", "negotiate", "watch"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestAgentsCommands(t *testing.T) {
	server := startServer(t, 0)

	out, err := executeCommand(t, server, "agents", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "buyer-001")
	assert.Contains(t, out, "CloudServices Seller Agent")

	out, err = executeCommand(t, server, "agents", "register", "--name", "Procurement Bot", "--role", "buyer",
		"--owner", "0xabc", "--public-key", "pk")
	require.NoError(t, err)
	assert.Contains(t, out, "registered agent-")

	_, err = executeCommand(t, server, "agents", "register", "--name", "Bot", "--role", "broker",
		"--owner", "0xabc", "--public-key", "pk")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)

	_, err = executeCommand(t, server, "agents", "register", "--name", "Bot", "--role", "buyer", "--public-key", "pk")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"owner"`)

	_, err = executeCommand(t, server, "agents", "register", "--name", "Bot", "--role", "buyer", "--owner", "0xabc",
		"--public-key", " ")
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 400, apiErr.Status)
}

func TestNegotiateStartWatch(t *testing.T) {
	server := startServer(t, 20*time.Millisecond)

	out, err := executeCommand(t, server, "negotiate", "start", "--watch")
	require.NoError(t, err)
	assert.Contains(t, out, "started ")
	assert.Contains(t, out, "completed: final price 100.00")

	// Every message is printed exactly once even when it arrives both in
	// the snapshot and as a live event.
	assert.Equal(t, 1, strings.Count(out, "offer    buyer-001"))
	assert.Equal(t, 1, strings.Count(out, "counter  seller-001"))
	assert.Equal(t, 1, strings.Count(out, "accept   buyer-001"))

	out, err = executeCommand(t, server, "negotiate", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "completed")
}

func TestWatchFinishedSession(t *testing.T) {
	server := startServer(t, 0)
	client := NewClient(server, 5*time.Second)

	session, err := client.StartNegotiation(context.Background(), domain.StartNegotiationRequest{})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, err := client.GetNegotiation(context.Background(), session.SessionID)
		return err == nil && s.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	out, err := executeCommand(t, server, "watch", session.SessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "watching "+session.SessionID+" (completed)")
	assert.Contains(t, out, "completed: final price 100.00")

	out, err = executeCommand(t, server, "negotiate", "get", session.SessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "status:   completed")
	assert.Contains(t, out, "topic:    0.0.")
}

func TestNegotiateCancel(t *testing.T) {
	server := startServer(t, time.Minute)

	out, err := executeCommand(t, server, "negotiate", "start", "--min-price", "90")
	require.NoError(t, err)
	id := strings.Fields(strings.TrimPrefix(out, "started "))[0]

	out, err = executeCommand(t, server, "negotiate", "cancel", id)
	require.NoError(t, err)
	assert.Equal(t, id+" failed\n", out)

	_, err = executeCommand(t, server, "negotiate", "cancel", id)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Status)
}

func TestWatchUnknownSession(t *testing.T) {
	server := startServer(t, 0)

	_, err := executeCommand(t, server, "watch", "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.Status)
}

func TestWatcherSkipsDuplicates(t *testing.T) {
	var out bytes.Buffer
	w := &watcher{out: &out, seen: make(map[string]bool)}

	offer := domain.NewOffer(domain.Product{ID: "prod-001", Name: "Premium API Access", Quantity: 1000}, 96, "standard")
	msg := &domain.SignedMessage{Type: domain.MessageTypeOffer, Data: offer, Timestamp: 1, AgentID: "buyer-001", Hash: "h1"}
	session := domain.NegotiationSession{SessionID: "s1", Status: domain.SessionStatusActive, Messages: []*domain.SignedMessage{msg}}

	assert.False(t, w.handle(domain.SessionEvent{Type: domain.SessionEventSnapshot, Session: &session}))
	assert.False(t, w.handle(domain.SessionEvent{Type: domain.SessionEventMessage, Message: msg.Clone()}))
	assert.Equal(t, 1, strings.Count(out.String(), "buyer-001"))

	assert.True(t, w.handle(domain.SessionEvent{Type: domain.SessionEventFailed, Reason: "cancelled"}))
	assert.Contains(t, out.String(), "failed: cancelled")
}
