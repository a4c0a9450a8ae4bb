// Package registry keeps negotiation sessions and agent identities in memory,
// optionally writing through to a Store.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/domain"
	store "github.com/xiaot623/dealroom/internal/repository"
)

var (
	// ErrNotFound is returned when a session or agent is unknown.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when a session id is already taken.
	ErrExists = errors.New("already exists")
)

// Registry is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*SessionHandle
	agents   map[string]domain.AgentIdentity

	store  store.Store
	logger *zap.Logger
}

// New creates a registry. st may be nil, in which case nothing is persisted.
func New(st store.Store, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*SessionHandle),
		agents:   make(map[string]domain.AgentIdentity),
		store:    st,
		logger:   logger.With(zap.String("component", "registry")),
	}
}

// Load restores agents and sessions from the store. Sessions that were still
// active when the process stopped are marked failed.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}

	agents, err := r.store.ListAgents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load agents: %w", err)
	}
	sessions, err := r.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, agent := range agents {
		r.agents[agent.AgentID] = agent
	}
	now := time.Now().UTC()
	for i := range sessions {
		h := r.newHandle(sessions[i])
		if h.session.Status == domain.SessionStatusActive {
			h.Fail(ctx, now)
			r.logger.Warn("session interrupted by restart", zap.String("session_id", h.session.SessionID))
		}
		r.sessions[h.session.SessionID] = h
	}
	r.logger.Info("registry loaded", zap.Int("agents", len(agents)), zap.Int("sessions", len(sessions)))
	return nil
}

// RegisterAgent stores an identity. Re-registering an id replaces it.
func (r *Registry) RegisterAgent(ctx context.Context, agent domain.AgentIdentity) {
	r.mu.Lock()
	r.agents[agent.AgentID] = agent
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SaveAgent(context.WithoutCancel(ctx), &agent); err != nil {
			r.logger.Error("failed to persist agent", zap.String("agent_id", agent.AgentID), zap.Error(err))
		}
	}
}

// GetAgent returns the identity registered under id.
func (r *Registry) GetAgent(id string) (domain.AgentIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	if !ok {
		return domain.AgentIdentity{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return agent, nil
}

// ListAgents returns all identities ordered by registration time.
func (r *Registry) ListAgents() []domain.AgentIdentity {
	r.mu.RLock()
	agents := make([]domain.AgentIdentity, 0, len(r.agents))
	for _, agent := range r.agents {
		agents = append(agents, agent)
	}
	r.mu.RUnlock()

	sort.Slice(agents, func(i, j int) bool {
		if !agents[i].RegisteredAt.Equal(agents[j].RegisteredAt) {
			return agents[i].RegisteredAt.Before(agents[j].RegisteredAt)
		}
		return agents[i].AgentID < agents[j].AgentID
	})
	return agents
}

// CreateSession adds a new session and returns its handle.
func (r *Registry) CreateSession(ctx context.Context, session domain.NegotiationSession) (*SessionHandle, error) {
	if session.Messages == nil {
		session.Messages = []*domain.SignedMessage{}
	}

	r.mu.Lock()
	if _, ok := r.sessions[session.SessionID]; ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("session %s: %w", session.SessionID, ErrExists)
	}
	h := r.newHandle(session.Copy())
	r.sessions[session.SessionID] = h
	r.mu.Unlock()

	h.persistSession(ctx)
	return h, nil
}

// Session returns the live handle for id.
func (r *Registry) Session(id string) (*SessionHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return h, nil
}

// GetSession returns a snapshot of the session.
func (r *Registry) GetSession(id string) (domain.NegotiationSession, error) {
	h, err := r.Session(id)
	if err != nil {
		return domain.NegotiationSession{}, err
	}
	return h.Snapshot(), nil
}

// ListSessions returns snapshots of all sessions ordered by start time.
func (r *Registry) ListSessions() []domain.NegotiationSession {
	r.mu.RLock()
	handles := make([]*SessionHandle, 0, len(r.sessions))
	for _, h := range r.sessions {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	sessions := make([]domain.NegotiationSession, len(handles))
	for i, h := range handles {
		sessions[i] = h.Snapshot()
	}
	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].StartedAt.Before(sessions[j].StartedAt)
		}
		return sessions[i].SessionID < sessions[j].SessionID
	})
	return sessions
}

func (r *Registry) newHandle(session domain.NegotiationSession) *SessionHandle {
	return &SessionHandle{
		session: session,
		store:   r.store,
		logger:  r.logger,
	}
}
