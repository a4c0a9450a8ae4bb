// Package store defines the persistence interface and its SQLite implementation.
package store

import (
	"context"

	"github.com/xiaot623/dealroom/internal/domain"
)

// Store persists agent identities and negotiation sessions. Lookups return
// (nil, nil) when the record does not exist.
type Store interface {
	// Agent operations
	SaveAgent(ctx context.Context, agent *domain.AgentIdentity) error
	GetAgent(ctx context.Context, agentID string) (*domain.AgentIdentity, error)
	ListAgents(ctx context.Context) ([]domain.AgentIdentity, error)

	// Session operations
	SaveSession(ctx context.Context, session *domain.NegotiationSession) error
	AppendMessage(ctx context.Context, sessionID string, seq int, msg *domain.SignedMessage) error
	GetSession(ctx context.Context, sessionID string) (*domain.NegotiationSession, error)
	ListSessions(ctx context.Context) ([]domain.NegotiationSession, error)

	// Lifecycle
	Close() error
}
