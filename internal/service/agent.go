package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xiaot623/dealroom/internal/domain"
)

// defaultReputation is assigned to newly registered agents.
const defaultReputation = 100

func (s *Service) RegisterAgent(ctx context.Context, req domain.RegisterAgentRequest) (domain.AgentIdentity, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.AgentIdentity{}, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	if !req.Role.Valid() {
		return domain.AgentIdentity{}, fmt.Errorf("%w: role must be buyer, seller or both", ErrInvalidRequest)
	}
	owner := strings.TrimSpace(req.Owner)
	if owner == "" {
		return domain.AgentIdentity{}, fmt.Errorf("%w: owner is required", ErrInvalidRequest)
	}
	publicKey := strings.TrimSpace(req.PublicKey)
	if publicKey == "" {
		return domain.AgentIdentity{}, fmt.Errorf("%w: publicKey is required", ErrInvalidRequest)
	}

	agent := domain.AgentIdentity{
		AgentID:         "agent-" + strings.ToLower(s.newID()),
		Name:            name,
		Role:            req.Role,
		Status:          domain.AgentStatusActive,
		PublicKey:       publicKey,
		Owner:           owner,
		MetadataCID:     req.MetadataCID,
		ReputationScore: defaultReputation,
		RegisteredAt:    time.Now().UTC(),
	}
	s.registry.RegisterAgent(ctx, agent)
	s.logger.Sugar().Infof("agent registered: %s (%s)", agent.AgentID, agent.Role)
	return agent, nil
}

func (s *Service) ListAgents(ctx context.Context) ([]domain.AgentIdentity, error) {
	return s.registry.ListAgents(), nil
}

func (s *Service) GetAgent(ctx context.Context, agentID string) (domain.AgentIdentity, error) {
	return s.registry.GetAgent(agentID)
}
