package service

import (
	"context"
	"errors"
	"time"

	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/registry"
)

const (
	DemoBuyerID   = "buyer-001"
	DemoSellerID  = "seller-001"
	DemoProductID = "prod-001"
)

// demoAgents are the identities the default negotiation runs between.
func demoAgents(now time.Time) []domain.AgentIdentity {
	return []domain.AgentIdentity{
		{
			AgentID:          DemoBuyerID,
			Name:             "TechCorp Buyer Agent",
			Role:             domain.AgentRoleBuyer,
			Status:           domain.AgentStatusActive,
			PublicKey:        "buyer-public-key-demo",
			Owner:            "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb",
			ReputationScore:  850,
			TransactionCount: 42,
			RegisteredAt:     now,
		},
		{
			AgentID:          DemoSellerID,
			Name:             "CloudServices Seller Agent",
			Role:             domain.AgentRoleSeller,
			Status:           domain.AgentStatusActive,
			PublicKey:        "seller-public-key-demo",
			Owner:            "0x8626f6940E2eb28930eFb4CeF49B2d1F2C9C1199",
			ReputationScore:  920,
			TransactionCount: 156,
			RegisteredAt:     now,
		},
	}
}

// SeedDemoAgents registers the demo buyer and seller unless identities with
// the same ids already exist.
func (s *Service) SeedDemoAgents(ctx context.Context) {
	now := time.Now().UTC()
	for _, agent := range demoAgents(now) {
		if _, err := s.registry.GetAgent(agent.AgentID); !errors.Is(err, registry.ErrNotFound) {
			continue
		}
		s.registry.RegisterAgent(ctx, agent)
		s.logger.Sugar().Infof("demo agent seeded: %s", agent.AgentID)
	}
}
