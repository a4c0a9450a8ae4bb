package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/adapter/auditlog"
	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/negotiation"
)

// StartNegotiation admits the buyer/seller pair and starts a session. Empty
// request fields fall back to the demo negotiation.
func (s *Service) StartNegotiation(ctx context.Context, req domain.StartNegotiationRequest) (domain.NegotiationSession, error) {
	if req.BuyerAgentID == "" {
		req.BuyerAgentID = DemoBuyerID
	}
	if req.SellerAgentID == "" {
		req.SellerAgentID = DemoSellerID
	}
	if req.ProductID == "" {
		req.ProductID = DemoProductID
	}
	if req.MaxBudget == 0 {
		req.MaxBudget = s.config.DemoMaxBudget
	}
	if req.MinPrice == 0 {
		req.MinPrice = s.config.DemoMinPrice
	}

	item, err := s.orchestrator.Inventory().Lookup(req.ProductID)
	if err != nil {
		return domain.NegotiationSession{}, err
	}
	if req.Quantity == 0 {
		req.Quantity = item.Quantity
	}

	buyer, err := s.registry.GetAgent(req.BuyerAgentID)
	if err != nil {
		return domain.NegotiationSession{}, fmt.Errorf("buyer: %w", err)
	}
	seller, err := s.registry.GetAgent(req.SellerAgentID)
	if err != nil {
		return domain.NegotiationSession{}, fmt.Errorf("seller: %w", err)
	}

	if s.policyEngine != nil {
		decision, err := s.policyEngine.Admit(ctx, buyer, seller)
		if err != nil {
			return domain.NegotiationSession{}, fmt.Errorf("failed to evaluate admission policy: %w", err)
		}
		if !decision.Allow {
			s.logger.Info("negotiation denied",
				zap.String("buyer", buyer.AgentID),
				zap.String("seller", seller.AgentID),
				zap.Strings("reasons", decision.Reasons),
			)
			return domain.NegotiationSession{}, fmt.Errorf("%w: %s", ErrAdmissionDenied, strings.Join(decision.Reasons, "; "))
		}
	}

	return s.orchestrator.Start(ctx, negotiation.StartParams{
		Buyer:     buyer,
		Seller:    seller,
		Product:   domain.Product{ID: item.ProductID, Name: item.Name, Quantity: req.Quantity},
		MaxBudget: req.MaxBudget,
		MinPrice:  req.MinPrice,
		Opener:    req.Opener,
	})
}

func (s *Service) GetSession(ctx context.Context, sessionID string) (domain.NegotiationSession, error) {
	return s.registry.GetSession(sessionID)
}

func (s *Service) ListSessions(ctx context.Context) ([]domain.NegotiationSession, error) {
	return s.registry.ListSessions(), nil
}

// CancelNegotiation stops a running session and returns its final state.
func (s *Service) CancelNegotiation(ctx context.Context, sessionID string) (domain.NegotiationSession, error) {
	if err := s.orchestrator.Cancel(ctx, sessionID); err != nil {
		return domain.NegotiationSession{}, err
	}
	return s.registry.GetSession(sessionID)
}

// SessionLog returns the audit log entries recorded for the session. A
// session without an audit topic has an empty log.
func (s *Service) SessionLog(ctx context.Context, sessionID string, limit int) ([]domain.AuditLogEntry, error) {
	session, err := s.registry.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if s.audit == nil || session.HCSTopicID == "" {
		return []domain.AuditLogEntry{}, nil
	}

	entries, err := s.audit.Messages(ctx, session.HCSTopicID, limit)
	if errors.Is(err, auditlog.ErrUnknownTopic) {
		// The topic lived in a previous process's simulated log.
		return []domain.AuditLogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}

// ActiveNegotiations returns the number of sessions still being driven.
func (s *Service) ActiveNegotiations() int {
	return s.orchestrator.Active()
}

// Shutdown stops all running negotiations.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.orchestrator.Shutdown(ctx)
}
