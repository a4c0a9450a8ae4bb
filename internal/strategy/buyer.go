package strategy

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/integrity"
)

const (
	// buyerTargetRatio is the share of the budget the buyer aims to pay.
	buyerTargetRatio = 0.8
	// buyerConcession is the discount applied when countering a counter.
	buyerConcession = 0.95

	buyerDeliveryTerms = "Standard delivery within 7 days"
)

// Buyer negotiates to buy under a maximum budget.
type Buyer struct {
	agent
	maxBudget   float64
	targetPrice float64
}

var _ Negotiator = (*Buyer)(nil)

// NewBuyer creates a buyer bound to identity and maxBudget.
func NewBuyer(identity domain.AgentIdentity, maxBudget float64, signer *integrity.Signer, opts Options) *Buyer {
	return &Buyer{
		agent:       newAgent(identity, signer, opts, "buyer"),
		maxBudget:   maxBudget,
		targetPrice: maxBudget * buyerTargetRatio,
	}
}

// MaxBudget returns the buyer's hard bound.
func (b *Buyer) MaxBudget() float64 { return b.maxBudget }

// TargetPrice returns the price the buyer aims for.
func (b *Buyer) TargetPrice() float64 { return b.targetPrice }

// CreateInitialOffer opens a negotiation at the buyer's target price.
func (b *Buyer) CreateInitialOffer(product domain.Product) (*domain.SignedMessage, error) {
	if product.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidOffer)
	}
	offer := domain.NewOffer(product, b.targetPrice, buyerDeliveryTerms)
	return b.sign(domain.MessageTypeOffer, offer)
}

// Decide picks the buyer's next action.
func (b *Buyer) Decide(obs *Observation, contextOffer *domain.NegotiationOffer) Decision {
	return b.decide(b, obs, contextOffer)
}

func (b *Buyer) evaluateOffer(offer domain.NegotiationOffer) Decision {
	b.logger.Info("evaluating offer",
		zap.Float64("total_price", offer.TotalPrice),
		zap.Float64("budget", b.maxBudget),
	)

	if offer.TotalPrice <= b.targetPrice {
		return accept(offer)
	}
	if offer.TotalPrice <= b.maxBudget && b.canCounter() {
		b.spendCounter()
		return counter(offer, (offer.TotalPrice+b.targetPrice)/2)
	}
	if offer.TotalPrice <= b.maxBudget {
		return accept(offer)
	}
	return reject(ReasonExceedsBudget)
}

func (b *Buyer) evaluateCounterOffer(offer domain.NegotiationOffer) Decision {
	b.logger.Info("evaluating counter offer", zap.Float64("total_price", offer.TotalPrice))

	if offer.TotalPrice <= b.maxBudget {
		return accept(offer)
	}
	if b.canCounter() {
		b.spendCounter()
		return counter(offer, math.Min(offer.TotalPrice*buyerConcession, b.maxBudget))
	}
	return reject(ReasonNoAgreement)
}
