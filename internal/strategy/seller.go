package strategy

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/integrity"
)

const (
	// sellerTargetRatio is the markup over the minimum the seller aims for.
	sellerTargetRatio = 1.3
	// sellerConcession is applied when countering a counter. It raises the
	// price; see DESIGN.md.
	sellerConcession = 1.05

	sellerDeliveryTerms = "Immediate delivery upon payment"
)

// Seller negotiates to sell at or above a minimum price.
type Seller struct {
	agent
	minPrice    float64
	targetPrice float64
	inventory   *Inventory
}

var _ Negotiator = (*Seller)(nil)

// NewSeller creates a seller bound to identity and minPrice. A nil inventory
// means the demo catalog.
func NewSeller(identity domain.AgentIdentity, minPrice float64, inventory *Inventory, signer *integrity.Signer, opts Options) *Seller {
	if inventory == nil {
		inventory = DefaultInventory()
	}
	return &Seller{
		agent:       newAgent(identity, signer, opts, "seller"),
		minPrice:    minPrice,
		targetPrice: minPrice * sellerTargetRatio,
		inventory:   inventory,
	}
}

// MinPrice returns the seller's hard bound.
func (s *Seller) MinPrice() float64 { return s.minPrice }

// TargetPrice returns the price the seller aims for.
func (s *Seller) TargetPrice() float64 { return s.targetPrice }

// Inventory returns the seller's catalog.
func (s *Seller) Inventory() *Inventory { return s.inventory }

// CreateInitialOffer opens a negotiation at the seller's target price. The
// product must be stocked; the catalog name wins over the caller's.
func (s *Seller) CreateInitialOffer(product domain.Product) (*domain.SignedMessage, error) {
	item, err := s.inventory.Lookup(product.ID)
	if err != nil {
		return nil, err
	}
	if product.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidOffer)
	}
	product.Name = item.Name
	offer := domain.NewOffer(product, s.targetPrice, sellerDeliveryTerms)
	return s.sign(domain.MessageTypeOffer, offer)
}

// Decide picks the seller's next action.
func (s *Seller) Decide(obs *Observation, contextOffer *domain.NegotiationOffer) Decision {
	return s.decide(s, obs, contextOffer)
}

func (s *Seller) evaluateOffer(offer domain.NegotiationOffer) Decision {
	s.logger.Info("evaluating buyer offer",
		zap.Float64("total_price", offer.TotalPrice),
		zap.Float64("min_price", s.minPrice),
	)

	if offer.TotalPrice >= s.targetPrice {
		return accept(offer)
	}
	if offer.TotalPrice >= s.minPrice && s.canCounter() {
		s.spendCounter()
		return counter(offer, (offer.TotalPrice+s.targetPrice)/2)
	}
	if offer.TotalPrice >= s.minPrice {
		return accept(offer)
	}
	return reject(ReasonBelowMinimum)
}

func (s *Seller) evaluateCounterOffer(offer domain.NegotiationOffer) Decision {
	s.logger.Info("evaluating counter offer", zap.Float64("total_price", offer.TotalPrice))

	if offer.TotalPrice >= s.minPrice {
		return accept(offer)
	}
	if s.canCounter() {
		s.spendCounter()
		return counter(offer, math.Max(offer.TotalPrice*sellerConcession, s.minPrice))
	}
	return reject(ReasonNoAgreement)
}
