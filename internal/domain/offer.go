package domain

import (
	"errors"
	"fmt"
	"math"
)

// priceTolerance is the relative tolerance used when comparing totals.
const priceTolerance = 1e-6

// ErrInvalidOffer is returned when an offer violates its invariants.
var ErrInvalidOffer = errors.New("invalid offer")

// Product identifies what is being negotiated.
type Product struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// NegotiationOffer is a price proposal for a product. A new value is produced
// on every offer or counter.
type NegotiationOffer struct {
	ProductID     string  `json:"productId"`
	ProductName   string  `json:"productName"`
	Quantity      int     `json:"quantity"`
	PricePerUnit  float64 `json:"pricePerUnit"`
	TotalPrice    float64 `json:"totalPrice"`
	DeliveryTerms string  `json:"deliveryTerms"`
}

func (NegotiationOffer) isPayload() {}

// NewOffer builds an offer for product at the given total price.
func NewOffer(product Product, totalPrice float64, deliveryTerms string) NegotiationOffer {
	return NegotiationOffer{
		ProductID:     product.ID,
		ProductName:   product.Name,
		Quantity:      product.Quantity,
		PricePerUnit:  totalPrice / float64(product.Quantity),
		TotalPrice:    totalPrice,
		DeliveryTerms: deliveryTerms,
	}
}

// WithTotal returns a copy of o repriced to totalPrice. Product fields and
// delivery terms are kept as they are.
func (o NegotiationOffer) WithTotal(totalPrice float64) NegotiationOffer {
	o.TotalPrice = totalPrice
	if o.Quantity > 0 {
		o.PricePerUnit = totalPrice / float64(o.Quantity)
	}
	return o
}

// Validate checks quantity and the unit price / total price relation.
func (o NegotiationOffer) Validate() error {
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidOffer, o.Quantity)
	}
	if !PricesEqual(o.PricePerUnit*float64(o.Quantity), o.TotalPrice) {
		return fmt.Errorf("%w: total %.6f does not match %d x %.6f", ErrInvalidOffer, o.TotalPrice, o.Quantity, o.PricePerUnit)
	}
	return nil
}

// PricesEqual compares two prices within a relative tolerance.
func PricesEqual(a, b float64) bool {
	scale := math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= priceTolerance*scale
}
