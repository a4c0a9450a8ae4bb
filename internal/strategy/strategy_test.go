package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/integrity"
)

var testProduct = domain.Product{ID: "prod-001", Name: "Test Product", Quantity: 100}

func testIdentity(id string, role domain.AgentRole) domain.AgentIdentity {
	return domain.AgentIdentity{
		AgentID:         id,
		Name:            "Test " + id,
		Role:            role,
		Status:          domain.AgentStatusActive,
		PublicKey:       "test-key",
		Owner:           "0x" + id,
		ReputationScore: 100,
		RegisteredAt:    time.Now(),
	}
}

func newPair(t *testing.T) (*Buyer, *Seller, *integrity.Signer) {
	t.Helper()
	signer := integrity.NewSigner("test-key")
	buyer := NewBuyer(testIdentity("buyer-test", domain.AgentRoleBuyer), 120, signer, Options{})
	seller := NewSeller(testIdentity("seller-test", domain.AgentRoleSeller), 80, nil, signer, Options{})
	return buyer, seller, signer
}

// signed builds a validly signed message carrying offer.
func signed(t *testing.T, signer *integrity.Signer, msgType domain.MessageType, offer domain.NegotiationOffer, agentID string) *domain.SignedMessage {
	t.Helper()
	msg, err := signer.NewMessage(msgType, offer, time.Now().UnixMilli(), agentID)
	require.NoError(t, err)
	return msg
}

func TestBuyerCreatesInitialOffer(t *testing.T) {
	buyer, _, signer := newPair(t)

	msg, err := buyer.CreateInitialOffer(testProduct)
	require.NoError(t, err)

	assert.Equal(t, domain.MessageTypeOffer, msg.Type)
	assert.Equal(t, "buyer-test", msg.AgentID)
	assert.NotEmpty(t, msg.Signature)
	assert.True(t, signer.Verify(msg))

	offer, ok := msg.Offer()
	require.True(t, ok)
	assert.InDelta(t, 96, offer.TotalPrice, 1e-9)
	assert.LessOrEqual(t, offer.TotalPrice, 120.0)
	assert.NoError(t, offer.Validate())
}

func TestBuyerRejectsNonPositiveQuantity(t *testing.T) {
	buyer, _, _ := newPair(t)
	_, err := buyer.CreateInitialOffer(domain.Product{ID: "prod-001", Name: "x", Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidOffer)
}

func TestSellerInitialOfferRequiresStockedProduct(t *testing.T) {
	_, seller, _ := newPair(t)

	_, err := seller.CreateInitialOffer(domain.Product{ID: "prod-999", Quantity: 10})
	assert.True(t, errors.Is(err, ErrProductNotFound))

	msg, err := seller.CreateInitialOffer(domain.Product{ID: "prod-001", Quantity: 100})
	require.NoError(t, err)
	offer, _ := msg.Offer()
	assert.Equal(t, "Premium API Access", offer.ProductName)
	assert.InDelta(t, 104, offer.TotalPrice, 1e-9)
}

func TestScenarioAgreementAfterOneCounter(t *testing.T) {
	buyer, seller, _ := newPair(t)

	opening, err := buyer.CreateInitialOffer(testProduct)
	require.NoError(t, err)

	sellerDecision := seller.Decide(seller.Perceive(opening), nil)
	require.Equal(t, ActionCounter, sellerDecision.Action)
	counterOffer, _ := sellerDecision.Offer()
	assert.InDelta(t, 100, counterOffer.TotalPrice, 1e-9)

	sellerMsg, err := seller.Act(sellerDecision)
	require.NoError(t, err)
	require.Equal(t, domain.MessageTypeCounter, sellerMsg.Type)

	buyerDecision := buyer.Decide(buyer.Perceive(sellerMsg), nil)
	require.Equal(t, ActionAccept, buyerDecision.Action)

	acceptMsg, err := buyer.Act(buyerDecision)
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeAccept, acceptMsg.Type)
	accepted, _ := acceptMsg.Offer()
	assert.InDelta(t, 100, accepted.TotalPrice, 1e-9)
}

func TestBuyerRejectsOfferAboveBudget(t *testing.T) {
	buyer, seller, signer := newPair(t)

	opening, err := seller.CreateInitialOffer(domain.Product{ID: "prod-001", Quantity: 100})
	require.NoError(t, err)
	offer, _ := opening.Offer()

	// Re-signed by the seller: the price itself is the problem.
	expensive := signed(t, signer, domain.MessageTypeOffer, offer.WithTotal(150), opening.AgentID)
	decision := buyer.Decide(buyer.Perceive(expensive), nil)
	assert.Equal(t, ActionReject, decision.Action)
	assert.Equal(t, ReasonExceedsBudget, decision.Reason())

	// Edited after signing: the message itself is rejected.
	opening.Data = offer.WithTotal(150)
	decision = buyer.Decide(buyer.Perceive(opening), nil)
	assert.Equal(t, ActionReject, decision.Action)
	assert.Equal(t, ReasonInvalidMessage, decision.Reason())
}

func TestSellerRejectsLowOfferWithoutCounterBudget(t *testing.T) {
	buyer, seller, signer := newPair(t)

	opening, err := buyer.CreateInitialOffer(testProduct)
	require.NoError(t, err)
	offer, _ := opening.Offer()
	low := signed(t, signer, domain.MessageTypeOffer, offer.WithTotal(50), opening.AgentID)

	seller.counterOfferCount = seller.MaxCounterOffers()
	decision := seller.Decide(seller.Perceive(low), nil)
	assert.Equal(t, ActionReject, decision.Action)

	counterMsg := signed(t, signer, domain.MessageTypeCounter, offer.WithTotal(50), opening.AgentID)
	decision = seller.Decide(seller.Perceive(counterMsg), nil)
	assert.Equal(t, ActionReject, decision.Action)
	assert.Equal(t, ReasonNoAgreement, decision.Reason())
}

func TestBuyerCounterBudgetExhaustion(t *testing.T) {
	buyer, _, signer := newPair(t)
	offer := domain.NewOffer(testProduct, 110, "terms")

	for i := 0; i < DefaultMaxCounterOffers; i++ {
		d := buyer.Decide(buyer.Perceive(signed(t, signer, domain.MessageTypeOffer, offer, "seller-test")), nil)
		require.Equal(t, ActionCounter, d.Action, "counter %d", i)
	}
	assert.Equal(t, DefaultMaxCounterOffers, buyer.CounterOfferCount())

	d := buyer.Decide(buyer.Perceive(signed(t, signer, domain.MessageTypeOffer, offer, "seller-test")), nil)
	assert.Equal(t, ActionAccept, d.Action, "affordable offer is accepted once counters run out")

	d = buyer.Decide(buyer.Perceive(signed(t, signer, domain.MessageTypeOffer, offer.WithTotal(130), "seller-test")), nil)
	assert.Equal(t, ActionReject, d.Action)

	buyer.ResetCounterOffers()
	assert.Equal(t, 0, buyer.CounterOfferCount())
}

func TestCounterOfCounterConcessions(t *testing.T) {
	buyer, seller, signer := newPair(t)

	d := buyer.Decide(buyer.Perceive(signed(t, signer, domain.MessageTypeCounter, domain.NewOffer(testProduct, 130, "t"), "seller-test")), nil)
	require.Equal(t, ActionCounter, d.Action)
	offer, _ := d.Offer()
	assert.InDelta(t, 120, offer.TotalPrice, 1e-9, "0.95 x 130 is capped at the budget")

	d = buyer.Decide(buyer.Perceive(signed(t, signer, domain.MessageTypeCounter, domain.NewOffer(testProduct, 200, "t"), "seller-test")), nil)
	offer, _ = d.Offer()
	assert.InDelta(t, 120, offer.TotalPrice, 1e-9)

	d = seller.Decide(seller.Perceive(signed(t, signer, domain.MessageTypeCounter, domain.NewOffer(testProduct, 70, "t"), "buyer-test")), nil)
	require.Equal(t, ActionCounter, d.Action)
	offer, _ = d.Offer()
	assert.InDelta(t, 80, offer.TotalPrice, 1e-9)

	d = seller.Decide(seller.Perceive(signed(t, signer, domain.MessageTypeCounter, domain.NewOffer(testProduct, 85, "t"), "buyer-test")), nil)
	assert.Equal(t, ActionAccept, d.Action)
}

func TestCounterKeepsOfferTerms(t *testing.T) {
	_, seller, signer := newPair(t)
	in := domain.NegotiationOffer{
		ProductID:     "prod-001",
		ProductName:   "Bulk Widgets",
		Quantity:      40,
		PricePerUnit:  2.25,
		TotalPrice:    90,
		DeliveryTerms: "Pickup only",
	}

	d := seller.Decide(seller.Perceive(signed(t, signer, domain.MessageTypeOffer, in, "buyer-test")), nil)
	require.Equal(t, ActionCounter, d.Action)
	out, _ := d.Offer()

	assert.Equal(t, in.ProductID, out.ProductID)
	assert.Equal(t, in.ProductName, out.ProductName)
	assert.Equal(t, in.Quantity, out.Quantity)
	assert.Equal(t, in.DeliveryTerms, out.DeliveryTerms)
	assert.InDelta(t, 97, out.TotalPrice, 1e-9)
	assert.InDelta(t, 97.0/40, out.PricePerUnit, 1e-9)
	assert.NoError(t, out.Validate())
}

func TestSessionLevelDecisions(t *testing.T) {
	buyer, _, signer := newPair(t)
	offer := domain.NewOffer(testProduct, 100, "t")

	acceptMsg := signed(t, signer, domain.MessageTypeAccept, offer, "seller-test")
	rejectMsg, err := signer.NewMessage(domain.MessageTypeReject, domain.RejectReason{Reason: "no"}, 1, "seller-test")
	require.NoError(t, err)
	deliveryMsg := signed(t, signer, domain.MessageTypeDelivery, offer, "seller-test")

	tests := []struct {
		msg  *domain.SignedMessage
		want Action
	}{
		{acceptMsg, ActionComplete},
		{rejectMsg, ActionTerminate},
		{deliveryMsg, ActionWait},
	}
	for _, tt := range tests {
		t.Run(string(tt.msg.Type), func(t *testing.T) {
			d := buyer.Decide(buyer.Perceive(tt.msg), nil)
			assert.Equal(t, tt.want, d.Action)
			out, err := buyer.Act(d)
			assert.NoError(t, err)
			assert.Nil(t, out)
		})
	}
}

func TestDecideRejectsInvalidInputs(t *testing.T) {
	buyer, _, signer := newPair(t)

	d := buyer.Decide(nil, nil)
	assert.Equal(t, ReasonInvalidMessage, d.Reason())

	broken := domain.NewOffer(testProduct, 100, "t")
	broken.TotalPrice = 90
	d = buyer.Decide(buyer.Perceive(signed(t, signer, domain.MessageTypeOffer, broken, "seller-test")), nil)
	assert.Equal(t, ReasonInvalidOffer, d.Reason())

	other := domain.NewOffer(domain.Product{ID: "prod-002", Name: "Other", Quantity: 1}, 100, "t")
	ctxOffer := domain.NewOffer(testProduct, 96, "t")
	d = buyer.Decide(buyer.Perceive(signed(t, signer, domain.MessageTypeCounter, other, "seller-test")), &ctxOffer)
	assert.Equal(t, ReasonProductMismatch, d.Reason())
}

func TestActRejectAndUnknownAction(t *testing.T) {
	buyer, _, signer := newPair(t)

	msg, err := buyer.Act(reject(ReasonExceedsBudget))
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeReject, msg.Type)
	assert.Equal(t, domain.RejectReason{Reason: ReasonExceedsBudget}, msg.Data)
	assert.True(t, signer.Verify(msg))

	_, err = buyer.Act(Decision{Action: "haggle"})
	assert.Error(t, err)

	_, err = buyer.Act(Decision{Action: ActionAccept})
	assert.Error(t, err)
}

func TestActUsesInjectedClock(t *testing.T) {
	signer := integrity.NewSigner("")
	fixed := time.UnixMilli(1700000000000)
	buyer := NewBuyer(testIdentity("b", domain.AgentRoleBuyer), 120, signer, Options{Clock: func() time.Time { return fixed }})

	msg, err := buyer.CreateInitialOffer(testProduct)
	require.NoError(t, err)
	assert.Equal(t, fixed.UnixMilli(), msg.Timestamp)
}

func TestInventory(t *testing.T) {
	inv := DefaultInventory()
	item, err := inv.Lookup("prod-001")
	require.NoError(t, err)
	assert.Equal(t, 1000, item.Quantity)

	inv.Put(InventoryItem{ProductID: "prod-000", Name: "Starter", Quantity: 5, BasePrice: 10})
	items := inv.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "prod-000", items[0].ProductID)
}

func TestDecisionProperties(t *testing.T) {
	signer := integrity.NewSigner("property-key")
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("buyer accepts offers at or below target", prop.ForAll(
		func(total float64) bool {
			buyer := NewBuyer(testIdentity("b", domain.AgentRoleBuyer), 120, signer, Options{})
			msg, err := signer.NewMessage(domain.MessageTypeOffer, domain.NewOffer(testProduct, total, "t"), 1, "s")
			if err != nil {
				return false
			}
			return buyer.Decide(buyer.Perceive(msg), nil).Action == ActionAccept
		},
		gen.Float64Range(0.01, 96),
	))

	properties.Property("buyer counters between target and budget at the midpoint", prop.ForAll(
		func(total float64) bool {
			buyer := NewBuyer(testIdentity("b", domain.AgentRoleBuyer), 120, signer, Options{})
			msg, err := signer.NewMessage(domain.MessageTypeOffer, domain.NewOffer(testProduct, total, "t"), 1, "s")
			if err != nil {
				return false
			}
			d := buyer.Decide(buyer.Perceive(msg), nil)
			offer, ok := d.Offer()
			return d.Action == ActionCounter && ok &&
				offer.TotalPrice >= buyer.TargetPrice() && offer.TotalPrice <= total &&
				domain.PricesEqual(offer.TotalPrice, (total+buyer.TargetPrice())/2)
		},
		gen.Float64Range(96.001, 120),
	))

	properties.Property("seller counters between minimum and target at the midpoint", prop.ForAll(
		func(total float64) bool {
			seller := NewSeller(testIdentity("s", domain.AgentRoleSeller), 80, nil, signer, Options{})
			msg, err := signer.NewMessage(domain.MessageTypeOffer, domain.NewOffer(testProduct, total, "t"), 1, "b")
			if err != nil {
				return false
			}
			d := seller.Decide(seller.Perceive(msg), nil)
			offer, ok := d.Offer()
			return d.Action == ActionCounter && ok &&
				offer.TotalPrice >= total && offer.TotalPrice <= seller.TargetPrice() &&
				domain.PricesEqual(offer.TotalPrice, (total+seller.TargetPrice())/2)
		},
		gen.Float64Range(80, 103.999),
	))

	properties.Property("no counter once the budget is spent", prop.ForAll(
		func(totals []float64) bool {
			buyer := NewBuyer(testIdentity("b", domain.AgentRoleBuyer), 120, signer, Options{})
			counters := 0
			for _, total := range totals {
				msg, err := signer.NewMessage(domain.MessageTypeCounter, domain.NewOffer(testProduct, total, "t"), 1, "s")
				if err != nil {
					return false
				}
				before := buyer.CounterOfferCount()
				d := buyer.Decide(buyer.Perceive(msg), nil)
				if d.Action == ActionCounter {
					counters++
					if before >= buyer.MaxCounterOffers() {
						return false
					}
				}
				if buyer.CounterOfferCount() < before {
					return false
				}
			}
			return counters <= buyer.MaxCounterOffers()
		},
		gen.SliceOf(gen.Float64Range(1, 500)),
	))

	properties.TestingRun(t)
}
