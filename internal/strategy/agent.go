package strategy

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/domain"
	"github.com/xiaot623/dealroom/internal/integrity"
)

// DefaultMaxCounterOffers is the per-session counter-offer budget.
const DefaultMaxCounterOffers = 3

// Negotiator is one side of a negotiation.
type Negotiator interface {
	Identity() domain.AgentIdentity
	CreateInitialOffer(product domain.Product) (*domain.SignedMessage, error)
	Perceive(msg *domain.SignedMessage) *Observation
	Decide(obs *Observation, contextOffer *domain.NegotiationOffer) Decision
	Act(decision Decision) (*domain.SignedMessage, error)
	CounterOfferCount() int
}

// Options tunes an agent. The zero value is usable.
type Options struct {
	// MaxCounterOffers bounds counters per session. Zero means the default.
	MaxCounterOffers int

	// Clock supplies message timestamps. Nil means time.Now.
	Clock  func() time.Time
	Logger *zap.Logger
}

// evaluator is implemented by the concrete buyer and seller.
type evaluator interface {
	evaluateOffer(offer domain.NegotiationOffer) Decision
	evaluateCounterOffer(offer domain.NegotiationOffer) Decision
}

// agent holds the state shared by buyers and sellers.
type agent struct {
	identity          domain.AgentIdentity
	signer            *integrity.Signer
	maxCounterOffers  int
	counterOfferCount int
	clock             func() time.Time
	logger            *zap.Logger
}

func newAgent(identity domain.AgentIdentity, signer *integrity.Signer, opts Options, side string) agent {
	if opts.MaxCounterOffers <= 0 {
		opts.MaxCounterOffers = DefaultMaxCounterOffers
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	logger := opts.Logger.With(
		zap.String("component", side),
		zap.String("agent_id", identity.AgentID),
	)
	return agent{
		identity:         identity,
		signer:           signer,
		maxCounterOffers: opts.MaxCounterOffers,
		clock:            opts.Clock,
		logger:           logger,
	}
}

// Identity returns the identity the agent acts for.
func (a *agent) Identity() domain.AgentIdentity {
	return a.identity
}

// CounterOfferCount returns how many counters the agent has made.
func (a *agent) CounterOfferCount() int {
	return a.counterOfferCount
}

// MaxCounterOffers returns the counter-offer budget.
func (a *agent) MaxCounterOffers() int {
	return a.maxCounterOffers
}

// ResetCounterOffers restores the full counter-offer budget.
func (a *agent) ResetCounterOffers() {
	a.counterOfferCount = 0
}

func (a *agent) canCounter() bool {
	return a.counterOfferCount < a.maxCounterOffers
}

func (a *agent) spendCounter() {
	a.counterOfferCount++
}

// Perceive verifies msg and returns what the agent observed. It returns nil
// when the signature does not verify.
func (a *agent) Perceive(msg *domain.SignedMessage) *Observation {
	if msg == nil {
		return nil
	}
	a.logger.Debug("perceiving message", zap.String("type", string(msg.Type)), zap.String("from", msg.AgentID))

	if !a.signer.Verify(msg) {
		a.logger.Warn("invalid signature", zap.String("from", msg.AgentID), zap.String("type", string(msg.Type)))
		return nil
	}

	return &Observation{
		Type:      msg.Type,
		Data:      msg.Data,
		Timestamp: msg.Timestamp,
		AgentID:   msg.AgentID,
	}
}

// decide dispatches on the observed message type.
func (a *agent) decide(ev evaluator, obs *Observation, contextOffer *domain.NegotiationOffer) Decision {
	if obs == nil {
		return reject(ReasonInvalidMessage)
	}

	switch obs.Type {
	case domain.MessageTypeOffer, domain.MessageTypeCounter:
		offer, ok := obs.Data.(domain.NegotiationOffer)
		if !ok || offer.Validate() != nil {
			return reject(ReasonInvalidOffer)
		}
		if contextOffer != nil && offer.ProductID != contextOffer.ProductID {
			return reject(ReasonProductMismatch)
		}
		if obs.Type == domain.MessageTypeOffer {
			return ev.evaluateOffer(offer)
		}
		return ev.evaluateCounterOffer(offer)
	case domain.MessageTypeAccept:
		return Decision{Action: ActionComplete, Data: obs.Data}
	case domain.MessageTypeReject:
		return Decision{Action: ActionTerminate, Data: obs.Data}
	case domain.MessageTypeDelivery:
		return Decision{Action: ActionWait}
	default:
		a.logger.Warn("unknown message type", zap.String("type", string(obs.Type)))
		return Decision{Action: ActionWait}
	}
}

// Act turns a decision into a signed message. Session-level actions
// (complete, terminate, wait) produce no message.
func (a *agent) Act(decision Decision) (*domain.SignedMessage, error) {
	a.logger.Debug("acting", zap.String("action", string(decision.Action)))

	switch decision.Action {
	case ActionAccept:
		return a.signOffer(domain.MessageTypeAccept, decision)
	case ActionCounter:
		return a.signOffer(domain.MessageTypeCounter, decision)
	case ActionReject:
		reason, ok := decision.Data.(domain.RejectReason)
		if !ok {
			reason = domain.RejectReason{Reason: ReasonNoAgreement}
		}
		return a.sign(domain.MessageTypeReject, reason)
	case ActionComplete, ActionTerminate, ActionWait:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown action %q", decision.Action)
	}
}

func (a *agent) signOffer(msgType domain.MessageType, decision Decision) (*domain.SignedMessage, error) {
	offer, ok := decision.Offer()
	if !ok {
		return nil, fmt.Errorf("%s decision carries no offer", decision.Action)
	}
	return a.sign(msgType, offer)
}

func (a *agent) sign(msgType domain.MessageType, payload domain.Payload) (*domain.SignedMessage, error) {
	msg, err := a.signer.NewMessage(msgType, payload, a.clock().UnixMilli(), a.identity.AgentID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign %s message: %w", msgType, err)
	}
	return msg, nil
}
