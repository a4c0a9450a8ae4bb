// Package strategy implements the buyer and seller negotiation agents.
//
// Each agent runs a perceive, decide, act cycle on every message it receives:
// Perceive verifies the message and exposes it as an Observation, Decide picks
// an Action from the observation and the agent's price state, and Act turns
// the decision into a freshly signed message (or nothing, for session-level
// actions).
package strategy

import "github.com/xiaot623/dealroom/internal/domain"

// Action is the outcome of a decision.
type Action string

const (
	ActionAccept    Action = "accept"
	ActionCounter   Action = "counter"
	ActionReject    Action = "reject"
	ActionComplete  Action = "complete"
	ActionTerminate Action = "terminate"
	ActionWait      Action = "wait"
)

// ProducesMessage reports whether Act emits a message for this action.
func (a Action) ProducesMessage() bool {
	switch a {
	case ActionAccept, ActionCounter, ActionReject:
		return true
	}
	return false
}

// Observation is a verified message as seen by an agent.
type Observation struct {
	Type      domain.MessageType
	Data      domain.Payload
	Timestamp int64
	AgentID   string
}

// Decision is what an agent intends to do next. Data holds the offer for
// accept and counter, and the reason for reject.
type Decision struct {
	Action Action
	Data   domain.Payload
}

// Offer returns the offer carried by the decision, if any.
func (d Decision) Offer() (domain.NegotiationOffer, bool) {
	offer, ok := d.Data.(domain.NegotiationOffer)
	return offer, ok
}

// Reason returns the reject or termination reason, if any.
func (d Decision) Reason() string {
	if r, ok := d.Data.(domain.RejectReason); ok {
		return r.Reason
	}
	return ""
}

func accept(offer domain.NegotiationOffer) Decision {
	return Decision{Action: ActionAccept, Data: offer}
}

func counter(offer domain.NegotiationOffer, totalPrice float64) Decision {
	return Decision{Action: ActionCounter, Data: offer.WithTotal(totalPrice)}
}

func reject(reason string) Decision {
	return Decision{Action: ActionReject, Data: domain.RejectReason{Reason: reason}}
}

// Reject reasons.
const (
	ReasonInvalidMessage  = "Invalid message"
	ReasonInvalidOffer    = "Invalid offer"
	ReasonProductMismatch = "Product mismatch"
	ReasonExceedsBudget   = "Price exceeds budget"
	ReasonBelowMinimum    = "Price below minimum"
	ReasonNoAgreement     = "Cannot reach agreement"
)
