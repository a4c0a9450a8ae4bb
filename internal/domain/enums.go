// Package domain defines the core domain models for the negotiation service.
package domain

// AgentRole is the side an agent may take in a negotiation.
type AgentRole string

const (
	AgentRoleBuyer  AgentRole = "buyer"
	AgentRoleSeller AgentRole = "seller"
	AgentRoleBoth   AgentRole = "both"
)

// Valid reports whether r is a known role.
func (r AgentRole) Valid() bool {
	switch r {
	case AgentRoleBuyer, AgentRoleSeller, AgentRoleBoth:
		return true
	}
	return false
}

// CanBuy reports whether an agent with this role may act as the buyer.
func (r AgentRole) CanBuy() bool {
	return r == AgentRoleBuyer || r == AgentRoleBoth
}

// CanSell reports whether an agent with this role may act as the seller.
func (r AgentRole) CanSell() bool {
	return r == AgentRoleSeller || r == AgentRoleBoth
}

// AgentStatus represents the status of a registered agent.
type AgentStatus string

const (
	AgentStatusInactive    AgentStatus = "inactive"
	AgentStatusActive      AgentStatus = "active"
	AgentStatusNegotiating AgentStatus = "negotiating"
	AgentStatusSuspended   AgentStatus = "suspended"
)

// MessageType represents the type of a signed negotiation message.
type MessageType string

const (
	MessageTypeOffer    MessageType = "offer"
	MessageTypeCounter  MessageType = "counter"
	MessageTypeAccept   MessageType = "accept"
	MessageTypeReject   MessageType = "reject"
	MessageTypeDelivery MessageType = "delivery"
)

// MessageTypes lists every message type the protocol knows about.
var MessageTypes = []MessageType{
	MessageTypeOffer,
	MessageTypeCounter,
	MessageTypeAccept,
	MessageTypeReject,
	MessageTypeDelivery,
}

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	for _, known := range MessageTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SessionStatus represents the status of a negotiation session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusFailed
}

// SessionEventType is the type of an event pushed to session watchers.
type SessionEventType string

const (
	SessionEventSnapshot  SessionEventType = "snapshot"
	SessionEventStarted   SessionEventType = "session_started"
	SessionEventMessage   SessionEventType = "message"
	SessionEventCompleted SessionEventType = "session_completed"
	SessionEventFailed    SessionEventType = "session_failed"
)

// Terminal reports whether the event closes the session stream.
func (t SessionEventType) Terminal() bool {
	return t == SessionEventCompleted || t == SessionEventFailed
}
