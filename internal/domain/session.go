package domain

import (
	"encoding/json"
	"time"
)

// NegotiationSession is one negotiation between a buyer and a seller.
type NegotiationSession struct {
	SessionID     string           `json:"sessionId"`
	BuyerAgentID  string           `json:"buyerAgentId"`
	SellerAgentID string           `json:"sellerAgentId"`
	Status        SessionStatus    `json:"status"`
	Messages      []*SignedMessage `json:"messages"`
	StartedAt     time.Time        `json:"startedAt"`
	CompletedAt   *time.Time       `json:"completedAt,omitempty"`
	FinalPrice    *float64         `json:"finalPrice,omitempty"`
	HCSTopicID    string           `json:"hcsTopicId,omitempty"`
}

// Copy returns a deep copy of the session.
func (s NegotiationSession) Copy() NegotiationSession {
	c := s
	c.Messages = make([]*SignedMessage, len(s.Messages))
	for i, m := range s.Messages {
		c.Messages[i] = m.Clone()
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.FinalPrice != nil {
		p := *s.FinalPrice
		c.FinalPrice = &p
	}
	return c
}

// LastMessage returns the most recent message, or nil.
func (s NegotiationSession) LastMessage() *SignedMessage {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// SessionEvent is pushed to session watchers as the negotiation progresses.
type SessionEvent struct {
	Type       SessionEventType `json:"type"`
	Ts         int64            `json:"ts"` // Unix milliseconds
	SessionID  string           `json:"sessionId"`
	Status     SessionStatus    `json:"status"`
	Message    *SignedMessage   `json:"message,omitempty"`
	FinalPrice *float64         `json:"finalPrice,omitempty"`
	Reason     string           `json:"reason,omitempty"`

	// Session is set on snapshot events only.
	Session *NegotiationSession `json:"session,omitempty"`
}

// AuditLogEntry is a message as recorded by the audit log collaborator.
type AuditLogEntry struct {
	TopicID            string          `json:"topicId"`
	SequenceNumber     int64           `json:"sequenceNumber"`
	Message            json.RawMessage `json:"message"`
	Timestamp          time.Time       `json:"timestamp"`
	ConsensusTimestamp string          `json:"consensusTimestamp"`
}
