package domain

import (
	"encoding/json"
	"fmt"
)

// Payload is the data carried by a SignedMessage. The set of payload shapes is
// closed: NegotiationOffer and RejectReason.
type Payload interface {
	isPayload()
}

// RejectReason is the payload of a reject message.
type RejectReason struct {
	Reason string `json:"reason"`
}

func (RejectReason) isPayload() {}

// SignedMessage is a negotiation message with an integrity signature. Hash is
// attached once, when the message enters a session log.
type SignedMessage struct {
	Type      MessageType `json:"type"`
	Data      Payload     `json:"data"`
	Timestamp int64       `json:"timestamp"` // Unix milliseconds
	AgentID   string      `json:"agentId"`
	Signature string      `json:"signature"`
	Hash      string      `json:"hash,omitempty"`
}

// Offer returns the offer payload, if the message carries one.
func (m *SignedMessage) Offer() (NegotiationOffer, bool) {
	if m == nil {
		return NegotiationOffer{}, false
	}
	offer, ok := m.Data.(NegotiationOffer)
	return offer, ok
}

// Clone returns a copy of the message. Payloads are values, so a shallow copy
// is enough.
func (m *SignedMessage) Clone() *SignedMessage {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

// PayloadKind returns the zero payload expected for a message type.
func PayloadKind(t MessageType) (Payload, error) {
	switch t {
	case MessageTypeOffer, MessageTypeCounter, MessageTypeAccept, MessageTypeDelivery:
		return NegotiationOffer{}, nil
	case MessageTypeReject:
		return RejectReason{}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", t)
	}
}

// DecodePayload decodes raw JSON into the payload shape for t.
func DecodePayload(t MessageType, raw json.RawMessage) (Payload, error) {
	kind, err := PayloadKind(t)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch kind.(type) {
	case NegotiationOffer:
		var offer NegotiationOffer
		if err := json.Unmarshal(raw, &offer); err != nil {
			return nil, fmt.Errorf("failed to decode offer payload: %w", err)
		}
		return offer, nil
	case RejectReason:
		var reason RejectReason
		if err := json.Unmarshal(raw, &reason); err != nil {
			return nil, fmt.Errorf("failed to decode reject payload: %w", err)
		}
		return reason, nil
	}
	return nil, fmt.Errorf("no decoder for message type %q", t)
}

// UnmarshalJSON decodes the message and picks the payload shape from Type.
func (m *SignedMessage) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type      MessageType     `json:"type"`
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
		AgentID   string          `json:"agentId"`
		Signature string          `json:"signature"`
		Hash      string          `json:"hash,omitempty"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	payload, err := DecodePayload(wire.Type, wire.Data)
	if err != nil {
		return err
	}
	*m = SignedMessage{
		Type:      wire.Type,
		Data:      payload,
		Timestamp: wire.Timestamp,
		AgentID:   wire.AgentID,
		Signature: wire.Signature,
		Hash:      wire.Hash,
	}
	return nil
}
