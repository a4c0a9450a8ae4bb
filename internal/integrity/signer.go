// Package integrity signs, verifies and hashes negotiation messages.
//
// Signatures are symmetric integrity marks: HMAC-SHA256 over the SHA-256 of
// the RFC 8785 canonical JSON of {type, data, timestamp, agentId}. Each agent
// signs with a key derived from the master key and its agent id, so a message
// only verifies under the identity that produced it.
package integrity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/xiaot623/dealroom/internal/domain"
)

// DefaultKey is the demo signing key.
const DefaultKey = "demo-private-key-change-in-production"

// Signer produces and checks message signatures.
type Signer struct {
	masterKey []byte
}

// NewSigner creates a signer for the given master key. An empty key falls
// back to DefaultKey.
func NewSigner(masterKey string) *Signer {
	if masterKey == "" {
		masterKey = DefaultKey
	}
	return &Signer{masterKey: []byte(masterKey)}
}

// signingPayload is the exact set of fields covered by a signature.
type signingPayload struct {
	Type      domain.MessageType `json:"type"`
	Data      domain.Payload     `json:"data"`
	Timestamp int64              `json:"timestamp"`
	AgentID   string             `json:"agentId"`
}

// Sign computes the signature over type, data, timestamp and agentID.
// Identical inputs always produce the identical signature.
func (s *Signer) Sign(msgType domain.MessageType, data domain.Payload, timestamp int64, agentID string) (string, error) {
	raw, err := json.Marshal(signingPayload{
		Type:      msgType,
		Data:      data,
		Timestamp: timestamp,
		AgentID:   agentID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal signing payload: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize signing payload: %w", err)
	}

	digest := sha256.Sum256(canonical)
	mac := hmac.New(sha256.New, s.keyFor(agentID))
	mac.Write([]byte(hex.EncodeToString(digest[:])))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature over the message's own fields and compares
// it with the stored one. It never fails loudly; an invalid message is just
// false.
func (s *Signer) Verify(msg *domain.SignedMessage) bool {
	if msg == nil || msg.Signature == "" {
		return false
	}
	expected, err := s.Sign(msg.Type, msg.Data, msg.Timestamp, msg.AgentID)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(msg.Signature))
}

// NewMessage builds and signs a message.
func (s *Signer) NewMessage(msgType domain.MessageType, data domain.Payload, timestamp int64, agentID string) (*domain.SignedMessage, error) {
	sig, err := s.Sign(msgType, data, timestamp, agentID)
	if err != nil {
		return nil, err
	}
	return &domain.SignedMessage{
		Type:      msgType,
		Data:      data,
		Timestamp: timestamp,
		AgentID:   agentID,
		Signature: sig,
	}, nil
}

func (s *Signer) keyFor(agentID string) []byte {
	mac := hmac.New(sha256.New, s.masterKey)
	mac.Write([]byte(agentID))
	return mac.Sum(nil)
}

// ContentHash returns the SHA-256 hex digest of the whole message, signature
// included. Any hash already attached is ignored. It is used to cross
// reference audit log entries and has no bearing on validity.
func ContentHash(msg *domain.SignedMessage) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("message is nil")
	}
	c := msg.Clone()
	c.Hash = ""
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}
