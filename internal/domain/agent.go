package domain

import "time"

// AgentIdentity represents a registered negotiation agent.
type AgentIdentity struct {
	AgentID          string      `json:"agentId"`
	Name             string      `json:"name"`
	Role             AgentRole   `json:"role"`
	Status           AgentStatus `json:"status"`
	PublicKey        string      `json:"publicKey"`
	Owner            string      `json:"owner"`
	MetadataCID      string      `json:"metadataCID,omitempty"`
	ReputationScore  int         `json:"reputationScore"`
	TransactionCount int         `json:"transactionCount"`
	RegisteredAt     time.Time   `json:"registeredAt"`
}
