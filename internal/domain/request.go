package domain

// RegisterAgentRequest is the request to register an agent identity.
type RegisterAgentRequest struct {
	Name        string    `json:"name"`
	Role        AgentRole `json:"role"`
	Owner       string    `json:"owner"`
	PublicKey   string    `json:"publicKey"`
	MetadataCID string    `json:"metadataCID,omitempty"`
}

// StartNegotiationRequest is the request to start a negotiation. Every field
// is optional; missing values fall back to the configured demo negotiation.
type StartNegotiationRequest struct {
	BuyerAgentID  string    `json:"buyerAgentId,omitempty"`
	SellerAgentID string    `json:"sellerAgentId,omitempty"`
	ProductID     string    `json:"productId,omitempty"`
	Quantity      int       `json:"quantity,omitempty"`
	MaxBudget     float64   `json:"maxBudget,omitempty"`
	MinPrice      float64   `json:"minPrice,omitempty"`
	Opener        AgentRole `json:"opener,omitempty"`
}

// Envelope is the response wrapper used by the HTTP API.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
