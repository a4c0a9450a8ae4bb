package store

import (
	"context"
	"testing"
	"time"

	"github.com/xiaot623/dealroom/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSQLiteStoreAgents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	agent := &domain.AgentIdentity{
		AgentID:         "buyer-001",
		Name:            "BuyerBot Alpha",
		Role:            domain.AgentRoleBuyer,
		Status:          domain.AgentStatusActive,
		PublicKey:       "pk",
		Owner:           "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb",
		ReputationScore: 95,
		RegisteredAt:    time.Now().UTC(),
	}
	if err := store.SaveAgent(ctx, agent); err != nil {
		t.Fatalf("SaveAgent failed: %v", err)
	}

	got, err := store.GetAgent(ctx, "buyer-001")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got == nil || got.Name != "BuyerBot Alpha" || got.Role != domain.AgentRoleBuyer {
		t.Fatalf("unexpected agent: %+v", got)
	}
	if got.MetadataCID != "" {
		t.Fatalf("expected empty metadata CID, got %q", got.MetadataCID)
	}

	// Last write wins.
	agent.Name = "BuyerBot Beta"
	agent.MetadataCID = "bafy"
	if err := store.SaveAgent(ctx, agent); err != nil {
		t.Fatalf("SaveAgent (update) failed: %v", err)
	}
	got, err = store.GetAgent(ctx, "buyer-001")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got.Name != "BuyerBot Beta" || got.MetadataCID != "bafy" {
		t.Fatalf("update not applied: %+v", got)
	}

	missing, err := store.GetAgent(ctx, "nope")
	if err != nil {
		t.Fatalf("GetAgent (missing) failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing agent, got %+v", missing)
	}

	agents, err := store.ListAgents(ctx)
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}
}

func TestSQLiteStoreSessionAndMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	started := time.Now().UTC()
	session := &domain.NegotiationSession{
		SessionID:     "s1",
		BuyerAgentID:  "buyer-001",
		SellerAgentID: "seller-001",
		Status:        domain.SessionStatusActive,
		StartedAt:     started,
	}
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}

	offer := domain.NewOffer(domain.Product{ID: "prod-001", Name: "Premium API Access", Quantity: 1000}, 96, "Standard delivery within 7 days")
	messages := []*domain.SignedMessage{
		{Type: domain.MessageTypeOffer, Data: offer, Timestamp: 1, AgentID: "buyer-001", Signature: "aa", Hash: "h1"},
		{Type: domain.MessageTypeReject, Data: domain.RejectReason{Reason: "Price below minimum"}, Timestamp: 2, AgentID: "seller-001", Signature: "bb", Hash: "h2"},
	}
	for i, msg := range messages {
		if err := store.AppendMessage(ctx, "s1", i, msg); err != nil {
			t.Fatalf("AppendMessage failed: %v", err)
		}
	}

	completed := started.Add(time.Second)
	session.Status = domain.SessionStatusFailed
	session.CompletedAt = &completed
	session.HCSTopicID = "0.0.1"
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession (update) failed: %v", err)
	}

	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil || got.Status != domain.SessionStatusFailed || got.HCSTopicID != "0.0.1" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if got.FinalPrice != nil {
		t.Fatalf("expected no final price, got %v", *got.FinalPrice)
	}
	if got.CompletedAt == nil {
		t.Fatalf("expected completedAt to be set")
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	gotOffer, ok := got.Messages[0].Offer()
	if !ok || gotOffer != offer {
		t.Fatalf("offer payload not restored: %+v", got.Messages[0].Data)
	}
	reason, ok := got.Messages[1].Data.(domain.RejectReason)
	if !ok || reason.Reason != "Price below minimum" {
		t.Fatalf("reject payload not restored: %+v", got.Messages[1].Data)
	}
	if got.Messages[1].Hash != "h2" {
		t.Fatalf("expected hash h2, got %q", got.Messages[1].Hash)
	}

	// Duplicate sequence numbers are rejected.
	if err := store.AppendMessage(ctx, "s1", 0, messages[0]); err == nil {
		t.Fatalf("expected duplicate append to fail")
	}

	// Messages must belong to a known session.
	if err := store.AppendMessage(ctx, "unknown", 0, messages[0]); err == nil {
		t.Fatalf("expected append to unknown session to fail")
	}
}

func TestSQLiteStoreListSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	base := time.Now().UTC()
	price := 100.0
	for i, id := range []string{"s2", "s1"} {
		s := &domain.NegotiationSession{
			SessionID:     id,
			BuyerAgentID:  "b",
			SellerAgentID: "s",
			Status:        domain.SessionStatusCompleted,
			StartedAt:     base.Add(time.Duration(i) * time.Second),
			FinalPrice:    &price,
		}
		if err := store.SaveSession(ctx, s); err != nil {
			t.Fatalf("SaveSession failed: %v", err)
		}
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].SessionID != "s2" || sessions[1].SessionID != "s1" {
		t.Fatalf("expected start order, got %s, %s", sessions[0].SessionID, sessions[1].SessionID)
	}
	if sessions[0].FinalPrice == nil || *sessions[0].FinalPrice != 100 {
		t.Fatalf("final price not restored")
	}
	if sessions[0].Messages == nil {
		t.Fatalf("expected empty message slice, got nil")
	}

	missing, err := store.GetSession(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing session, got %+v, %v", missing, err)
	}
}
