package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiaot623/dealroom/internal/domain"
	store "github.com/xiaot623/dealroom/internal/repository"
)

var (
	// ErrSessionClosed is returned when appending to a finished session.
	ErrSessionClosed = errors.New("session is not active")
	// ErrOutOfOrder is returned when a message is older than the last one logged.
	ErrOutOfOrder = errors.New("message timestamp precedes session log")
)

// SessionHandle guards one session record. A single negotiation loop writes
// through it while any number of readers take snapshots.
type SessionHandle struct {
	mu      sync.RWMutex
	session domain.NegotiationSession

	store  store.Store
	logger *zap.Logger
}

// ID returns the session id.
func (h *SessionHandle) ID() string {
	return h.session.SessionID
}

// Snapshot returns a deep copy of the session.
func (h *SessionHandle) Snapshot() domain.NegotiationSession {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session.Copy()
}

// Status returns the current status.
func (h *SessionHandle) Status() domain.SessionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session.Status
}

// TopicID returns the audit topic bound to the session, if any.
func (h *SessionHandle) TopicID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session.HCSTopicID
}

// Append adds msg to the end of the log and returns its position.
func (h *SessionHandle) Append(ctx context.Context, msg *domain.SignedMessage) (int, error) {
	if msg == nil {
		return 0, fmt.Errorf("nil message")
	}

	h.mu.Lock()
	if h.session.Status != domain.SessionStatusActive {
		h.mu.Unlock()
		return 0, ErrSessionClosed
	}
	if last := h.session.LastMessage(); last != nil && msg.Timestamp < last.Timestamp {
		h.mu.Unlock()
		return 0, ErrOutOfOrder
	}
	c := msg.Clone()
	h.session.Messages = append(h.session.Messages, c)
	seq := len(h.session.Messages) - 1
	id := h.session.SessionID
	h.mu.Unlock()

	if h.store != nil {
		if err := h.store.AppendMessage(context.WithoutCancel(ctx), id, seq, c); err != nil {
			h.logger.Error("failed to persist message", zap.String("session_id", id), zap.Int("seq", seq), zap.Error(err))
		}
	}
	return seq, nil
}

// SetTopic binds the audit topic id to the session.
func (h *SessionHandle) SetTopic(ctx context.Context, topicID string) {
	h.mu.Lock()
	h.session.HCSTopicID = topicID
	h.mu.Unlock()
	h.persistSession(ctx)
}

// Complete moves an active session to completed with the agreed price. It
// reports false if the session had already finished.
func (h *SessionHandle) Complete(ctx context.Context, finalPrice float64, at time.Time) bool {
	return h.finish(ctx, domain.SessionStatusCompleted, &finalPrice, at)
}

// Fail moves an active session to failed. It reports false if the session had
// already finished.
func (h *SessionHandle) Fail(ctx context.Context, at time.Time) bool {
	return h.finish(ctx, domain.SessionStatusFailed, nil, at)
}

func (h *SessionHandle) finish(ctx context.Context, status domain.SessionStatus, finalPrice *float64, at time.Time) bool {
	h.mu.Lock()
	if h.session.Status != domain.SessionStatusActive {
		h.mu.Unlock()
		return false
	}
	h.session.Status = status
	h.session.CompletedAt = &at
	h.session.FinalPrice = finalPrice
	h.mu.Unlock()

	h.persistSession(ctx)
	return true
}

func (h *SessionHandle) persistSession(ctx context.Context) {
	if h.store == nil {
		return
	}
	snapshot := h.Snapshot()
	if err := h.store.SaveSession(context.WithoutCancel(ctx), &snapshot); err != nil {
		h.logger.Error("failed to persist session", zap.String("session_id", snapshot.SessionID), zap.Error(err))
	}
}
