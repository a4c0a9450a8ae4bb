package auditlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xiaot623/dealroom/internal/domain"
)

// Simulated is an in-memory audit log used in demo mode and tests.
type Simulated struct {
	mu        sync.Mutex
	nextTopic int64
	topics    map[string][]domain.AuditLogEntry
	now       func() time.Time
}

// Ensure Simulated implements Log interface.
var _ Log = (*Simulated)(nil)

// NewSimulated creates an empty in-memory audit log.
func NewSimulated() *Simulated {
	return &Simulated{
		topics: make(map[string][]domain.AuditLogEntry),
		now:    time.Now,
	}
}

// CreateTopic opens a new in-memory topic.
func (s *Simulated) CreateTopic(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTopic++
	id := topicID(s.nextTopic)
	s.topics[id] = nil
	return id, nil
}

// SubmitMessage records msg on the topic.
func (s *Simulated) SubmitMessage(ctx context.Context, topic string, msg *domain.SignedMessage) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := encode(msg)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.topics[topic]
	if !ok {
		return 0, fmt.Errorf("topic %s: %w", topic, ErrUnknownTopic)
	}
	now := s.now()
	seq := int64(len(entries)) + 1
	s.topics[topic] = append(entries, domain.AuditLogEntry{
		TopicID:            topic,
		SequenceNumber:     seq,
		Message:            data,
		Timestamp:          now,
		ConsensusTimestamp: consensusTimestamp(now),
	})
	return seq, nil
}

// Messages returns the recorded entries of the topic.
func (s *Simulated) Messages(ctx context.Context, topic string, limit int) ([]domain.AuditLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, ok := s.topics[topic]
	if !ok {
		return nil, fmt.Errorf("topic %s: %w", topic, ErrUnknownTopic)
	}
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	out := make([]domain.AuditLogEntry, len(entries))
	copy(out, entries)
	return out, nil
}
