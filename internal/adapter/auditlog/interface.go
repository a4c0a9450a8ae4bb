// Package auditlog provides the append-only audit log that mirrors every
// negotiation message to an ordered external topic.
package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xiaot623/dealroom/internal/domain"
)

// ErrUnknownTopic is returned for topics the log never created.
var ErrUnknownTopic = errors.New("unknown topic")

// Log defines the audit log operations.
type Log interface {
	// CreateTopic opens a new topic and returns its id.
	CreateTopic(ctx context.Context) (string, error)

	// SubmitMessage appends msg to the topic and returns its sequence number.
	// Sequence numbers start at 1 and increase strictly per topic.
	SubmitMessage(ctx context.Context, topicID string, msg *domain.SignedMessage) (int64, error)

	// Messages returns up to limit entries of the topic in sequence order.
	// A limit of zero or less returns every entry.
	Messages(ctx context.Context, topicID string, limit int) ([]domain.AuditLogEntry, error)
}

// topicID formats topic ids the way the ledger shard/realm/num triple does.
func topicID(n int64) string {
	return fmt.Sprintf("0.0.%d", n)
}

// consensusTimestamp renders t as seconds.nanoseconds.
func consensusTimestamp(t time.Time) string {
	return fmt.Sprintf("%d.%09d", t.Unix(), t.Nanosecond())
}

func encode(msg *domain.SignedMessage) (json.RawMessage, error) {
	if msg == nil {
		return nil, fmt.Errorf("nil message")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return data, nil
}
