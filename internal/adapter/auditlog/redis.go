package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiaot623/dealroom/internal/domain"
)

// RedisLog stores each topic as a Redis stream. Sequence numbers come from a
// per-topic INCR counter so they stay dense even if stream ids are not.
type RedisLog struct {
	client    *redis.Client
	keyPrefix string
}

// Ensure RedisLog implements Log interface.
var _ Log = (*RedisLog)(nil)

// NewRedisLog wraps an existing client.
func NewRedisLog(client *redis.Client, keyPrefix string) *RedisLog {
	if keyPrefix == "" {
		keyPrefix = "dealroom:"
	}
	return &RedisLog{client: client, keyPrefix: keyPrefix + "audit:"}
}

// DialRedisLog connects to redisURL and checks the connection.
func DialRedisLog(ctx context.Context, redisURL, keyPrefix string) (*RedisLog, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisLog(client, keyPrefix), nil
}

// Close closes the underlying client.
func (l *RedisLog) Close() error {
	return l.client.Close()
}

// Ping checks if Redis is reachable.
func (l *RedisLog) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func (l *RedisLog) topicsKey() string {
	return l.keyPrefix + "topics"
}

func (l *RedisLog) topicSeqKey() string {
	return l.keyPrefix + "topics:seq"
}

func (l *RedisLog) streamKey(topic string) string {
	return l.keyPrefix + "topic:" + topic
}

func (l *RedisLog) messageSeqKey(topic string) string {
	return l.keyPrefix + "topic:" + topic + ":seq"
}

// CreateTopic allocates the next topic id.
func (l *RedisLog) CreateTopic(ctx context.Context) (string, error) {
	n, err := l.client.Incr(ctx, l.topicSeqKey()).Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate topic: %w", err)
	}
	id := topicID(n)
	if err := l.client.SAdd(ctx, l.topicsKey(), id).Err(); err != nil {
		return "", fmt.Errorf("failed to register topic: %w", err)
	}
	return id, nil
}

func (l *RedisLog) checkTopic(ctx context.Context, topic string) error {
	ok, err := l.client.SIsMember(ctx, l.topicsKey(), topic).Result()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("topic %s: %w", topic, ErrUnknownTopic)
	}
	return nil
}

// SubmitMessage appends msg to the topic stream.
func (l *RedisLog) SubmitMessage(ctx context.Context, topic string, msg *domain.SignedMessage) (int64, error) {
	data, err := encode(msg)
	if err != nil {
		return 0, err
	}
	if err := l.checkTopic(ctx, topic); err != nil {
		return 0, err
	}

	seq, err := l.client.Incr(ctx, l.messageSeqKey(topic)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence number: %w", err)
	}
	now := time.Now()
	err = l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: l.streamKey(topic),
		Values: map[string]interface{}{
			"seq":       seq,
			"message":   string(data),
			"timestamp": now.UnixNano(),
		},
	}).Err()
	if err != nil {
		return 0, fmt.Errorf("failed to append to topic %s: %w", topic, err)
	}
	return seq, nil
}

// Messages reads the topic stream from the start.
func (l *RedisLog) Messages(ctx context.Context, topic string, limit int) ([]domain.AuditLogEntry, error) {
	if err := l.checkTopic(ctx, topic); err != nil {
		return nil, err
	}

	var (
		records []redis.XMessage
		err     error
	)
	if limit > 0 {
		records, err = l.client.XRangeN(ctx, l.streamKey(topic), "-", "+", int64(limit)).Result()
	} else {
		records, err = l.client.XRange(ctx, l.streamKey(topic), "-", "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read topic %s: %w", topic, err)
	}

	entries := make([]domain.AuditLogEntry, 0, len(records))
	for _, rec := range records {
		entry, err := decodeRecord(topic, rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func decodeRecord(topic string, rec redis.XMessage) (domain.AuditLogEntry, error) {
	seq, err := strconv.ParseInt(fmt.Sprint(rec.Values["seq"]), 10, 64)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("bad sequence number in record %s: %w", rec.ID, err)
	}
	nanos, err := strconv.ParseInt(fmt.Sprint(rec.Values["timestamp"]), 10, 64)
	if err != nil {
		return domain.AuditLogEntry{}, fmt.Errorf("bad timestamp in record %s: %w", rec.ID, err)
	}
	raw, _ := rec.Values["message"].(string)
	ts := time.Unix(0, nanos)
	return domain.AuditLogEntry{
		TopicID:            topic,
		SequenceNumber:     seq,
		Message:            json.RawMessage(raw),
		Timestamp:          ts,
		ConsensusTimestamp: consensusTimestamp(ts),
	}, nil
}
