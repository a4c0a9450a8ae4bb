package auditlog

import (
	"context"

	"go.uber.org/zap"
)

// New returns a Redis-backed log when redisURL is set and the simulated log
// otherwise. The returned close function releases the connection.
func New(ctx context.Context, redisURL, keyPrefix string, logger *zap.Logger) (Log, func() error, error) {
	if redisURL == "" {
		logger.Info("REDIS_URL not set, using simulated audit log")
		return NewSimulated(), func() error { return nil }, nil
	}
	l, err := DialRedisLog(ctx, redisURL, keyPrefix)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using redis audit log", zap.String("prefix", keyPrefix))
	return l, l.Close, nil
}
