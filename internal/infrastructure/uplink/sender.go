// Package uplink delivers queued uplink messages from the outbox to the transport.
package uplink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/edgesync/backend/internal/domain/edge"
	"github.com/edgesync/backend/internal/domain/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Sender hands an uplink message to the transport. A returned error leaves the
// outbox entry for retry.
type Sender interface {
	Send(ctx context.Context, msg *edge.UplinkMsg, payload []byte) error
}

// LogSender only logs the messages. It stands in for a transport in single-node setups.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a LogSender
func NewLogSender(logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{logger: logger}
}

// Send logs msg
func (s *LogSender) Send(_ context.Context, msg *edge.UplinkMsg, _ []byte) error {
	s.logger.Info("Uplink message",
		zap.String("tenant_id", msg.TenantID.String()),
		zap.Int32("uplink_msg_id", msg.UplinkMsgID),
		zap.String("request_type", string(msg.Request.Type)),
		zap.String("entity", msg.Request.Entity.String()),
	)
	return nil
}

// RedisStreamSender appends uplink messages to one Redis stream per tenant, from
// which the transport reads them
type RedisStreamSender struct {
	client *redis.Client
	prefix string
	maxLen int64
}

// NewRedisStreamSender creates a sender writing to streams named prefix+tenantID.
// maxLen caps each stream approximately; zero keeps every message.
func NewRedisStreamSender(client *redis.Client, prefix string, maxLen int64) *RedisStreamSender {
	if prefix == "" {
		prefix = "edgesync:uplink:"
	}
	return &RedisStreamSender{client: client, prefix: prefix, maxLen: maxLen}
}

// Stream returns the stream name of a tenant
func (s *RedisStreamSender) Stream(msg *edge.UplinkMsg) string {
	return s.prefix + msg.TenantID.String()
}

// Send appends msg to the tenant stream
func (s *RedisStreamSender) Send(ctx context.Context, msg *edge.UplinkMsg, payload []byte) error {
	args := &redis.XAddArgs{
		Stream: s.Stream(msg),
		Values: map[string]any{
			"uplink_msg_id": msg.UplinkMsgID,
			"request_type":  string(msg.Request.Type),
			"payload":       payload,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append uplink message %d: %w", msg.UplinkMsgID, err)
	}
	return nil
}

// decodeEntry restores the uplink message stored in an outbox entry
func decodeEntry(entry *shared.OutboxEntry) (*edge.UplinkMsg, error) {
	var msg edge.UplinkMsg
	if err := json.Unmarshal(entry.Payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode uplink message: %w", err)
	}
	return &msg, nil
}

var (
	_ Sender = (*LogSender)(nil)
	_ Sender = (*RedisStreamSender)(nil)
)
