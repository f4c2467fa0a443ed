// Package outbound delivers ExecutionResults back toward the chat channel.
package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	contractx "github.com/tanpawarit/clubhouse/agent/contract"
	logx "github.com/tanpawarit/clubhouse/pkg/logger"
	qstashx "github.com/tanpawarit/clubhouse/pkg/qstash"
)

// Log writes replies to the structured log. It is the default when no
// delivery service is configured.
type Log struct {
	logger zerolog.Logger
}

func NewLog() *Log {
	return &Log{logger: logx.Component("outbound")}
}

func (l *Log) Send(_ context.Context, msg contractx.OutboundMessage) error {
	l.logger.Info().
		Str("tenant_id", msg.TenantID).
		Str("task_id", msg.TaskID).
		Str("channel_kind", string(msg.ChannelKind)).
		Str("status", string(msg.Status)).
		Str("reply_text", msg.ReplyText).
		Msg("reply")
	return nil
}

type Publisher interface {
	Publish(ctx context.Context, body []byte, headers map[string]string) (qstashx.PublishResult, error)
}

// QStash publishes each reply as JSON to the configured destination, which
// forwards it to the chat platform.
type QStash struct {
	publisher Publisher
	logger    zerolog.Logger
}

func NewQStash(publisher Publisher) *QStash {
	return &QStash{publisher: publisher, logger: logx.Component("outbound")}
}

func (q *QStash) Send(ctx context.Context, msg contractx.OutboundMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	res, err := q.publisher.Publish(ctx, body, map[string]string{
		"X-Tenant-Id": msg.TenantID,
		"X-Task-Id":   msg.TaskID,
	})
	if err != nil {
		return fmt.Errorf("publish reply task=%s: %w", msg.TaskID, err)
	}
	q.logger.Debug().Str("task_id", msg.TaskID).Str("message_id", res.MessageID).Msg("reply_published")
	return nil
}

// Tee sends every reply to each target and joins their errors.
type Tee []contractx.Outbound

func (t Tee) Send(ctx context.Context, msg contractx.OutboundMessage) error {
	var errs []error
	for _, o := range t {
		if err := o.Send(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
