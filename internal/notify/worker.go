package notify

import (
	"context"
	"log/slog"

	"github.com/adfyer/apiserver/internal/logging"
	"github.com/adfyer/apiserver/internal/mq"
)

// QueueHandler returns an mq.Handler that delivers queued messages through
// sender. Undecodable payloads are acknowledged and dropped; delivery errors
// are returned so the broker redelivers.
func QueueHandler(sender Sender, logger *slog.Logger, metrics *Metrics) mq.Handler {
	return func(ctx context.Context, m mq.Message) error {
		msg, err := DecodeMessage(m.Data)
		if err != nil {
			logging.LogError(logger, "dropping undecodable notification", err, "message_id", m.ID)
			return nil
		}
		if err := sender.Send(ctx, msg); err != nil {
			metrics.observeFailure()
			logging.LogError(logger, "notification delivery failed", err, "message_id", m.ID, "notification", msg.String())
			return err
		}
		metrics.observeSent()
		logger.InfoContext(ctx, "notification delivered", "message_id", m.ID, "notification", msg.String())
		return nil
	}
}
