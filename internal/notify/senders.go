package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/adfyer/apiserver/config"
	"github.com/adfyer/apiserver/internal/mq"
	"github.com/samber/oops"
)

const maxErrorBody = 4 << 10

// LogSender writes messages to the logger instead of delivering them.
// Bodies carry reset tokens and are logged, at debug level, only when
// includeBody is set.
type LogSender struct {
	logger      *slog.Logger
	includeBody bool
}

func NewLogSender(logger *slog.Logger, includeBody bool) *LogSender {
	return &LogSender{logger: logger, includeBody: includeBody}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "notification sent to log", "to", msg.To, "subject", msg.Subject)
	if s.includeBody {
		s.logger.DebugContext(ctx, "notification body", "to", msg.To, "body", msg.Body)
	}
	return nil
}

// MailtrapSender delivers messages through the Mailtrap email sending API.
type MailtrapSender struct {
	client    *http.Client
	endpoint  string
	token     string
	fromEmail string
	fromName  string
	category  string
}

func NewMailtrapSender(cfg config.MailtrapConfig, client *http.Client) *MailtrapSender {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &MailtrapSender{
		client:    client,
		endpoint:  cfg.Endpoint,
		token:     cfg.Token,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		category:  cfg.Category,
	}
}

type mailtrapAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailtrapRequest struct {
	From     mailtrapAddress   `json:"from"`
	To       []mailtrapAddress `json:"to"`
	Subject  string            `json:"subject"`
	Text     string            `json:"text"`
	Category string            `json:"category,omitempty"`
}

func (s *MailtrapSender) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(mailtrapRequest{
		From:     mailtrapAddress{Email: s.fromEmail, Name: s.fromName},
		To:       []mailtrapAddress{{Email: msg.To}},
		Subject:  msg.Subject,
		Text:     msg.Body,
		Category: s.category,
	})
	if err != nil {
		return oops.Code("MAILTRAP_ENCODE_FAILED").Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return oops.Code("MAILTRAP_REQUEST_FAILED").Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return oops.Code("MAILTRAP_REQUEST_FAILED").With("endpoint", s.endpoint).Wrap(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return oops.Code("MAILTRAP_REJECTED").
			With("status", resp.StatusCode).
			Errorf("mailtrap status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Publisher is the queue side QueueSender needs; *mq.MQ satisfies it.
type Publisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error)
}

// QueueSender hands messages to a queue for a worker to deliver.
type QueueSender struct {
	publisher Publisher
}

func NewQueueSender(publisher Publisher) *QueueSender {
	return &QueueSender{publisher: publisher}
}

func (s *QueueSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return oops.Code("NOTIFY_ENCODE_FAILED").Wrap(err)
	}
	if _, err := s.publisher.Publish(ctx, data, map[string]string{mq.ContentTypeAttribute: "application/json"}); err != nil {
		return oops.Code("NOTIFY_PUBLISH_FAILED").Wrap(err)
	}
	return nil
}

// DecodeMessage parses a message published by QueueSender.
func DecodeMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, oops.Code("NOTIFY_DECODE_FAILED").Wrap(err)
	}
	if strings.TrimSpace(msg.To) == "" {
		return Message{}, oops.Code("NOTIFY_DECODE_FAILED").Errorf("message has no recipient")
	}
	return msg, nil
}

func (m Message) String() string {
	return fmt.Sprintf("to=%s subject=%q", m.To, m.Subject)
}
