package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/adfyer/apiserver/config"
)

// ContentTypeAttribute carries the payload media type alongside a message.
const ContentTypeAttribute = "content-type"

// Message represents a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Return an error to signal a retry/nack.
type Handler func(ctx context.Context, msg Message) error

// Backend defines the broker-agnostic operations used by the app.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// MQ binds a backend to the channel notifications travel on.
type MQ struct {
	backend Backend
	channel string
}

// New constructs an MQ wrapper publishing to and consuming from channel.
func New(backend Backend, channel string) (*MQ, error) {
	if backend == nil {
		return nil, errors.New("mq backend is required")
	}
	if strings.TrimSpace(channel) == "" {
		return nil, errors.New("mq channel is required")
	}
	return &MQ{backend: backend, channel: channel}, nil
}

// Open dials the broker selected by cfg.Notify.Backend.
func Open(ctx context.Context, cfg config.Config) (*MQ, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Notify.Backend {
	case config.NotifyRabbitMQ:
		backend, err = NewRabbitMQClient(cfg.RabbitMQ)
	case config.NotifyPubSub:
		backend, err = NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("notify backend %q is not a message queue", cfg.Notify.Backend)
	}
	if err != nil {
		return nil, err
	}
	return New(backend, cfg.Notify.Channel)
}

// Channel returns the bound channel name.
func (m *MQ) Channel() string {
	return m.channel
}

// Publish sends a message to the bound channel.
func (m *MQ) Publish(ctx context.Context, data []byte, attrs map[string]string) (string, error) {
	return m.backend.Publish(ctx, m.channel, data, attrs)
}

// Subscribe consumes messages from the bound channel until ctx is done.
func (m *MQ) Subscribe(ctx context.Context, handler Handler) error {
	return m.backend.Subscribe(ctx, m.channel, handler)
}

// Close closes the underlying backend.
func (m *MQ) Close() error {
	return m.backend.Close()
}
