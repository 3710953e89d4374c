package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/adfyer/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
	closed  bool
	deliver []Message
}

func (b *recordingBackend) Publish(_ context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.channel = channel
	b.data = data
	b.attrs = attrs
	return "msg-1", nil
}

func (b *recordingBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	b.channel = channel
	for _, msg := range b.deliver {
		if err := handler(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

func (b *recordingBackend) Close() error {
	b.closed = true
	return nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "emails")
	assert.Error(t, err)

	_, err = New(&recordingBackend{}, " ")
	assert.Error(t, err)
}

func TestMQ_PublishAndSubscribeUseBoundChannel(t *testing.T) {
	backend := &recordingBackend{deliver: []Message{{ID: "1", Data: []byte("a")}}}
	queue, err := New(backend, "password-reset-email")
	require.NoError(t, err)
	assert.Equal(t, "password-reset-email", queue.Channel())

	id, err := queue.Publish(context.Background(), []byte("payload"), map[string]string{ContentTypeAttribute: "application/json"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, "password-reset-email", backend.channel)
	assert.Equal(t, "application/json", backend.attrs[ContentTypeAttribute])

	var got []string
	err = queue.Subscribe(context.Background(), func(_ context.Context, msg Message) error {
		got = append(got, msg.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, got)

	require.NoError(t, queue.Close())
	assert.True(t, backend.closed)
}

func TestMQ_SubscribePropagatesHandlerError(t *testing.T) {
	backend := &recordingBackend{deliver: []Message{{ID: "1"}}}
	queue, err := New(backend, "emails")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = queue.Subscribe(context.Background(), func(context.Context, Message) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestOpen_RejectsNonQueueBackend(t *testing.T) {
	cfg := config.Config{Notify: config.NotifyConfig{Backend: config.NotifyLog, Channel: "emails"}}
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRabbitMQClient_RequiresURL(t *testing.T) {
	_, err := NewRabbitMQClient(config.RabbitMQConfig{})
	assert.Error(t, err)
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))

	attrs := headersToAttributes(map[string]any{"a": "x", "b": []byte("y"), "c": 3})
	assert.Equal(t, map[string]string{"a": "x", "b": "y", "c": "3"}, attrs)
}
