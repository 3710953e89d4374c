package mq

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/adfyer/apiserver/config"
	"google.golang.org/api/option"
)

const (
	// Pub/Sub accepts dead-letter bounds between 5 and 100 attempts.
	minDeliveryAttempts = 5
	maxDeliveryAttempts = 100

	deadLetterSuffix   = "-dead-letter"
	retryMinBackoff    = 10 * time.Second
	retryMaxBackoff    = 10 * time.Minute
	defaultPayloadType = "application/octet-stream"
)

// PubSubClient carries notifications over Google Cloud Pub/Sub topics.
// Subscriptions are created with a retry backoff and a dead-letter topic so a
// message that keeps failing is delivered a bounded number of times.
type PubSubClient struct {
	client              *pubsub.Client
	subscriptionSuffix  string
	maxDeliveryAttempts int
}

// NewPubSubClient constructs a Pub/Sub client from config.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*PubSubClient, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("pubsub project id is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	suffix := cfg.SubscriptionSuffix
	if suffix == "" {
		suffix = "-sub"
	}

	return &PubSubClient{
		client:              client,
		subscriptionSuffix:  suffix,
		maxDeliveryAttempts: clampDeliveryAttempts(cfg.MaxDeliveryAttempts),
	}, nil
}

// Publish sends a message to the named topic.
func (p *PubSubClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("pubsub channel is required")
	}

	topic, err := p.ensureTopic(ctx, channel)
	if err != nil {
		return "", err
	}
	result := topic.Publish(ctx, &pubsub.Message{Data: data, Attributes: publishAttributes(attrs)})
	return result.Get(ctx)
}

// Subscribe consumes messages from the named channel until ctx is done.
func (p *PubSubClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("pubsub channel is required")
	}

	topic, err := p.ensureTopic(ctx, channel)
	if err != nil {
		return err
	}
	deadLetter, err := p.ensureTopic(ctx, channel+deadLetterSuffix)
	if err != nil {
		return err
	}

	sub, err := p.ensureSubscription(ctx, p.subscriptionName(channel), topic, deadLetter)
	if err != nil {
		return err
	}

	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		settle(ctx, handler, Message{
			ID:         msg.ID,
			Data:       msg.Data,
			Attributes: msg.Attributes,
		}, msg.DeliveryAttempt, p.maxDeliveryAttempts, msg)
	})
}

// Close closes the underlying Pub/Sub client.
func (p *PubSubClient) Close() error {
	return p.client.Close()
}

// acknowledger is the settlement side of a received Pub/Sub message.
type acknowledger interface {
	Ack()
	Nack()
}

// settle runs handler and acknowledges the message. A failure is retried
// while attempts remain; on the last attempt the message is acked and
// dropped. attempt is nil when the subscription has no dead-letter policy.
func settle(ctx context.Context, handler Handler, msg Message, attempt *int, limit int, ack acknowledger) {
	if err := handler(ctx, msg); err != nil {
		if attempt != nil && *attempt >= limit {
			ack.Ack()
			return
		}
		ack.Nack()
		return
	}
	ack.Ack()
}

// publishAttributes copies attrs and sets the content type when absent.
func publishAttributes(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs)+1)
	for key, value := range attrs {
		out[key] = value
	}
	if out[ContentTypeAttribute] == "" {
		out[ContentTypeAttribute] = defaultPayloadType
	}
	return out
}

func clampDeliveryAttempts(n int) int {
	switch {
	case n < minDeliveryAttempts:
		return minDeliveryAttempts
	case n > maxDeliveryAttempts:
		return maxDeliveryAttempts
	default:
		return n
	}
}

func (p *PubSubClient) ensureTopic(ctx context.Context, name string) (*pubsub.Topic, error) {
	topic := p.client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateTopic(ctx, name)
	}
	return topic, nil
}

func (p *PubSubClient) deliveryPolicies(deadLetter *pubsub.Topic) (*pubsub.RetryPolicy, *pubsub.DeadLetterPolicy) {
	retry := &pubsub.RetryPolicy{
		MinimumBackoff: retryMinBackoff,
		MaximumBackoff: retryMaxBackoff,
	}
	deadLetterPolicy := &pubsub.DeadLetterPolicy{
		DeadLetterTopic:     deadLetter.String(),
		MaxDeliveryAttempts: p.maxDeliveryAttempts,
	}
	return retry, deadLetterPolicy
}

func (p *PubSubClient) ensureSubscription(ctx context.Context, name string, topic, deadLetter *pubsub.Topic) (*pubsub.Subscription, error) {
	retry, deadLetterPolicy := p.deliveryPolicies(deadLetter)

	sub := p.client.Subscription(name)
	exists, err := sub.Exists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return p.client.CreateSubscription(ctx, name, pubsub.SubscriptionConfig{
			Topic:            topic,
			RetryPolicy:      retry,
			DeadLetterPolicy: deadLetterPolicy,
		})
	}

	// Subscriptions created before the policies existed are brought in line.
	if _, err := sub.Update(ctx, pubsub.SubscriptionConfigToUpdate{
		RetryPolicy:      retry,
		DeadLetterPolicy: deadLetterPolicy,
	}); err != nil {
		return nil, err
	}
	return sub, nil
}

func (p *PubSubClient) subscriptionName(channel string) string {
	if p.subscriptionSuffix == "" {
		return channel
	}
	return channel + p.subscriptionSuffix
}
