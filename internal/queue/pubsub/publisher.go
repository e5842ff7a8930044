// Package pubsub provides the reliable queue on Google Cloud Pub/Sub.
//
// The subscription carries a dead-letter policy (configured out-of-band,
// like the rest of the infrastructure bootstrap): messages the consumer
// rejects are routed to the dead-letter topic for out-of-band inspection
// and retry.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"

	"github.com/ron9295/guardz-fetch-service/internal/scan"
)

// Config captures the Pub/Sub wiring for the chunk pipeline.
type Config struct {
	ProjectID      string
	TopicID        string
	SubscriptionID string
}

// Publisher implements scan.Publisher on a Pub/Sub topic.
type Publisher struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPublisher creates a Pub/Sub client and verifies the topic exists.
func NewPublisher(ctx context.Context, cfg Config) (*Publisher, error) {
	if cfg.ProjectID == "" || cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub project_id and topic_id are required")
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.TopicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		closeErr := client.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("check topic existence: %w (close client: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("check topic existence: %w", err)
	}
	if !ok {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("pubsub topic %q does not exist (close client: %v)", cfg.TopicID, closeErr)
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.TopicID, cfg.ProjectID)
	}
	return &Publisher{client: client, topic: topic}, nil
}

// PublishChunk publishes one chunk message and waits for the server ack.
// Admission depends on the message being durably accepted, so this is not
// fire-and-forget: a publish failure must abort the submission.
func (p *Publisher) PublishChunk(ctx context.Context, msg scan.ChunkMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal chunk message: %w", err)
	}
	result := p.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish chunk for request %s: %w", msg.RequestID, err)
	}
	return nil
}

// Close stops the topic's publisher and closes the client connection.
func (p *Publisher) Close() error {
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
