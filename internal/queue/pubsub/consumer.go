package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/ron9295/guardz-fetch-service/internal/metrics"
	"github.com/ron9295/guardz-fetch-service/internal/scan"
)

// Handler processes one decoded chunk message. A returned error rejects the
// message without requeue so the dead-letter policy picks it up.
type Handler func(ctx context.Context, msg scan.ChunkMessage) error

// Consumer receives chunk messages from a Pub/Sub subscription.
type Consumer struct {
	client      *pubsub.Client
	sub         *pubsub.Subscription
	handler     Handler
	logger      *zap.Logger
	concurrency int
}

// NewConsumer creates a Pub/Sub client and binds the subscription.
func NewConsumer(ctx context.Context, cfg Config, concurrency int, handler Handler, logger *zap.Logger) (*Consumer, error) {
	if cfg.ProjectID == "" || cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("pubsub project_id and subscription_id are required")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	sub := client.Subscription(cfg.SubscriptionID)
	ok, err := sub.Exists(ctx)
	if err != nil {
		closeErr := client.Close()
		if closeErr != nil {
			return nil, fmt.Errorf("check subscription existence: %w (close client: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("check subscription existence: %w", err)
	}
	if !ok {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("pubsub subscription %q does not exist (close client: %v)", cfg.SubscriptionID, closeErr)
		}
		return nil, fmt.Errorf("pubsub subscription %q does not exist in project %q", cfg.SubscriptionID, cfg.ProjectID)
	}
	if concurrency > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = concurrency
	}
	return &Consumer{
		client:      client,
		sub:         sub,
		handler:     handler,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// Run blocks, dispatching messages to the handler until ctx is canceled.
// Context cancellation is the only shutdown signal; there is no shared
// shutdown flag.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.sub.Receive(ctx, func(ctx context.Context, m *pubsub.Message) {
		var msg scan.ChunkMessage
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			// A payload that cannot be decoded will never succeed;
			// acking keeps it from looping through redelivery.
			c.logger.Error("dropping undecodable chunk message", zap.Error(err))
			metrics.ObserveChunk("invalid")
			m.Ack()
			return
		}
		if err := c.handler(ctx, msg); err != nil {
			c.logger.Error("chunk processing failed, rejecting message",
				zap.String("request_id", msg.RequestID),
				zap.Error(err),
			)
			metrics.ObserveChunk("rejected")
			m.Nack()
			return
		}
		metrics.ObserveChunk("processed")
		m.Ack()
	})
	if err != nil {
		return fmt.Errorf("receive loop: %w", err)
	}
	return nil
}

// Close releases the client connection.
func (c *Consumer) Close() error {
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
