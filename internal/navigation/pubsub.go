package navigation

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// PubSubConfig holds configuration for the Pub/Sub sink.
type PubSubConfig struct {
	ProjectID string
	Topic     string
	Logger    zerolog.Logger
}

// PubSubSink publishes events to a Google Cloud Pub/Sub topic. Events of one
// session share an ordering key.
type PubSubSink struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
	topic     string
	logger    zerolog.Logger
}

// NewPubSubSink creates a new Pub/Sub sink.
func NewPubSubSink(ctx context.Context, cfg PubSubConfig) (*PubSubSink, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	publisher := client.Publisher(cfg.Topic)
	publisher.EnableMessageOrdering = true

	return &PubSubSink{
		client:    client,
		publisher: publisher,
		topic:     cfg.Topic,
		logger:    cfg.Logger,
	}, nil
}

// Publish sends ev and waits for the server acknowledgement.
func (s *PubSubSink) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	result := s.publisher.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: ev.SessionID,
		Attributes: map[string]string{
			"event_type": string(ev.Type),
			"session_id": ev.SessionID,
		},
	})

	serverID, err := result.Get(ctx)
	if err != nil {
		// A failed ordered publish pauses the key until resumed.
		s.publisher.ResumePublish(ev.SessionID)
		return fmt.Errorf("publishing to %s: %w", s.topic, err)
	}

	s.logger.Debug().
		Str("message_id", serverID).
		Str("event", string(ev.Type)).
		Msg("published navigation event")

	return nil
}

// Close flushes pending messages and closes the client.
func (s *PubSubSink) Close() error {
	s.publisher.Stop()
	return s.client.Close()
}
