package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/breatheroute/routenav/internal/geo"
	"github.com/breatheroute/routenav/internal/navigation"
)

// Job types carried in the job_type field of a message.
const (
	JobPositions = "positions"
	JobSweep     = "sweep"
)

// ErrMalformedMessage is returned for messages that can never be processed.
var ErrMalformedMessage = errors.New("malformed message")

// PositionStore is the part of the session store position ingestion needs.
type PositionStore interface {
	SetPosition(ctx context.Context, id string, positions ...geo.Position) (navigation.Snapshot, error)
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	store            PositionStore
	sweepJob         *SweepJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Store            PositionStore
	// SweepJob runs on sweep messages; they are acknowledged and ignored
	// when nil.
	SweepJob *SweepJob
	Logger   zerolog.Logger
}

// Message is a worker job. Position messages of one session should share an
// ordering key so they are applied in order.
type Message struct {
	JobType   string         `json:"job_type"`
	SessionID string         `json:"session_id,omitempty"`
	Positions []geo.Position `json:"positions,omitempty"`
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Configure receive settings.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 100
	subscriber.ReceiveSettings.MaxExtension = time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		store:            cfg.Store,
		sweepJob:         cfg.SweepJob,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages and blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := h.Process(ctx, msg.Data)
	switch {
	case err == nil:
		logger.Debug().Dur("duration", time.Since(startTime)).Msg("message processed")
		msg.Ack()
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, navigation.ErrSessionNotFound):
		// Redelivery cannot succeed.
		logger.Warn().Err(err).Msg("dropping message")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	}
}

// Process runs the job encoded in data. Errors wrapping ErrMalformedMessage
// or navigation.ErrSessionNotFound are permanent.
func (h *PubSubHandler) Process(ctx context.Context, data []byte) error {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch m.JobType {
	case JobPositions:
		return h.handlePositions(ctx, m)
	case JobSweep:
		return h.handleSweep(ctx)
	default:
		h.logger.Warn().Str("job_type", m.JobType).Msg("unknown job type")
		return nil
	}
}

func (h *PubSubHandler) handlePositions(ctx context.Context, m Message) error {
	if m.SessionID == "" {
		return fmt.Errorf("%w: session_id is required", ErrMalformedMessage)
	}
	if len(m.Positions) == 0 {
		return fmt.Errorf("%w: positions are required", ErrMalformedMessage)
	}
	for i, p := range m.Positions {
		if !validCoordinate(p.Coordinate) {
			return fmt.Errorf("%w: position %d is out of range", ErrMalformedMessage, i)
		}
	}

	snap, err := h.store.SetPosition(ctx, m.SessionID, m.Positions...)
	if err != nil {
		return fmt.Errorf("session %s: %w", m.SessionID, err)
	}

	h.logger.Debug().
		Str("session_id", m.SessionID).
		Int("positions", len(m.Positions)).
		Str("mode", string(snap.Mode)).
		Msg("positions applied")

	return nil
}

func (h *PubSubHandler) handleSweep(ctx context.Context) error {
	if h.sweepJob == nil {
		return nil
	}

	result := h.sweepJob.Run(ctx)
	if result.Failed > 0 {
		return fmt.Errorf("sweep failed to remove %d of %d idle sessions", result.Failed, result.Idle)
	}
	return nil
}

func validCoordinate(c geo.Coordinate) bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}
