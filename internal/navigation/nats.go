package navigation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultSubjectPrefix is the subject prefix for navigation events.
const DefaultSubjectPrefix = "navigation.events"

// JetStreamPublisher is the part of nats.JetStreamContext used by NATSSink.
type JetStreamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSConfig holds configuration for the NATS sink.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	// Stream is created or updated on connect when set.
	Stream string
	Logger zerolog.Logger
}

// NATSSink publishes events to NATS JetStream under
// <prefix>.<session id>.<event type>.
type NATSSink struct {
	conn   *nats.Conn
	js     JetStreamPublisher
	prefix string
	logger zerolog.Logger
}

// NewNATSSink connects to NATS and enables JetStream.
func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("routenav"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	sink := NewNATSSinkWithPublisher(js, cfg.SubjectPrefix, cfg.Logger)
	sink.conn = conn

	if cfg.Stream != "" {
		stream := &nats.StreamConfig{
			Name:      cfg.Stream,
			Subjects:  []string{sink.prefix + ".>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    24 * time.Hour,
			Storage:   nats.FileStorage,
		}
		if _, err := js.AddStream(stream); err != nil {
			// Stream may already exist.
			if _, err := js.UpdateStream(stream); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Stream, err)
			}
		}
	}

	return sink, nil
}

// NewNATSSinkWithPublisher creates a sink on an existing JetStream publisher.
func NewNATSSinkWithPublisher(js JetStreamPublisher, prefix string, logger zerolog.Logger) *NATSSink {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	return &NATSSink{
		js:     js,
		prefix: strings.TrimSuffix(prefix, "."),
		logger: logger,
	}
}

// Subject returns the subject ev is published on.
func (s *NATSSink) Subject(ev Event) string {
	return s.prefix + "." + ev.SessionID + "." + strings.ToLower(string(ev.Type))
}

// Publish sends ev. The event ID is the JetStream message ID, so retried
// publishes are deduplicated by the server.
func (s *NATSSink) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	subject := s.Subject(ev)
	ack, err := s.js.Publish(subject, data, nats.MsgId(ev.ID), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}

	s.logger.Debug().
		Str("subject", subject).
		Str("stream", ack.Stream).
		Uint64("sequence", ack.Sequence).
		Msg("published navigation event")

	return nil
}

// Connected reports whether the underlying connection is up. A sink built on
// a bare publisher is always considered connected.
func (s *NATSSink) Connected() bool {
	if s.conn == nil {
		return true
	}
	return s.conn.IsConnected()
}

// Close drains and closes the connection.
func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Drain()
}
