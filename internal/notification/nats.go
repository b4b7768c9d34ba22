package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/model"
)

const (
	defaultAlertStream  = "ALERTS"
	defaultAlertSubject = "alert"
	defaultAlertMaxAge  = time.Hour
)

// NATSConfig configures the JetStream alert channel
type NATSConfig struct {
	Stream        string
	SubjectPrefix string
	MaxAge        time.Duration
}

// NATSChannel publishes notifications to JetStream subjects "<prefix>.<kind>"
type NATSChannel struct {
	logger *zap.Logger
	js     nats.JetStreamContext
	config NATSConfig
}

// NewNATSChannel creates the channel and makes sure the alert stream exists
func NewNATSChannel(js nats.JetStreamContext, config NATSConfig, logger *zap.Logger) (*NATSChannel, error) {
	if config.Stream == "" {
		config.Stream = defaultAlertStream
	}
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = defaultAlertSubject
	}
	if config.MaxAge <= 0 {
		config.MaxAge = defaultAlertMaxAge
	}

	c := &NATSChannel{
		logger: logger.Named("nats-channel"),
		js:     js,
		config: config,
	}
	if err := c.setupStream(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *NATSChannel) setupStream() error {
	stream, err := c.js.StreamInfo(c.config.Stream)
	if err != nil && err != nats.ErrStreamNotFound {
		return fmt.Errorf("failed to get stream info: %w", err)
	}
	if stream != nil {
		c.logger.Info("Using existing alert stream", zap.String("stream", c.config.Stream))
		return nil
	}

	// Alerts are ephemeral; keep them in memory only.
	_, err = c.js.AddStream(&nats.StreamConfig{
		Name:       c.config.Stream,
		Subjects:   []string{c.config.SubjectPrefix + ".*"},
		Storage:    nats.MemoryStorage,
		MaxAge:     c.config.MaxAge,
		Duplicates: time.Minute,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	c.logger.Info("Created alert stream", zap.String("stream", c.config.Stream))
	return nil
}

func (c *NATSChannel) Name() string { return "nats" }

// Subject returns the subject a notification of the given kind is published on
func (c *NATSChannel) Subject(kind model.AlertKind) string {
	return c.config.SubjectPrefix + "." + string(kind)
}

// Send publishes the notification, deduplicated by its ID
func (c *NATSChannel) Send(ctx context.Context, n model.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	if _, err := c.js.Publish(c.Subject(n.Alert.Kind), data, nats.Context(ctx), nats.MsgId(n.ID)); err != nil {
		return fmt.Errorf("failed to publish alert: %w", err)
	}
	return nil
}
