package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/monitor"
)

const (
	updateStream  = "DASHBOARD"
	UpdateSubject = "dashboard.update"
)

// UpdateService shares poll updates between a monitor and remote dashboards
// over JetStream. Only the latest update is retained.
type UpdateService struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

func NewUpdateService(js nats.JetStreamContext, logger *zap.Logger) (*UpdateService, error) {
	s := &UpdateService{
		js:     js,
		logger: logger.Named("updates"),
	}

	_, err := js.StreamInfo(updateStream)
	if err == nats.ErrStreamNotFound {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:              updateStream,
			Subjects:          []string{UpdateSubject},
			Storage:           nats.MemoryStorage,
			MaxMsgsPerSubject: 1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set up update stream: %w", err)
	}
	return s, nil
}

func (s *UpdateService) PublishUpdate(ctx context.Context, update monitor.Update) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}

	_, err = s.js.Publish(UpdateSubject, data, nats.Context(ctx))
	if err != nil {
		s.logger.Error("Failed to publish update",
			zap.Int("alert_count", len(update.Alerts)),
			zap.Error(err))
		return err
	}

	s.logger.Debug("Update published",
		zap.Int("alert_count", len(update.Alerts)))
	return nil
}

// OnUpdate lets the service observe a poll loop directly
func (s *UpdateService) OnUpdate(ctx context.Context, update monitor.Update) {
	_ = s.PublishUpdate(ctx, update)
}

// SubscribeUpdates delivers the most recent update and every later one to
// handler until ctx is done
func (s *UpdateService) SubscribeUpdates(ctx context.Context, handler func(monitor.Update)) error {
	sub, err := s.js.Subscribe(UpdateSubject, func(msg *nats.Msg) {
		var update monitor.Update
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			s.logger.Error("Failed to unmarshal update",
				zap.Error(err))
			_ = msg.Term()
			return
		}

		handler(update)
		_ = msg.Ack()
	}, nats.DeliverLastPerSubject())

	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	return nil
}
