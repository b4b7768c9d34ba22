package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sourcegraph/conc"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/model"
)

// PushSender delivers a payload to one push subscription. It returns an
// error wrapping ErrEndpointGone when the subscription is permanently invalid.
type PushSender interface {
	Send(ctx context.Context, sub model.Subscription, payload []byte) error
}

// SubscriptionStore is the view of the subscription registry used by the push channel
type SubscriptionStore interface {
	List() []model.Subscription
	Remove(sub model.Subscription) bool
}

// PushChannel fans a notification out to every registered push subscription
type PushChannel struct {
	logger *zap.Logger
	store  SubscriptionStore
	sender PushSender
}

// NewPushChannel creates a push channel
func NewPushChannel(store SubscriptionStore, sender PushSender, logger *zap.Logger) *PushChannel {
	return &PushChannel{
		logger: logger.Named("push-channel"),
		store:  store,
		sender: sender,
	}
}

func (c *PushChannel) Name() string { return "push" }

// Send delivers to all subscriptions concurrently. Gone subscriptions are
// removed from the store; every other failure is returned, combined.
func (c *PushChannel) Send(ctx context.Context, n model.Notification) error {
	subs := c.store.List()
	if len(subs) == 0 {
		return nil
	}

	payload, err := json.Marshal(n.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	errs := make([]error, len(subs))
	removed := make([]bool, len(subs))

	var wg conc.WaitGroup
	for i, sub := range subs {
		wg.Go(func() {
			err := c.sender.Send(ctx, sub, payload)
			if err == nil {
				return
			}
			if errors.Is(err, ErrEndpointGone) {
				removed[i] = c.store.Remove(sub)
				c.logger.Info("Removed expired subscription",
					zap.String("endpoint", sub.Endpoint),
					zap.Error(err))
				return
			}
			errs[i] = &DeliveryError{Channel: c.Name(), Target: sub.Endpoint, Err: err}
		})
	}
	wg.Wait()

	var count int
	for _, r := range removed {
		if r {
			count++
		}
	}
	c.logger.Debug("Push notification sent",
		zap.String("id", n.ID),
		zap.Int("subscriptions", len(subs)),
		zap.Int("removed", count))

	return multierr.Combine(errs...)
}
