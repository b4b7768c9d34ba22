package notification

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/t77yq/kioskmon/internal/model"
)

// WebPushConfig holds VAPID credentials and delivery options
type WebPushConfig struct {
	Subscriber      string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
	Urgency         string
	Timeout         time.Duration
}

// WebPushSender sends payloads through the Web Push protocol
type WebPushSender struct {
	options webpush.Options
}

// NewWebPushSender creates a sender from VAPID credentials
func NewWebPushSender(config WebPushConfig) (*WebPushSender, error) {
	if config.VAPIDPublicKey == "" || config.VAPIDPrivateKey == "" {
		return nil, errors.New("web push: vapid key pair required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.TTL <= 0 {
		config.TTL = 60
	}
	if config.Urgency == "" {
		config.Urgency = string(webpush.UrgencyNormal)
	}

	return &WebPushSender{
		options: webpush.Options{
			HTTPClient:      &http.Client{Timeout: config.Timeout},
			Subscriber:      config.Subscriber,
			VAPIDPublicKey:  config.VAPIDPublicKey,
			VAPIDPrivateKey: config.VAPIDPrivateKey,
			TTL:             config.TTL,
			Urgency:         webpush.Urgency(config.Urgency),
		},
	}, nil
}

// PublicKey returns the VAPID public key clients subscribe with
func (s *WebPushSender) PublicKey() string {
	return s.options.VAPIDPublicKey
}

// Send encrypts and posts the payload to the subscription endpoint. 404 and
// 410 responses are reported as ErrEndpointGone.
func (s *WebPushSender) Send(ctx context.Context, sub model.Subscription, payload []byte) error {
	target := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Keys.Auth,
			P256dh: sub.Keys.P256dh,
		},
	}

	opts := s.options
	resp, err := webpush.SendNotificationWithContext(ctx, payload, target, &opts)
	if err != nil {
		return fmt.Errorf("send push notification: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: push service returned status %d", ErrEndpointGone, resp.StatusCode)
	default:
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
}

// GenerateVAPIDKeys creates a new VAPID key pair
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate vapid keys: %w", err)
	}
	return publicKey, privateKey, nil
}
