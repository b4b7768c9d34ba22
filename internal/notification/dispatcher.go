package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/model"
)

const (
	titleError    = "Error"
	titleResource = "Resource Warning"

	urlError    = "/dashboard"
	urlResource = "/resources"

	defaultDeliveryTimeout = 10 * time.Second
)

// Config holds dispatcher settings
type Config struct {
	// Timeout bounds each channel's delivery attempt
	Timeout time.Duration

	// TitlePrefix is prepended to every notification title
	TitlePrefix string
}

// ChannelResult is the outcome of one channel's delivery attempt
type ChannelResult struct {
	Channel  string        `json:"channel"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Report aggregates the per-channel outcomes of one dispatch
type Report struct {
	Notification model.Notification `json:"notification"`
	Results      []ChannelResult    `json:"results"`
}

// Err combines every channel failure, or returns nil
func (r Report) Err() error {
	var err error
	for _, res := range r.Results {
		err = multierr.Append(err, res.Err)
	}
	return err
}

// Failed returns the results that carry an error
func (r Report) Failed() []ChannelResult {
	var failed []ChannelResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Dispatcher renders alerts and fans them out to every channel
type Dispatcher struct {
	logger   *zap.Logger
	config   Config
	channels []Channel
	now      func() time.Time
}

// NewDispatcher creates a dispatcher over the given channels
func NewDispatcher(config Config, logger *zap.Logger, channels ...Channel) *Dispatcher {
	if config.Timeout <= 0 {
		config.Timeout = defaultDeliveryTimeout
	}
	return &Dispatcher{
		logger:   logger.Named("dispatcher"),
		config:   config,
		channels: channels,
		now:      time.Now,
	}
}

// Channels returns the names of the configured channels
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

// Render applies the notification template for the alert kind
func (d *Dispatcher) Render(alert model.Alert) model.Notification {
	title, url := titleResource, urlResource
	if alert.Kind == model.AlertKindError {
		title, url = titleError, urlError
	}
	if d.config.TitlePrefix != "" {
		title = d.config.TitlePrefix + " " + title
	}

	ts := alert.Timestamp
	if ts.IsZero() {
		ts = d.now()
	}

	return model.Notification{
		ID:        uuid.New().String(),
		Title:     title,
		Body:      alert.Message,
		URL:       url,
		Timestamp: ts,
		Alert:     alert,
	}
}

// Dispatch delivers the alert through every channel concurrently. Channel
// failures and panics are logged and reported, never returned or propagated.
func (d *Dispatcher) Dispatch(ctx context.Context, alert model.Alert) Report {
	n := d.Render(alert)
	report := Report{
		Notification: n,
		Results:      make([]ChannelResult, len(d.channels)),
	}

	var wg conc.WaitGroup
	for i, ch := range d.channels {
		wg.Go(func() {
			report.Results[i] = d.deliver(ctx, ch, n)
		})
	}
	wg.Wait()

	d.logger.Debug("Alert dispatched",
		zap.String("id", n.ID),
		zap.String("kind", string(alert.Kind)),
		zap.String("resource", string(alert.Resource)),
		zap.Int("channels", len(d.channels)),
		zap.Int("failed", len(report.Failed())))

	return report
}

// DispatchAll dispatches alerts in order
func (d *Dispatcher) DispatchAll(ctx context.Context, alerts []model.Alert) []Report {
	reports := make([]Report, 0, len(alerts))
	for _, alert := range alerts {
		reports = append(reports, d.Dispatch(ctx, alert))
	}
	return reports
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, n model.Notification) ChannelResult {
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	start := time.Now()
	var err error
	var pc panics.Catcher
	pc.Try(func() {
		err = ch.Send(ctx, n)
	})
	if r := pc.Recovered(); r != nil {
		err = r.AsError()
	}

	result := ChannelResult{
		Channel:  ch.Name(),
		Duration: time.Since(start),
	}
	if err != nil {
		result.Err = &DeliveryError{Channel: ch.Name(), Err: err}
		d.logger.Warn("Failed to deliver notification",
			zap.String("channel", ch.Name()),
			zap.String("id", n.ID),
			zap.Error(err))
	}
	return result
}
