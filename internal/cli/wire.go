package cli

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/config"
	"github.com/t77yq/kioskmon/internal/model"
	"github.com/t77yq/kioskmon/internal/monitor"
	"github.com/t77yq/kioskmon/internal/notification"
	"github.com/t77yq/kioskmon/internal/source"
)

// newSource creates the configured snapshot source.
func newSource(cfg *config.Config, logger *zap.Logger) (monitor.SnapshotSource, error) {
	switch cfg.Source.Kind {
	case config.SourceHTTP:
		return source.NewHTTPSource(cfg.Source.HTTP.URL, cfg.Source.HTTP.Timeout, logger), nil
	case config.SourceSystem:
		return source.NewSystemSource(source.SystemConfig{
			DiskPath:  cfg.Source.System.DiskPath,
			CPUSample: cfg.Source.System.CPUSample,
		}, logger), nil
	case config.SourceModbus:
		registers := make(map[model.Resource]source.Register, len(cfg.Source.Modbus.Registers))
		for key, reg := range cfg.Source.Modbus.Registers {
			resource, ok := model.ParseResource(key)
			if !ok {
				return nil, fmt.Errorf("modbus register %q: %w", key, monitor.ErrUnknownResource)
			}
			registers[resource] = source.Register{Address: reg.Address, Scale: reg.Scale}
		}
		return source.NewModbusSource(source.ModbusConfig{
			Endpoint:  cfg.Source.Modbus.Endpoint,
			SlaveID:   cfg.Source.Modbus.SlaveID,
			Timeout:   cfg.Source.Modbus.Timeout,
			Registers: registers,
		}, logger)
	case config.SourceMock:
		var rng *rand.Rand
		if cfg.Source.Mock.Seed != 0 {
			rng = rand.New(rand.NewSource(cfg.Source.Mock.Seed))
		}
		return source.NewMockSource(rng, cfg.Source.Mock.ErrorRate), nil
	}
	return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
}

// newThresholds seeds the registry with defaults and applies configured overrides.
func newThresholds(cfg *config.Config, logger *zap.Logger) *monitor.ThresholdRegistry {
	thresholds := monitor.NewThresholdRegistry(logger)
	if rejected := thresholds.Apply(cfg.Thresholds); len(rejected) > 0 {
		logger.Warn("Unknown thresholds in config", zap.Strings("keys", rejected))
	}
	return thresholds
}

func newPollLoop(cfg *config.Config, src monitor.SnapshotSource, thresholds *monitor.ThresholdRegistry,
	dispatcher monitor.Dispatcher, logger *zap.Logger, observers ...monitor.Observer) *monitor.PollLoop {
	pc := monitor.PollLoopConfig{
		Interval: cfg.Monitor.Interval,
		Timeout:  cfg.Monitor.Timeout,
	}
	if cfg.Monitor.Backoff.Enabled {
		pc.Backoff = &monitor.ExponentialBackoff{
			InitialDelay: cfg.Monitor.Backoff.Initial,
			MaxDelay:     cfg.Monitor.Backoff.Max,
			Multiplier:   cfg.Monitor.Backoff.Multiplier,
		}
	}
	return monitor.NewPollLoop(pc, src, thresholds, dispatcher, logger, observers...)
}

// connectNATS dials the broker with reconnect handling, retrying the first connect.
func connectNATS(cfg *config.Config, logger *zap.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.PingInterval(20 * time.Second),
		nats.MaxPingsOutstanding(5),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS connection error",
				zap.String("subject", subject),
				zap.Error(err))
		}),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected",
				zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var (
		nc  *nats.Conn
		err error
	)
	const maxRetries = 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.NATS.URLs[0], opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		return nil, fmt.Errorf("connect to NATS after %d attempts: %w", maxRetries, err)
	}

	logger.Info("Connected to NATS successfully",
		zap.String("url", nc.ConnectedUrl()))
	return nc, nil
}

// channelSet is the result of wiring notification channels
type channelSet struct {
	channels []notification.Channel
	banner   *notification.BannerChannel
	push     *notification.WebPushSender
}

type channelDeps struct {
	subscriptions notification.SubscriptionStore
	js            nats.JetStreamContext
	// forward sends alerts to a remote server; never enabled for the server itself
	forward bool
}

func newChannels(cfg *config.Config, deps channelDeps, logger *zap.Logger) (*channelSet, error) {
	set := &channelSet{}
	n := cfg.Notify

	if n.Banner.Enabled {
		set.banner = notification.NewBannerChannel(n.Banner.Capacity)
		set.channels = append(set.channels, set.banner)
	}

	if n.Command.Enabled {
		ch, err := notification.NewCommandChannel(notification.CommandConfig{
			Command: n.Command.Command,
			Args:    n.Command.Args,
			Env:     n.Command.Env,
			Timeout: n.Command.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		set.channels = append(set.channels, ch)
	}

	if n.Push.Enabled && deps.subscriptions != nil {
		sender, err := notification.NewWebPushSender(notification.WebPushConfig{
			Subscriber:      n.Push.Subscriber,
			VAPIDPublicKey:  n.Push.VAPIDPublicKey,
			VAPIDPrivateKey: n.Push.VAPIDPrivateKey,
			TTL:             n.Push.TTL,
			Urgency:         n.Push.Urgency,
			Timeout:         n.Timeout,
		})
		if err != nil {
			return nil, err
		}
		set.push = sender
		set.channels = append(set.channels, notification.NewPushChannel(deps.subscriptions, sender, logger))
	}

	if n.Forward.Enabled && deps.forward {
		ch, err := notification.NewForwardChannel(n.Forward.URL, n.Forward.Secret, n.Forward.Timeout)
		if err != nil {
			return nil, err
		}
		set.channels = append(set.channels, ch)
	}

	if n.Telegram.Enabled {
		bot, err := tgbotapi.NewBotAPI(n.Telegram.Token)
		if err != nil {
			return nil, fmt.Errorf("create telegram bot: %w", err)
		}
		ch, err := notification.NewTelegramChannel(bot, n.Telegram.ChatID)
		if err != nil {
			return nil, err
		}
		set.channels = append(set.channels, ch)
	}

	if n.NATS.Enabled {
		if deps.js == nil {
			return nil, errors.New("nats channel enabled without a broker connection")
		}
		ch, err := notification.NewNATSChannel(deps.js, notification.NATSConfig{
			Stream:        n.NATS.Stream,
			SubjectPrefix: n.NATS.SubjectPrefix,
			MaxAge:        n.NATS.MaxAge,
		}, logger)
		if err != nil {
			return nil, err
		}
		set.channels = append(set.channels, ch)
	}

	return set, nil
}

func (s *channelSet) dispatcher(cfg *config.Config, logger *zap.Logger) *notification.Dispatcher {
	d := notification.NewDispatcher(notification.Config{
		Timeout:     cfg.Notify.Timeout,
		TitlePrefix: cfg.Notify.TitlePrefix,
	}, logger, s.channels...)
	logger.Info("Notification channels ready", zap.Strings("channels", d.Channels()))
	return d
}
