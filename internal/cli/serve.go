package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/config"
	"github.com/t77yq/kioskmon/internal/monitor"
	"github.com/t77yq/kioskmon/internal/server"
	"github.com/t77yq/kioskmon/internal/service"
	"github.com/t77yq/kioskmon/internal/subscription"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the kiosk API server with the in-process monitor",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("no-monitor", false, "Serve the API without polling")
}

// broker holds the optional NATS connection and update feed
type broker struct {
	nc      *nats.Conn
	js      nats.JetStreamContext
	updates *service.UpdateService
}

func (b *broker) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

func openBroker(cfg *config.Config, logger *zap.Logger) (*broker, error) {
	b := &broker{}
	if !cfg.NeedsConnection() {
		return b, nil
	}

	nc, err := connectNATS(cfg, logger)
	if err != nil {
		return nil, err
	}
	b.nc = nc

	b.js, err = nc.JetStream()
	if err != nil {
		b.Close()
		return nil, err
	}

	if cfg.NATS.PublishUpdates || cfg.NATS.SubscribeUpdates {
		b.updates, err = service.NewUpdateService(b.js, logger)
		if err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	if noMonitor, _ := cmd.Flags().GetBool("no-monitor"); noMonitor {
		cfg.Monitor.Enabled = false
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := signalContext(logger)
	defer cancel()

	b, err := openBroker(cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	src, err := newSource(cfg, logger)
	if err != nil {
		return err
	}
	thresholds := newThresholds(cfg, logger)
	subs := subscription.NewRegistry(logger)

	channels, err := newChannels(cfg, channelDeps{subscriptions: subs, js: b.js}, logger)
	if err != nil {
		return err
	}
	dispatcher := channels.dispatcher(cfg, logger)

	latest := &server.LatestUpdate{}
	opts := server.Options{
		Status:        src,
		Subscriptions: subs,
		Dispatcher:    dispatcher,
		Thresholds:    thresholds,
		Latest:        latest,
		NotifySecret:  cfg.Server.NotifySecret,
		StatusTimeout: cfg.Monitor.Timeout,
	}
	if channels.banner != nil {
		opts.Banners = channels.banner
	}
	if channels.push != nil {
		opts.VAPIDPublicKey = channels.push.PublicKey()
	}

	if cfg.Monitor.Enabled {
		observers := []monitor.Observer{latest}
		if b.updates != nil && cfg.NATS.PublishUpdates {
			observers = append(observers, b.updates)
		}
		loop := newPollLoop(cfg, src, thresholds, dispatcher, logger, observers...)
		if err := loop.Start(ctx); err != nil {
			return err
		}
		defer loop.Stop()
		opts.Poller = loop
	}

	if b.updates != nil && cfg.NATS.SubscribeUpdates {
		err := b.updates.SubscribeUpdates(ctx, func(u monitor.Update) {
			latest.OnUpdate(ctx, u)
		})
		if err != nil {
			return err
		}
	}

	api := server.NewServer(opts, logger)
	srv := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      api.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server started", zap.String("listen", cfg.Server.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	logger.Info("Server shutting down gracefully")
	return srv.Shutdown(shutdownCtx)
}
