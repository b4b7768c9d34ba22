package cli

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/monitor"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the kiosk and forward alerts to a remote server",
	Long: `monitor runs the poll loop on its own. Alerts are delivered through the
configured channels; with notify.forward enabled they are posted to a
kioskmon server, which pushes them to its subscribers.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().String("server", "", "Server URL to forward alerts to (enables forwarding)")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if url, _ := cmd.Flags().GetString("server"); url != "" {
		cfg.Notify.Forward.Enabled = true
		cfg.Notify.Forward.URL = url
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

	channels, err := newChannels(cfg, channelDeps{js: b.js, forward: true}, logger)
	if err != nil {
		return err
	}
	dispatcher := channels.dispatcher(cfg, logger)

	var observers []monitor.Observer
	if b.updates != nil && cfg.NATS.PublishUpdates {
		observers = append(observers, b.updates)
	}

	loop := newPollLoop(cfg, src, thresholds, dispatcher, logger, observers...)
	if err := loop.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	loop.Stop()
	logger.Info("Monitor stopped", zap.String("source", src.Name()))
	return nil
}
