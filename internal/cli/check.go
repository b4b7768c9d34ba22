package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/t77yq/kioskmon/internal/model"
	"github.com/t77yq/kioskmon/internal/monitor"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch one snapshot and print the alerts it raises",
	RunE:  runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().Bool("dispatch", false, "Also deliver the alerts through the configured channels")
	checkCmd.Flags().StringP("output", "o", "text", "Output format: text or yaml")
}

type checkResult struct {
	Snapshot *model.Snapshot `yaml:"data"`
	Alerts   []model.Alert   `yaml:"alerts"`
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	dispatch, _ := cmd.Flags().GetBool("dispatch")
	output, _ := cmd.Flags().GetString("output")

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	src, err := newSource(cfg, logger)
	if err != nil {
		return err
	}
	thresholds := newThresholds(cfg, logger)

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Monitor.Timeout)
	defer cancel()

	result := checkResult{}
	snapshot, fetchErr := src.Fetch(ctx)
	if fetchErr != nil {
		logger.Error("Failed to check resources", zap.Error(fetchErr))
		result.Alerts = []model.Alert{model.ConnectionAlert(time.Now())}
	} else {
		result.Snapshot = snapshot
		result.Alerts = monitor.NewEvaluator().Evaluate(snapshot, thresholds.Thresholds())
	}

	if err := printCheck(cmd.OutOrStdout(), output, result); err != nil {
		return err
	}

	if dispatch && len(result.Alerts) > 0 {
		b, err := openBroker(cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		channels, err := newChannels(cfg, channelDeps{js: b.js, forward: true}, logger)
		if err != nil {
			return err
		}
		for _, report := range channels.dispatcher(cfg, logger).DispatchAll(context.Background(), result.Alerts) {
			if err := report.Err(); err != nil {
				logger.Warn("Alert not delivered everywhere", zap.Error(err))
			}
		}
	}

	return fetchErr
}

func printCheck(w io.Writer, format string, result checkResult) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(result)
	case "text":
		if len(result.Alerts) == 0 {
			fmt.Fprintln(w, "All resources nominal")
			return nil
		}
		for _, a := range result.Alerts {
			fmt.Fprintf(w, "[%s] %s: %s\n", a.Kind, a.Resource, a.Message)
		}
		return nil
	}
	return fmt.Errorf("unknown output format %q", format)
}
