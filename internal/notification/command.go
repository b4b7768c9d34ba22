package notification

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/kioskmon/internal/model"
)

// CommandConfig configures the local desktop notification command.
// Args may reference {title}, {body} and {url}. Env entries are KEY=VALUE
// pairs added to the inherited environment.
type CommandConfig struct {
	Command string
	Args    []string
	Env     []string
	Timeout time.Duration
}

// CommandChannel shows OS-level notifications by running a command such as notify-send
type CommandChannel struct {
	logger *zap.Logger
	config CommandConfig
}

// NewCommandChannel creates a command channel
func NewCommandChannel(config CommandConfig, logger *zap.Logger) (*CommandChannel, error) {
	if config.Command == "" {
		return nil, errors.New("command channel: command required")
	}
	if len(config.Args) == 0 {
		config.Args = []string{"{title}", "{body}"}
	}
	return &CommandChannel{
		logger: logger.Named("command-channel"),
		config: config,
	}, nil
}

func (c *CommandChannel) Name() string { return "local" }

// Send runs the command with the notification expanded into its arguments
func (c *CommandChannel) Send(ctx context.Context, n model.Notification) error {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	replacer := strings.NewReplacer("{title}", n.Title, "{body}", n.Body, "{url}", n.URL)
	args := make([]string, len(c.config.Args))
	for i, arg := range c.config.Args {
		args[i] = replacer.Replace(arg)
	}

	cmd := exec.CommandContext(ctx, c.config.Command, args...)
	cmd.WaitDelay = time.Second
	if len(c.config.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.config.Env...)
	}

	c.logger.Debug("Showing local notification",
		zap.String("command", c.config.Command),
		zap.String("title", n.Title))

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("notification command timed out: %w", ctx.Err())
		}
		if msg := strings.TrimSpace(string(output)); msg != "" {
			return fmt.Errorf("notification command failed: %s: %w", msg, err)
		}
		return fmt.Errorf("notification command failed: %w", err)
	}
	return nil
}
