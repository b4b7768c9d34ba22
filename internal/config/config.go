package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

// Config holds all kioskmon configuration.
type Config struct {
	App        AppConfig          `mapstructure:"app" yaml:"app"`
	Logging    LoggingConfig      `mapstructure:"logging" yaml:"logging"`
	Server     ServerConfig       `mapstructure:"server" yaml:"server"`
	Monitor    MonitorConfig      `mapstructure:"monitor" yaml:"monitor"`
	Source     SourceConfig       `mapstructure:"source" yaml:"source"`
	Thresholds map[string]float64 `mapstructure:"thresholds" yaml:"thresholds"`
	Notify     NotifyConfig       `mapstructure:"notify" yaml:"notify"`
	NATS       NATSConfig         `mapstructure:"nats" yaml:"nats"`
}

type AppConfig struct {
	Name string `mapstructure:"name" yaml:"name"`
}

type LoggingConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Listen       string        `mapstructure:"listen" yaml:"listen"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	NotifySecret string        `mapstructure:"notify_secret" yaml:"notify_secret"`
}

// MonitorConfig defines the poll loop settings.
type MonitorConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Backoff  BackoffConfig `mapstructure:"backoff" yaml:"backoff"`
}

type BackoffConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	Initial    time.Duration `mapstructure:"initial" yaml:"initial"`
	Max        time.Duration `mapstructure:"max" yaml:"max"`
	Multiplier float64       `mapstructure:"multiplier" yaml:"multiplier"`
}

const (
	SourceMock   = "mock"
	SourceHTTP   = "http"
	SourceSystem = "system"
	SourceModbus = "modbus"
)

// SourceConfig selects where snapshots come from.
type SourceConfig struct {
	Kind   string             `mapstructure:"kind" yaml:"kind"`
	HTTP   HTTPSourceConfig   `mapstructure:"http" yaml:"http"`
	System SystemSourceConfig `mapstructure:"system" yaml:"system"`
	Modbus ModbusSourceConfig `mapstructure:"modbus" yaml:"modbus"`
	Mock   MockSourceConfig   `mapstructure:"mock" yaml:"mock"`
}

type HTTPSourceConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type SystemSourceConfig struct {
	DiskPath  string        `mapstructure:"disk_path" yaml:"disk_path"`
	CPUSample time.Duration `mapstructure:"cpu_sample" yaml:"cpu_sample"`
}

type ModbusSourceConfig struct {
	Endpoint  string                    `mapstructure:"endpoint" yaml:"endpoint"`
	SlaveID   uint8                     `mapstructure:"slave_id" yaml:"slave_id"`
	Timeout   time.Duration             `mapstructure:"timeout" yaml:"timeout"`
	Registers map[string]RegisterConfig `mapstructure:"registers" yaml:"registers"`
}

type RegisterConfig struct {
	Address uint16  `mapstructure:"address" yaml:"address"`
	Scale   float64 `mapstructure:"scale" yaml:"scale"`
}

type MockSourceConfig struct {
	ErrorRate float64 `mapstructure:"error_rate" yaml:"error_rate"`
	Seed      int64   `mapstructure:"seed" yaml:"seed"`
}

// NotifyConfig defines the delivery channels.
type NotifyConfig struct {
	TitlePrefix string         `mapstructure:"title_prefix" yaml:"title_prefix"`
	Timeout     time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	Banner      BannerConfig   `mapstructure:"banner" yaml:"banner"`
	Command     CommandConfig  `mapstructure:"command" yaml:"command"`
	Push        PushConfig     `mapstructure:"push" yaml:"push"`
	Forward     ForwardConfig  `mapstructure:"forward" yaml:"forward"`
	Telegram    TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
	NATS        NATSChannel    `mapstructure:"nats" yaml:"nats"`
}

type BannerConfig struct {
	Enabled  bool `mapstructure:"enabled" yaml:"enabled"`
	Capacity int  `mapstructure:"capacity" yaml:"capacity"`
}

type CommandConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Command string        `mapstructure:"command" yaml:"command"`
	Args    []string      `mapstructure:"args" yaml:"args"`
	Env     []string      `mapstructure:"env" yaml:"env"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type PushConfig struct {
	Enabled         bool   `mapstructure:"enabled" yaml:"enabled"`
	Subscriber      string `mapstructure:"subscriber" yaml:"subscriber"`
	VAPIDPublicKey  string `mapstructure:"vapid_public_key" yaml:"vapid_public_key"`
	VAPIDPrivateKey string `mapstructure:"vapid_private_key" yaml:"vapid_private_key"`
	TTL             int    `mapstructure:"ttl" yaml:"ttl"`
	Urgency         string `mapstructure:"urgency" yaml:"urgency"`
}

type ForwardConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	URL     string        `mapstructure:"url" yaml:"url"`
	Secret  string        `mapstructure:"secret" yaml:"secret"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Token   string `mapstructure:"token" yaml:"token"`
	ChatID  int64  `mapstructure:"chat_id" yaml:"chat_id"`
}

type NATSChannel struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	Stream        string        `mapstructure:"stream" yaml:"stream"`
	SubjectPrefix string        `mapstructure:"subject_prefix" yaml:"subject_prefix"`
	MaxAge        time.Duration `mapstructure:"max_age" yaml:"max_age"`
}

// NATSConfig defines the broker connection. It is only dialed when a
// component needs it.
type NATSConfig struct {
	URLs             []string      `mapstructure:"urls" yaml:"urls"`
	MaxReconnects    int           `mapstructure:"max_reconnects" yaml:"max_reconnects"`
	ReconnectWait    time.Duration `mapstructure:"reconnect_wait" yaml:"reconnect_wait"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	PublishUpdates   bool          `mapstructure:"publish_updates" yaml:"publish_updates"`
	SubscribeUpdates bool          `mapstructure:"subscribe_updates" yaml:"subscribe_updates"`
}

// NeedsConnection reports whether any enabled component uses NATS.
func (c *Config) NeedsConnection() bool {
	return c.Notify.NATS.Enabled || c.NATS.PublishUpdates || c.NATS.SubscribeUpdates
}

// Load reads configuration from file and environment variables. With an
// empty path, config.yaml is looked up in ./config and the working directory.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix("KIOSKMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "kioskmon")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("server.listen", ":3000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "30s")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", "60s")
	v.SetDefault("monitor.timeout", "10s")
	v.SetDefault("monitor.backoff.enabled", false)
	v.SetDefault("monitor.backoff.initial", "30s")
	v.SetDefault("monitor.backoff.max", "10m")
	v.SetDefault("monitor.backoff.multiplier", 2.0)

	v.SetDefault("source.kind", SourceMock)
	v.SetDefault("source.http.url", "http://localhost:3000")
	v.SetDefault("source.http.timeout", "10s")
	v.SetDefault("source.system.disk_path", "/")
	v.SetDefault("source.system.cpu_sample", "1s")
	v.SetDefault("source.modbus.timeout", "5s")
	v.SetDefault("source.modbus.slave_id", 1)
	v.SetDefault("source.mock.error_rate", 0.1)

	v.SetDefault("notify.title_prefix", "")
	v.SetDefault("notify.timeout", "10s")
	v.SetDefault("notify.banner.enabled", true)
	v.SetDefault("notify.banner.capacity", 50)
	v.SetDefault("notify.command.enabled", false)
	v.SetDefault("notify.command.command", "notify-send")
	v.SetDefault("notify.command.timeout", "5s")
	v.SetDefault("notify.push.enabled", false)
	v.SetDefault("notify.push.subscriber", "admin@example.com")
	v.SetDefault("notify.push.ttl", 60)
	v.SetDefault("notify.push.urgency", "normal")
	v.SetDefault("notify.forward.enabled", false)
	v.SetDefault("notify.forward.url", "http://localhost:3000")
	v.SetDefault("notify.forward.timeout", "10s")
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("notify.nats.enabled", false)
	v.SetDefault("notify.nats.stream", "ALERTS")
	v.SetDefault("notify.nats.subject_prefix", "alert")
	v.SetDefault("notify.nats.max_age", "1h")

	v.SetDefault("nats.urls", []string{"nats://localhost:4222"})
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.connect_timeout", "5s")
	v.SetDefault("nats.publish_updates", false)
	v.SetDefault("nats.subscribe_updates", false)
}

// Validate rejects settings no component could run with.
func (c *Config) Validate() error {
	var errs error

	switch c.Source.Kind {
	case SourceMock, SourceHTTP, SourceSystem:
	case SourceModbus:
		if c.Source.Modbus.Endpoint == "" {
			errs = multierr.Append(errs, errors.New("source.modbus.endpoint is required"))
		}
		if len(c.Source.Modbus.Registers) == 0 {
			errs = multierr.Append(errs, errors.New("source.modbus.registers is required"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unknown source kind %q", c.Source.Kind))
	}

	if c.Monitor.Interval <= 0 {
		errs = multierr.Append(errs, errors.New("monitor.interval must be positive"))
	}
	if c.Monitor.Backoff.Enabled && (c.Monitor.Backoff.Initial <= 0 || c.Monitor.Backoff.Multiplier < 1) {
		errs = multierr.Append(errs, errors.New("monitor.backoff needs a positive initial delay and a multiplier >= 1"))
	}
	if c.Source.Mock.ErrorRate < 0 || c.Source.Mock.ErrorRate > 1 {
		errs = multierr.Append(errs, errors.New("source.mock.error_rate must be between 0 and 1"))
	}

	if c.Notify.Push.Enabled && (c.Notify.Push.VAPIDPublicKey == "" || c.Notify.Push.VAPIDPrivateKey == "") {
		errs = multierr.Append(errs, errors.New("notify.push requires vapid_public_key and vapid_private_key"))
	}
	if c.Notify.Forward.Enabled && c.Notify.Forward.URL == "" {
		errs = multierr.Append(errs, errors.New("notify.forward.url is required"))
	}
	if c.Notify.Telegram.Enabled && (c.Notify.Telegram.Token == "" || c.Notify.Telegram.ChatID == 0) {
		errs = multierr.Append(errs, errors.New("notify.telegram requires token and chat_id"))
	}
	if c.Notify.Command.Enabled && c.Notify.Command.Command == "" {
		errs = multierr.Append(errs, errors.New("notify.command.command is required"))
	}
	if c.NeedsConnection() && len(c.NATS.URLs) == 0 {
		errs = multierr.Append(errs, errors.New("nats.urls is required"))
	}

	if errs != nil {
		return fmt.Errorf("invalid config: %w", errs)
	}
	return nil
}
