// Package config loads client settings from a TOML or YAML file and WSK_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/wstoolkit/wstoolkit-go/pkg/connection"
	"github.com/wstoolkit/wstoolkit-go/pkg/transport"
	"github.com/wstoolkit/wstoolkit-go/pkg/wire"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates levels: WSK_RECONNECT__MAX_ATTEMPTS sets reconnect.max_attempts.
const EnvPrefix = "WSK_"

// Config is the client configuration.
type Config struct {
	// URL is the endpoint to connect to.
	URL string `koanf:"url"`

	// Name is the sender name used in greeting acknowledgements.
	Name string `koanf:"name"`

	// Format is the default format for outbound messages: json or cbor.
	Format string `koanf:"format"`

	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	CloseGrace     time.Duration `koanf:"close_grace"`

	Heartbeat   HeartbeatConfig   `koanf:"heartbeat"`
	Reconnect   ReconnectConfig   `koanf:"reconnect"`
	TLS         TLSConfig         `koanf:"tls"`
	Logging     LoggingConfig     `koanf:"logging"`
	ProtocolLog ProtocolLogConfig `koanf:"protocol_log"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// HeartbeatConfig configures ping/pong liveness checks.
type HeartbeatConfig struct {
	Interval time.Duration `koanf:"interval"`
	Timeout  time.Duration `koanf:"timeout"`
}

// ReconnectConfig configures the retry policy.
type ReconnectConfig struct {
	BaseDelay   time.Duration `koanf:"base_delay"`
	MaxDelay    time.Duration `koanf:"max_delay"`
	Multiplier  float64       `koanf:"multiplier"`
	MaxAttempts int           `koanf:"max_attempts"` // 0 = unbounded

	JitterFraction float64 `koanf:"jitter_fraction"`
}

// TLSConfig configures wss:// connections.
type TLSConfig struct {
	CAFile             string `koanf:"ca_file"`
	CertFile           string `koanf:"cert_file"`
	KeyFile            string `koanf:"key_file"`
	ServerName         string `koanf:"server_name"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify"`
}

// LoggingConfig configures operational logs.
type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json

	// File enables rotated file output instead of stderr.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
}

// ProtocolLogConfig configures CBOR protocol capture.
type ProtocolLogConfig struct {
	// File enables capture. Empty disables it.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Name:           connection.DefaultName,
		Format:         "json",
		ConnectTimeout: connection.DefaultConnectTimeout,
		CloseGrace:     connection.DefaultCloseGrace,
		Heartbeat: HeartbeatConfig{
			Interval: transport.DefaultPingInterval,
			Timeout:  transport.DefaultPongTimeout,
		},
		Reconnect: ReconnectConfig{
			BaseDelay:      connection.DefaultBaseDelay,
			MaxDelay:       connection.DefaultMaxDelay,
			Multiplier:     connection.DefaultMultiplier,
			JitterFraction: connection.DefaultJitterFraction,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 14,
		},
		ProtocolLog: ProtocolLogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9464",
		},
	}
}

// Load reads path (optional) over the defaults, then applies WSK_
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return toml.Parser(), nil
	case ".yaml", ".yml":
		return yamlParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported config file type %q (use .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

// envKey maps WSK_RECONNECT__MAX_ATTEMPTS to reconnect.max_attempts.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate reports every configuration error.
func (c *Config) Validate() error {
	var errs []error

	if _, err := wire.ParseFormat(c.Format); err != nil {
		errs = append(errs, fmt.Errorf("format: %w", err))
	}
	if c.URL != "" && !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		errs = append(errs, fmt.Errorf("url must start with ws:// or wss://, got: %s", c.URL))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect_timeout must be positive"))
	}
	if c.CloseGrace <= 0 {
		errs = append(errs, errors.New("close_grace must be positive"))
	}
	if c.Heartbeat.Interval <= 0 {
		errs = append(errs, errors.New("heartbeat.interval must be positive"))
	}
	if c.Heartbeat.Timeout <= 0 {
		errs = append(errs, errors.New("heartbeat.timeout must be positive"))
	}
	if err := c.ReconnectPolicy().Validate(); err != nil {
		errs = append(errs, err)
	}
	if f := c.Reconnect.JitterFraction; f < 0 || f > 1 {
		errs = append(errs, fmt.Errorf("reconnect.jitter_fraction must be within [0, 1], got: %g", f))
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		errs = append(errs, errors.New("tls.cert_file and tls.key_file must be set together"))
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got: %s", c.Logging.Format))
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, errors.New("metrics.address is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}

// DefaultFormat returns the parsed outbound format.
func (c *Config) DefaultFormat() wire.Format {
	f, err := wire.ParseFormat(c.Format)
	if err != nil {
		return wire.FormatJSON
	}
	return f
}

// ReconnectPolicy returns the retry policy.
func (c *Config) ReconnectPolicy() connection.ReconnectPolicy {
	return connection.ReconnectPolicy{
		BaseDelay:   c.Reconnect.BaseDelay,
		MaxDelay:    c.Reconnect.MaxDelay,
		Multiplier:  c.Reconnect.Multiplier,
		MaxAttempts: c.Reconnect.MaxAttempts,
	}
}

// Dialer builds a WebSocket dialer honouring the TLS and timeout settings.
func (c *Config) Dialer() (*transport.WebSocketDialer, error) {
	d := transport.NewWebSocketDialer()
	d.HandshakeTimeout = c.ConnectTimeout

	tc := transport.TLSConfig{
		CAFile:             c.TLS.CAFile,
		CertFile:           c.TLS.CertFile,
		KeyFile:            c.TLS.KeyFile,
		ServerName:         c.TLS.ServerName,
		InsecureSkipVerify: c.TLS.InsecureSkipVerify,
	}
	if !tc.IsZero() {
		tlsConfig, err := transport.NewClientTLSConfig(tc)
		if err != nil {
			return nil, err
		}
		d.TLSConfig = tlsConfig
	}
	return d, nil
}

// ControllerConfig maps the settings onto a controller configuration. The
// caller adds the logger, protocol logger and observer.
func (c *Config) ControllerConfig() (connection.Config, error) {
	dialer, err := c.Dialer()
	if err != nil {
		return connection.Config{}, err
	}
	return connection.Config{
		Heartbeat: transport.KeepAliveConfig{
			Interval: c.Heartbeat.Interval,
			Timeout:  c.Heartbeat.Timeout,
		},
		Reconnect:      c.ReconnectPolicy(),
		JitterFraction: c.Reconnect.JitterFraction,
		CloseGrace:     c.CloseGrace,
		ConnectTimeout: c.ConnectTimeout,
		Name:           c.Name,
		Dialer:         dialer,
	}, nil
}

// SlogLevel parses the configured log level.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
