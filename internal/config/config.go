// Package config provides Viper-based configuration loading for the gateway.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// GatewayConfig holds the websocket acceptor settings.
type GatewayConfig struct {
	// Host is the bind address for the HTTP/websocket listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the HTTP/websocket listener.
	Port int `mapstructure:"port"`
	// Domain is the XMPP domain used in server-originated stanzas and
	// bound jids (accountId@domain/resource).
	Domain string `mapstructure:"domain"`
	// Subprotocol is the negotiated websocket subprotocol label that
	// routes a connection to the presence handler. Any other label (or
	// none) routes to the matchmaker.
	Subprotocol string `mapstructure:"subprotocol"`
	// OutboundQueueSize is the per-connection outbound frame buffer.
	// A peer that falls this far behind is disconnected.
	OutboundQueueSize int `mapstructure:"outbound_queue_size"`
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ReadLimit is the maximum inbound frame size in bytes.
	ReadLimit int64 `mapstructure:"read_limit"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// AuthConfig holds bearer-token verification settings.
type AuthConfig struct {
	// JWTSecret is the HMAC secret tokens are signed with. Token
	// issuance happens elsewhere; this service only verifies.
	JWTSecret string `mapstructure:"jwt_secret"`
}

// MatchmakerConfig holds the scripted matchmaking phase timings.
type MatchmakerConfig struct {
	// ConnectingDelay is the suspension after the Connecting update.
	ConnectingDelay time.Duration `mapstructure:"connecting_delay"`
	// WaitingDelay is the suspension after the Waiting update.
	WaitingDelay time.Duration `mapstructure:"waiting_delay"`
	// QueuedDelay is the suspension after the Queued update.
	QueuedDelay time.Duration `mapstructure:"queued_delay"`
	// AssignmentDelay is the suspension after the SessionAssignment update.
	AssignmentDelay time.Duration `mapstructure:"assignment_delay"`
	// JoinDelaySec is the joinDelaySec field of the final Play message.
	JoinDelaySec int `mapstructure:"join_delay_sec"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Matchmaker MatchmakerConfig `mapstructure:"matchmaker"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateGateway(c.Gateway); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAuth(c.Auth); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateMatchmaker(c.Matchmaker); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGateway(g GatewayConfig) error {
	var errs []string
	if g.Port < 1 || g.Port > 65535 {
		errs = append(errs, fmt.Sprintf("gateway.port must be 1-65535, got %d", g.Port))
	}
	if g.Domain == "" {
		errs = append(errs, "gateway.domain must not be empty")
	}
	if g.Subprotocol == "" {
		errs = append(errs, "gateway.subprotocol must not be empty")
	}
	if g.OutboundQueueSize < 1 {
		errs = append(errs, fmt.Sprintf("gateway.outbound_queue_size must be >= 1, got %d", g.OutboundQueueSize))
	}
	if g.WriteTimeout < 0 {
		errs = append(errs, "gateway.write_timeout must not be negative")
	}
	if g.ReadLimit < 0 {
		errs = append(errs, "gateway.read_limit must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAuth(a AuthConfig) error {
	if a.JWTSecret == "" {
		return errors.New("auth.jwt_secret must not be empty")
	}
	return nil
}

func validateMatchmaker(m MatchmakerConfig) error {
	var errs []string
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"matchmaker.connecting_delay", m.ConnectingDelay},
		{"matchmaker.waiting_delay", m.WaitingDelay},
		{"matchmaker.queued_delay", m.QueuedDelay},
		{"matchmaker.assignment_delay", m.AssignmentDelay},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Sprintf("%s must not be negative", d.name))
		}
	}
	if m.JoinDelaySec < 0 {
		errs = append(errs, fmt.Sprintf("matchmaker.join_delay_sec must be >= 0, got %d", m.JoinDelaySec))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with GATEWAY_ prefix
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 8080)
	v.SetDefault("gateway.domain", "prod.ol.epicgames.com")
	v.SetDefault("gateway.subprotocol", "xmpp")
	v.SetDefault("gateway.outbound_queue_size", 64)
	v.SetDefault("gateway.write_timeout", "10s")
	v.SetDefault("gateway.read_limit", 65536)

	v.SetDefault("matchmaker.connecting_delay", "800ms")
	v.SetDefault("matchmaker.waiting_delay", "1s")
	v.SetDefault("matchmaker.queued_delay", "4s")
	v.SetDefault("matchmaker.assignment_delay", "2s")
	v.SetDefault("matchmaker.join_delay_sec", 1)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
