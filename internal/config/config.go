// Package config loads server settings from flags, BROWSER_STEPS_*
// environment variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "BROWSER_STEPS"

// Keys, also used as flag names.
const (
	KeyURL            = "url"
	KeyHost           = "host"
	KeyPort           = "port"
	KeyScript         = "script"
	KeyWatch          = "watch"
	KeyMaxSessions    = "max-sessions"
	KeyPollInterval   = "poll-interval"
	KeyPacing         = "pacing"
	KeyKeepAlive      = "keepalive"
	KeyResetRedeliver = "reset-redeliver"
	KeyLogLevel       = "log-level"
)

var ErrMissingURL = errors.New("target URL is required (--url or BROWSER_STEPS_URL)")

// Config holds the resolved server settings.
type Config struct {
	URL            string
	Host           string
	Port           int
	Script         string
	Watch          bool
	MaxSessions    int
	PollInterval   time.Duration
	Pacing         time.Duration
	KeepAlive      time.Duration
	ResetRedeliver bool
	LogLevel       string
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyPort, 8000)
	v.SetDefault(KeyMaxSessions, 0)
	v.SetDefault(KeyPollInterval, time.Second)
	v.SetDefault(KeyPacing, 100*time.Millisecond)
	v.SetDefault(KeyKeepAlive, 15*time.Second)
	v.SetDefault(KeyResetRedeliver, true)
	v.SetDefault(KeyLogLevel, "info")
}

// RegisterFlags adds the server flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP(KeyURL, "u", "", "target URL for the browser steps")
	fs.String(KeyHost, "0.0.0.0", "host to bind to")
	fs.Int(KeyPort, 8000, "port to bind to")
	fs.String(KeyScript, "", "YAML or TOML step script (default: built-in sequence)")
	fs.Bool(KeyWatch, false, "reload the script file when it changes")
	fs.Int(KeyMaxSessions, 0, "maximum concurrent stream connections (0 = unlimited)")
	fs.Duration(KeyPollInterval, time.Second, "fallback interval between dispatch passes")
	fs.Duration(KeyPacing, 100*time.Millisecond, "delay between emitted commands")
	fs.Duration(KeyKeepAlive, 15*time.Second, "stream heartbeat interval (0 disables)")
	fs.Bool(KeyResetRedeliver, true, "offer commands again to open streams after a reset")
	fs.String(KeyLogLevel, "info", "log level: debug, info, warn, error")
}

// Load resolves the configuration. Flags that were set win over the
// environment, which wins over the config file, which wins over defaults.
// configFile may be empty.
func Load(v *viper.Viper, fs *pflag.FlagSet, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		URL:            v.GetString(KeyURL),
		Host:           v.GetString(KeyHost),
		Port:           v.GetInt(KeyPort),
		Script:         v.GetString(KeyScript),
		Watch:          v.GetBool(KeyWatch),
		MaxSessions:    v.GetInt(KeyMaxSessions),
		PollInterval:   v.GetDuration(KeyPollInterval),
		Pacing:         v.GetDuration(KeyPacing),
		KeepAlive:      v.GetDuration(KeyKeepAlive),
		ResetRedeliver: v.GetBool(KeyResetRedeliver),
		LogLevel:       v.GetString(KeyLogLevel),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required and range-limited settings.
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrMissingURL
	}
	if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid target URL %q", c.URL)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("max-sessions must not be negative")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if c.Pacing < 0 || c.KeepAlive < 0 {
		return fmt.Errorf("pacing and keepalive must not be negative")
	}
	if c.Watch && c.Script == "" {
		return fmt.Errorf("--watch requires --script")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SlogLevel maps LogLevel to a slog level; unknown names mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
