package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultMaxPeersPerRoom = 32
	DefaultJoinTimeout     = 60 * time.Second
	DefaultLogLevel        = "info"
)

// Config holds the process configuration. It is fixed at startup and never
// mutated afterwards.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Rooms   RoomsConfig   `yaml:"rooms"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig covers the HTTP bind and static asset serving.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// StaticDir is the directory served at "/". Empty disables static
	// serving; "/" then answers with a plain-text banner.
	StaticDir string `yaml:"static_dir"`
}

// RoomsConfig covers room capacity and the join handshake.
type RoomsConfig struct {
	MaxPeersPerRoom int `yaml:"max_peers_per_room"`

	// JoinTimeout bounds how long an accepted connection may wait before
	// sending its join message. An explicit 0 disables the bound; leaving
	// it unset applies the default.
	JoinTimeout *Duration `yaml:"join_timeout"`
}

// JoinWait returns the effective join timeout.
func (r RoomsConfig) JoinWait() time.Duration {
	if r.JoinTimeout == nil {
		return DefaultJoinTimeout
	}
	return time.Duration(*r.JoinTimeout)
}

// LoggingConfig selects the slog level: debug, info, warn or error.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Duration carries a time.Duration through YAML, accepting "90s" style
// strings or a bare number of seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}
	*d = Duration(time.Duration(n) * time.Second)
	return nil
}

// Default returns a config carrying only the defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Rooms.MaxPeersPerRoom == 0 {
		c.Rooms.MaxPeersPerRoom = DefaultMaxPeersPerRoom
	}
	if c.Rooms.JoinTimeout == nil {
		d := Duration(DefaultJoinTimeout)
		c.Rooms.JoinTimeout = &d
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

// Validate checks the config for values the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Rooms.MaxPeersPerRoom < 1 {
		return fmt.Errorf("rooms.max_peers_per_room must be at least 1, got %d", c.Rooms.MaxPeersPerRoom)
	}
	if c.Rooms.JoinWait() < 0 {
		return fmt.Errorf("rooms.join_timeout must not be negative, got %s", c.Rooms.JoinWait())
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q unknown", c.Logging.Level)
	}
	return nil
}

// Addr returns the bind address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
