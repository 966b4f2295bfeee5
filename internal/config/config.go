// Package config loads the chat client configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Defaults used when a field is left unset.
const (
	DefaultServer        = "ws://localhost:8000"
	DefaultDialTimeout   = 10 * time.Second
	DefaultMaxReplyBytes = 1 << 20
	DefaultLogLevel      = "info"

	// UnlimitedReplyBytes as max_reply_bytes disables the reply size cap.
	// Zero selects DefaultMaxReplyBytes.
	UnlimitedReplyBytes = -1
)

// Config holds client settings. Zero values are replaced by defaults.
type Config struct {
	Server         string        `yaml:"server"`
	SessionID      string        `yaml:"session_id"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	MaxReplyBytes  int           `yaml:"max_reply_bytes"`
	LogLevel       string        `yaml:"log_level"`
	LogDevelopment bool          `yaml:"log_development"`
	Transcript     string        `yaml:"transcript"`
}

// Default returns a Config with every default applied and a fresh session id.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML config file. An empty path yields Default().
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("error opening config file: %w", err)
		}
		defer f.Close()

		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.MaxReplyBytes == 0 {
		c.MaxReplyBytes = DefaultMaxReplyBytes
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", c.Server, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid server url %q: scheme must be ws or wss", c.Server)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid server url %q: missing host", c.Server)
	}
	if c.SessionID == "" {
		return errors.New("session id must not be empty")
	}
	if c.DialTimeout < 0 {
		return fmt.Errorf("dial timeout must not be negative, got %s", c.DialTimeout)
	}
	if c.MaxReplyBytes < UnlimitedReplyBytes {
		return fmt.Errorf("max reply bytes must be positive or %d for no limit, got %d", UnlimitedReplyBytes, c.MaxReplyBytes)
	}
	return nil
}

// Endpoint returns the session URL: <server>/ws/<session id>.
func (c Config) Endpoint() (string, error) {
	endpoint, err := url.JoinPath(c.Server, "ws", c.SessionID)
	if err != nil {
		return "", fmt.Errorf("failed to build endpoint: %w", err)
	}
	return endpoint, nil
}
