// Package config provides configuration loading for pvectl.
// Configuration sources (in priority order): env vars > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/marcus-qen/pvego/internal/session"
)

// DefaultConfigDir is used when no directory is given to ConfigPath.
var DefaultConfigDir = defaultConfigDir()

// Config holds the connection and runtime settings.
type Config struct {
	// PVE host name or address, without protocol
	Host string `yaml:"host"`
	// pveproxy port (default 8006)
	Port int `yaml:"port"`

	Username string `yaml:"username"`
	Password string `yaml:"password,omitempty"`
	// Authentication realm (default "pam")
	Realm string `yaml:"realm"`

	VerifyTLS bool `yaml:"verify_tls"`
	// http or https (default "https")
	Protocol string `yaml:"protocol"`

	// Per-request timeout as a Go duration (default "30s")
	Timeout string `yaml:"timeout"`

	// Log level (debug, info, warn, error)
	LogLevel string `yaml:"log_level"`

	// OTLP gRPC collector, host:port or an http(s) URL; tracing is off when empty
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
}

// Default returns configuration with sensible defaults.
func Default() Config {
	return Config{
		Port:      int(session.DefaultPort),
		Realm:     "pam",
		VerifyTLS: true,
		Protocol:  "https",
		Timeout:   "30s",
		LogLevel:  "info",
	}
}

// ConfigPath returns the full path to the config file in dir.
func ConfigPath(dir string) string {
	if dir == "" {
		dir = DefaultConfigDir
	}
	return filepath.Join(dir, "config.yaml")
}

// Load reads configuration from a file, then overlays environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("PVE_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PVE_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("parse PVE_PORT: %w", err)
		}
		cfg.Port = n
	}
	if v := os.Getenv("PVE_USER"); v != "" {
		cfg.Username = v
	}
	if v := os.Getenv("PVE_PASSWORD"); v != "" {
		cfg.Password = v
	}
	if v := os.Getenv("PVE_REALM"); v != "" {
		cfg.Realm = v
	}
	if v := os.Getenv("PVE_VERIFY_TLS"); v != "" {
		cfg.VerifyTLS = v == "true" || v == "1"
	}
	if v := os.Getenv("PVE_PROTOCOL"); v != "" {
		cfg.Protocol = v
	}
	if v := os.Getenv("PVE_TIMEOUT"); v != "" {
		cfg.Timeout = v
	}
	if v := os.Getenv("PVE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PVE_OTLP_ENDPOINT"); v != "" {
		cfg.OTLPEndpoint = v
	}

	return cfg, nil
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error

	host := strings.TrimSpace(c.Host)
	switch {
	case host == "":
		errs = append(errs, errors.New("host is required"))
	case strings.Contains(host, "://"):
		errs = append(errs, fmt.Errorf("host %q must not include a protocol", c.Host))
	case strings.HasSuffix(host, "/"):
		errs = append(errs, fmt.Errorf("host %q must not end with a slash", c.Host))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if _, err := session.ParseProtocol(c.Protocol); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Username) == "" {
		errs = append(errs, errors.New("username is required"))
	}
	if strings.TrimSpace(c.Realm) == "" {
		errs = append(errs, errors.New("realm is required"))
	}
	if _, err := c.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}

	return errors.Join(errs...)
}

// TimeoutDuration parses Timeout. An empty value means no timeout.
func (c Config) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parse timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("timeout %s is negative", d)
	}
	return d, nil
}

// SessionParams converts c into session parameters. Call Validate first.
func (c Config) SessionParams() (session.Params, error) {
	proto, err := session.ParseProtocol(c.Protocol)
	if err != nil {
		return session.Params{}, err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return session.Params{}, fmt.Errorf("port %d out of range", c.Port)
	}
	return session.Params{
		Hostname:  strings.TrimSpace(c.Host),
		Port:      uint16(c.Port),
		Username:  c.Username,
		Password:  c.Password,
		Realm:     c.Realm,
		VerifyTLS: c.VerifyTLS,
		Protocol:  proto,
	}, nil
}

// Save writes the config to path with restrictive permissions.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "pvectl")
	}
	return ".pvectl"
}
