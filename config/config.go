// Package config provides YAML and TOML configuration parsing for matterlog.
//
// This package enables running matterlog as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
// The format is chosen by file extension (.yaml, .yml or .toml); both
// formats share one schema.
//
// Example configuration (TOML):
//
//	[server]
//	save_path = "./logs"
//	sleep_time = 5
//
//	[channel.general]
//	base_url = "http://localhost:4242"
//	token = "${GENERAL_TOKEN}"
//
//	[channel.random]
//	base_url = "http://localhost:4243"
//	sleep_time = "30s"
//
// Older INI-style files carry over section for section, but TOML needs
// every string value quoted: base_url = http://host becomes
// base_url = "http://host". Parse points at the first unquoted value it
// trips on.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/matterlog/internal/logsink"
)

const (
	defaultSavePath  = "./logs"
	defaultSleepTime = 5 * time.Second
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "matterlog/1.0"

	// maxChannelSleepTime bounds per-channel overrides.
	maxChannelSleepTime = time.Hour
)

// Environment variables that override file values.
const (
	EnvSavePath   = "MATTERLOG_SAVE_PATH"
	EnvSleepTime  = "MATTERLOG_SLEEP_TIME"
	EnvStatusAddr = "MATTERLOG_STATUS_ADDR"
)

// Format identifies a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor returns the format implied by the extension of path.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported config file extension %q (expected .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// Config is the root configuration structure for matterlog.
//
// Use [Load] or [Parse] to create a Config.
type Config struct {
	Server ServerConfig `yaml:"server" toml:"server"`

	// Channels maps a channel name to its bridge. The name is also the
	// directory below save_path that holds the channel's logs.
	Channels map[string]ChannelConfig `yaml:"channel" toml:"channel"`
}

// ServerConfig holds settings shared by every channel.
type ServerConfig struct {
	// SavePath is the root directory for log files. Defaults to ./logs.
	SavePath string `yaml:"save_path" toml:"save_path"`

	// SleepTime is the delay between successful polls. Accepts whole
	// seconds or a duration string. Defaults to 5s; 0 polls continuously.
	SleepTime *Duration `yaml:"sleep_time" toml:"sleep_time"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout *Duration `yaml:"timeout" toml:"timeout"`

	// StatusAddr enables the status API when set, e.g. ":8080".
	StatusAddr string `yaml:"status_addr" toml:"status_addr"`

	// UserAgent is sent with every request. Defaults to matterlog/1.0.
	UserAgent string `yaml:"user_agent" toml:"user_agent"`
}

// ChannelConfig defines the bridge for one channel.
type ChannelConfig struct {
	// BaseURL is the bridge API root; /api/messages is appended.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	BaseURL string `yaml:"base_url" toml:"base_url"`

	// Token is sent as a bearer token when set.
	Token string `yaml:"token" toml:"token"`

	// SleepTime overrides server.sleep_time for this channel.
	// Must be between 0 (use the server value) and 1h.
	SleepTime *Duration `yaml:"sleep_time" toml:"sleep_time"`
}

// Duration wraps time.Duration for config unmarshalling. A bare number is
// read as seconds; strings may also use time.ParseDuration syntax.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", node.Kind)
	}

	switch node.Tag {
	case "!!int", "!!float":
		var secs float64
		if err := node.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(time.Duration(secs * float64(time.Second)))
		return nil
	}

	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler for Duration.
func (d *Duration) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case int64:
		*d = Duration(time.Duration(val) * time.Second)
	case float64:
		*d = Duration(time.Duration(val * float64(time.Second)))
	case string:
		parsed, err := ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("duration must be a number or string, got %T", v)
	}
	return nil
}

// ParseDuration parses whole seconds ("5") or a duration string ("500ms").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(n * float64(time.Second)), nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return parsed, nil
}

// SleepTimeOrDefault returns the effective global polling delay.
func (s ServerConfig) SleepTimeOrDefault() time.Duration {
	if s.SleepTime == nil {
		return defaultSleepTime
	}
	return s.SleepTime.Duration()
}

// TimeoutOrDefault returns the effective per-request timeout.
func (s ServerConfig) TimeoutOrDefault() time.Duration {
	if s.Timeout == nil {
		return defaultTimeout
	}
	return s.Timeout.Duration()
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a configuration file, choosing the format from
// its extension.
//
// Environment overrides are applied and variables in the file are expanded
// before validation. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data, format)
}

// Parse parses configuration data in the given format.
//
// Defaults are applied for save_path (./logs), sleep_time (5s), timeout
// (10s) and user_agent (matterlog/1.0). The MATTERLOG_* environment
// variables take precedence over file values.
func Parse(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			if hint := unquotedValueHint(data, err); hint != "" {
				return nil, fmt.Errorf("failed to parse TOML: %w (%s)", err, hint)
			}
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.SavePath == "" {
		cfg.Server.SavePath = defaultSavePath
	}
	if cfg.Server.UserAgent == "" {
		cfg.Server.UserAgent = defaultUserAgent
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// unquotedValueHint explains a TOML error caused by an INI-style bare
// value. It returns "" when the failing line is not a key = value pair with
// an unquoted string.
func unquotedValueHint(data []byte, err error) string {
	var perr toml.ParseError
	if !errors.As(err, &perr) {
		return ""
	}
	lines := strings.Split(string(data), "\n")
	n := perr.Position.Line
	if n < 1 || n > len(lines) {
		return ""
	}

	key, value, ok := strings.Cut(lines[n-1], "=")
	if !ok {
		return ""
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" || strings.HasPrefix(key, "#") || !isBareValue(value) {
		return ""
	}
	return fmt.Sprintf("line %d: string values must be quoted, e.g. %s = %q", n, key, value)
}

// isBareValue reports whether v cannot start any TOML value.
func isBareValue(v string) bool {
	switch v {
	case "":
		return true
	case "true", "false", "inf", "nan":
		return false
	}
	return !strings.ContainsRune(`"'[{+-0123456789`, rune(v[0]))
}

// applyEnv overrides file values with MATTERLOG_* variables. Env vars
// always win.
func applyEnv(cfg *Config) error {
	if v := os.Getenv(EnvSavePath); v != "" {
		cfg.Server.SavePath = v
	}
	if v := os.Getenv(EnvSleepTime); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSleepTime, err)
		}
		st := Duration(d)
		cfg.Server.SleepTime = &st
	}
	if v := os.Getenv(EnvStatusAddr); v != "" {
		cfg.Server.StatusAddr = v
	}
	return nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	expanded, err := expandEnvVars(c.Server.SavePath)
	if err != nil {
		return fmt.Errorf("server: save_path: %w", err)
	}
	c.Server.SavePath = expanded

	if d := c.Server.SleepTimeOrDefault(); d < 0 {
		return fmt.Errorf("server: sleep_time cannot be negative, got %s", d)
	}
	if d := c.Server.TimeoutOrDefault(); d <= 0 {
		return fmt.Errorf("server: timeout must be positive, got %s", d)
	}

	if len(c.Channels) == 0 {
		return errors.New("at least one channel must be defined")
	}

	for name, ch := range c.Channels {
		if err := logsink.ValidateChannel(name); err != nil {
			return fmt.Errorf("channel %q: %w", name, err)
		}

		if ch.BaseURL == "" {
			return fmt.Errorf("channel %q: base_url is required", name)
		}
		expanded, err := expandEnvVars(ch.BaseURL)
		if err != nil {
			return fmt.Errorf("channel %q: base_url: %w", name, err)
		}
		ch.BaseURL = expanded

		parsedURL, err := url.Parse(ch.BaseURL)
		if err != nil {
			return fmt.Errorf("channel %q: invalid base_url: %w", name, err)
		}
		if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			return fmt.Errorf("channel %q: base_url scheme must be http or https, got %q", name, parsedURL.Scheme)
		}

		token, err := expandEnvVars(ch.Token)
		if err != nil {
			return fmt.Errorf("channel %q: token: %w", name, err)
		}
		ch.Token = token

		if ch.SleepTime != nil {
			d := ch.SleepTime.Duration()
			if d < 0 {
				return fmt.Errorf("channel %q: sleep_time cannot be negative, got %s", name, d)
			}
			if d > maxChannelSleepTime {
				return fmt.Errorf("channel %q: sleep_time must not exceed %s, got %s", name, maxChannelSleepTime, d)
			}
		}

		c.Channels[name] = ch
	}

	return nil
}
