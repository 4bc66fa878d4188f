// Package config loads the recorder configuration file and provides a typed Config used across the service.
// The file may be TOML (default), YAML or JSON, chosen by extension. A few values fall back to
// or are overridden by environment variables so secrets can stay out of the file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultPath is read when CONFIG_PATH is not set.
	DefaultPath = "config.toml"
	// DefaultCheckInterval is used when twitch.check_interval is absent (seconds).
	DefaultCheckInterval = 30
	// DefaultRequestTimeout bounds each Helix request when twitch.request_timeout is absent (seconds).
	DefaultRequestTimeout = 10

	TriggerEveryPoll    = "every_poll"
	TriggerOnTransition = "on_transition"
)

// ErrConfig is wrapped by every error Load returns.
var ErrConfig = errors.New("config error")

// Config is the parsed configuration file with defaults and env fallbacks applied.
type Config struct {
	Twitch    Twitch
	Streamers map[string]map[string]any
	Server    Server
	Database  Database

	// Path is the file the config was loaded from.
	Path string
}

type Twitch struct {
	// Key is the Client-Id credential. Falls back to TWITCH_API_KEY only when the key is absent.
	Key string
	// ClientSecret enables app access tokens. Falls back to TWITCH_CLIENT_SECRET.
	ClientSecret   string
	CheckInterval  int
	RequestTimeout int
	Trigger        string
	StopOnError    bool
}

type Server struct {
	Addr string
}

type Database struct {
	DSN string
}

// file mirrors the on-disk layout. Pointers distinguish absent from zero.
type file struct {
	Twitch    *twitchFile               `toml:"twitch" yaml:"twitch" json:"twitch"`
	Streamers map[string]map[string]any `toml:"streamers" yaml:"streamers" json:"streamers"`
	Server    struct {
		Addr string `toml:"addr" yaml:"addr" json:"addr"`
	} `toml:"server" yaml:"server" json:"server"`
	Database struct {
		DSN string `toml:"dsn" yaml:"dsn" json:"dsn"`
	} `toml:"database" yaml:"database" json:"database"`
}

type twitchFile struct {
	Key            *string `toml:"key" yaml:"key" json:"key"`
	ClientSecret   string  `toml:"client_secret" yaml:"client_secret" json:"client_secret"`
	CheckInterval  *int    `toml:"check_interval" yaml:"check_interval" json:"check_interval"`
	RequestTimeout *int    `toml:"request_timeout" yaml:"request_timeout" json:"request_timeout"`
	Trigger        string  `toml:"trigger" yaml:"trigger" json:"trigger"`
	StopOnError    bool    `toml:"stop_on_error" yaml:"stop_on_error" json:"stop_on_error"`
}

// Load reads the config file at path and applies defaults and env fallbacks:
//
//	twitch.key           <- TWITCH_API_KEY when absent (an explicit empty key is kept)
//	twitch.client_secret <- TWITCH_CLIENT_SECRET when absent
//	server.addr          <- HTTP_ADDR when set
//	database.dsn         <- DB_DSN when set
//
// A missing credential is not an error; the Helix client refuses to send requests without one.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrConfig, path, err)
	}

	var f file
	if err := decode(path, raw, &f); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrConfig, path, err)
	}
	if f.Twitch == nil {
		return nil, fmt.Errorf("%w: %s: missing [twitch] section", ErrConfig, path)
	}
	if len(f.Streamers) == 0 {
		return nil, fmt.Errorf("%w: %s: missing or empty [streamers] section", ErrConfig, path)
	}

	cfg := &Config{Path: path}

	// Twitch
	if f.Twitch.Key != nil {
		cfg.Twitch.Key = *f.Twitch.Key
	} else {
		cfg.Twitch.Key = os.Getenv("TWITCH_API_KEY")
	}
	cfg.Twitch.ClientSecret = f.Twitch.ClientSecret
	if cfg.Twitch.ClientSecret == "" {
		cfg.Twitch.ClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	}
	cfg.Twitch.CheckInterval = DefaultCheckInterval
	if f.Twitch.CheckInterval != nil {
		if *f.Twitch.CheckInterval <= 0 {
			return nil, fmt.Errorf("%w: twitch.check_interval must be positive, got %d", ErrConfig, *f.Twitch.CheckInterval)
		}
		cfg.Twitch.CheckInterval = *f.Twitch.CheckInterval
	}
	cfg.Twitch.RequestTimeout = DefaultRequestTimeout
	if f.Twitch.RequestTimeout != nil {
		if *f.Twitch.RequestTimeout <= 0 {
			return nil, fmt.Errorf("%w: twitch.request_timeout must be positive, got %d", ErrConfig, *f.Twitch.RequestTimeout)
		}
		cfg.Twitch.RequestTimeout = *f.Twitch.RequestTimeout
	}
	switch t := strings.ToLower(strings.TrimSpace(f.Twitch.Trigger)); t {
	case "":
		cfg.Twitch.Trigger = TriggerEveryPoll
	case TriggerEveryPoll, TriggerOnTransition:
		cfg.Twitch.Trigger = t
	default:
		return nil, fmt.Errorf("%w: twitch.trigger %q (want %s or %s)", ErrConfig, f.Twitch.Trigger, TriggerEveryPoll, TriggerOnTransition)
	}
	cfg.Twitch.StopOnError = f.Twitch.StopOnError

	// Streamers
	cfg.Streamers = make(map[string]map[string]any, len(f.Streamers))
	for name, opts := range f.Streamers {
		login := NormalizeLogin(name)
		if login == "" {
			return nil, fmt.Errorf("%w: empty streamer name", ErrConfig)
		}
		if _, dup := cfg.Streamers[login]; dup {
			return nil, fmt.Errorf("%w: streamer %q listed more than once", ErrConfig, login)
		}
		clean, _ := normalizeValue(opts).(map[string]any)
		if clean == nil {
			clean = map[string]any{}
		}
		cfg.Streamers[login] = clean
	}

	// Server / Database
	cfg.Server.Addr = f.Server.Addr
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	cfg.Database.DSN = f.Database.DSN
	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	return cfg, nil
}

// PollInterval is twitch.check_interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Twitch.CheckInterval) * time.Second
}

// RequestTimeout is twitch.request_timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Twitch.RequestTimeout) * time.Second
}

// Logins returns the normalized streamer logins in sorted order.
func (c *Config) Logins() []string {
	out := make([]string, 0, len(c.Streamers))
	for login := range c.Streamers {
		out = append(out, login)
	}
	sort.Strings(out)
	return out
}

// NormalizeLogin lowercases and trims a streamer identifier.
func NormalizeLogin(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func decode(path string, raw []byte, f *file) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(raw, f)
	case ".json":
		return json.Unmarshal(raw, f)
	default:
		_, err := toml.Decode(string(raw), f)
		return err
	}
}

// normalizeValue turns yaml.v2's map[interface{}]interface{} into map[string]any, recursively,
// so options bags look the same whatever format they came from.
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeValue(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeValue(val)
		}
		return out
	default:
		return v
	}
}
