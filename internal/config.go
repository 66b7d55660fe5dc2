package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/notetaker/internal/audio"
	"github.com/starford/notetaker/internal/webcapture"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Storage StorageConfig     `yaml:"storage"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Auth    AuthConfig        `yaml:"auth"`
	Audio   AudioConfig       `yaml:"audio"`
	Web     WebConfig         `yaml:"web"`
	Inbox   InboxConfig       `yaml:"inbox"`
	Events  EventsConfig      `yaml:"events"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		&c.App, &c.Storage, &c.SQLite, &c.Auth, &c.Audio, &c.Web, &c.Inbox, &c.Events,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig holds the attachment store root.
type StorageConfig struct {
	Path string `yaml:"path"`
	// PendingMaxAge is how old an uncommitted payload must be before the
	// startup sweep removes it.
	PendingMaxAge time.Duration `yaml:"pending_max_age"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.PendingMaxAge, validation.Min(time.Duration(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// AudioConfig configures the recorder. Enabled doubles as the microphone
// permission: when false every start is denied.
//
// Command is the capture program argv; it must write the encoded stream to
// stdout and may use {sample_rate}, {channels} and {codec}.
type AudioConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Command    []string      `yaml:"command"`
	SampleRate int           `yaml:"sample_rate"`
	Channels   int           `yaml:"channels"`
	Tick       time.Duration `yaml:"tick"`
}

// Validate validates the audio configuration.
func (c *AudioConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Command, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.SampleRate, validation.Required, validation.Min(8000), validation.Max(192000)),
		validation.Field(&c.Channels, validation.Required, validation.In(1, 2)),
		validation.Field(&c.Tick, validation.Required, validation.Min(10*time.Millisecond)),
	)
}

// Format returns the recording format with the configured overrides.
func (c *AudioConfig) Format() audio.Format {
	f := audio.DefaultFormat
	f.SampleRate = c.SampleRate
	f.Channels = c.Channels
	return f
}

// WebConfig configures the web page fetcher.
type WebConfig struct {
	Timeout           time.Duration `yaml:"timeout"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes"`
	UserAgent         string        `yaml:"user_agent"`
	BlockPrivateHosts bool          `yaml:"block_private_hosts"`
}

// Validate validates the web configuration.
func (c *WebConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxBodyBytes, validation.Required, validation.Min(int64(1024))),
	)
}

// Fetcher returns the fetcher configuration.
func (c *WebConfig) Fetcher() webcapture.Config {
	return webcapture.Config{
		Timeout:           c.Timeout,
		MaxBody:           c.MaxBodyBytes,
		UserAgent:         c.UserAgent,
		BlockPrivateHosts: c.BlockPrivateHosts,
	}
}

// InboxConfig configures the watch folder.
type InboxConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path"`
	Settle  time.Duration `yaml:"settle"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Settle, validation.Min(time.Duration(0))),
	)
}

// EventsConfig configures change notification.
type EventsConfig struct {
	ListThrottle time.Duration `yaml:"list_throttle"`
}

// Validate validates the events configuration.
func (c *EventsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ListThrottle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Path:          "./data",
			PendingMaxAge: time.Hour,
		},
		SQLite: SQLiteConfig{
			Path: "./notetaker.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Audio: AudioConfig{
			SampleRate: audio.DefaultFormat.SampleRate,
			Channels:   audio.DefaultFormat.Channels,
			Tick:       audio.DefaultTick,
		},
		Web: WebConfig{
			Timeout:      webcapture.DefaultTimeout,
			MaxBodyBytes: webcapture.DefaultMaxBody,
			UserAgent:    webcapture.DefaultUserAgent,
		},
		Inbox: InboxConfig{
			Path:   filepath.Join(".", "inbox"),
			Settle: 500 * time.Millisecond,
		},
		Events: EventsConfig{
			ListThrottle: 2 * time.Second,
		},
	}
}
