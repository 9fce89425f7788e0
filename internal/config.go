package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/plansync/internal/localstorage"
	"github.com/starford/plansync/internal/ratelimit"
	"github.com/starford/plansync/internal/remote"
	"github.com/starford/plansync/internal/scheduler"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workspace WorkspaceConfig   `yaml:"workspace"`
	Storage   StorageConfig     `yaml:"storage"`
	Remote    RemoteConfig      `yaml:"remote"`
	Sync      SyncConfig        `yaml:"sync"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	return c.Sync.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	// LogFile, when set, receives the JSON log with size-based rotation
	// instead of stdout.
	LogFile string     `yaml:"log_file"`
	HTTP    HTTPConfig `yaml:"http"`
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

// WorkspaceConfig points at the granted local directory. An empty path runs
// without one: files stay pending in memory and discovery is off.
type WorkspaceConfig struct {
	Path string `yaml:"path"`
}

// StorageConfig holds the browser-storage database settings.
type StorageConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
	QuotaBytes int64  `yaml:"quota_bytes"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SQLitePath, validation.Required),
		validation.Field(&c.QuotaBytes, validation.Min(int64(0))),
	)
}

// RemoteConfig holds the remote document store settings.
type RemoteConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	Owner   string `yaml:"owner"`
	Repo    string `yaml:"repo"`
	Path    string `yaml:"path"`
	// Token is optional; it can be supplied later through the credential API.
	Token string `yaml:"token"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Owner, validation.Required),
		validation.Field(&c.Repo, validation.Required),
		validation.Field(&c.Path, validation.Required),
	)
}

// SyncConfig tunes the reconciliation schedule and the remote rate limiter.
type SyncConfig struct {
	LightSchedule      string        `yaml:"light_schedule"`
	DeepSchedule       string        `yaml:"deep_schedule"`
	RemotePullSchedule string        `yaml:"remote_pull_schedule"`
	HourlyCeiling      int           `yaml:"hourly_ceiling"`
	MinInterval        time.Duration `yaml:"min_interval"`
	MaxInterval        time.Duration `yaml:"max_interval"`
	PushDebounce       time.Duration `yaml:"push_debounce"`
	// ManualRPS limits the manual pull/push/discover endpoints.
	ManualRPS float64 `yaml:"manual_rps"`
}

func cronSpec(value any) error {
	s, _ := value.(string)
	return scheduler.Validate(s)
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.LightSchedule, validation.By(cronSpec)),
		validation.Field(&c.DeepSchedule, validation.By(cronSpec)),
		validation.Field(&c.RemotePullSchedule, validation.By(cronSpec)),
		validation.Field(&c.HourlyCeiling, validation.Required, validation.Min(1)),
		validation.Field(&c.MinInterval, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxInterval, validation.Required, validation.Min(c.MinInterval)),
		validation.Field(&c.PushDebounce, validation.Min(time.Duration(0))),
		validation.Field(&c.ManualRPS, validation.Required, validation.Min(0.0).Exclusive()),
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
		Workspace: WorkspaceConfig{
			Path: "./workspace",
		},
		Storage: StorageConfig{
			SQLitePath: "./plansync.db",
			QuotaBytes: localstorage.DefaultQuota,
		},
		Remote: RemoteConfig{
			BaseURL: remote.DefaultBaseURL,
			Path:    remote.DefaultPath,
		},
		Sync: SyncConfig{
			LightSchedule:      scheduler.DefaultLight,
			DeepSchedule:       scheduler.DefaultDeep,
			RemotePullSchedule: "@every 10m",
			HourlyCeiling:      ratelimit.DefaultCeiling,
			MinInterval:        ratelimit.DefaultMinInterval,
			MaxInterval:        ratelimit.DefaultMaxInterval,
			PushDebounce:       2 * time.Second,
			ManualRPS:          0.2,
		},
	}
}
