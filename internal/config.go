package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/basket/internal/persist"
	"github.com/starford/basket/internal/storage"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Store     StoreConfig       `yaml:"store"`
	Optimizer OptimizerConfig   `yaml:"optimizer"`
	Drafts    DraftsConfig      `yaml:"drafts"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Optimizer.Validate(); err != nil {
		return err
	}
	if err := c.Drafts.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
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

// StoreConfig selects the draft storage backend.
// Path is a SQLite file for "sqlite" and a directory for "fs" and "badger".
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

// Validate validates the store configuration.
func (c *StoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required,
			validation.In(storage.DriverSQLite, storage.DriverFS, storage.DriverBadger)),
		validation.Field(&c.Path, validation.Required),
	)
}

// OptimizerConfig configures the remote optimizer client.
type OptimizerConfig struct {
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Burst         int           `yaml:"burst"`
}

// Validate validates the optimizer configuration.
func (c *OptimizerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.RatePerSecond, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
	)
}

// DraftsConfig tunes draft persistence.
type DraftsConfig struct {
	PersistDebounce time.Duration `yaml:"persist_debounce"`
}

// Validate validates the drafts configuration.
func (c *DraftsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PersistDebounce, validation.Min(time.Duration(0)), validation.Max(time.Minute)),
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

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Driver: storage.DriverSQLite,
			Path:   "./basket.db",
		},
		Optimizer: OptimizerConfig{
			URL:           "http://localhost:8000/api/optimize",
			Timeout:       30 * time.Second,
			RatePerSecond: 2,
			Burst:         2,
		},
		Drafts: DraftsConfig{
			PersistDebounce: persist.DefaultDelay,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
