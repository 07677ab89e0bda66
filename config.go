package sessionkit

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aification/sessionkit/token"
)

// EnvAPIBase overrides APIConfig.BaseURL when set.
const EnvAPIBase = "AIFICATION_API_BASE"

// Config is the full SessionStore configuration. Start from DefaultConfig or LoadConfig;
// the Builder copies it, so later edits do not reach a built store.
type Config struct {
	API        APIConfig        `yaml:"api"`
	Session    SessionConfig    `yaml:"session"`
	Storage    StorageConfig    `yaml:"storage"`
	Identity   IdentityConfig   `yaml:"identity"`
	Navigation NavigationConfig `yaml:"navigation"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Events     EventsConfig     `yaml:"events"`
}

/*
====================================
API CONFIG
====================================
*/

// APIConfig locates the auth backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes hydration.
//
// With RejectExpiredTokens set, a JWT bearer token whose exp has passed (beyond
// ExpiryLeeway) is treated as a failed hydration without calling the backend.
type SessionConfig struct {
	RejectExpiredTokens bool          `yaml:"reject_expired_tokens"`
	ExpiryLeeway        time.Duration `yaml:"expiry_leeway"`
}

/*
====================================
STORAGE CONFIG
====================================
*/

// Storage backends understood by StorageConfig.Backend.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// StorageConfig selects where the bearer token is persisted.
type StorageConfig struct {
	Backend     string `yaml:"backend" validate:"oneof=memory file redis"`
	FilePath    string `yaml:"file_path"`
	RedisAddr   string `yaml:"redis_addr" validate:"required_if=Backend redis"`
	RedisDB     int    `yaml:"redis_db" validate:"gte=0"`
	RedisPrefix string `yaml:"redis_prefix"`
}

/*
====================================
IDENTITY / NAVIGATION / METRICS / EVENTS
====================================
*/

// IdentityConfig configures the identity-provider button.
type IdentityConfig struct {
	ClientID     string        `yaml:"client_id"`
	PollInterval time.Duration `yaml:"poll_interval" validate:"gte=0"`
	MaxPolls     int           `yaml:"max_polls" validate:"gte=0"`
}

// NavigationConfig holds the locations the shell navigates to.
type NavigationConfig struct {
	RootURL          string `yaml:"root_url" validate:"required"`
	ResumeBuilderURL string `yaml:"resume_builder_url" validate:"omitempty,url"`
}

// MetricsConfig turns the store counters on. Latency histograms also need Enabled.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// EventsConfig controls asynchronous delivery of SessionEvent values to an EventSink.
// FlushTimeout bounds how long Close waits for the sink to drain the queue.
type EventsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	BufferSize   int           `yaml:"buffer_size" validate:"gte=0"`
	DropIfFull   bool          `yaml:"drop_if_full"`
	FlushTimeout time.Duration `yaml:"flush_timeout" validate:"gte=0"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 15 * time.Second,
		},
		Session: SessionConfig{
			RejectExpiredTokens: false,
			ExpiryLeeway:        30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:     StorageFile,
			RedisPrefix: "aif",
		},
		Identity: IdentityConfig{
			PollInterval: 150 * time.Millisecond,
			MaxPolls:     66,
		},
		Navigation: NavigationConfig{
			RootURL:          "/",
			ResumeBuilderURL: "http://localhost:3000",
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Events: EventsConfig{
			Enabled:      false,
			BufferSize:   64,
			DropIfFull:   true,
			FlushTimeout: DefaultEventsFlushTimeout,
		},
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	// API
	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("%w: API BaseURL must be http or https", ErrInvalidConfig)
	}

	// Session
	if c.Session.ExpiryLeeway < 0 || c.Session.ExpiryLeeway > token.MaxLeeway {
		return fmt.Errorf("%w: Session ExpiryLeeway must be within [0, %s]", ErrInvalidConfig, token.MaxLeeway)
	}

	// Storage
	if strings.TrimSpace(c.Storage.RedisPrefix) == "" && c.Storage.Backend == StorageRedis {
		return fmt.Errorf("%w: Storage RedisPrefix must not be blank", ErrInvalidConfig)
	}

	// Events
	if c.Events.Enabled && c.Events.BufferSize == 0 {
		return fmt.Errorf("%w: Events BufferSize must be > 0 when enabled", ErrInvalidConfig)
	}

	// Navigation
	if !strings.HasPrefix(c.Navigation.RootURL, "/") && !strings.Contains(c.Navigation.RootURL, "://") {
		return fmt.Errorf("%w: Navigation RootURL must be a path or absolute URL", ErrInvalidConfig)
	}

	return nil
}

// LoadConfig reads a YAML file on top of DefaultConfig, applies the
// AIFICATION_API_BASE override and validates the result. An empty path skips the
// file.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
	}

	if base := strings.TrimSpace(os.Getenv(EnvAPIBase)); base != "" {
		cfg.API.BaseURL = base
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
