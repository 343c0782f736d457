// Package config loads Hydra's process configuration from environment
// variables, following pkg/config's EnvLoader-backed Provider pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every setting the server needs to boot.
type Config struct {
	// HTTP server
	ListenAddr string `env:"LISTEN_ADDR" default:":8080"`

	// Scheduler
	MaxActiveJobs int64 `env:"MAX_ACTIVE_K8S_JOBS" default:"10"`
	EnableCascade bool  `env:"ENABLE_CASCADE" default:"true"`

	// Kubernetes
	K8SAPIURL       string        `env:"K8S_API_URL"`
	K8SToken        string        `env:"K8S_TOKEN"`
	K8SCACert       string        `env:"K8S_CACERT"`
	RootCert        string        `env:"ROOT_CERT"`
	WatchK8S        bool          `env:"WATCH_K8S" default:"false"`
	WatchNamespace  string        `env:"WATCH_K8S_NAMESPACE" default:"default"`
	WatchTimeout    time.Duration `env:"WATCH_K8S_TIMEOUT" default:"10m"`
	WatchReqTimeout time.Duration `env:"WATCH_K8S_REQUEST_TIMEOUT" default:"0"`
	ProcessBatchTestImage string  `env:"PROCESS_BATCH_TEST_IMAGE"`

	// Houston
	HoustonURL     string        `env:"HOUSTON_URL"`
	HoustonToken   string        `env:"HOUSTON_TOKEN"`
	HoustonTimeout time.Duration `env:"HOUSTON_TIMEOUT" default:"5s"`

	// Local/dev bootstrap
	SeedFile string `env:"SEED_FILE"`

	// Application
	LogLevel  string `env:"LOG_LEVEL" validate:"oneof=debug info warn error" default:"info"`
	LogFormat string `env:"LOG_FORMAT" validate:"oneof=text json" default:"text"`
}

// Provider mirrors pkg/config's Provider interface.
type Provider interface {
	Load() (*Config, error)
	Validate(*Config) error
	LoadFromEnv() (*Config, error)
}

// EnvLoader allows environment variables to be faked in tests.
type EnvLoader interface {
	Getenv(key string) string
	LookupEnv(key string) (string, bool)
}

// OSEnvLoader implements EnvLoader using the os package.
type OSEnvLoader struct{}

func (o *OSEnvLoader) Getenv(key string) string { return os.Getenv(key) }

func (o *OSEnvLoader) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }

// Loader implements Provider over an EnvLoader.
type Loader struct {
	envLoader EnvLoader
}

// NewLoader constructs a Loader reading from the real process environment.
func NewLoader() Provider {
	return &Loader{envLoader: &OSEnvLoader{}}
}

// NewLoaderWithEnv constructs a Loader over a custom EnvLoader, for tests.
func NewLoaderWithEnv(envLoader EnvLoader) Provider {
	return &Loader{envLoader: envLoader}
}

func (l *Loader) Load() (*Config, error) { return l.LoadFromEnv() }

func (l *Loader) LoadFromEnv() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = l.getEnvWithDefault("LISTEN_ADDR", ":8080")
	cfg.MaxActiveJobs = l.getInt64WithDefault("MAX_ACTIVE_K8S_JOBS", 10)
	cfg.EnableCascade = l.getBoolWithDefault("ENABLE_CASCADE", true)

	cfg.K8SAPIURL = l.envLoader.Getenv("K8S_API_URL")
	cfg.K8SToken = l.envLoader.Getenv("K8S_TOKEN")
	cfg.K8SCACert = l.envLoader.Getenv("K8S_CACERT")
	cfg.RootCert = l.envLoader.Getenv("ROOT_CERT")
	cfg.ProcessBatchTestImage = l.envLoader.Getenv("PROCESS_BATCH_TEST_IMAGE")
	cfg.WatchK8S = l.getBoolWithDefault("WATCH_K8S", false)
	cfg.WatchNamespace = l.getEnvWithDefault("WATCH_K8S_NAMESPACE", "default")
	cfg.WatchTimeout = l.getDurationWithDefault("WATCH_K8S_TIMEOUT", 10*time.Minute)
	cfg.WatchReqTimeout = l.getDurationWithDefault("WATCH_K8S_REQUEST_TIMEOUT", 0)

	cfg.HoustonURL = l.envLoader.Getenv("HOUSTON_URL")
	cfg.HoustonToken = l.envLoader.Getenv("HOUSTON_TOKEN")
	cfg.HoustonTimeout = l.getDurationWithDefault("HOUSTON_TIMEOUT", 5*time.Second)

	cfg.SeedFile = l.envLoader.Getenv("SEED_FILE")

	cfg.LogLevel = l.getEnvWithDefault("LOG_LEVEL", "info")
	cfg.LogFormat = l.getEnvWithDefault("LOG_FORMAT", "text")

	if err := l.Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (l *Loader) Validate(cfg *Config) error {
	var errs []string

	if cfg.MaxActiveJobs < 1 {
		errs = append(errs, "MAX_ACTIVE_K8S_JOBS must be at least 1")
	}
	if err := l.validateOneOf(cfg.LogLevel, "debug", "info", "warn", "error"); err != nil {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL is invalid: %v", err))
	}
	if err := l.validateOneOf(cfg.LogFormat, "text", "json"); err != nil {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT is invalid: %v", err))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ValidationError aggregates every configuration problem found by Validate.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

func (l *Loader) validateOneOf(value string, valid ...string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(valid, ", "))
}

func (l *Loader) getEnvWithDefault(key, defaultValue string) string {
	if v := l.envLoader.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func (l *Loader) getBoolWithDefault(key string, defaultValue bool) bool {
	v := l.envLoader.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func (l *Loader) getInt64WithDefault(key string, defaultValue int64) int64 {
	v := l.envLoader.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func (l *Loader) getDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	v := l.envLoader.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
