package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Log       LogConfig       `mapstructure:"log" validate:"required"`
	Registry  RegistryConfig  `mapstructure:"registry" validate:"required"`
	Store     StoreConfig     `mapstructure:"store" validate:"required"`
	Queue     QueueConfig     `mapstructure:"queue" validate:"required"`
	Fetch     FetchConfig     `mapstructure:"fetch" validate:"required"`
	Thumbnail ThumbnailConfig `mapstructure:"thumbnail" validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
}

// RegistryConfig controls the in-memory handle registry.
type RegistryConfig struct {
	// MaxEntries is the advisory capacity; unreferenced records beyond it are evicted.
	MaxEntries int `mapstructure:"max_entries" validate:"gte=0"`

	// LazyRevoke keeps unreferenced records until swept or evicted.
	LazyRevoke bool `mapstructure:"lazy_revoke"`
}

// StoreConfig selects and configures the durable image store.
type StoreConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`

	// Path is the SQLite database file, used when Driver is sqlite.
	Path string `mapstructure:"path" validate:"required_if=Driver sqlite"`

	// URL is the PostgreSQL connection string, used when Driver is postgres.
	URL string `mapstructure:"url" validate:"required_if=Driver postgres,omitempty,url"`
}

// QueueConfig contains request coordinator settings.
type QueueConfig struct {
	Concurrency int `mapstructure:"concurrency" validate:"required,gt=0,lte=64"`
}

// FetchConfig contains settings for downloading remote image bytes.
type FetchConfig struct {
	// BaseURL is joined with bare object names; absolute URLs bypass it.
	BaseURL  string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"required,gt=0"`
	MaxBytes int64         `mapstructure:"max_bytes" validate:"required,gt=0"`
}

// ThumbnailConfig controls derived payload generation.
type ThumbnailConfig struct {
	MaxWidth  int `mapstructure:"max_width" validate:"required,gt=0"`
	MaxHeight int `mapstructure:"max_height" validate:"required,gt=0"`
	Quality   int `mapstructure:"quality" validate:"required,gte=1,lte=100"`
}

// LLMConfig contains image generation settings. Generation is disabled
// when GeminiAPIKey is empty.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name" validate:"required_with=GeminiAPIKey"`

	// MaxRetries bounds retries of transient generation failures.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=10"`

	// RetryDelaySeconds is the base of the exponential retry backoff.
	RetryDelaySeconds int `mapstructure:"retry_delay_seconds" validate:"gte=0,lte=60"`
}
