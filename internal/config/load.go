package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for every environment variable read by Load.
const EnvPrefix = "ARTCACHE"

// Load reads configuration from environment variables and, if present, an
// artcache.yaml file in the working directory.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile behaves like Load but reads the given config file instead of
// searching for artcache.yaml. An empty path falls back to the search.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("artcache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers a default for every key. AutomaticEnv only resolves
// keys viper already knows about, so optional keys get empty defaults too.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")

	v.SetDefault("registry.max_entries", 50)
	v.SetDefault("registry.lazy_revoke", false)

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "artcache.db")
	v.SetDefault("store.url", "")

	v.SetDefault("queue.concurrency", 3)

	v.SetDefault("fetch.base_url", "")
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.max_bytes", int64(50<<20))

	v.SetDefault("thumbnail.max_width", 70)
	v.SetDefault("thumbnail.max_height", 70)
	v.SetDefault("thumbnail.quality", 50)

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "imagen-3.0-generate-002")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
}
