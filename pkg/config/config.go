// Package config loads service settings from defaults, an optional config.yaml
// and MANHUA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

type Config struct {
	// Server: listen port and execution environment
	Server ServerConfig `mapstructure:"server"`

	Log LogConfig `mapstructure:"log"`

	// Storage: durable medium mirroring the entity store
	Storage StorageConfig `mapstructure:"storage"`

	// Generator: image generation backend
	Generator GeneratorConfig `mapstructure:"generator"`

	// Remote: cloud copy of the backup envelope
	Remote RemoteConfig `mapstructure:"remote"`

	Restore RestoreConfig `mapstructure:"restore"`

	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StorageConfig struct {
	// Driver: file, sqlite, redis or memory
	Driver string `mapstructure:"driver"`

	// Path: directory for file, database file for sqlite
	Path string `mapstructure:"path"`

	Redis RedisConfig `mapstructure:"redis"`

	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type GeneratorConfig struct {
	// Provider: gemini or openai
	Provider  string        `mapstructure:"provider"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	QueueSize int           `mapstructure:"queue_size"`

	// PreviewTTL: how long a finished preview is reused; 0 re-draws every time
	PreviewTTL time.Duration `mapstructure:"preview_ttl"`

	// Compact: re-encode generated images as WebP before embedding
	Compact bool `mapstructure:"compact"`
}

type RemoteConfig struct {
	// Provider: none, s3 or drive
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
	S3       S3Config      `mapstructure:"s3"`
	Drive    DriveConfig   `mapstructure:"drive"`
}

type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type DriveConfig struct {
	// AccessToken: an OAuth token already granted the drive.file scope
	AccessToken string `mapstructure:"access_token"`
}

type RestoreConfig struct {
	PendingTTL time.Duration `mapstructure:"pending_ttl"`
}

type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Requests per second allowed on generation routes, per client IP
	Requests float64 `mapstructure:"requests"`
}

// Load reads configuration. A missing config.yaml is not an error.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("MANHUA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("generator.api_key", "MANHUA_GENERATOR_API_KEY", "GEMINI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("remote.s3.access_key_id", "MANHUA_REMOTE_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID")
	_ = v.BindEnv("remote.s3.secret_access_key", "MANHUA_REMOTE_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config.yaml: %w", err)
		}
		log.Debug("config file not found, using environment and defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")

	v.SetDefault("log.level", "info")

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.path", "data")
	v.SetDefault("storage.timeout", "5s")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.redis.prefix", "")

	v.SetDefault("generator.provider", "gemini")
	v.SetDefault("generator.model", "")
	v.SetDefault("generator.timeout", "2m")
	v.SetDefault("generator.queue_size", 16)
	v.SetDefault("generator.preview_ttl", "0s")
	v.SetDefault("generator.compact", false)

	v.SetDefault("remote.provider", "none")
	v.SetDefault("remote.timeout", "30s")
	v.SetDefault("remote.s3.region", "auto")

	v.SetDefault("restore.pending_ttl", "10m")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 2)
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "file", "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for the %s driver", c.Storage.Driver)
		}
	case "redis":
		if c.Storage.Redis.Addr == "" {
			return errors.New("storage.redis.addr is required for the redis driver")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid storage.driver %q", c.Storage.Driver)
	}

	switch c.Generator.Provider {
	case "gemini", "openai":
	default:
		return fmt.Errorf("invalid generator.provider %q", c.Generator.Provider)
	}
	if c.Generator.APIKey == "" {
		if c.Server.Env == "production" {
			return errors.New("generator.api_key cannot be empty in production")
		}
		log.Warn("no generator API key set, image generation will fail")
	}
	if c.Generator.QueueSize <= 0 {
		return fmt.Errorf("generator.queue_size must be positive, got %d", c.Generator.QueueSize)
	}

	switch c.Remote.Provider {
	case "", "none":
	case "s3":
		if c.Remote.S3.Bucket == "" {
			return errors.New("remote.s3.bucket is required for the s3 remote")
		}
	case "drive":
		if c.Remote.Drive.AccessToken == "" {
			return errors.New("remote.drive.access_token is required for the drive remote")
		}
	default:
		return fmt.Errorf("invalid remote.provider %q", c.Remote.Provider)
	}

	if c.Generator.PreviewTTL < 0 {
		return fmt.Errorf("generator.preview_ttl cannot be negative, got %s", c.Generator.PreviewTTL)
	}

	if c.Restore.PendingTTL <= 0 {
		return fmt.Errorf("restore.pending_ttl must be positive, got %s", c.Restore.PendingTTL)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}
	return nil
}
