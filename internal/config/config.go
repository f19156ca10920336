// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret                     string  `mapstructure:"JWT_SECRET"`
	SessionCookieName             string  `mapstructure:"SESSION_COOKIE_NAME"`
	SessionTTLHours               int     `mapstructure:"SESSION_TTL_HOURS"`
	LoginURL                      string  `mapstructure:"LOGIN_URL"`
	Port                          string  `mapstructure:"PORT"`
	DBDriver                      string  `mapstructure:"DB_DRIVER"`
	DBHost                        string  `mapstructure:"DB_HOST"`
	DBPort                        string  `mapstructure:"DB_PORT"`
	DBUser                        string  `mapstructure:"DB_USER"`
	DBPassword                    string  `mapstructure:"DB_PASSWORD"`
	DBName                        string  `mapstructure:"DB_NAME"`
	DBSSLMode                     string  `mapstructure:"DB_SSLMODE"`
	DBSQLitePath                  string  `mapstructure:"DB_SQLITE_PATH"`
	DBSchemaMode                  string  `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool    `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int     `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int     `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int     `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	RedisURL                      string  `mapstructure:"REDIS_URL"`
	PageCacheTTLSeconds           int     `mapstructure:"PAGE_CACHE_TTL_SECONDS"`
	PageCacheSize                 int     `mapstructure:"PAGE_CACHE_SIZE"`
	PostsPerPage                  int     `mapstructure:"POSTS_PER_PAGE"`
	ImageStorage                  string  `mapstructure:"IMAGE_STORAGE"`
	ImageUploadDir                string  `mapstructure:"IMAGE_UPLOAD_DIR"`
	ImageMaxUploadSizeMB          int     `mapstructure:"IMAGE_MAX_UPLOAD_SIZE_MB"`
	MediaURL                      string  `mapstructure:"MEDIA_URL"`
	MinIOEndpoint                 string  `mapstructure:"MINIO_ENDPOINT"`
	MinIOAccessKey                string  `mapstructure:"MINIO_ACCESS_KEY"`
	MinIOSecretKey                string  `mapstructure:"MINIO_SECRET_KEY"`
	MinIOBucket                   string  `mapstructure:"MINIO_BUCKET"`
	MinIOUseSSL                   bool    `mapstructure:"MINIO_USE_SSL"`
	NATSURL                       string  `mapstructure:"NATS_URL"`
	TracingEnabled                bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter               string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint                  string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio           float64 `mapstructure:"TRACING_SAMPLER_RATIO"`
	RateLimitPerMinute            int     `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	AllowedOrigins                string  `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags                  string  `mapstructure:"FEATURE_FLAGS"`
	DevAdminUsername              string  `mapstructure:"DEV_ADMIN_USERNAME"`
	DevAdminPassword              string  `mapstructure:"DEV_ADMIN_PASSWORD"`
	Env                           string  `mapstructure:"APP_ENV"`
}

const defaultJWTSecret = "your-secret-key-change-in-production"

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional; env vars and defaults are enough to boot.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8000")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("SESSION_COOKIE_NAME", "sessionid")
	viper.SetDefault("SESSION_TTL_HOURS", 24*14)
	viper.SetDefault("LOGIN_URL", "/auth/login/")
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "yatube")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SQLITE_PATH", "yatube.db")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("PAGE_CACHE_TTL_SECONDS", 20)
	viper.SetDefault("PAGE_CACHE_SIZE", 512)
	viper.SetDefault("POSTS_PER_PAGE", 10)
	viper.SetDefault("IMAGE_STORAGE", "local")
	viper.SetDefault("IMAGE_UPLOAD_DIR", "media")
	viper.SetDefault("IMAGE_MAX_UPLOAD_SIZE_MB", 5)
	viper.SetDefault("MEDIA_URL", "/media/")
	viper.SetDefault("MINIO_BUCKET", "yatube-media")
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)
	viper.SetDefault("RATE_LIMIT_PER_MINUTE", 300)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:8000,http://127.0.0.1:8000")
	viper.SetDefault("FEATURE_FLAGS", "")
	viper.SetDefault("DEV_ADMIN_USERNAME", "admin")
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.ImageStorage = strings.ToLower(strings.TrimSpace(c.ImageStorage))
	if !strings.HasSuffix(c.MediaURL, "/") {
		c.MediaURL += "/"
	}
}

// IsProduction reports whether the config describes a production deployment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// PageCacheTTL returns the index page cache lifetime.
func (c *Config) PageCacheTTL() time.Duration {
	return time.Duration(c.PageCacheTTLSeconds) * time.Second
}

// SessionTTL returns how long an issued session stays valid.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLHours) * time.Hour
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.SessionTTLHours <= 0 {
		return errors.New("SESSION_TTL_HOURS must be positive")
	}
	if c.PostsPerPage <= 0 {
		return errors.New("POSTS_PER_PAGE must be positive")
	}
	if c.ImageMaxUploadSizeMB <= 0 {
		return errors.New("IMAGE_MAX_UPLOAD_SIZE_MB must be positive")
	}
	if c.PageCacheTTLSeconds < 0 {
		return errors.New("PAGE_CACHE_TTL_SECONDS must not be negative")
	}

	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.ImageStorage {
	case "local":
	case "minio":
		if c.MinIOEndpoint == "" || c.MinIOBucket == "" {
			return errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required when IMAGE_STORAGE=minio")
		}
	default:
		return fmt.Errorf("unsupported IMAGE_STORAGE %q", c.ImageStorage)
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver == "sqlite" {
			return errors.New("DB_DRIVER=sqlite is not supported in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable SSL in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
