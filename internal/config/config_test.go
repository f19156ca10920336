package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                  "development",
		Port:                 "8000",
		JWTSecret:            "secure-secret-at-least-32-chars-long",
		SessionTTLHours:      24,
		DBDriver:             "postgres",
		DBPassword:           "secure-password",
		DBSSLMode:            "require",
		PostsPerPage:         10,
		ImageStorage:         "local",
		ImageMaxUploadSizeMB: 5,
		PageCacheTTLSeconds:  20,
	}
}

func TestConfig_ValidateSSLMode(t *testing.T) {
	tests := []struct {
		name        string
		env         string
		sslMode     string
		expectError bool
	}{
		{"Production with empty SSL mode", "production", "", true},
		{"Production with disable SSL mode", "production", "disable", true},
		{"Production with require SSL mode", "production", "require", false},
		{"Prod with verify-full SSL mode", "prod", "verify-full", false},
		{"Development with disable SSL mode", "development", "disable", false},
		{"Test with empty SSL mode", "test", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			c.Env = tt.env
			c.DBSSLMode = tt.sslMode

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing port", func(c *Config) { c.Port = "" }},
		{"missing secret", func(c *Config) { c.JWTSecret = "" }},
		{"zero page size", func(c *Config) { c.PostsPerPage = 0 }},
		{"negative cache ttl", func(c *Config) { c.PageCacheTTLSeconds = -1 }},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }},
		{"unknown storage", func(c *Config) { c.ImageStorage = "ftp" }},
		{"minio without endpoint", func(c *Config) { c.ImageStorage = "minio"; c.MinIOBucket = "b" }},
		{"sqlite in production", func(c *Config) { c.Env = "production"; c.DBDriver = "sqlite" }},
		{"default secret in production", func(c *Config) { c.Env = "production"; c.JWTSecret = defaultJWTSecret }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}

	assert.NoError(t, validConfig().Validate())
}

func TestConfig_Durations(t *testing.T) {
	c := validConfig()
	assert.Equal(t, 20*time.Second, c.PageCacheTTL())
	assert.Equal(t, 24*time.Hour, c.SessionTTL())
}

func TestLoadConfig_Defaults(t *testing.T) {
	defer os.Unsetenv("APP_ENV")
	defer os.Unsetenv("DB_SSLMODE")
	defer os.Unsetenv("DB_DRIVER")
	defer viper.Reset()

	os.Setenv("APP_ENV", "test")
	os.Setenv("DB_SSLMODE", "  DISABLE  ")
	os.Setenv("DB_DRIVER", "SQLite")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "disable", c.DBSSLMode)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, 10, c.PostsPerPage)
	assert.Equal(t, "/auth/login/", c.LoginURL)
	assert.Equal(t, "/media/", c.MediaURL)
}
