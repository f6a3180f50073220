// Package api provides the HTTP server infrastructure for FloraNet-Go.
// This package contains the main server implementation while the JSON API
// endpoints are organized in the v2 subpackage.
package api

import (
	"fmt"
	"time"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = int64(20 << 20)
)

// Config holds the HTTP server configuration.
type Config struct {
	// Server binding
	Host string // Host to bind to (empty for all interfaces)
	Port string // Port to listen on

	AllowedOrigins []string // CORS allowed origins

	// Timeouts
	ReadTimeout     time.Duration // Maximum duration for reading request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum time to wait for next request
	ShutdownTimeout time.Duration // Maximum time to wait for graceful shutdown

	// Limits
	BodyLimit int64   // Maximum request body size in bytes
	RateLimit float64 // sustained submissions per second per client
	Burst     int     // submission burst per client

	// Admin credentials for the moderation routes
	AdminUser         string
	AdminPasswordHash string

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            "8080",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       DefaultBodyLimit,
		RateLimit:       1,
		Burst:           5,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()

	cfg.Port = settings.WebServer.Port
	if settings.WebServer.RateLimit > 0 {
		cfg.RateLimit = settings.WebServer.RateLimit
	}
	if settings.WebServer.Burst > 0 {
		cfg.Burst = settings.WebServer.Burst
	}
	if settings.Storage.MaxUploadSize > 0 {
		// Room for the form fields around the image part
		cfg.BodyLimit = settings.Storage.MaxUploadSize + 64<<10
	}
	cfg.AdminUser = settings.Security.Admin.Username
	cfg.AdminPasswordHash = settings.Security.Admin.PasswordHash
	cfg.Debug = settings.Debug

	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("write timeout must be positive")
	}
	if c.BodyLimit <= 0 {
		return fmt.Errorf("body limit must be positive")
	}
	return nil
}

// Address returns the full address string for the server to listen on.
func (c *Config) Address() string {
	if c.Host == "" {
		return ":" + c.Port
	}
	return c.Host + ":" + c.Port
}

// String returns a human-readable representation of the config.
func (c *Config) String() string {
	admin := "disabled"
	if c.AdminPasswordHash != "" {
		admin = "basic auth"
	}
	return fmt.Sprintf("Server Config: address=%s, admin=%s, debug=%v", c.Address(), admin, c.Debug)
}
