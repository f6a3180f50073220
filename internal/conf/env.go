// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		// Classifier worker
		{"worker.command", "FLORANET_WORKER_COMMAND", nil},
		{"worker.timeout", "FLORANET_WORKER_TIMEOUT", validateEnvDuration},
		{"worker.topk", "FLORANET_WORKER_TOPK", validateEnvTopK},
		{"inference.threshold", "FLORANET_THRESHOLD", validateEnvThreshold},

		// Database
		{"database.type", "FLORANET_DATABASE_TYPE", validateEnvDatabaseType},
		{"database.sqlite.path", "FLORANET_SQLITE_PATH", nil},
		{"database.mysql.host", "FLORANET_MYSQL_HOST", nil},
		{"database.mysql.port", "FLORANET_MYSQL_PORT", validateEnvPort},
		{"database.mysql.username", "FLORANET_MYSQL_USERNAME", nil},
		{"database.mysql.password", "FLORANET_MYSQL_PASSWORD", nil},
		{"database.mysql.database", "FLORANET_MYSQL_DATABASE", nil},

		// Storage and web server
		{"storage.uploads", "FLORANET_UPLOADS_DIR", nil},
		{"storage.archive", "FLORANET_ARCHIVE_DIR", nil},
		{"webserver.port", "FLORANET_PORT", validateEnvPort},
		{"security.admin.passwordhash", "FLORANET_ADMIN_PASSWORD_HASH", nil},

		// Integrations
		{"mqtt.enabled", "FLORANET_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "FLORANET_MQTT_BROKER", validateEnvURL},
		{"sentry.dsn", "FLORANET_SENTRY_DSN", validateEnvURL},
		{"debug", "FLORANET_DEBUG", validateEnvBool},
	}
}

// bindEnvVars sets up environment variable bindings with validation
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvThreshold(value string) error {
	threshold, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid threshold: %w", err)
	}
	if threshold < 0.0 || threshold > 1.0 {
		return fmt.Errorf("threshold must be between 0.0 and 1.0, got %g", threshold)
	}
	return nil
}

func validateEnvTopK(value string) error {
	k, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid topk: %w", err)
	}
	if k < 1 || k > MaxTopK {
		return fmt.Errorf("topk must be between 1 and %d, got %d", MaxTopK, k)
	}
	return nil
}

func validateEnvDatabaseType(value string) error {
	switch value {
	case "sqlite", "mysql":
		return nil
	default:
		return fmt.Errorf("must be one of: sqlite, mysql")
	}
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL must include scheme and host")
	}
	return nil
}
