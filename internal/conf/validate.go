// validate.go: settings validation
package conf

import (
	"fmt"
	"math"
	"strings"

	"github.com/tphakala/floranet-go/internal/errors"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ErrorCategory lets the errors package classify settings failures.
func (ve ValidationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryConfiguration
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) []string{
		validateWorkerSettings,
		validateInferenceSettings,
		validateDatabaseSettings,
		validateStorageSettings,
		validateWebServerSettings,
		validateIntegrationSettings,
	}
	for _, validate := range validators {
		ve.Errors = append(ve.Errors, validate(settings)...)
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWorkerSettings(s *Settings) []string {
	var errs []string
	if strings.TrimSpace(s.Worker.Command) == "" {
		errs = append(errs, "worker.command must be set")
	}
	if s.Worker.Timeout <= 0 {
		errs = append(errs, "worker.timeout must be positive")
	}
	if s.Worker.TopK < 1 || s.Worker.TopK > MaxTopK {
		errs = append(errs, fmt.Sprintf("worker.topk must be between 1 and %d", MaxTopK))
	}
	return errs
}

// validateInferenceSettings clamps the threshold into [0,1] instead of failing;
// only a non-finite value is rejected.
func validateInferenceSettings(s *Settings) []string {
	t := s.Inference.Threshold
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return []string{"inference.threshold must be a finite number"}
	}
	s.Inference.Threshold = ClampUnit(t)
	return nil
}

func validateDatabaseSettings(s *Settings) []string {
	switch s.Database.Type {
	case "sqlite":
		if s.Database.SQLite.Path == "" {
			return []string{"database.sqlite.path must be set"}
		}
	case "mysql":
		var errs []string
		if s.Database.MySQL.Host == "" {
			errs = append(errs, "database.mysql.host must be set")
		}
		if s.Database.MySQL.Database == "" {
			errs = append(errs, "database.mysql.database must be set")
		}
		return errs
	default:
		return []string{fmt.Sprintf("database.type must be sqlite or mysql, got %q", s.Database.Type)}
	}
	return nil
}

func validateStorageSettings(s *Settings) []string {
	var errs []string
	if s.Storage.Uploads == "" {
		errs = append(errs, "storage.uploads must be set")
	}
	if s.Storage.Archive == "" {
		errs = append(errs, "storage.archive must be set")
	}
	if s.Storage.MaxUploadSize <= 0 {
		errs = append(errs, "storage.maxuploadsize must be positive")
	}
	return errs
}

func validateWebServerSettings(s *Settings) []string {
	if !s.WebServer.Enabled {
		return nil
	}
	var errs []string
	if s.WebServer.Port == "" {
		errs = append(errs, "webserver.port must be set when the web server is enabled")
	}
	if s.WebServer.RateLimit <= 0 || s.WebServer.Burst < 1 {
		errs = append(errs, "webserver.ratelimit and webserver.burst must be positive")
	}
	return errs
}

func validateIntegrationSettings(s *Settings) []string {
	var errs []string
	if s.MQTT.Enabled && s.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker must be set when MQTT is enabled")
	}
	if s.Notification.Enabled && len(s.Notification.URLs) == 0 {
		errs = append(errs, "notification.urls must contain at least one URL when notifications are enabled")
	}
	if s.Sentry.Enabled && s.Sentry.DSN == "" {
		errs = append(errs, "sentry.dsn must be set when Sentry is enabled")
	}
	if s.Telemetry.Enabled && s.Telemetry.Listen == "" {
		errs = append(errs, "telemetry.listen must be set when telemetry is enabled")
	}
	return errs
}

// ClampUnit clamps v into [0,1]. Non-finite values become 0.
func ClampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v), math.IsInf(v, 0):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
