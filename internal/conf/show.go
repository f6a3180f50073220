package conf

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

// RedactedYAML renders the effective settings as YAML with secrets masked.
func (s *Settings) RedactedYAML() ([]byte, error) {
	masked := *s
	if masked.Database.MySQL.Password != "" {
		masked.Database.MySQL.Password = redacted
	}
	if masked.MQTT.Password != "" {
		masked.MQTT.Password = redacted
	}
	if masked.Security.Admin.PasswordHash != "" {
		masked.Security.Admin.PasswordHash = redacted
	}
	if masked.Sentry.DSN != "" {
		masked.Sentry.DSN = redacted
	}
	if len(masked.Notification.URLs) > 0 {
		urls := make([]string, len(masked.Notification.URLs))
		for i := range urls {
			urls[i] = redacted
		}
		masked.Notification.URLs = urls
	}

	data, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("error marshaling settings to YAML: %w", err)
	}
	return data, nil
}
