// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"unicode"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with privacy protection
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() || !shouldReport(ee.Category) {
		return
	}

	scrubbedMessage := scrubMessageForPrivacy(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	component := ee.GetComponent()

	sentry.WithScope(func(scope *sentry.Scope) {
		errorTitle := generateErrorTitle(ee, component)

		scope.SetTag("error_title", errorTitle)
		scope.SetTag("component", component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))

		for key, value := range ee.GetContext() {
			scrubbedValue := value
			if strValue, ok := value.(string); ok {
				scrubbedValue = scrubMessageForPrivacy(strValue)
			}
			scope.SetContext(key, map[string]any{"value": scrubbedValue})
		}

		level := getErrorLevel(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{errorTitle, component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = scrubbedMessage
		event.Level = level
		event.Exception = []sentry.Exception{{
			Type:  errorTitle,
			Value: scrubbedMessage,
		}}

		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// shouldReport filters out categories that describe caller mistakes rather than faults
func shouldReport(category ErrorCategory) bool {
	switch category {
	case CategoryValidation, CategoryNotFound, CategoryConflict, CategoryCancellation:
		return false
	default:
		return true
	}
}

// generateErrorTitle creates a meaningful error title for Sentry
func generateErrorTitle(ee *EnhancedError, component string) string {
	var titleParts []string

	if component != "" && component != ComponentUnknown {
		titleParts = append(titleParts, titleCase(component))
	}

	if categoryTitle := formatCategoryForTitle(ee.Category); categoryTitle != "" {
		titleParts = append(titleParts, categoryTitle)
	}

	if operation, ok := ee.GetContext()["operation"].(string); ok && operation != "" {
		titleParts = append(titleParts, formatOperationForTitle(operation))
	}

	if len(titleParts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}

	return strings.Join(titleParts, " ")
}

// formatCategoryForTitle converts error categories to human-readable titles
func formatCategoryForTitle(category ErrorCategory) string {
	switch category {
	case CategoryWorkerUnavailable:
		return "Worker Unavailable"
	case CategoryDatabase:
		return "Database Error"
	case CategoryFileIO:
		return "File I/O Error"
	case CategoryNetwork:
		return "Network Error"
	case CategoryConfiguration:
		return "Configuration Error"
	case CategoryMQTTConnection, CategoryMQTTPublish:
		return "MQTT Error"
	case CategoryTimeout:
		return "Timeout"
	default:
		return string(category)
	}
}

// formatOperationForTitle converts operation context to human-readable format
func formatOperationForTitle(operation string) string {
	words := strings.Fields(strings.ReplaceAll(operation, "_", " "))
	for i, word := range words {
		words[i] = titleCase(word)
	}
	return strings.Join(words, " ")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// getErrorLevel returns appropriate Sentry level based on category
func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryDatabase, CategoryConfiguration:
		return sentry.LevelError
	case CategoryWorkerUnavailable, CategoryTimeout:
		return sentry.LevelError
	case CategoryNetwork, CategoryMQTTConnection, CategoryMQTTPublish:
		return sentry.LevelWarning // Often transient
	case CategoryFileIO:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var globalTelemetryReporter atomic.Pointer[TelemetryReporter]

// SetTelemetryReporter sets the global telemetry reporter. Passing nil disables reporting.
func SetTelemetryReporter(reporter TelemetryReporter) {
	if reporter == nil {
		globalTelemetryReporter.Store(nil)
		hasActiveReporting.Store(false)
		return
	}
	globalTelemetryReporter.Store(&reporter)
	hasActiveReporting.Store(reporter.IsEnabled())
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	if p := globalTelemetryReporter.Load(); p != nil {
		return *p
	}
	return nil
}

func reportToTelemetry(ee *EnhancedError) {
	if reporter := GetTelemetryReporter(); reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

// PrivacyScrubber is a function type for privacy scrubbing
type PrivacyScrubber func(string) string

var globalPrivacyScrubber atomic.Pointer[PrivacyScrubber]

// SetPrivacyScrubber sets the global privacy scrubbing function
func SetPrivacyScrubber(scrubber PrivacyScrubber) {
	globalPrivacyScrubber.Store(&scrubber)
}

// ScrubMessage applies the installed privacy scrubber, or the built-in one
// when none is set.
func ScrubMessage(message string) string {
	return scrubMessageForPrivacy(message)
}

func scrubMessageForPrivacy(message string) string {
	if p := globalPrivacyScrubber.Load(); p != nil && *p != nil {
		return (*p)(message)
	}
	return basicScrub(message)
}

var (
	urlQueryRegex  = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	credentialURL  = regexp.MustCompile(`://[^/@\s]+@`)
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)api[_-]?key[=:]\S+`),
		regexp.MustCompile(`(?i)token[=:]\S+`),
		regexp.MustCompile(`(?i)password[=:]\S+`),
		regexp.MustCompile(`[0-9a-fA-F]{32,}`),
	}
	coordinatePattern = regexp.MustCompile(`-?\d{1,3}\.\d{4,}`)
)

// basicScrub removes URL queries, credentials and precise coordinates from a message
func basicScrub(message string) string {
	scrubbed := urlQueryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	scrubbed = credentialURL.ReplaceAllString(scrubbed, "://[REDACTED]@")
	for _, re := range secretPatterns {
		scrubbed = re.ReplaceAllString(scrubbed, "[REDACTED]")
	}
	return coordinatePattern.ReplaceAllString(scrubbed, "[COORD]")
}
