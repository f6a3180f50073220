// config.go: settings structure and loading
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/floranet-go/internal/errors"
	"github.com/tphakala/floranet-go/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// WorkerSettings configures the classifier subprocess.
type WorkerSettings struct {
	Command     string        // executable that runs the classifier
	Args        []string      // arguments passed to the classifier
	Env         []string      // extra KEY=VALUE environment for the classifier
	Timeout     time.Duration // bounded wait for one classification response
	StopTimeout time.Duration // grace period before the classifier is killed on stop
	TopK        int           // default number of candidates requested
	Warmup      bool          // spawn the classifier at startup instead of on first request
}

// InferenceSettings configures how classifier output is interpreted.
type InferenceSettings struct {
	Threshold float64 // observations whose best confidence is below this are auto-flagged
}

// DatabaseSettings selects and configures the relational store.
type DatabaseSettings struct {
	Type               string        // sqlite or mysql
	SlowQueryThreshold time.Duration // queries slower than this are logged as warnings
	SQLite             struct {
		Path string // path to sqlite database
	}
	MySQL struct {
		Host     string
		Port     string
		Username string
		Password string
		Database string
	}
}

// StorageSettings configures where photos live on disk.
type StorageSettings struct {
	Uploads       string // directory for incoming observation photos
	Archive       string // root of the per-species photo archive
	PublicBase    string // URL prefix under which stored files are served
	MaxUploadSize int64  // maximum accepted upload size in bytes
}

// WebServerSettings configures the HTTP API.
type WebServerSettings struct {
	Enabled   bool
	Port      string
	RateLimit float64 // sustained observation submissions per second per client
	Burst     int     // submission burst size per client
}

// SecuritySettings holds admin credentials for the moderation API.
type SecuritySettings struct {
	Admin struct {
		Username     string
		PasswordHash string // bcrypt hash of the admin password
	}
}

// MQTTSettings contains settings for MQTT event publishing.
type MQTTSettings struct {
	Enabled  bool   // true to enable MQTT
	Broker   string // MQTT (tcp://host:port)
	Topic    string // MQTT topic prefix
	Username string // MQTT username
	Password string // MQTT password
	Retain   bool   // retain published messages
}

// NotificationSettings configures review alerts sent through shoutrrr.
type NotificationSettings struct {
	Enabled bool
	URLs    []string      // shoutrrr service URLs
	Timeout time.Duration // per-send timeout
}

// TelemetrySettings contains settings for the Prometheus endpoint.
type TelemetrySettings struct {
	Enabled bool   // true to enable Prometheus compatible telemetry endpoint
	Listen  string // IP address and port to listen on
}

// SentrySettings configures optional error reporting.
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64
}

// Settings contains all configuration options for FloraNet-Go.
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	Main struct {
		Name string // name of this node, included in notifications and events
	}

	Worker       WorkerSettings
	Inference    InferenceSettings
	Database     DatabaseSettings
	Storage      StorageSettings
	WebServer    WebServerSettings
	Security     SecuritySettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Telemetry    TelemetrySettings
	Sentry       SentrySettings
	Logging      logger.LoggingConfig
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into Settings.
// An empty configFile searches the default config paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper(configFile string) error {
	viper.SetConfigType("yaml")
	setDefaultConfig()

	if err := bindEnvVars(); err != nil {
		return errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "bind-env").
			Build()
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return errors.New(fmt.Errorf("error reading config file %s: %w", configFile, err)).
				Category(errors.CategoryConfiguration).
				Build()
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back
func createDefaultConfig(dir string) error {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.New(fmt.Errorf("error creating directories for config file: %w", err)).
			Category(errors.CategoryFileIO).
			Build()
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.New(fmt.Errorf("error writing default config file: %w", err)).
			Category(errors.CategoryFileIO).
			Build()
	}

	fmt.Println("Created default config file at:", configPath)
	return viper.ReadInConfig()
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// If one of them already holds a config file, only that directory is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		configPaths = []string{
			".",
			filepath.Join(homeDir, "AppData", "Roaming", "floranet"),
		}
	default:
		configPaths = []string{
			".",
			filepath.Join(homeDir, ".config", "floranet"),
			"/etc/floranet",
		}
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}
