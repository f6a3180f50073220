// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Default values shared with components that are constructed without settings.
const (
	DefaultThreshold     = 0.6
	DefaultTopK          = 5
	MaxTopK              = 20
	DefaultWorkerTimeout = 30 * time.Second
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "floranet")

	viper.SetDefault("worker.command", "python3")
	viper.SetDefault("worker.args", []string{"classifier/worker.py"})
	viper.SetDefault("worker.env", []string{})
	viper.SetDefault("worker.timeout", DefaultWorkerTimeout)
	viper.SetDefault("worker.stoptimeout", 5*time.Second)
	viper.SetDefault("worker.topk", DefaultTopK)
	viper.SetDefault("worker.warmup", true)

	viper.SetDefault("inference.threshold", DefaultThreshold)

	viper.SetDefault("database.type", "sqlite")
	viper.SetDefault("database.slowquerythreshold", 200*time.Millisecond)
	viper.SetDefault("database.sqlite.path", "floranet.db")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")
	viper.SetDefault("database.mysql.username", "floranet")
	viper.SetDefault("database.mysql.password", "")
	viper.SetDefault("database.mysql.database", "floranet")

	viper.SetDefault("storage.uploads", "data/uploads")
	viper.SetDefault("storage.archive", "data/species")
	viper.SetDefault("storage.publicbase", "/media")
	viper.SetDefault("storage.maxuploadsize", 20<<20)

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.port", "8080")
	viper.SetDefault("webserver.ratelimit", 1.0)
	viper.SetDefault("webserver.burst", 5)

	viper.SetDefault("security.admin.username", "admin")
	viper.SetDefault("security.admin.passwordhash", "")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "floranet")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.timeout", 10*time.Second)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.samplerate", 1.0)

	viper.SetDefault("logging.default_level", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", "logs/floranet.log")
	viper.SetDefault("logging.file_output.level", "debug")
}
