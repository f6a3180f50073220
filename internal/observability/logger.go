package observability

import "github.com/tphakala/floranet-go/internal/logger"

// log returns the module logger; resolved on use so it follows SetGlobal.
func log() logger.Logger {
	return logger.Global().Module("telemetry")
}
