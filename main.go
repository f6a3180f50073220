package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tphakala/floranet-go/cmd"
	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/logger"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildDate=..."
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	settings := &conf.Settings{Version: version, BuildDate: buildDate}

	rootCmd := cmd.RootCommand(settings)
	err := rootCmd.ExecuteContext(context.Background())

	_ = logger.Global().Flush()
	_ = logger.Global().Close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
