package serve

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/floranet-go/internal/app"
	"github.com/tphakala/floranet-go/internal/conf"
)

// Command creates the command that runs the FloraNet-Go service.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the observation API",
		Long:  "Start the HTTP API, the classifier supervisor and event delivery, and run until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(settings)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}

	if err := setupFlags(cmd); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags binds serve flags to their settings keys; flags given on the
// command line take precedence over the config file.
func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("port", "", "Port of the HTTP API")
	cmd.Flags().Float64("threshold", 0, "Confidence below which observations are flagged for review")
	cmd.Flags().Bool("telemetry", false, "Enable Prometheus telemetry endpoint")
	cmd.Flags().String("listen", "", "Listen address and port of telemetry endpoint")
	cmd.Flags().Bool("warmup", true, "Start the classifier before the first request")

	bindings := map[string]string{
		"port":      "webserver.port",
		"threshold": "inference.threshold",
		"telemetry": "telemetry.enabled",
		"listen":    "telemetry.listen",
		"warmup":    "worker.warmup",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}
