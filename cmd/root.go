package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/floranet-go/cmd/classify"
	"github.com/tphakala/floranet-go/cmd/config"
	"github.com/tphakala/floranet-go/cmd/hashpassword"
	"github.com/tphakala/floranet-go/cmd/notify"
	"github.com/tphakala/floranet-go/cmd/queue"
	"github.com/tphakala/floranet-go/cmd/serve"
	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/logger"
)

// RootCommand creates and returns the root command. settings is filled from
// the config file before any subcommand runs; Version and BuildDate are kept.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "floranet",
		Short:         "FloraNet-Go plant observation service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config file (default: search standard locations)")
	if err := setupFlags(rootCmd); err != nil {
		panic(err)
	}

	hashCmd := hashpassword.Command()
	rootCmd.AddCommand(
		serve.Command(settings),
		classify.Command(settings),
		queue.Command(settings),
		config.Command(settings),
		notify.Command(settings),
		hashCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// Hashing a password needs no configuration
		if cmd.Name() == hashCmd.Name() {
			return nil
		}
		return initialize(configFile, settings)
	}

	return rootCmd
}

// initialize loads settings and installs the configured logger.
func initialize(configFile string, settings *conf.Settings) error {
	loaded, err := conf.Load(configFile)
	if err != nil {
		return err
	}

	version, buildDate := settings.Version, settings.BuildDate
	*settings = *loaded
	settings.Version, settings.BuildDate = version, buildDate

	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	cl, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(cl)
	return nil
}

// setupFlags defines flags that are global to the command line interface.
func setupFlags(rootCmd *cobra.Command) error {
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
