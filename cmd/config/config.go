package config

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/floranet-go/internal/conf"
)

// Command creates the config command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(showCommand(settings))
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := settings.RedactedYAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
