package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/events"
	"github.com/tphakala/floranet-go/internal/logger"
	"github.com/tphakala/floranet-go/internal/notification"
)

// Command returns a cobra command that sends a test alert to every configured
// notification URL.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		message    string
		species    string
		confidence float64
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a test review alert",
		Long: `Send a test alert through the configured notification URLs.

Examples:
  # Free-form message
  floranet notify --message="Hello from the greenhouse"

  # Render the same alert an auto-flagged observation would produce
  floranet notify --species="Rafflesia arnoldii" --confidence=0.42`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(settings.Notification.URLs) == 0 {
				return fmt.Errorf("no notification URLs configured")
			}
			n, err := notification.New(&settings.Notification, nil, logger.Global().Module("notification"))
			if err != nil {
				return err
			}

			if message == "" {
				message = notification.ReviewMessage(events.Event{
					Kind:           events.KindObservationIngested,
					ScientificName: species,
					Confidence:     confidence,
					AutoFlagged:    true,
				})
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := n.Notify(ctx, message); err != nil {
				return fmt.Errorf("failed to send notification: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Notification sent to %d service(s)\n", len(settings.Notification.URLs))
			return nil
		},
	}

	cmd.Flags().StringVar(&message, "message", "", "Message text; empty renders a review alert")
	cmd.Flags().StringVar(&species, "species", "Rafflesia arnoldii", "Species named in the rendered review alert")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.42, "Confidence shown in the rendered review alert")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Maximum time to wait for delivery")

	return cmd
}
