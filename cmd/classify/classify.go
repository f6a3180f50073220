package classify

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/inference"
	"github.com/tphakala/floranet-go/internal/logger"
	"github.com/tphakala/floranet-go/internal/worker"
)

// Command creates the command that classifies a single image without
// storing anything.
func Command(settings *conf.Settings) *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "classify <image>",
		Short: "Classify an image and print the ranked candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("cannot read image: %w", err)
			}

			log := logger.Global().Module("classify")
			sup := worker.New(worker.ConfigFromSettings(&settings.Worker), worker.WithLogger(log))
			defer sup.Stop()

			gw := inference.NewGateway(sup, settings.Inference.Threshold, settings.Worker.TopK, log)
			res, err := gw.Classify(cmd.Context(), args[0], topK)
			if err != nil {
				return err
			}
			return Print(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().IntVarP(&topK, "topk", "k", 0, "Number of candidates to show (0 uses worker.topk)")
	return cmd
}

// Print writes a classification as a table.
func Print(out io.Writer, res *inference.Classification) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RANK\tSPECIES\tCONFIDENCE\n")
	for _, c := range res.Candidates {
		fmt.Fprintf(w, "%d\t%s\t%.1f%%\n", c.Rank, c.Name, c.Confidence*100)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if res.AutoFlagged {
		fmt.Fprintf(out, "\nBest confidence is below %.0f%%: this observation would be flagged for review.\n", res.Threshold*100)
	}
	return nil
}
