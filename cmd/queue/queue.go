package queue

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/floranet-go/internal/conf"
	"github.com/tphakala/floranet-go/internal/datastore"
	"github.com/tphakala/floranet-go/internal/datastore/entities"
	"github.com/tphakala/floranet-go/internal/datastore/repository"
	"github.com/tphakala/floranet-go/internal/logger"
)

// Command creates the command that lists observations awaiting review.
func Command(settings *conf.Settings) *cobra.Command {
	var (
		status      string
		limit       int
		offset      int
		flaggedOnly bool
		asJSON      bool
	)

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List observations in the moderation queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []entities.ModerationStatus
			for part := range strings.SplitSeq(status, ",") {
				s := entities.ModerationStatus(strings.ToLower(strings.TrimSpace(part)))
				if !s.Valid() {
					return fmt.Errorf("unknown status %q", part)
				}
				statuses = append(statuses, s)
			}

			var filters repository.ObservationFilters
			if flaggedOnly {
				filters.AutoFlagged = &flaggedOnly
			}

			db, err := datastore.Open(settings, logger.Global().Module("datastore"))
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := repository.New(db.DB()).Observations.ListByStatus(cmd.Context(), statuses, limit, offset, filters)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}
			return Print(cmd.OutOrStdout(), rows)
		},
	}

	cmd.Flags().StringVar(&status, "status", string(entities.StatusPending), "Comma separated statuses to list")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of rows")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(&flaggedOnly, "flagged", false, "Only auto-flagged observations")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rows as JSON")

	return cmd
}

// Print writes queue rows as a table.
func Print(out io.Writer, rows []repository.ObservationSummary) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "Queue is empty.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tCREATED\tSTATUS\tFLAGGED\tSPECIES\tCONFIDENCE\tLOCATION\n")
	for i := range rows {
		r := &rows[i]
		name, confidence := "-", "-"
		if r.PrimaryName != nil {
			name = *r.PrimaryName
		}
		if r.PrimaryConfidence != nil {
			confidence = fmt.Sprintf("%.1f%%", *r.PrimaryConfidence*100)
		}
		flagged := ""
		if r.AutoFlagged {
			flagged = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Status, flagged, name, confidence, r.LocationName)
	}
	return w.Flush()
}
