package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joescharf/reviewctl/internal/models"
	"github.com/joescharf/reviewctl/internal/output"
)

var statsPage int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize findings and progress for a page of reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return statsRun(cmd.Context(), statsPage)
	},
}

func init() {
	statsCmd.Flags().IntVarP(&statsPage, "page", "p", 1, "Page number")
	rootCmd.AddCommand(statsCmd)
}

func statsRun(ctx context.Context, page int) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	if !s.FetchReviews(ctx, page) {
		return actionError(s)
	}

	snap := s.Snapshot()
	st := snap.Stats()

	fmt.Fprintf(ui.Out, "Page %d of %d (%d reviews on page, %d total)\n\n",
		snap.CurrentPage, max(snap.TotalPages(), 1), len(snap.Reviews), snap.Total)
	fmt.Fprintf(ui.Out, "  Critical issues:  %s\n", output.CountColor(st.CriticalCount, string(models.SeverityCritical)))
	fmt.Fprintf(ui.Out, "  High issues:      %s\n", output.CountColor(st.HighCount, string(models.SeverityHigh)))
	fmt.Fprintf(ui.Out, "  Completed:        %d\n", st.CompletedCount)
	fmt.Fprintf(ui.Out, "  In progress:      %d\n", st.PendingCount)
	return nil
}
