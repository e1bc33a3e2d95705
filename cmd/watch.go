package cmd

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joescharf/reviewctl/internal/models"
	"github.com/joescharf/reviewctl/internal/output"
	"github.com/joescharf/reviewctl/internal/store"
)

var watchMaxAttempts int

var watchCmd = &cobra.Command{
	Use:   "watch <id>...",
	Short: "Follow the analysis status of one or more reviews",
	Long: `Poll the status of each review until it leaves pending/processing or
the attempt limit is reached. Each review is reported as soon as its poll
ends, followed by a summary table.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watchRun(cmd.Context(), args, watchMaxAttempts)
	},
}

func init() {
	watchCmd.Flags().IntVarP(&watchMaxAttempts, "max-attempts", "m", 0, "Maximum status checks per review (default: poll.max_attempts)")
	rootCmd.AddCommand(watchCmd)
}

func watchRun(ctx context.Context, ids []string, maxAttempts int) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	if maxAttempts <= 0 {
		maxAttempts = viper.GetInt("poll.max_attempts")
	}

	var mu sync.Mutex
	results := make([]store.PollResult, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			res, err := s.PollReviewStatus(gctx, id, maxAttempts)
			results[i] = res
			if res.Reason == store.PollFailed {
				return fmt.Errorf("%s: %w", id, err)
			}

			mu.Lock()
			defer mu.Unlock()
			if res.Review != nil {
				ui.Info("%s %s after %d checks", output.Cyan(id), output.StatusColor(string(res.Review.Status)), res.Attempts)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if msg := s.Snapshot().Error; msg != "" {
			return fmt.Errorf("%s: %w", msg, err)
		}
		return err
	}

	fmt.Fprintln(ui.Out)
	table := ui.Table([]string{"ID", "Status", "Checks", "Critical", "High", "Outcome"})
	for _, res := range results {
		status, critical, high := "-", 0, 0
		if res.Review != nil {
			status = string(res.Review.Status)
			critical = res.Review.CountSeverity(models.SeverityCritical)
			high = res.Review.CountSeverity(models.SeverityHigh)
		}
		_ = table.Append([]string{
			res.ID,
			output.StatusColor(status),
			fmt.Sprintf("%d", res.Attempts),
			output.CountColor(critical, string(models.SeverityCritical)),
			output.CountColor(high, string(models.SeverityHigh)),
			string(res.Reason),
		})
	}
	return table.Render()
}
