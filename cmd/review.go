package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewctl/internal/models"
	"github.com/joescharf/reviewctl/internal/output"
	"github.com/joescharf/reviewctl/internal/store"
)

var (
	listPage int

	createTitle    string
	createLanguage string
	createCode     string
	createFile     string
	createRepo     string
	createBranch   string
	createWait     bool

	reanalyzeWait bool
)

// stdin is where `create --file -` reads from, replaceable in tests.
var stdin io.Reader = os.Stdin

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List code reviews",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRun(cmd.Context(), listPage)
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a code review with its security issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showRun(cmd.Context(), args[0])
	},
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit code or a repository for review",
	Long: `Submit code for review. The source is one of --code, --file (read from
disk, '-' for stdin) or --repo. With --wait the command follows the
analysis until it finishes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return createRun(cmd.Context())
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a code review",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return deleteRun(cmd.Context(), args[0])
	},
}

var reanalyzeCmd = &cobra.Command{
	Use:   "reanalyze <id>",
	Short: "Run the analysis of a review again",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return reanalyzeRun(cmd.Context(), args[0])
	},
}

func init() {
	listCmd.Flags().IntVarP(&listPage, "page", "p", 1, "Page number")

	createCmd.Flags().StringVar(&createTitle, "title", "", "Review title")
	createCmd.Flags().StringVarP(&createLanguage, "language", "l", "", "Source language (detected from --file when empty)")
	createCmd.Flags().StringVar(&createCode, "code", "", "Source code to review")
	createCmd.Flags().StringVarP(&createFile, "file", "f", "", "Read source code from file ('-' for stdin)")
	createCmd.Flags().StringVar(&createRepo, "repo", "", "Repository URL to review")
	createCmd.Flags().StringVarP(&createBranch, "branch", "b", "", "Repository branch")
	createCmd.Flags().BoolVarP(&createWait, "wait", "w", false, "Wait for the analysis to finish")
	createCmd.MarkFlagsMutuallyExclusive("code", "file")

	reanalyzeCmd.Flags().BoolVarP(&reanalyzeWait, "wait", "w", false, "Wait for the analysis to finish")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(reanalyzeCmd)
}

func listRun(ctx context.Context, page int) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	if !s.FetchReviews(ctx, page) {
		return actionError(s)
	}

	snap := s.Snapshot()
	if len(snap.Reviews) == 0 {
		ui.Info("No reviews found.")
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Language", "Status", "Critical", "High", "Created"})
	for _, r := range snap.Reviews {
		_ = table.Append([]string{
			r.ID,
			truncate(r.Title, 40),
			r.Language,
			output.StatusColor(string(r.Status)),
			output.CountColor(r.CountSeverity(models.SeverityCritical), string(models.SeverityCritical)),
			output.CountColor(r.CountSeverity(models.SeverityHigh), string(models.SeverityHigh)),
			timeAgo(r.CreatedAt),
		})
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "\nPage %d of %d (%d reviews)", snap.CurrentPage, max(snap.TotalPages(), 1), snap.Total)
	if snap.HasMore() {
		fmt.Fprintf(ui.Out, "  next: reviewctl list --page %d", snap.CurrentPage+1)
	}
	fmt.Fprintln(ui.Out)
	return nil
}

func showRun(ctx context.Context, id string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	if !s.FetchReview(ctx, id) {
		return actionError(s)
	}
	printReview(s.Snapshot().CurrentReview)
	return nil
}

func createRun(ctx context.Context) error {
	input, err := createInput()
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would submit review %q (%s)", input.Title, reviewSource(input))
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	review := s.CreateReview(ctx, input)
	if review == nil {
		return actionError(s)
	}
	ui.Success("Created review %s (%s)", output.Cyan(review.ID), output.StatusColor(string(review.Status)))

	if createWait {
		return waitAndShow(ctx, s, review.ID)
	}
	ui.Info("Follow progress with: reviewctl watch %s", review.ID)
	return nil
}

// createInput assembles the request from the create flags.
func createInput() (models.CreateReviewInput, error) {
	input := models.CreateReviewInput{
		Title:         createTitle,
		Language:      createLanguage,
		Code:          createCode,
		RepositoryURL: createRepo,
		Branch:        createBranch,
	}

	if createFile != "" {
		var data []byte
		var err error
		if createFile == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(createFile)
		}
		if err != nil {
			return input, fmt.Errorf("read source: %w", err)
		}
		input.Code = string(data)
		if input.Language == "" {
			input.Language = languageFromPath(createFile)
		}
		if input.Title == "" && createFile != "-" {
			input.Title = filepath.Base(createFile)
		}
	}

	if input.Code == "" && input.RepositoryURL == "" {
		return input, fmt.Errorf("nothing to review: pass --code, --file or --repo")
	}
	return input, nil
}

func deleteRun(ctx context.Context, id string) error {
	if dryRun {
		ui.DryRunMsg("Would delete review %s", id)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	if !s.DeleteReview(ctx, id) {
		return actionError(s)
	}
	ui.Success("Deleted review %s", id)
	return nil
}

func reanalyzeRun(ctx context.Context, id string) error {
	if dryRun {
		ui.DryRunMsg("Would reanalyze review %s", id)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	review := s.ReanalyzeReview(ctx, id)
	if review == nil {
		return actionError(s)
	}
	ui.Success("Reanalysis started for %s (%s)", output.Cyan(review.ID), output.StatusColor(string(review.Status)))

	if reanalyzeWait {
		return waitAndShow(ctx, s, review.ID)
	}
	return nil
}

// waitAndShow polls a review until it settles and prints it.
func waitAndShow(ctx context.Context, s *store.Store, id string) error {
	ui.Info("Waiting for analysis of %s...", id)
	maxAttempts := viper.GetInt("poll.max_attempts")
	ui.VerboseLog("Checking every %s, up to %d times", viper.GetDuration("poll.interval"), maxAttempts)
	res, err := s.PollReviewStatus(ctx, id, maxAttempts)
	switch res.Reason {
	case store.PollFailed:
		return actionError(s)
	case store.PollCancelled:
		return err
	case store.PollExhausted:
		ui.Warning("Review %s is still %s after %d checks", id, res.Review.Status, res.Attempts)
		return nil
	}
	printReview(res.Review)
	return nil
}

func printReview(r *models.CodeReview) {
	if r == nil {
		return
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(r.ID), r.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(string(r.Status)))
	if r.Language != "" {
		fmt.Fprintf(ui.Out, "  Language:   %s\n", r.Language)
	}
	if r.RepositoryURL != "" {
		repo := r.RepositoryURL
		if r.Branch != "" {
			repo += "@" + r.Branch
		}
		fmt.Fprintf(ui.Out, "  Repository: %s\n", repo)
	}
	if !r.CreatedAt.IsZero() {
		fmt.Fprintf(ui.Out, "  Created:    %s\n", timeAgo(r.CreatedAt))
	}
	if r.CompletedAt != nil {
		fmt.Fprintf(ui.Out, "  Completed:  %s\n", timeAgo(*r.CompletedAt))
	}
	if r.Summary != "" {
		fmt.Fprintf(ui.Out, "\n%s\n", r.Summary)
	}

	if len(r.SecurityIssues) == 0 {
		if r.Status == models.ReviewStatusCompleted {
			fmt.Fprintln(ui.Out)
			ui.Success("No security issues found")
		}
		return
	}

	fmt.Fprintf(ui.Out, "\nSecurity issues (%d):\n", len(r.SecurityIssues))
	table := ui.Table([]string{"Severity", "Title", "Location", "Recommendation"})
	for _, issue := range r.SecurityIssues {
		_ = table.Append([]string{
			output.SeverityColor(string(issue.Severity)),
			issue.Title,
			issueLocation(issue),
			truncate(issue.Recommendation, 60),
		})
	}
	_ = table.Render()
}

func issueLocation(issue models.SecurityIssue) string {
	switch {
	case issue.File == "":
		return "-"
	case issue.Line > 0:
		return fmt.Sprintf("%s:%d", issue.File, issue.Line)
	default:
		return issue.File
	}
}

func reviewSource(input models.CreateReviewInput) string {
	if input.RepositoryURL != "" {
		return input.RepositoryURL
	}
	return fmt.Sprintf("%d bytes of code", len(input.Code))
}

var languageByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".java": "java",
	".rb":   "ruby",
	".rs":   "rust",
	".php":  "php",
	".cs":   "csharp",
	".c":    "c",
	".cpp":  "cpp",
	".kt":   "kotlin",
	".sh":   "shell",
}

// languageFromPath guesses the language from a file extension.
func languageFromPath(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}
