package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewctl/internal/api"
	"github.com/joescharf/reviewctl/internal/app"
	"github.com/joescharf/reviewctl/internal/logger"
	"github.com/joescharf/reviewctl/internal/output"
	"github.com/joescharf/reviewctl/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui          *output.UI
	log         *slog.Logger
	application *app.App

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "reviewctl",
	Short: "Code review client - submit, track and inspect code reviews",
	Long: `reviewctl talks to a code review service. It submits code or
repositories for security review, lists and inspects reviews, follows
their analysis status and exposes the same operations as MCP tools.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)

	if err := run(ctx, os.Args[1:]); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	stop()
}

// run installs the store before the router and mounts the command tree.
func run(ctx context.Context, args []string) error {
	application = app.New(rootCmd, slog.Default())
	if err := application.Use(app.State(newStore), app.Router()); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return application.Mount(ctx, args)
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/reviewctl/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("REVIEWCTL")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults() {
	viper.SetDefault("api.base_url", "http://localhost:8080")
	viper.SetDefault("api.token", "")
	viper.SetDefault("api.timeout", "30s")
	viper.SetDefault("reviews.page_size", store.DefaultPageSize)
	viper.SetDefault("poll.interval", store.DefaultPollInterval.String())
	viper.SetDefault("poll.max_attempts", store.DefaultMaxAttempts)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", logger.FormatPretty)
	viper.SetDefault("ui.locale", "en")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	log = newLogger()
	slog.SetDefault(log)
	if application != nil {
		application.Log = log
	}

	// The store is built lazily by the app, only when commands actually
	// need it. This allows config/version commands to run without a backend.
}

// newLogger builds the process logger from config. --verbose forces debug.
func newLogger() *slog.Logger {
	level, err := logger.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	return logger.New(os.Stderr, level, viper.GetString("log.format"))
}

// newStore builds the review store from config. It is the app's state
// factory and runs on first use.
func newStore() (*store.Store, error) {
	l := log
	if l == nil {
		l = slog.Default()
	}

	client, err := api.NewClient(viper.GetString("api.base_url"),
		api.WithToken(viper.GetString("api.token")),
		api.WithTimeout(viper.GetDuration("api.timeout")),
		api.WithLogger(l.With("component", "api")),
	)
	if err != nil {
		return nil, fmt.Errorf("configure api client: %w", err)
	}

	s := store.New(client,
		store.WithPageSize(viper.GetInt("reviews.page_size")),
		store.WithPollInterval(viper.GetDuration("poll.interval")),
		store.WithMaxAttempts(viper.GetInt("poll.max_attempts")),
		store.WithMessages(store.MessagesFor(viper.GetString("ui.locale"))),
		store.WithLogger(l.With("component", "store")),
	)
	if verbose {
		s.Subscribe(traceLoading(l.With("component", "store")))
	}
	return s, nil
}

// traceLoading logs loading transitions in verbose mode. It writes to the
// logger, never to stdout, which the mcp command owns.
func traceLoading(l *slog.Logger) func(store.Snapshot) {
	loading := false
	return func(snap store.Snapshot) {
		if snap.IsLoading == loading {
			return
		}
		loading = snap.IsLoading
		if loading {
			l.Debug("loading")
		} else {
			l.Debug("loading done", "error", snap.Error)
		}
	}
}

// getStore returns the shared store, initializing it on first call.
func getStore() (*store.Store, error) {
	if application == nil {
		return nil, errors.New("application not initialized")
	}
	return application.Store()
}

// actionError turns the store's user-facing error into a command error.
func actionError(s *store.Store) error {
	if msg := s.Snapshot().Error; msg != "" {
		return errors.New(msg)
	}
	return errors.New("request failed")
}

// defaultConfigDir is ~/.config/reviewctl.
func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "reviewctl"), nil
}
