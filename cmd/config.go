package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

// envKeyReplacer maps nested keys to env vars: api.base_url -> REVIEWCTL_API_BASE_URL.
var envKeyReplacer = strings.NewReplacer(".", "_")

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage reviewctl configuration.

Running bare 'reviewctl config' is the same as 'reviewctl config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# reviewctl configuration
# See: reviewctl config show (for effective values and sources)

# Review service
api:
  # Base URL of the review API (default: http://localhost:8080)
  base_url: "{{ .BaseURL }}"

  # Bearer token sent with every request (empty: no auth header)
  token: "{{ .Token }}"

  # Per-request timeout (default: 30s)
  timeout: {{ .Timeout }}

# Listing
reviews:
  # Reviews per page (default: 20)
  page_size: {{ .PageSize }}

# Status polling after create/reanalyze
poll:
  # Delay between status fetches (default: 2s)
  interval: {{ .PollInterval }}

  # Maximum number of status fetches (default: 30)
  max_attempts: {{ .MaxAttempts }}

# Logging
log:
  # debug, info, warn, error (default: info)
  level: {{ .LogLevel }}

  # pretty or json (default: pretty)
  format: {{ .LogFormat }}

# User-facing messages
ui:
  # en or ru (default: en)
  locale: {{ .Locale }}
`

type configTemplateData struct {
	BaseURL      string
	Token        string
	Timeout      string
	PageSize     int
	PollInterval string
	MaxAttempts  int
	LogLevel     string
	LogFormat    string
	Locale       string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		BaseURL:      viper.GetString("api.base_url"),
		Token:        viper.GetString("api.token"),
		Timeout:      viper.GetDuration("api.timeout").String(),
		PageSize:     viper.GetInt("reviews.page_size"),
		PollInterval: viper.GetDuration("poll.interval").String(),
		MaxAttempts:  viper.GetInt("poll.max_attempts"),
		LogLevel:     viper.GetString("log.level"),
		LogFormat:    viper.GetString("log.format"),
		Locale:       viper.GetString("ui.locale"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "api.base_url", EnvVar: "REVIEWCTL_API_BASE_URL"},
	{Key: "api.token", EnvVar: "REVIEWCTL_API_TOKEN"},
	{Key: "api.timeout", EnvVar: "REVIEWCTL_API_TIMEOUT"},
	{Key: "reviews.page_size", EnvVar: "REVIEWCTL_REVIEWS_PAGE_SIZE"},
	{Key: "poll.interval", EnvVar: "REVIEWCTL_POLL_INTERVAL"},
	{Key: "poll.max_attempts", EnvVar: "REVIEWCTL_POLL_MAX_ATTEMPTS"},
	{Key: "log.level", EnvVar: "REVIEWCTL_LOG_LEVEL"},
	{Key: "log.format", EnvVar: "REVIEWCTL_LOG_FORMAT"},
	{Key: "ui.locale", EnvVar: "REVIEWCTL_UI_LOCALE"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if k.Key == "api.token" && viper.GetString(k.Key) != "" {
			val = "********"
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys records every leaf of a parsed config file under its
// dot-notation key, e.g. poll.max_attempts. Only leaves are recorded, so a
// file with an empty "api:" section does not mark api.token as set.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource labels where a key's effective value comes from, following
// viper's precedence: a set REVIEWCTL_* variable wins over the config file,
// which wins over the defaults registered in setDefaults.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'reviewctl config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
