package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewctl/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	// Override configDirFunc for tests
	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	// Reset viper
	viper.Reset()
	setDefaults()
	t.Cleanup(viper.Reset)

	// Initialize output
	ui = output.New()
	ui.Out = io.Discard
	ui.ErrOut = io.Discard

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	err := configInitRun()
	require.NoError(t, err)

	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.NoError(t, err, "config file should exist")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "reviewctl configuration")
	assert.Contains(t, string(data), `base_url: "http://localhost:8080"`)
	assert.Contains(t, string(data), "interval: 2s")
	assert.Contains(t, string(data), "max_attempts: 30")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = false
	err := configInitRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestConfigInit_ForceOverwrite(t *testing.T) {
	dir := testEnv(t)

	// Create existing file
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0644))

	configForce = true
	err := configInitRun()
	require.NoError(t, err)

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "reviewctl configuration")
}

func TestConfigShow_NoFile(t *testing.T) {
	testEnv(t)

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigShow_WithFile(t *testing.T) {
	testEnv(t)

	// Create config first
	require.NoError(t, configInitRun())

	err := configShowRun()
	assert.NoError(t, err)
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)

	// Unset EDITOR and VISUAL
	origEditor := os.Getenv("EDITOR")
	origVisual := os.Getenv("VISUAL")
	_ = os.Unsetenv("EDITOR")
	_ = os.Unsetenv("VISUAL")
	t.Cleanup(func() {
		if origEditor != "" {
			_ = os.Setenv("EDITOR", origEditor)
		}
		if origVisual != "" {
			_ = os.Setenv("VISUAL", origVisual)
		}
	})

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)

	_ = os.Setenv("EDITOR", "echo") // harmless command
	t.Cleanup(func() { _ = os.Unsetenv("EDITOR") })

	err := configEditRun()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"key_a": true}

	// From env
	t.Setenv("REVIEWCTL_TEST_KEY", "val")
	assert.Contains(t, detectSource("test_key", "REVIEWCTL_TEST_KEY", fileValues), "env")

	// From file
	assert.Contains(t, detectSource("key_a", "REVIEWCTL_KEY_A_NONEXISTENT", fileValues), "file")

	// Default
	assert.Contains(t, detectSource("key_b", "REVIEWCTL_KEY_B_NONEXISTENT", fileValues), "default")
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"top": "val",
		"nested": map[string]any{
			"a": "1",
			"b": "2",
		},
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["top"])
	assert.True(t, result["nested.a"])
	assert.True(t, result["nested.b"])
	assert.False(t, result["nested"])
}

func TestFlattenKeys_EmptySection(t *testing.T) {
	result := make(map[string]bool)
	flattenKeys("", map[string]any{"api": nil, "poll": map[string]any{"interval": "5s"}}, result)

	assert.False(t, result["api.token"])
	assert.True(t, result["poll.interval"])
}

func TestConfigInit_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })

	err := configInitRun()
	require.NoError(t, err)

	// File should NOT have been created
	cfgPath := filepath.Join(dir, "config.yaml")
	_, err = os.Stat(cfgPath)
	assert.True(t, os.IsNotExist(err), "config file should not exist in dry-run mode")
}

func TestConfigInit_FileRoundTrip(t *testing.T) {
	dir := testEnv(t)
	viper.Set("api.base_url", "https://reviews.example.com")
	viper.Set("ui.locale", "ru")

	require.NoError(t, configInitRun())

	viper.Reset()
	setDefaults()
	viper.SetConfigFile(filepath.Join(dir, "config.yaml"))
	require.NoError(t, viper.ReadInConfig())

	assert.Equal(t, "https://reviews.example.com", viper.GetString("api.base_url"))
	assert.Equal(t, "ru", viper.GetString("ui.locale"))
	assert.Equal(t, 30*time.Second, viper.GetDuration("api.timeout"))
	assert.Equal(t, 20, viper.GetInt("reviews.page_size"))
}

func TestConfigShow_MasksToken(t *testing.T) {
	testEnv(t)
	var out bytes.Buffer
	ui.Out = &out
	viper.Set("api.token", "s3cret")

	require.NoError(t, configShowRun())
	assert.NotContains(t, out.String(), "s3cret")
	assert.Contains(t, out.String(), "api.token")
	assert.Contains(t, out.String(), "********")
}

func TestConfigShow_EnvSource(t *testing.T) {
	testEnv(t)
	var out bytes.Buffer
	ui.Out = &out
	t.Setenv("REVIEWCTL_UI_LOCALE", "ru")

	require.NoError(t, configShowRun())
	assert.Contains(t, out.String(), "(env: REVIEWCTL_UI_LOCALE)")
}
