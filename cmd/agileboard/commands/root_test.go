package commands

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayodineji/Agile-Board/internal/config"
	"github.com/ayodineji/Agile-Board/internal/printer"
)

// clearEnv keeps the caller's environment out of config loading
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{config.EnvPort, config.EnvStorage, config.EnvRedisURL, config.EnvDataDir, config.EnvLogLevel} {
		t.Setenv(name, "")
	}
}

// writeConfig writes an agileboard.yml storing sessions under dir
func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	path := filepath.Join(dir, "agileboard.yml")
	content := "version: \"1.0\"\nstorage:\n  backend: file\n  data_dir: " + dir + "\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// withStderr redirects printer output to w, uncolored, for the test
func withStderr(t *testing.T, w io.Writer) {
	t.Helper()
	prev, prevColor := printer.Stderr, color.NoColor
	printer.Stderr, color.NoColor = w, true
	t.Cleanup(func() { printer.Stderr, color.NoColor = prev, prevColor })
}

// resetFlags restores every flag to its default; flag values and their
// Changed marks outlive a single Execute.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// execute runs the real root command and returns stdout and the printer's
// stderr output.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var stderr bytes.Buffer
	withStderr(t, &stderr)

	resetFlags(rootCmd)

	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	t.Run("shows help when no subcommand", func(t *testing.T) {
		out, _, err := execute(t)
		require.NoError(t, err)
		assert.Contains(t, out, "Usage:")
		assert.Contains(t, out, "agileboard")
		for _, sub := range []string{"serve", "sessions", "watch", "migrate"} {
			assert.Contains(t, out, sub)
		}
	})

	t.Run("rejects unknown flags", func(t *testing.T) {
		_, _, err := execute(t, "--unknown-flag", "value")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown flag")
	})

	t.Run("rejects subcommand flags on root", func(t *testing.T) {
		_, _, err := execute(t, "--since", "1h")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown flag: --since")
	})

	t.Run("reports version", func(t *testing.T) {
		SetVersionInfo("1.2.3", "abc123", "2024-03-01")
		t.Cleanup(func() { SetVersionInfo("dev", "none", "unknown") })

		out, _, err := execute(t, "--version")
		require.NoError(t, err)
		assert.Contains(t, out, "1.2.3 (commit: abc123, built: 2024-03-01)")
	})
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	t.Run("missing file yields defaults", func(t *testing.T) {
		configPath = filepath.Join(t.TempDir(), "absent.yml")
		cfg, err := loadConfig()
		require.NoError(t, err)
		assert.Equal(t, config.DefaultPort, cfg.Server.Port)
	})

	t.Run("invalid file prints a formatted error", func(t *testing.T) {
		var stderr bytes.Buffer
		withStderr(t, &stderr)

		dir := t.TempDir()
		configPath = writeConfig(t, dir, "server:\n  port: 70000\n")
		_, err := loadConfig()
		require.Error(t, err)
		assert.Equal(t, "invalid configuration", err.Error())
		assert.Contains(t, stderr.String(), "server.port must be between 1 and 65535")
		assert.Contains(t, stderr.String(), configPath)
	})
}

func TestInitCommand(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	out, _, err := execute(t, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ agileboard.yml")
	assert.Contains(t, out, "✓ board.jsonc")
	assert.FileExists(t, filepath.Join(dir, "board.jsonc"))

	_, stderr, err := execute(t, "init", dir)
	require.Error(t, err)
	assert.Equal(t, "already initialized", err.Error())
	assert.Contains(t, stderr, "agileboard init --force")

	_, _, err = execute(t, "init", dir, "--force")
	require.NoError(t, err)
}
