package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot_PersistentFlags(t *testing.T) {
	for name, def := range map[string]string{
		"log-level": "info",
		"servers":   "",
		"no-color":  "false",
	} {
		f := rootCmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, "--%s", name)
		assert.Equal(t, def, f.DefValue, "--%s", name)
	}
	assert.True(t, rootCmd.SilenceUsage)
}

func TestRoot_CommandFlags(t *testing.T) {
	tests := []struct {
		command    string
		flags      []string
		shorthands map[string]string
	}{
		{command: "add", flags: []string{"env", "workdir", "auto-start", "description"}, shorthands: map[string]string{"e": "env"}},
		{command: "remove"},
		{command: "list", flags: []string{"output", "quiet"}, shorthands: map[string]string{"o": "output", "q": "quiet"}},
		{command: "status", flags: []string{"output", "quiet"}, shorthands: map[string]string{"o": "output", "q": "quiet"}},
		{command: "start", flags: []string{"wait", "output", "quiet"}, shorthands: map[string]string{"o": "output"}},
		{command: "tools", flags: []string{"output", "quiet"}, shorthands: map[string]string{"o": "output"}},
		{command: "call", flags: []string{"output", "quiet"}, shorthands: map[string]string{"o": "output"}},
		{command: "request", flags: []string{"output", "quiet"}, shorthands: map[string]string{"o": "output"}},
		{command: "logs", flags: []string{"duration", "tail", "output", "quiet"}, shorthands: map[string]string{"n": "tail"}},
		{command: "serve", flags: []string{"events", "events-addr", "output", "quiet"}},
		{command: "watch", flags: []string{"auto-start", "buffer", "theme"}},
		{command: "repl"},
		{command: "mock-server"},
		{command: "version"},
		{command: "self-update"},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{tt.command})
			require.NoError(t, err)
			require.Equal(t, tt.command, c.Name())
			assert.NotEmpty(t, c.Short)
			for _, name := range tt.flags {
				assert.NotNil(t, c.Flags().Lookup(name), "--%s", name)
			}
			for short, name := range tt.shorthands {
				f := c.Flags().ShorthandLookup(short)
				if assert.NotNil(t, f, "-%s", short) {
					assert.Equal(t, name, f.Name)
				}
			}
		})
	}
}

func TestRoot_OutputFlagDefaults(t *testing.T) {
	c, _, err := rootCmd.Find([]string{"list"})
	require.NoError(t, err)
	assert.Equal(t, "table", c.Flags().Lookup("output").DefValue)
	assert.Equal(t, "false", c.Flags().Lookup("quiet").DefValue)

	c, _, err = rootCmd.Find([]string{"watch"})
	require.NoError(t, err)
	assert.Equal(t, "true", c.Flags().Lookup("auto-start").DefValue)

	mock, _, err := rootCmd.Find([]string{"mock-server"})
	require.NoError(t, err)
	assert.True(t, mock.Hidden)
}

func TestRoot_VersionFlagUsesTemplate(t *testing.T) {
	original := rootCmd.Version
	defer func() { rootCmd.Version = original }()
	SetVersion("2.0.1")

	out, err := execute(t, filepath.Join(t.TempDir(), "servers.yaml"), "--version")
	require.NoError(t, err)
	assert.Equal(t, "toolhost version 2.0.1\n", out)
}

func TestRoot_RejectsUnknownLogLevel(t *testing.T) {
	defer func() { rootLogLevel = "info" }()

	_, err := execute(t, filepath.Join(t.TempDir(), "servers.yaml"), "--log-level", "loud", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown log level "loud"`)
}
