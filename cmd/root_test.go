// File: cmd/root_test.go
package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidhawk9x/leakhound/internal/config"
)

// resetConfigState clears the global viper and the loaded config between
// tests; both are package-level by design.
func resetConfigState(t *testing.T) {
	t.Helper()
	viper.Reset()
	cfgFile = ""
	appCfg = config.Config{}
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = ""
		appCfg = config.Config{}
	})
}

func TestInitializeConfig_Defaults(t *testing.T) {
	resetConfigState(t)

	require.NoError(t, initializeConfig())
	require.NoError(t, viper.Unmarshal(&appCfg))

	assert.Equal(t, 3, appCfg.Leakcheck.Iterations)
	assert.Equal(t, 50.0, appCfg.Leakcheck.MaxAllowedGrowthMB)
	assert.Equal(t, "lighthouse", appCfg.Audit.LighthousePath)
	assert.Equal(t, "reports", appCfg.Reports.Dir)
	assert.True(t, appCfg.Browser.Headless)
	assert.False(t, appCfg.History.Enabled)
	require.NoError(t, appCfg.Validate())
}

func TestInitializeConfig_EnvOverrides(t *testing.T) {
	resetConfigState(t)
	t.Setenv("LEAKHOUND_LEAKCHECK_ITERATIONS", "7")
	t.Setenv("LEAKHOUND_LOGGER_LEVEL", "debug")

	require.NoError(t, initializeConfig())
	require.NoError(t, viper.Unmarshal(&appCfg))

	assert.Equal(t, 7, appCfg.Leakcheck.Iterations)
	assert.Equal(t, "debug", appCfg.Logger.Level)
}

func TestInitializeConfig_FileOverrides(t *testing.T) {
	resetConfigState(t)

	dir := t.TempDir()
	cfgFile = filepath.Join(dir, "config.yaml")
	yaml := `
leakcheck:
  iterations: 5
  max_allowed_growth_mb: 25.5
browser:
  headless: false
`
	require.NoError(t, os.WriteFile(cfgFile, []byte(yaml), 0o644))

	require.NoError(t, initializeConfig())
	require.NoError(t, viper.Unmarshal(&appCfg))

	assert.Equal(t, 5, appCfg.Leakcheck.Iterations)
	assert.Equal(t, 25.5, appCfg.Leakcheck.MaxAllowedGrowthMB)
	assert.False(t, appCfg.Browser.Headless)
	// Untouched keys keep their defaults.
	assert.Equal(t, "lighthouse", appCfg.Audit.LighthousePath)
}

func TestInitializeConfig_MissingFileIsFatalOnlyWhenExplicit(t *testing.T) {
	resetConfigState(t)

	cfgFile = filepath.Join(t.TempDir(), "nope.yaml")
	assert.Error(t, initializeConfig(), "an explicitly named config file must exist")
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["leakcheck"])
	assert.True(t, names["audit"])
	assert.True(t, names["monitor"])
	assert.True(t, names["version"])
}
