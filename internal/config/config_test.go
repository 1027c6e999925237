// File: internal/config/config_test.go
package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voidhawk9x/leakhound/internal/config"
)

func loadFromYAML(t *testing.T, yml string) *config.Config {
	t.Helper()
	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(yml)))

	var cfg config.Config
	require.NoError(t, v.Unmarshal(&cfg))
	return &cfg
}

func TestDefaults(t *testing.T) {
	cfg := loadFromYAML(t, "")

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 1500*time.Millisecond, cfg.Browser.PostLoadWait)
	assert.Equal(t, 3, cfg.Leakcheck.Iterations)
	assert.Equal(t, 50.0, cfg.Leakcheck.MaxAllowedGrowthMB)
	assert.Equal(t, 500*time.Millisecond, cfg.Sampling.SampleInterval)
	assert.Equal(t, "lighthouse", cfg.Audit.LighthousePath)
	assert.Equal(t, "reports", cfg.Reports.Dir)
	assert.False(t, cfg.History.Enabled)

	assert.NoError(t, cfg.Validate())
}

func TestFileOverridesDefaults(t *testing.T) {
	cfg := loadFromYAML(t, `
browser:
  headless: false
  post_load_wait: 3s
leakcheck:
  iterations: 5
  max_allowed_growth_mb: 25.5
audit:
  form_factor: mobile
  thresholds:
    performance: 70
    accessibility: 90
`)

	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 3*time.Second, cfg.Browser.PostLoadWait)
	assert.Equal(t, 5, cfg.Leakcheck.Iterations)
	assert.Equal(t, 25.5, cfg.Leakcheck.MaxAllowedGrowthMB)
	assert.Equal(t, "mobile", cfg.Audit.FormFactor)
	assert.Equal(t, 70.0, cfg.Audit.Thresholds["performance"])
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "zero iterations",
			mutate:  func(c *config.Config) { c.Leakcheck.Iterations = 0 },
			wantErr: "iterations",
		},
		{
			name:    "negative growth budget",
			mutate:  func(c *config.Config) { c.Leakcheck.MaxAllowedGrowthMB = -1 },
			wantErr: "max_allowed_growth_mb",
		},
		{
			name:    "zero sample interval",
			mutate:  func(c *config.Config) { c.Sampling.SampleInterval = 0 },
			wantErr: "sample_interval",
		},
		{
			name:    "history enabled without URL",
			mutate:  func(c *config.Config) { c.History.Enabled = true },
			wantErr: "database_url",
		},
		{
			name:    "unknown form factor",
			mutate:  func(c *config.Config) { c.Audit.FormFactor = "tablet" },
			wantErr: "form_factor",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadFromYAML(t, "")
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
