// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Browser   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	Sampling  SamplingConfig  `mapstructure:"sampling" yaml:"sampling"`
	Leakcheck LeakcheckConfig `mapstructure:"leakcheck" yaml:"leakcheck"`
	Audit     AuditConfig     `mapstructure:"audit" yaml:"audit"`
	Reports   ReportsConfig   `mapstructure:"reports" yaml:"reports"`
	History   HistoryConfig   `mapstructure:"history" yaml:"history"`
}

// LoggerConfig controls the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File output with rotation (lumberjack). Empty disables file logging.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig controls the headless Chrome instance under measurement.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	UserAgent         string        `mapstructure:"user_agent" yaml:"user_agent"`
	Args              []string      `mapstructure:"args" yaml:"args"`
	LaunchTimeout     time.Duration `mapstructure:"launch_timeout" yaml:"launch_timeout"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	PostLoadWait      time.Duration `mapstructure:"post_load_wait" yaml:"post_load_wait"`
}

// SamplingConfig controls how heap samples are taken.
type SamplingConfig struct {
	EnableGC       bool          `mapstructure:"enable_gc" yaml:"enable_gc"`
	SettleDelay    time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	SampleInterval time.Duration `mapstructure:"sample_interval" yaml:"sample_interval"`
	MaxSamples     int           `mapstructure:"max_samples" yaml:"max_samples"`
	GraceDelay     time.Duration `mapstructure:"grace_delay" yaml:"grace_delay"`
}

// LeakcheckConfig controls the repeated-navigation leak scenario.
type LeakcheckConfig struct {
	Iterations             int           `mapstructure:"iterations" yaml:"iterations"`
	WaitBetweenNavigations time.Duration `mapstructure:"wait_between_navigations" yaml:"wait_between_navigations"`
	MaxAllowedGrowthMB     float64       `mapstructure:"max_allowed_growth_mb" yaml:"max_allowed_growth_mb"`
}

// AuditConfig controls the external Lighthouse audit engine.
type AuditConfig struct {
	LighthousePath   string             `mapstructure:"lighthouse_path" yaml:"lighthouse_path"`
	FormFactor       string             `mapstructure:"form_factor" yaml:"form_factor"`
	ThrottlingMethod string             `mapstructure:"throttling_method" yaml:"throttling_method"`
	ScreenWidth      int                `mapstructure:"screen_width" yaml:"screen_width"`
	ScreenHeight     int                `mapstructure:"screen_height" yaml:"screen_height"`
	Categories       []string           `mapstructure:"categories" yaml:"categories"`
	Thresholds       map[string]float64 `mapstructure:"thresholds" yaml:"thresholds"`
	Timeout          time.Duration      `mapstructure:"timeout" yaml:"timeout"`
}

// ReportsConfig controls artifact persistence.
type ReportsConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// HistoryConfig controls the optional Postgres run-history store.
type HistoryConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	DatabaseURL string `mapstructure:"database_url" yaml:"database_url"`
}

// SetDefaults registers the default values for every config key on the given
// viper instance. Called before ReadInConfig so file/env values win.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "leakhound")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.launch_timeout", 30*time.Second)
	v.SetDefault("browser.navigation_timeout", 60*time.Second)
	v.SetDefault("browser.post_load_wait", 1500*time.Millisecond)

	v.SetDefault("sampling.enable_gc", true)
	v.SetDefault("sampling.settle_delay", 200*time.Millisecond)
	v.SetDefault("sampling.sample_interval", 500*time.Millisecond)
	v.SetDefault("sampling.max_samples", 60)
	v.SetDefault("sampling.grace_delay", 300*time.Millisecond)

	v.SetDefault("leakcheck.iterations", 3)
	v.SetDefault("leakcheck.wait_between_navigations", 1*time.Second)
	v.SetDefault("leakcheck.max_allowed_growth_mb", 50.0)

	v.SetDefault("audit.lighthouse_path", "lighthouse")
	v.SetDefault("audit.form_factor", "desktop")
	v.SetDefault("audit.throttling_method", "simulate")
	v.SetDefault("audit.screen_width", 1920)
	v.SetDefault("audit.screen_height", 1080)
	v.SetDefault("audit.categories", []string{"performance", "accessibility", "best-practices", "seo"})
	v.SetDefault("audit.timeout", 3*time.Minute)

	v.SetDefault("reports.dir", "reports")

	v.SetDefault("history.enabled", false)
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.Leakcheck.Iterations < 1 {
		return fmt.Errorf("leakcheck.iterations must be at least 1, got %d", c.Leakcheck.Iterations)
	}
	if c.Leakcheck.MaxAllowedGrowthMB <= 0 {
		return fmt.Errorf("leakcheck.max_allowed_growth_mb must be positive, got %v", c.Leakcheck.MaxAllowedGrowthMB)
	}
	if c.Sampling.SampleInterval <= 0 {
		return fmt.Errorf("sampling.sample_interval must be positive, got %v", c.Sampling.SampleInterval)
	}
	if c.History.Enabled && c.History.DatabaseURL == "" {
		return fmt.Errorf("history.database_url is required when history.enabled is set")
	}
	switch c.Audit.FormFactor {
	case "", "desktop", "mobile":
	default:
		return fmt.Errorf("audit.form_factor must be 'desktop' or 'mobile', got %q", c.Audit.FormFactor)
	}
	return nil
}
