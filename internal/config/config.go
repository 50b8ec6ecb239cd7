package config

import (
	"fmt"
	"strings"

	"github.com/Skufu/triage/internal/attribution"
	"github.com/Skufu/triage/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port     string `mapstructure:"port"`
	GinMode  string `mapstructure:"gin_mode"`
	AppName  string `mapstructure:"app_name"`
	AppEnv   string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"app_log_level"`

	DatabaseURL string `mapstructure:"database_url"`
	EnableDB    bool   `mapstructure:"enable_db"`

	MetricsSamplingRate float64 `mapstructure:"metrics_sampling_rate"`
	TelegrafHost        string  `mapstructure:"telegraf_host"`
	TelegrafPort        string  `mapstructure:"telegraf_port"`

	NumericRuntimeEnabled bool   `mapstructure:"numeric_runtime_enabled"`
	IGEnabled             bool   `mapstructure:"attribution_ig_enabled"`
	SHAPEnabled           bool   `mapstructure:"attribution_shap_enabled"`
	IGSteps               int    `mapstructure:"attribution_ig_steps"`
	SHAPBackground        string `mapstructure:"attribution_shap_background"`
	ModelWeightsPath      string `mapstructure:"model_weights_path"`
	ModelEagerLoad        bool   `mapstructure:"model_eager_load"`
	RedFlagRulesPath      string `mapstructure:"red_flag_rules_path"`

	CacheEnabled bool  `mapstructure:"cache_enabled"`
	CacheSize    int64 `mapstructure:"cache_size"`
	CacheTTLSec  int64 `mapstructure:"cache_ttl_sec"`

	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

var defaults = map[string]any{
	"port":                        "8080",
	"gin_mode":                    "release",
	"app_name":                    "triage",
	"app_env":                     "local",
	"app_log_level":               "INFO",
	"enable_db":                   false,
	"metrics_sampling_rate":       1.0,
	"telegraf_host":               "localhost",
	"telegraf_port":               "8125",
	"numeric_runtime_enabled":     true,
	"attribution_ig_enabled":      true,
	"attribution_shap_enabled":    true,
	"attribution_ig_steps":        attribution.DefaultSteps,
	"attribution_shap_background": string(attribution.BackgroundSelf),
	"model_eager_load":            false,
	"cache_enabled":               false,
	"cache_size":                  1000,
	"cache_ttl_sec":               1800,
	"max_body_bytes":              1 << 20,
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	for _, key := range []string{"database_url", "model_weights_path", "red_flag_rules_path"} {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.EnableDB && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required when ENABLE_DB=true")
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("APP_LOG_LEVEL %q is not a known level", c.LogLevel)
	}
	switch attribution.Background(c.SHAPBackground) {
	case attribution.BackgroundSelf, attribution.BackgroundZero:
	default:
		return fmt.Errorf("ATTRIBUTION_SHAP_BACKGROUND must be %q or %q, got %q",
			attribution.BackgroundSelf, attribution.BackgroundZero, c.SHAPBackground)
	}
	if c.IGSteps <= 0 {
		return fmt.Errorf("ATTRIBUTION_IG_STEPS must be positive, got %d", c.IGSteps)
	}
	if c.CacheEnabled && (c.CacheSize <= 0 || c.CacheTTLSec <= 0) {
		return fmt.Errorf("CACHE_SIZE and CACHE_TTL_SEC must be positive when CACHE_ENABLED=true")
	}
	if c.MetricsSamplingRate < 0 || c.MetricsSamplingRate > 1 {
		return fmt.Errorf("METRICS_SAMPLING_RATE must be within [0, 1], got %v", c.MetricsSamplingRate)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("MAX_BODY_BYTES must be positive, got %d", c.MaxBodyBytes)
	}
	return nil
}
