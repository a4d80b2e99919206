// Package config loads service configuration from an optional config file
// with environment overrides.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type AnalysisConfig struct {
	// Provider selects the analyzer implementation: "rules" or "genai".
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
}

func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("storage.db_path", "secureaudit.db")
	v.SetDefault("analysis.provider", "rules")
	v.SetDefault("analysis.model", "gemini-1.5-flash")
	v.SetDefault("analysis.timeout", 2*time.Minute)
	v.SetDefault("analysis.max_attempts", 3)
	v.SetDefault("analysis.retry_delay", 500*time.Millisecond)

	v.SetEnvPrefix("SECUREAUDIT")
	v.AutomaticEnv()
	_ = v.BindEnv("analysis.api_key", "SECUREAUDIT_ANALYSIS_API_KEY", "GENAI_API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
