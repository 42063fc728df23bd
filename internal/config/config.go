// Package config loads the client's configuration via viper, the way
// the teacher loads its workflow config: a YAML file plus environment
// overrides, unmarshaled into a typed struct with mapstructure tags.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config is the client's full configuration surface (§6).
type Config struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	AutoReconnect          bool   `mapstructure:"auto_reconnect"`
	ValidateFrames         bool   `mapstructure:"validate_frames"`
	SpindleCount           *int   `mapstructure:"spindle_count"`
	AllowDuplicateCommands bool   `mapstructure:"allow_duplicate_commands"`

	AuditLogPath  string `mapstructure:"audit_log_path"`
	DashboardAddr string `mapstructure:"dashboard_addr"`
	MetricsAddr   string `mapstructure:"metrics_addr"`
}

// Load reads config.yaml from the given search paths (the working
// directory if none given), applies the §6 defaults, overlays
// NUTRUNNER_-prefixed environment variables, and unmarshals into
// Config. Host has no default — it must come from the file or the
// environment.
func Load(searchPaths ...string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if len(searchPaths) == 0 {
		viper.AddConfigPath(".")
	}
	for _, p := range searchPaths {
		viper.AddConfigPath(p)
	}

	viper.SetDefault("port", 4545)
	viper.SetDefault("auto_reconnect", true)
	viper.SetDefault("validate_frames", true)
	viper.SetDefault("allow_duplicate_commands", false)
	viper.SetDefault("audit_log_path", "nutrunner-audit.jsonl")
	viper.SetDefault("dashboard_addr", ":8090")
	viper.SetDefault("metrics_addr", ":9090")

	viper.SetEnvPrefix("NUTRUNNER")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config: host is required")
	}
	return &cfg, nil
}
