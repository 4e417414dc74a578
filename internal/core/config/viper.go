package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*EngineConfig, error) {
	v := viper.New()

	// Set defaults matching DefaultEngineConfig
	v.SetDefault("engine.database_url", "sqlite://rulegate.db")
	v.SetDefault("engine.cache_ttl", "30s")
	v.SetDefault("engine.audit_queue_size", 256)
	v.SetDefault("engine.log_level", "info")
	v.SetDefault("engine.log_format", "json")

	// Bind environment variables with RG_ prefix
	v.SetEnvPrefix("RG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file if provided
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Database credentials travel inside the URL; reject them split out in
	// config files so secrets stay environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &EngineConfig{
		DatabaseURL:    v.GetString("engine.database_url"),
		CacheTTL:       v.GetDuration("engine.cache_ttl"),
		AuditQueueSize: v.GetInt("engine.audit_queue_size"),
		LogLevel:       v.GetString("engine.log_level"),
		LogFormat:      v.GetString("engine.log_format"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks URL presence, positive TTL and queue size, and known
// log settings.
func validateConfig(cfg *EngineConfig) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("database_url must be set")
	}
	if cfg.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %v", cfg.CacheTTL)
	}
	if cfg.AuditQueueSize <= 0 {
		return fmt.Errorf("audit_queue_size must be positive, got %d", cfg.AuditQueueSize)
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be one of debug, info, warn, error, got %q", cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", cfg.LogFormat)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.IsSet("database_password") || v.IsSet("engine.database_password") {
		return fmt.Errorf("database passwords not allowed in config files (embed credentials in RG_ENGINE_DATABASE_URL)")
	}
	return nil
}
