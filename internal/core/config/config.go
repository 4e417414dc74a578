// Package config provides configuration management for the rulegate engine.
package config

import (
	"time"
)

// EngineConfig holds configuration for an embedded engine instance.
type EngineConfig struct {
	DatabaseURL    string
	CacheTTL       time.Duration
	AuditQueueSize int
	LogLevel       string
	LogFormat      string
}

// DefaultEngineConfig returns configuration with default values.
func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		DatabaseURL:    "sqlite://rulegate.db",
		CacheTTL:       30 * time.Second,
		AuditQueueSize: 256,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}
