package cmd

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/meridianworks/rulegate/internal/core/config"
	"github.com/meridianworks/rulegate/internal/core/db"
	"github.com/meridianworks/rulegate/internal/core/logging"
	"github.com/meridianworks/rulegate/internal/store"
)

const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "rulegate",
	Short: "Rulegate dynamic instruction rule engine",
	Long:  `Rulegate evaluates administrator-defined business rules against ERP entity contexts and manages the override approval workflow.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console)")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadEngineConfig merges CLI flags over the file/environment configuration.
func loadEngineConfig() (*config.EngineConfig, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, nil
}

// openStore wires configuration, logging, database and the persistence layer
// for a subcommand. The caller closes the returned database handle.
func openStore() (*config.EngineConfig, *zap.Logger, *sqlx.DB, *store.Store, error) {
	cfg, err := loadEngineConfig()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	queries, err := db.LoadQueries(database)
	if err != nil {
		database.Close()
		return nil, nil, nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}

	return cfg, logger, database, store.New(queries, logger), nil
}
