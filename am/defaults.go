package am

import (
	"fmt"

	"github.com/spf13/viper"
)

// Default values that other packages fall back to
const (
	DefaultDriver  = "sqlite3"
	DefaultDSN     = "baseline.db"
	DefaultSchema  = "main"
	DefaultPattern = "%_BASELINE"
	DefaultEngine  = "rscript"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.driver", DefaultDriver)
	v.SetDefault("database.dsn", DefaultDSN)
	v.SetDefault("database.dialect", "")

	// Discovery defaults
	v.SetDefault("baselines.schema", DefaultSchema)
	v.SetDefault("baselines.pattern", DefaultPattern)
	v.SetDefault("baselines.catalog_table", "baseline_catalog")

	// Module defaults
	v.SetDefault("modules.dir", "modules")
	v.SetDefault("modules.engine", DefaultEngine)

	// Engine defaults
	v.SetDefault("engine.rscript.command", "Rscript --vanilla")
	v.SetDefault("engine.rscript.timeout_seconds", 0) // R modules may legitimately run for a long time
	v.SetDefault("engine.wasm.runtime", "")
	v.SetDefault("engine.wasm.extension", "R")
	v.SetDefault("engine.wasm.timeout_seconds", 0)

	// Dispatch defaults
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.launch_per_second", 2.0)
	v.SetDefault("dispatch.memory_per_child_gb", 1.0) // an R session with a week of logs
	v.SetDefault("dispatch.isolation", IsolationProcess)

	v.SetDefault("history.enabled", true)
}

// BindSensitiveEnvVars explicitly binds configuration whose env names
// are commonly set by deployment tooling
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.dsn", "BASELINE_DATABASE_DSN", "BASELINE_DSN")
	v.BindEnv("database.driver", "BASELINE_DATABASE_DRIVER")
}

// GetDatabaseDSN returns the configured DSN
func (c *Config) GetDatabaseDSN() string {
	if c.Database.DSN == "" {
		return DefaultDSN
	}
	return c.Database.DSN
}

// GetDatabaseDriver returns the configured driver
func (c *Config) GetDatabaseDriver() string {
	if c.Database.Driver == "" {
		return DefaultDriver
	}
	return c.Database.Driver
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s:%s, Baselines: %s.%s, Engine: %s, Isolation: %s}",
		c.GetDatabaseDriver(), c.GetDatabaseDSN(), c.Baselines.Schema, c.Baselines.Pattern,
		c.Modules.Engine, c.Dispatch.Isolation)
}
