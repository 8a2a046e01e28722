package am

import "time"

// Config represents the baseline runner configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Baselines BaselinesConfig `mapstructure:"baselines"`
	Modules   ModulesConfig   `mapstructure:"modules"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	History   HistoryConfig   `mapstructure:"history"`
}

// DatabaseConfig selects the data store holding logs, definitions and results
type DatabaseConfig struct {
	Driver  string `mapstructure:"driver"`  // database/sql driver name (default: sqlite3)
	DSN     string `mapstructure:"dsn"`     // sqlite path or driver DSN (default: baseline.db)
	Dialect string `mapstructure:"dialect"` // sqlite, snowflake (empty = derived from driver)
}

// BaselinesConfig controls which definitions a pass discovers
type BaselinesConfig struct {
	Schema       string `mapstructure:"schema"`        // schema holding definitions and result tables
	Pattern      string `mapstructure:"pattern"`       // SQL LIKE pattern on definition names
	CatalogTable string `mapstructure:"catalog_table"` // sqlite only: table listing definitions
}

// ModulesConfig locates module sources
type ModulesConfig struct {
	Dir    string `mapstructure:"dir"`    // <dir>/<name>/<name>.<ext>
	Engine string `mapstructure:"engine"` // backend for modules whose manifest names none
}

// EngineConfig configures the execution backends
type EngineConfig struct {
	RScript RScriptConfig `mapstructure:"rscript"`
	Wasm    WasmConfig    `mapstructure:"wasm"`
}

// RScriptConfig configures the Rscript child-process backend
type RScriptConfig struct {
	Command        string `mapstructure:"command"`         // split with shell quoting rules
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // 0 = no timeout
}

// WasmConfig configures the wazero backend. The backend is only
// registered when Runtime is set.
type WasmConfig struct {
	Runtime        string `mapstructure:"runtime"`   // path to a WASI interpreter module
	Extension      string `mapstructure:"extension"` // module source extension it evaluates
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DispatchConfig configures the per-baseline child process pool
type DispatchConfig struct {
	Workers          int     `mapstructure:"workers"`             // concurrent children
	LaunchPerSecond  float64 `mapstructure:"launch_per_second"`   // 0 = unlimited
	MemoryPerChildGB float64 `mapstructure:"memory_per_child_gb"` // used for the memory pressure warning
	Isolation        string  `mapstructure:"isolation"`           // process, inline
}

// HistoryConfig configures the run history table
type HistoryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Isolation modes
const (
	IsolationProcess = "process"
	IsolationInline  = "inline"
)

// File system constants
const (
	DefaultDirPermissions  = 0755
	DefaultFilePermissions = 0644
)

// Timeout returns the Rscript timeout, zero when unset.
func (c RScriptConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Timeout returns the wasm timeout, zero when unset.
func (c WasmConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
