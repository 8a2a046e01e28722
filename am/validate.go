package am

import (
	"regexp"

	"github.com/teranos/baseline/errors"
)

var (
	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

	// Snowflake schemas may be database-qualified
	schemaPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*(\.[A-Za-z_][A-Za-z0-9_$]*)?$`)
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return errors.New("database.dsn cannot be empty")
	}
	switch c.Database.Dialect {
	case "", "sqlite", "snowflake":
	default:
		return errors.WithHint(
			errors.Newf("database.dialect %q is not supported", c.Database.Dialect),
			"use sqlite or snowflake, or leave it empty to derive it from database.driver")
	}

	// Schema and catalog are spliced into SQL text
	if !schemaPattern.MatchString(c.Baselines.Schema) {
		return errors.Newf("baselines.schema must be a SQL identifier, got %q", c.Baselines.Schema)
	}
	if c.sqlite() && !identPattern.MatchString(c.Baselines.Schema) {
		return errors.WithHint(
			errors.Newf("baselines.schema %q cannot be database-qualified on sqlite", c.Baselines.Schema),
			"use an attached database name such as main")
	}
	if c.Baselines.CatalogTable != "" && !identPattern.MatchString(c.Baselines.CatalogTable) {
		return errors.Newf("baselines.catalog_table must be a SQL identifier, got %q", c.Baselines.CatalogTable)
	}
	if c.Baselines.Pattern == "" {
		return errors.New("baselines.pattern cannot be empty (use % to match every definition)")
	}

	if c.Modules.Dir == "" {
		return errors.New("modules.dir cannot be empty")
	}
	if c.Modules.Engine == "" {
		return errors.New("modules.engine cannot be empty")
	}
	if c.Modules.Engine == "wasm" && c.Engine.Wasm.Runtime == "" {
		return errors.WithHint(
			errors.New("modules.engine is wasm but engine.wasm.runtime is not set"),
			"point engine.wasm.runtime at a WASI interpreter module")
	}

	// Timeouts: 0 = none, negative = invalid
	if c.Engine.RScript.TimeoutSeconds < 0 {
		return errors.Newf("engine.rscript.timeout_seconds must be >= 0, got %d", c.Engine.RScript.TimeoutSeconds)
	}
	if c.Engine.Wasm.TimeoutSeconds < 0 {
		return errors.Newf("engine.wasm.timeout_seconds must be >= 0, got %d", c.Engine.Wasm.TimeoutSeconds)
	}
	if c.Engine.Wasm.Runtime != "" && c.Engine.Wasm.Extension == "" {
		return errors.New("engine.wasm.extension cannot be empty when engine.wasm.runtime is set")
	}

	if c.Dispatch.Workers < 1 {
		return errors.Newf("dispatch.workers must be >= 1, got %d", c.Dispatch.Workers)
	}
	if c.Dispatch.LaunchPerSecond < 0 {
		return errors.Newf("dispatch.launch_per_second must be >= 0, got %f", c.Dispatch.LaunchPerSecond)
	}
	if c.Dispatch.MemoryPerChildGB < 0 {
		return errors.Newf("dispatch.memory_per_child_gb must be >= 0, got %f", c.Dispatch.MemoryPerChildGB)
	}
	switch c.Dispatch.Isolation {
	case IsolationProcess, IsolationInline:
	default:
		return errors.Newf("dispatch.isolation must be %q or %q, got %q",
			IsolationProcess, IsolationInline, c.Dispatch.Isolation)
	}

	return nil
}

func (c *Config) sqlite() bool {
	name := c.Database.Dialect
	if name == "" {
		name = c.Database.Driver
	}
	switch name {
	case "", "sqlite", "sqlite3":
		return true
	}
	return false
}
