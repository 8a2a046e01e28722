package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return *cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := validConfig(t)

	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "baseline.db", cfg.Database.DSN)
	assert.Equal(t, "main", cfg.Baselines.Schema)
	assert.Equal(t, "%_BASELINE", cfg.Baselines.Pattern)
	assert.Equal(t, "baseline_catalog", cfg.Baselines.CatalogTable)
	assert.Equal(t, "rscript", cfg.Modules.Engine)
	assert.Equal(t, "Rscript --vanilla", cfg.Engine.RScript.Command)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.Equal(t, 2.0, cfg.Dispatch.LaunchPerSecond)
	assert.Equal(t, IsolationProcess, cfg.Dispatch.Isolation)
	assert.True(t, cfg.History.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"zero timeout is no timeout", func(c *Config) { c.Engine.RScript.TimeoutSeconds = 0 }, ""},
		{"zero launch rate is unlimited", func(c *Config) { c.Dispatch.LaunchPerSecond = 0 }, ""},
		{"inline isolation", func(c *Config) { c.Dispatch.Isolation = IsolationInline }, ""},
		{"snowflake dialect", func(c *Config) { c.Database.Dialect = "snowflake" }, ""},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"unknown dialect", func(c *Config) { c.Database.Dialect = "oracle" }, "database.dialect"},
		{"qualified schema on snowflake", func(c *Config) {
			c.Database.Dialect = "snowflake"
			c.Baselines.Schema = "SNOWALERT.DATA"
		}, ""},
		{"qualified schema on sqlite", func(c *Config) { c.Baselines.Schema = "SNOWALERT.DATA" }, "database-qualified"},
		{"three-part schema", func(c *Config) {
			c.Database.Dialect = "snowflake"
			c.Baselines.Schema = "a.b.c"
		}, "baselines.schema"},
		{"schema injection", func(c *Config) { c.Baselines.Schema = "main; DROP TABLE x" }, "baselines.schema"},
		{"catalog injection", func(c *Config) { c.Baselines.CatalogTable = "a b" }, "baselines.catalog_table"},
		{"empty pattern", func(c *Config) { c.Baselines.Pattern = "" }, "baselines.pattern"},
		{"empty modules dir", func(c *Config) { c.Modules.Dir = "" }, "modules.dir"},
		{"empty engine", func(c *Config) { c.Modules.Engine = "" }, "modules.engine"},
		{"wasm without runtime", func(c *Config) { c.Modules.Engine = "wasm" }, "engine.wasm.runtime"},
		{"negative rscript timeout", func(c *Config) { c.Engine.RScript.TimeoutSeconds = -1 }, "engine.rscript.timeout_seconds"},
		{"negative wasm timeout", func(c *Config) { c.Engine.Wasm.TimeoutSeconds = -1 }, "engine.wasm.timeout_seconds"},
		{"wasm without extension", func(c *Config) {
			c.Engine.Wasm.Runtime = "r.wasm"
			c.Engine.Wasm.Extension = ""
		}, "engine.wasm.extension"},
		{"zero workers", func(c *Config) { c.Dispatch.Workers = 0 }, "dispatch.workers"},
		{"negative launch rate", func(c *Config) { c.Dispatch.LaunchPerSecond = -1 }, "dispatch.launch_per_second"},
		{"negative memory", func(c *Config) { c.Dispatch.MemoryPerChildGB = -1 }, "dispatch.memory_per_child_gb"},
		{"unknown isolation", func(c *Config) { c.Dispatch.Isolation = "thread" }, "dispatch.isolation"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[database]
driver = "snowflake"
dsn = "user@account/db"

[engine.rscript]
timeout_seconds = 600
`), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "snowflake", cfg.Database.Driver)
	assert.Equal(t, "user@account/db", cfg.Database.DSN)
	assert.Equal(t, 10*time.Minute, cfg.Engine.RScript.Timeout())
	assert.Equal(t, "main", cfg.Baselines.Schema, "unset keys keep their defaults")
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

// writeLayeredConfig creates a user config under a fake HOME and a project
// config two directories above the working directory.
func writeLayeredConfig(t *testing.T) (userPath, projectPath string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	userDir := filepath.Join(home, ".baseline")
	require.NoError(t, os.MkdirAll(userDir, DefaultDirPermissions))
	userPath = filepath.Join(userDir, "config.toml")
	require.NoError(t, os.WriteFile(userPath, []byte(`
[database]
dsn = "user.db"

[dispatch]
workers = 2
`), DefaultFilePermissions))

	project := t.TempDir()
	projectPath = filepath.Join(project, ProjectConfigName)
	require.NoError(t, os.WriteFile(projectPath, []byte(`
[dispatch]
workers = 8
isolation = "inline"
`), DefaultFilePermissions))

	work := filepath.Join(project, "a", "b")
	require.NoError(t, os.MkdirAll(work, DefaultDirPermissions))
	t.Chdir(work)
	return userPath, projectPath
}

func TestLoad_MergesLayers(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	userPath, projectPath := writeLayeredConfig(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "user.db", cfg.Database.DSN)
	assert.Equal(t, 8, cfg.Dispatch.Workers, "project config wins over user config")
	assert.Equal(t, IsolationInline, cfg.Dispatch.Isolation)
	assert.Equal(t, "%_BASELINE", cfg.Baselines.Pattern)

	assert.Equal(t, SourceInfo{Source: SourceUser, Path: userPath}, ConfigSources["database.dsn"])
	assert.Equal(t, SourceInfo{Source: SourceProject, Path: projectPath}, ConfigSources["dispatch.workers"])

	again, err := Load()
	require.NoError(t, err)
	assert.Same(t, cfg, again, "Load caches until Reset")
}

func TestLoad_EnvironmentWins(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	writeLayeredConfig(t)
	t.Setenv("BASELINE_DISPATCH_WORKERS", "16")
	t.Setenv("BASELINE_DSN", "env.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Dispatch.Workers)
	assert.Equal(t, "env.db", cfg.Database.DSN)
}

func TestSettings(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	_, projectPath := writeLayeredConfig(t)
	t.Setenv("BASELINE_MODULES_DIR", "/srv/modules")

	settings, err := Settings()
	require.NoError(t, err)

	byKey := map[string]SettingInfo{}
	for _, s := range settings {
		byKey[s.Key] = s
	}
	assert.Equal(t, SourceProject, byKey["dispatch.isolation"].Source)
	assert.Equal(t, projectPath, byKey["dispatch.isolation"].SourcePath)
	assert.Equal(t, SourceDefault, byKey["baselines.schema"].Source)
	assert.Equal(t, SourceEnvironment, byKey["modules.dir"].Source)
	assert.Equal(t, "BASELINE_MODULES_DIR", byKey["modules.dir"].SourcePath)
	assert.Equal(t, "/srv/modules", byKey["modules.dir"].Value)

	for i := 1; i < len(settings); i++ {
		assert.Less(t, settings[i-1].Key, settings[i].Key)
	}
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "BASELINE_ENGINE_RSCRIPT_TIMEOUT_SECONDS", EnvKey("engine.rscript.timeout_seconds"))
}

func TestConfigString(t *testing.T) {
	cfg := validConfig(t)
	assert.Equal(t, "Config{Database: sqlite3:baseline.db, Baselines: main.%_BASELINE, Engine: rscript, Isolation: process}", cfg.String())
}
