package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/teranos/baseline/am"
	"github.com/teranos/baseline/db"
	"github.com/teranos/baseline/engine"
	"github.com/teranos/baseline/engine/rscript"
	"github.com/teranos/baseline/engine/wasm"
	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/logger"
	"github.com/teranos/baseline/module"
)

// loadConfig reads --config when given, the layered configuration
// otherwise, and validates it.
func loadConfig(cmd *cobra.Command) (*am.Config, error) {
	var cfg *am.Config
	var err error
	if path, _ := cmd.Flags().GetString(FlagConfig); path != "" {
		cfg, err = am.LoadFromFile(path)
	} else {
		cfg, err = am.Load()
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// openSession connects to the configured data store. sqlite databases are
// migrated so the catalog and run history tables exist.
func openSession(cfg *am.Config) (*db.Session, error) {
	driver := cfg.GetDatabaseDriver()
	dialect, err := db.DialectFor(cfg.Database.Dialect, driver, cfg.Baselines.CatalogTable)
	if err != nil {
		return nil, err
	}

	conn, err := db.Connect(driver, cfg.GetDatabaseDSN(), logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", cfg.GetDatabaseDSN())
	}

	if dialect.Name() == "sqlite" {
		if err := db.Migrate(conn, logger.Logger); err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to run migrations on %s", cfg.GetDatabaseDSN())
		}
	}
	return db.NewSession(conn, dialect, logger.Logger), nil
}

// historyStore returns the run history store, or nil when history is off
// or the data store has no baseline_runs table.
func historyStore(cfg *am.Config, session *db.Session) *db.HistoryStore {
	if !cfg.History.Enabled {
		return nil
	}
	if session.Dialect().Name() != "sqlite" {
		logger.Infow("Run history needs the sqlite store, not recording",
			"dialect", session.Dialect().Name())
		return nil
	}
	return db.NewHistoryStore(session.DB())
}

// newExecutor registers the configured backends. The returned func
// releases them.
func newExecutor(ctx context.Context, cfg *am.Config) (*engine.Executor, func(), error) {
	registry := engine.NewRegistry()
	release := func() {}

	rs, err := rscript.New(rscript.Config{
		Command: cfg.Engine.RScript.Command,
		Timeout: cfg.Engine.RScript.Timeout(),
	}, logger.Logger)
	if err != nil {
		return nil, release, err
	}
	registry.Register(rs)

	if cfg.Engine.Wasm.Runtime != "" {
		wb, err := wasm.New(ctx, wasm.Config{
			Runtime:   cfg.Engine.Wasm.Runtime,
			Extension: cfg.Engine.Wasm.Extension,
			Timeout:   cfg.Engine.Wasm.Timeout(),
		}, logger.Logger)
		if err != nil {
			return nil, release, err
		}
		registry.Register(wb)
		release = func() {
			if err := wb.Close(context.Background()); err != nil {
				logger.Debugw("Failed to close wasm runtime", logger.FieldError, err)
			}
		}
	}

	loader := module.NewLoader(cfg.Modules.Dir)
	return engine.NewExecutor(loader, registry, cfg.Modules.Engine, logger.Logger), release, nil
}
