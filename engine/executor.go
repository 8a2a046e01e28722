package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/frame"
	"github.com/teranos/baseline/logger"
	"github.com/teranos/baseline/module"
)

// Prepared is a module loaded, templated, and bound to its backend, ready to
// run against a dataset.
type Prepared struct {
	Module  *module.Module
	Backend Backend
	Code    string
}

// Executor resolves modules to backends and runs them.
type Executor struct {
	loader        *module.Loader
	registry      *Registry
	defaultEngine string
	logger        *zap.SugaredLogger
}

// NewExecutor creates an executor. defaultEngine is used for modules whose
// manifest does not pin an engine.
func NewExecutor(loader *module.Loader, registry *Registry, defaultEngine string, log *zap.SugaredLogger) *Executor {
	if log == nil {
		log = logger.Logger
	}
	return &Executor{
		loader:        loader,
		registry:      registry,
		defaultEngine: defaultEngine,
		logger:        log.Named("engine"),
	}
}

// Prepare loads moduleName, picks its backend, and renders values into the
// source. Template rejections carry ErrInvalidMetadata or
// ErrUnsafeTemplateValue; a missing module carries ErrModuleNotFound.
func (e *Executor) Prepare(moduleName string, values map[string]string) (*Prepared, error) {
	manifest, err := e.loader.Manifest(moduleName)
	if err != nil {
		return nil, err
	}

	engineName := manifest.Engine
	if engineName == "" {
		engineName = e.defaultEngine
	}
	backend, err := e.registry.Get(engineName)
	if err != nil {
		return nil, errors.Wrapf(err, "module %s", moduleName)
	}

	mod, err := e.loader.Load(moduleName, backend.Extension())
	if err != nil {
		return nil, err
	}

	code, err := module.Render(mod.Source, values, mod.Manifest.Placeholders)
	if err != nil {
		return nil, errors.Wrapf(err, "template module %s", moduleName)
	}

	e.logger.Debugw("Module prepared",
		logger.FieldModule, moduleName,
		logger.FieldBackend, backend.Name(),
		"path", mod.Path,
	)

	return &Prepared{Module: mod, Backend: backend, Code: code}, nil
}

// Run executes a prepared module against input. Faults are marked ErrExecution.
func (e *Executor) Run(ctx context.Context, p *Prepared, input frame.Columnar) (*frame.Output, error) {
	start := time.Now()
	out, err := p.Backend.Execute(ctx, p.Code, input)
	if err != nil {
		return nil, errors.Mark(
			errors.Wrapf(err, "%s module %s", p.Backend.Name(), p.Module.Name),
			errors.ErrExecution)
	}
	if out == nil {
		return nil, errors.Mark(
			errors.Newf("%s module %s returned no output", p.Backend.Name(), p.Module.Name),
			errors.ErrExecution)
	}

	e.logger.Debugw("Module executed",
		logger.FieldModule, p.Module.Name,
		logger.FieldBackend, p.Backend.Name(),
		logger.FieldColumns, len(out.Columns()),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return out, nil
}
