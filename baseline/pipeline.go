package baseline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/baseline/db"
	"github.com/teranos/baseline/engine"
	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/frame"
	"github.com/teranos/baseline/logger"
)

// State is where a baseline is in its pipeline. Transitions only move
// forward; Done, Skipped and Failed are final.
type State string

const (
	StateDiscovered State = "discovered"
	StateValidated  State = "validated"
	StateQueried    State = "queried"
	StateExecuted   State = "executed"
	StatePersisted  State = "persisted"
	StateDone       State = "done"
	StateSkipped    State = "skipped"
	StateFailed     State = "failed"
)

// Final reports whether no further transition can happen.
func (s State) Final() bool {
	return s == StateDone || s == StateSkipped || s == StateFailed
}

// Executor prepares and runs modules. *engine.Executor implements it.
type Executor interface {
	Prepare(moduleName string, values map[string]string) (*engine.Prepared, error)
	Run(ctx context.Context, p *engine.Prepared, input frame.Columnar) (*frame.Output, error)
}

// Result is the outcome of one baseline's pipeline.
type Result struct {
	Name     string
	State    State
	Rows     int
	Err      error
	Started  time.Time
	Finished time.Time
}

// Kind classifies Err for logs and run history.
func (r Result) Kind() errors.Kind { return errors.Classify(r.Err) }

// Pipeline takes one definition from Discovered to a final state.
type Pipeline struct {
	store    Store
	executor Executor
	schema   string
	logger   *zap.SugaredLogger
}

// NewPipeline creates a pipeline writing result tables into schema.
func NewPipeline(store Store, executor Executor, schema string, log *zap.SugaredLogger) *Pipeline {
	if log == nil {
		log = logger.Logger
	}
	return &Pipeline{
		store:    store,
		executor: executor,
		schema:   schema,
		logger:   log.Named("pipeline"),
	}
}

// run tracks one definition through the states.
type run struct {
	def    db.Definition
	result Result
	log    *zap.SugaredLogger
}

func (r *run) to(state State, keysAndValues ...any) {
	r.result.State = state
	r.log.Debugw("Baseline "+string(state), append([]any{logger.FieldState, state}, keysAndValues...)...)
}

func (r *run) skip(err error) Result {
	r.result.State = StateSkipped
	r.result.Err = err
	r.result.Finished = time.Now()
	r.log.Warnw("Skipping baseline with invalid metadata",
		logger.FieldState, StateSkipped,
		logger.FieldMetadata, r.def.Comment,
		logger.FieldError, err,
	)
	return r.result
}

func (r *run) fail(err error) Result {
	from := r.result.State
	r.result.State = StateFailed
	r.result.Err = err
	r.result.Finished = time.Now()
	r.log.Errorw("Baseline failed",
		logger.FieldState, StateFailed,
		"after", from,
		logger.FieldErrorKind, errors.Classify(err),
		logger.FieldError, err,
	)
	return r.result
}

// Run executes def's pipeline. It never panics on bad input and never
// returns an error: the outcome, including any failure, is in the Result.
func (p *Pipeline) Run(ctx context.Context, def db.Definition) Result {
	ctx = logger.WithBaseline(ctx, def.Name)
	r := &run{
		def:    def,
		result: Result{Name: def.Name, State: StateDiscovered, Started: time.Now()},
		log:    logger.FromContext(ctx, p.logger),
	}

	// Validated: metadata, result table name and module template all check out
	md, err := ParseMetadata(def.Comment)
	if err != nil {
		return r.skip(err)
	}
	if !ValidName(def.Name) {
		return r.skip(errors.Mark(
			errors.InvalidMetadataf("baseline name %q is not a SQL identifier", def.Name),
			errors.ErrInvalidIdentifier))
	}
	prepared, err := p.executor.Prepare(md.ModuleName, md.RequiredValues)
	if err != nil {
		if errors.Classify(err) == errors.KindInvalidMetadata {
			return r.skip(err)
		}
		return r.fail(errors.Mark(err, errors.ErrExecution))
	}
	r.to(StateValidated, logger.FieldModule, md.ModuleName, logger.FieldBackend, prepared.Backend.Name())

	input, query, err := Extract(ctx, p.store, md)
	if err != nil {
		return r.fail(err)
	}
	r.to(StateQueried, logger.FieldSource, md.LogSource, logger.FieldQuery, query, logger.FieldRows, input.Len())

	out, err := p.executor.Run(ctx, prepared, input)
	if err != nil {
		return r.fail(err)
	}
	rows := frame.Unpack(out)
	columns := out.Columns()
	r.to(StateExecuted, logger.FieldRows, len(rows), logger.FieldColumns, len(columns))

	table := db.Table(p.schema, def.Name)
	if len(columns) == 0 {
		r.log.Warnw("Module returned no columns; result table left unchanged", logger.FieldTable, table)
	} else if err := p.store.Insert(ctx, table, columns, rows, true); err != nil {
		return r.fail(errors.Mark(errors.Wrapf(err, "persist %s", table), errors.ErrPersist))
	}
	r.result.Rows = len(rows)
	r.to(StatePersisted, logger.FieldTable, table, logger.FieldRows, len(rows))

	r.result.State = StateDone
	r.result.Finished = time.Now()
	return r.result
}
