package baseline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/baseline/db"
	"github.com/teranos/baseline/dispatch"
	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/logger"
)

// Isolation modes for passes that discover more than one baseline.
const (
	IsolationProcess = "process"
	IsolationInline  = "inline"
)

// Dispatcher runs named baselines in isolated processes. *dispatch.Pool
// implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, names []string) []dispatch.Result
}

// History records pipeline outcomes. *db.HistoryStore implements it.
type History interface {
	Record(ctx context.Context, run db.Run) error
}

// Options configures an Orchestrator.
type Options struct {
	Schema    string
	Pattern   string
	Isolation string // IsolationProcess (default) or IsolationInline

	// RunID groups a pass in logs and history; generated when empty
	RunID string
}

// Outcome is one baseline's end state as seen by the orchestrating process.
type Outcome struct {
	Name     string
	State    State
	Rows     int
	ExitCode int
	Err      error
	Duration time.Duration
}

// Failed reports whether the baseline ended in StateFailed.
func (o Outcome) Failed() bool { return o.State == StateFailed }

// Summary is the result of one orchestration pass.
type Summary struct {
	RunID    string
	Outcomes []Outcome
}

// Failures returns the outcomes that failed.
func (s *Summary) Failures() []Outcome {
	var failed []Outcome
	for _, o := range s.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Count returns how many outcomes ended in state.
func (s *Summary) Count(state State) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}

// Orchestrator discovers baselines and runs each through the pipeline,
// either in this process or fanned out to child processes.
type Orchestrator struct {
	store      Store
	pipeline   *Pipeline
	dispatcher Dispatcher
	history    History
	opts       Options
	logger     *zap.SugaredLogger
}

// NewOrchestrator creates an orchestrator. dispatcher and history may be nil:
// without a dispatcher every baseline runs inline, without history nothing
// is recorded.
func NewOrchestrator(store Store, pipeline *Pipeline, dispatcher Dispatcher, history History, opts Options, log *zap.SugaredLogger) *Orchestrator {
	if log == nil {
		log = logger.Logger
	}
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}
	return &Orchestrator{
		store:      store,
		pipeline:   pipeline,
		dispatcher: dispatcher,
		history:    history,
		opts:       opts,
		logger:     log.Named("orchestrator"),
	}
}

// RunID returns the pass identifier.
func (o *Orchestrator) RunID() string { return o.opts.RunID }

// Discover lists the definitions matching the configured pattern.
func (o *Orchestrator) Discover(ctx context.Context) ([]db.Definition, error) {
	defs, err := o.store.Discover(ctx, o.opts.Schema, o.opts.Pattern)
	if err != nil {
		return nil, errors.Wrap(err, "discover baselines")
	}
	return defs, nil
}

// RunAll runs one orchestration pass. A single discovered baseline runs in
// this process; several are dispatched one process each unless isolation is
// inline. Only discovery failures are returned as errors; per-baseline
// failures are in the summary.
func (o *Orchestrator) RunAll(ctx context.Context) (*Summary, error) {
	ctx = logger.WithRunID(ctx, o.opts.RunID)
	log := logger.FromContext(ctx, o.logger)

	defs, err := o.Discover(ctx)
	if err != nil {
		return nil, err
	}
	log.Infow("Discovered baselines",
		logger.FieldCount, len(defs),
		"schema", o.opts.Schema,
		"pattern", o.opts.Pattern,
	)

	summary := &Summary{RunID: o.opts.RunID}
	if len(defs) == 1 || o.dispatcher == nil || o.opts.Isolation == IsolationInline {
		for _, def := range defs {
			if err := ctx.Err(); err != nil {
				return summary, errors.Wrap(err, "pass interrupted")
			}
			res := o.runInline(ctx, def)
			summary.Outcomes = append(summary.Outcomes, outcomeOf(res))
			if db.IsDatabaseClosed(res.Err) {
				return summary, errors.Wrap(res.Err, "pass aborted")
			}
		}
	} else {
		names := make([]string, len(defs))
		for i, def := range defs {
			names[i] = def.Name
			log.Infow("Baseline started", logger.FieldBaseline, def.Name)
		}
		for _, r := range o.dispatcher.Dispatch(ctx, names) {
			out := outcomeOfExit(r)
			log.Infow("Baseline finished",
				logger.FieldBaseline, out.Name,
				logger.FieldState, out.State,
				logger.FieldExitCode, out.ExitCode,
			)
			summary.Outcomes = append(summary.Outcomes, out)
		}
	}

	log.Infow("Pass complete",
		logger.FieldCount, len(summary.Outcomes),
		"done", summary.Count(StateDone),
		"skipped", summary.Count(StateSkipped),
		"failed", summary.Count(StateFailed),
	)
	return summary, nil
}

// RunOne runs the single baseline called name in this process. It is the
// entry point of a dispatched child.
func (o *Orchestrator) RunOne(ctx context.Context, name string) (Result, error) {
	ctx = logger.WithRunID(ctx, o.opts.RunID)

	// LIKE treats _ and % as wildcards, so filter for the exact name
	defs, err := o.store.Discover(ctx, o.opts.Schema, name)
	if err != nil {
		return Result{Name: name}, errors.Wrapf(err, "discover baseline %s", name)
	}
	for _, def := range defs {
		if def.Name == name {
			return o.runInline(ctx, def), nil
		}
	}
	return Result{Name: name}, errors.WithHint(
		errors.Newf("baseline %s not found in %s", name, o.opts.Schema),
		"run `baseline list` to see discovered baselines")
}

func (o *Orchestrator) runInline(ctx context.Context, def db.Definition) Result {
	log := logger.FromContext(ctx, o.logger)
	log.Infow("Baseline started", logger.FieldBaseline, def.Name)

	res := o.pipeline.Run(ctx, def)

	log.Infow("Baseline finished",
		logger.FieldBaseline, def.Name,
		logger.FieldState, res.State,
		logger.FieldRows, res.Rows,
		logger.FieldDurationMS, res.Finished.Sub(res.Started).Milliseconds(),
	)
	o.record(ctx, res)
	return res
}

func (o *Orchestrator) record(ctx context.Context, res Result) {
	if o.history == nil {
		return
	}
	run := db.Run{
		RunID:      o.opts.RunID,
		Baseline:   res.Name,
		State:      string(res.State),
		Rows:       res.Rows,
		ErrorKind:  string(res.Kind()),
		StartedAt:  res.Started,
		FinishedAt: res.Finished,
	}
	if res.Err != nil {
		run.Message = res.Err.Error()
	}
	if err := o.history.Record(ctx, run); err != nil {
		o.logger.Warnw("Failed to record baseline run", logger.FieldBaseline, res.Name, logger.FieldError, err)
	}
}

// NewRunID returns a fresh pass identifier.
func NewRunID() string { return uuid.NewString() }

// ExitCode maps a pipeline result onto the child process exit protocol.
func ExitCode(res Result) int {
	switch res.State {
	case StateDone:
		return dispatch.ExitOK
	case StateSkipped:
		return dispatch.ExitSkipped
	default:
		return dispatch.ExitFailed
	}
}

func outcomeOf(res Result) Outcome {
	return Outcome{
		Name:     res.Name,
		State:    res.State,
		Rows:     res.Rows,
		ExitCode: ExitCode(res),
		Err:      res.Err,
		Duration: res.Finished.Sub(res.Started),
	}
}

func outcomeOfExit(r dispatch.Result) Outcome {
	out := Outcome{Name: r.Name, ExitCode: r.ExitCode, Err: r.Err, Duration: r.Duration}
	switch {
	case r.Err != nil:
		out.State = StateFailed
	case r.ExitCode == dispatch.ExitOK:
		out.State = StateDone
	case r.ExitCode == dispatch.ExitSkipped:
		out.State = StateSkipped
	default:
		out.State = StateFailed
		out.Err = errors.Newf("baseline %s exited with code %d", r.Name, r.ExitCode)
	}
	return out
}
