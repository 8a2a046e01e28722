package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings.
const (
	// Identity and context
	FieldRunID    = "run_id"
	FieldBaseline = "baseline"
	FieldModule   = "module"
	FieldBackend  = "backend"

	// Components
	FieldComponent = "component"

	// Pipeline
	FieldState     = "state"
	FieldSource    = "log_source"
	FieldQuery     = "query"
	FieldTable     = "table"
	FieldRows      = "rows"
	FieldColumns   = "columns"
	FieldMetadata  = "metadata"
	FieldErrorKind = "error_kind"

	// Timing
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Counts
	FieldCount = "count"

	// Processes
	FieldPID      = "pid"
	FieldExitCode = "exit_code"
	FieldWorkers  = "workers"
)

type contextKey string

const (
	runIDKey     contextKey = "logger_run_id"
	baselineKey  contextKey = "logger_baseline"
	componentKey contextKey = "logger_component"
)

// WithRunID adds an orchestration run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithBaseline adds a baseline name to the context for logging
func WithBaseline(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, baselineKey, name)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// RunIDFromContext returns the run ID stored by WithRunID, or "".
func RunIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey).(string)
	return runID
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if name, ok := ctx.Value(baselineKey).(string); ok && name != "" {
		fields = append(fields, FieldBaseline, name)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base enriched with the fields carried by ctx.
// A nil base falls back to the global Logger.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type Orchestrator struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewOrchestrator() *Orchestrator {
//	    return &Orchestrator{
//	        logger: logger.ComponentLogger("baseline.orchestrator"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
