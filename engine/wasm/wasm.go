// Package wasm evaluates modules with a statistical interpreter compiled to
// WebAssembly (WASI preview 1), run in-process on wazero.
//
// Each execution instantiates the interpreter afresh. It reads one JSON
// request from stdin:
//
//	{"code": "<module source>", "input_table": {"col": [v, ...]}}
//
// and writes the result to stdout as {"col": {"row": value}} or {"col": [v, ...]}.
package wasm

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/frame"
	"github.com/teranos/baseline/logger"
)

// Name is the backend name used in config and manifests.
const Name = "wasm"

// DefaultExtension is the module source extension when none is configured.
const DefaultExtension = "R"

// Config configures the WebAssembly backend.
type Config struct {
	// Runtime is the path to the interpreter .wasm file
	Runtime string

	// Extension is the module source extension the interpreter understands
	Extension string

	// Timeout bounds one execution; zero waits indefinitely
	Timeout time.Duration
}

// Request is what the interpreter reads from stdin.
type Request struct {
	Code       string         `json:"code"`
	InputTable frame.Columnar `json:"input_table"`
}

// Backend runs modules inside a compiled WASI interpreter.
type Backend struct {
	runtime   wazero.Runtime
	compiled  wazero.CompiledModule
	extension string
	timeout   time.Duration
	logger    *zap.SugaredLogger
}

// New reads and compiles the interpreter at cfg.Runtime.
func New(ctx context.Context, cfg Config, log *zap.SugaredLogger) (*Backend, error) {
	if cfg.Runtime == "" {
		return nil, errors.New("wasm runtime path is not configured")
	}
	wasmBytes, err := os.ReadFile(cfg.Runtime)
	if err != nil {
		return nil, errors.Wrapf(err, "read wasm runtime %s", cfg.Runtime)
	}
	b, err := NewFromBytes(ctx, wasmBytes, cfg, log)
	if err != nil {
		return nil, errors.Wrapf(err, "load wasm runtime %s", cfg.Runtime)
	}
	return b, nil
}

// NewFromBytes compiles an interpreter already in memory.
func NewFromBytes(ctx context.Context, wasmBytes []byte, cfg Config, log *zap.SugaredLogger) (*Backend, error) {
	if log == nil {
		log = logger.Logger
	}
	ext := strings.TrimPrefix(cfg.Extension, ".")
	if ext == "" {
		ext = DefaultExtension
	}

	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, errors.Wrap(err, "failed to instantiate WASI")
	}
	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, errors.Wrap(err, "failed to compile WASM module")
	}

	return &Backend{
		runtime:   r,
		compiled:  compiled,
		extension: ext,
		timeout:   cfg.Timeout,
		logger:    log.Named("wasm"),
	}, nil
}

// Name returns the backend identifier
func (b *Backend) Name() string { return Name }

// Extension returns the module source extension
func (b *Backend) Extension() string { return b.extension }

// Execute runs the interpreter once with code and input on stdin.
func (b *Backend) Execute(ctx context.Context, code string, input frame.Columnar) (*frame.Output, error) {
	request, err := json.Marshal(Request{Code: code, InputTable: input})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal request")
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	config := wazero.NewModuleConfig().
		WithName("").
		WithArgs("baseline-module").
		WithStdin(bytes.NewReader(request)).
		WithStdout(&stdout).
		WithStderr(&stderr)

	start := time.Now()
	mod, err := b.runtime.InstantiateModule(ctx, b.compiled, config)
	if mod != nil {
		defer mod.Close(ctx)
	}
	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			if ctx.Err() == context.DeadlineExceeded {
				return nil, errors.Wrapf(err, "wasm module timed out after %v", b.timeout)
			}
			return nil, errors.WithDetail(
				errors.Wrapf(err, "wasm module failed: %s", strings.TrimSpace(stderr.String())),
				stderr.String())
		}
	}
	b.logger.Debugw("WASM module finished", logger.FieldDurationMS, time.Since(start).Milliseconds())

	if len(bytes.TrimSpace(stdout.Bytes())) == 0 {
		return nil, errors.New("wasm module wrote no output")
	}
	var out frame.Output
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, errors.Wrap(err, "failed to parse wasm module output")
	}
	return &out, nil
}

// Close releases the runtime and compiled interpreter.
func (b *Backend) Close(ctx context.Context) error {
	return b.runtime.Close(ctx)
}
