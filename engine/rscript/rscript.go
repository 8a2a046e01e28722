// Package rscript evaluates modules with R, one Rscript child process per
// execution.
//
// The dataset and module source cross the process boundary as files: a small
// bridge script reads the dataset JSON, binds it as input_table in R's global
// environment, evaluates the module source there, and writes the value of its
// last expression back as {"column": {"row": value}} JSON.
package rscript

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"go.uber.org/zap"

	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/frame"
	"github.com/teranos/baseline/logger"
)

// Name is the backend name used in config and manifests.
const Name = "rscript"

// DefaultCommand runs R without reading profiles or saving a workspace.
const DefaultCommand = "Rscript --vanilla"

// maxStderr bounds how much of R's stderr is carried in an error.
const maxStderr = 4096

// waitDelay caps how long a killed R process may hold its stderr pipe open.
const waitDelay = 2 * time.Second

// bridge is passed to Rscript as the script to run:
//
//	Rscript bridge.R <input.json> <module.R> <output.json>
const bridge = `args <- commandArgs(trailingOnly = TRUE)
suppressPackageStartupMessages(library(jsonlite))
input <- fromJSON(args[[1]], simplifyVector = TRUE)
assign("input_table", as.data.frame(input, stringsAsFactors = FALSE, check.names = FALSE), envir = globalenv())
code <- paste(readLines(args[[2]], warn = FALSE), collapse = "\n")
result <- eval(parse(text = code), envir = globalenv())
result <- as.data.frame(result, stringsAsFactors = FALSE, check.names = FALSE)
out <- lapply(result, function(col) {
  col <- as.list(col)
  names(col) <- as.character(seq_along(col) - 1L)
  col
})
writeLines(toJSON(out, auto_unbox = TRUE, na = "null", null = "null", digits = NA, POSIXt = "ISO8601"), args[[3]])
`

// Config configures the Rscript backend.
type Config struct {
	// Command is the interpreter command line, split shell-style (default DefaultCommand)
	Command string

	// Timeout bounds one execution; zero waits indefinitely
	Timeout time.Duration

	// TempDir is where per-execution scratch directories go (default os.TempDir())
	TempDir string
}

// Backend runs modules through Rscript.
type Backend struct {
	argv    []string
	timeout time.Duration
	tempDir string
	logger  *zap.SugaredLogger
}

// New creates an Rscript backend.
func New(cfg Config, log *zap.SugaredLogger) (*Backend, error) {
	command := cfg.Command
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, errors.Wrapf(err, "parse rscript command %q", command)
	}
	if len(argv) == 0 {
		return nil, errors.Newf("rscript command %q is empty", command)
	}
	if log == nil {
		log = logger.Logger
	}
	return &Backend{
		argv:    argv,
		timeout: cfg.Timeout,
		tempDir: cfg.TempDir,
		logger:  log.Named("rscript"),
	}, nil
}

// Name returns the backend identifier
func (b *Backend) Name() string { return Name }

// Extension returns the module source extension
func (b *Backend) Extension() string { return "R" }

// Execute evaluates code in a fresh R process with input bound as input_table.
func (b *Backend) Execute(ctx context.Context, code string, input frame.Columnar) (*frame.Output, error) {
	dir, err := os.MkdirTemp(b.tempDir, "baseline-rscript-")
	if err != nil {
		return nil, errors.Wrap(err, "create scratch dir")
	}
	defer os.RemoveAll(dir)

	var (
		bridgePath = filepath.Join(dir, "bridge.R")
		inputPath  = filepath.Join(dir, "input.json")
		codePath   = filepath.Join(dir, "module.R")
		outputPath = filepath.Join(dir, "output.json")
	)

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, errors.Wrap(err, "encode input table")
	}
	for path, content := range map[string][]byte{
		bridgePath: []byte(bridge),
		inputPath:  inputJSON,
		codePath:   []byte(code),
	} {
		if err := os.WriteFile(path, content, 0o600); err != nil {
			return nil, errors.Wrapf(err, "write %s", filepath.Base(path))
		}
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	args := append(append([]string{}, b.argv[1:]...), bridgePath, inputPath, codePath, outputPath)
	cmd := exec.CommandContext(ctx, b.argv[0], args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	b.logger.Debugw("Starting R", "argv", cmd.Args, logger.FieldRows, input.Len())
	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrapf(err, "R timed out after %v", b.timeout)
		}
		return nil, errors.WithDetail(
			errors.Wrapf(err, "R failed: %s", tail(stderr.String())),
			stderr.String())
	}
	b.logger.Debugw("R finished", logger.FieldDurationMS, time.Since(start).Milliseconds())

	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, errors.Wrap(err, "R wrote no output")
	}
	var out frame.Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "decode R output")
	}
	return &out, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		s = "..." + s[len(s)-maxStderr:]
	}
	return s
}
