package dispatch

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/logger"
)

// ProcessLauncher re-executes a binary once per baseline:
//
//	<Executable> <Args...> --only <name>
type ProcessLauncher struct {
	Executable string
	Args       []string
	Env        []string  // appended to the parent's environment
	Stderr     io.Writer // child stderr; defaults to the parent's stderr

	logger *zap.SugaredLogger
}

// NewProcessLauncher launches children of executable, or of the running
// binary when executable is empty.
func NewProcessLauncher(executable string, args []string, log *zap.SugaredLogger) (*ProcessLauncher, error) {
	if executable == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "locate own executable")
		}
		executable = self
	}
	if log == nil {
		log = logger.Logger
	}
	return &ProcessLauncher{
		Executable: executable,
		Args:       args,
		logger:     log.Named("dispatch"),
	}, nil
}

// Launch starts the child and waits for it. A non-zero exit is reported as
// the exit code with a nil error; err is only set when the child could not
// be run or was killed.
func (l *ProcessLauncher) Launch(ctx context.Context, name string) (int, error) {
	args := append(append([]string{}, l.Args...), "--only", name)
	cmd := exec.CommandContext(ctx, l.Executable, args...)
	cmd.Env = append(os.Environ(), l.Env...)
	stdout := &lineLogger{logger: l.logger, name: name}
	cmd.Stdout = stdout
	cmd.Stderr = l.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return -1, errors.Wrapf(err, "failed to start baseline %s (binary=%s, args=%v)", name, l.Executable, args)
	}
	l.logger.Debugw("Baseline process started", logger.FieldBaseline, name, logger.FieldPID, cmd.Process.Pid)

	err := cmd.Wait()
	stdout.flush()
	if err == nil {
		return ExitOK, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		if code := exitErr.ExitCode(); code >= 0 {
			return code, nil
		}
	}
	return -1, errors.Wrapf(err, "baseline %s process", name)
}

// lineLogger logs a child's stdout line by line.
type lineLogger struct {
	logger *zap.SugaredLogger
	name   string

	mu  sync.Mutex
	buf strings.Builder
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		line, rest, found := strings.Cut(l.buf.String(), "\n")
		if !found {
			break
		}
		l.buf.Reset()
		l.buf.WriteString(rest)
		l.log(line)
	}
	return len(p), nil
}

// flush logs a trailing line the child left unterminated.
func (l *lineLogger) flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log(l.buf.String())
	l.buf.Reset()
}

func (l *lineLogger) log(line string) {
	if line = strings.TrimSpace(line); line != "" {
		l.logger.Infow("Baseline output", logger.FieldBaseline, l.name, "message", line)
	}
}
