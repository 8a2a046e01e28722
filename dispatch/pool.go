// Package dispatch fans baselines out to isolated worker processes and
// collects how each one exited.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/logger"
)

// Exit codes a baseline child process reports to its parent.
const (
	ExitOK      = 0
	ExitFailed  = 1
	ExitSkipped = 3
)

// Launcher runs one baseline to completion and reports its exit code.
type Launcher interface {
	Launch(ctx context.Context, name string) (exitCode int, err error)
}

// Result is how one dispatched baseline ended.
type Result struct {
	Name     string
	ExitCode int
	Err      error
	Duration time.Duration
}

// Failed reports whether the baseline did not finish cleanly. Skipped
// baselines are not failures.
func (r Result) Failed() bool {
	return r.Err != nil || (r.ExitCode != ExitOK && r.ExitCode != ExitSkipped)
}

// Config configures a Pool.
type Config struct {
	Workers          int     // concurrent children (default 1)
	LaunchPerSecond  float64 // child start rate; zero or less is unlimited
	MemoryPerChildGB float64 // expected peak memory of one child, for the pressure warning
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		LaunchPerSecond:  2,
		MemoryPerChildGB: 1,
	}
}

// Pool launches baselines with bounded concurrency and a launch rate limit.
type Pool struct {
	launcher Launcher
	workers  int
	limiter  *rate.Limiter
	memPer   float64
	logger   *zap.SugaredLogger

	// memoryStats is swapped in tests
	memoryStats func() (total, available uint64, err error)
}

// NewPool creates a pool around launcher.
func NewPool(launcher Launcher, cfg Config, log *zap.SugaredLogger) *Pool {
	if log == nil {
		log = logger.Logger
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	limit := rate.Inf
	if cfg.LaunchPerSecond > 0 {
		limit = rate.Limit(cfg.LaunchPerSecond)
	}
	memPer := cfg.MemoryPerChildGB
	if memPer <= 0 {
		memPer = DefaultConfig().MemoryPerChildGB
	}
	return &Pool{
		launcher:    launcher,
		workers:     workers,
		limiter:     rate.NewLimiter(limit, 1),
		memPer:      memPer,
		logger:      log.Named("dispatch"),
		memoryStats: virtualMemory,
	}
}

// Workers returns the number of concurrent children.
func (p *Pool) Workers() int { return p.workers }

// Dispatch runs every name and waits for all of them. Results are in the
// order of names. Cancelling ctx stops launches; baselines not yet started
// are reported with ctx's error.
func (p *Pool) Dispatch(ctx context.Context, names []string) []Result {
	results := make([]Result, len(names))
	if len(names) == 0 {
		return results
	}

	workers := min(p.workers, len(names))
	if warning := p.checkMemoryPressure(workers); warning != "" {
		p.logger.Warnw("Memory pressure warning", "warning", warning, logger.FieldWorkers, workers)
	}
	p.logger.Infow("Dispatching baselines", logger.FieldCount, len(names), logger.FieldWorkers, workers)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = p.launch(ctx, names[i])
			}
		}()
	}
	for i := range names {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	p.logger.Infow("Dispatch complete", logger.FieldCount, len(results), "failed", failed)
	return results
}

func (p *Pool) launch(ctx context.Context, name string) Result {
	if err := p.limiter.Wait(ctx); err != nil {
		return Result{Name: name, ExitCode: -1, Err: errors.Wrapf(err, "baseline %s not launched", name)}
	}

	start := time.Now()
	code, err := p.launcher.Launch(ctx, name)
	r := Result{Name: name, ExitCode: code, Err: err, Duration: time.Since(start)}

	fields := []any{
		logger.FieldBaseline, name,
		logger.FieldExitCode, code,
		logger.FieldDurationMS, r.Duration.Milliseconds(),
	}
	switch {
	case err != nil:
		p.logger.Errorw("Baseline process could not run", append(fields, logger.FieldError, err)...)
	case r.Failed():
		p.logger.Errorw("Baseline process failed", fields...)
	default:
		p.logger.Debugw("Baseline process exited", fields...)
	}
	return r
}

// checkMemoryPressure returns a warning when the worker count exceeds what
// available memory supports, or "" if it is fine or cannot be measured.
func (p *Pool) checkMemoryPressure(workers int) string {
	total, available, err := p.memoryStats()
	if err != nil {
		return ""
	}
	availableGB := float64(available) / 1024 / 1024 / 1024
	totalGB := float64(total) / 1024 / 1024 / 1024
	recommended := safeWorkerCount(availableGB, p.memPer)
	if workers > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB free). "+
				"Consider lowering dispatch.workers.",
			workers, recommended, availableGB, totalGB)
	}
	return ""
}

// safeWorkerCount leaves 1GB for the system and never recommends fewer than one.
func safeWorkerCount(availableGB, perChildGB float64) int {
	const reservedGB = 1.0
	if availableGB <= reservedGB {
		return 1
	}
	return max(1, int((availableGB-reservedGB)/perChildGB))
}

func virtualMemory() (uint64, uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}
