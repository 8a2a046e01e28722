package dispatch

import (
	"context"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/baseline/errors"
)

// fakeLauncher returns a fixed exit code per name and tracks concurrency.
type fakeLauncher struct {
	codes map[string]int
	errs  map[string]error
	delay time.Duration

	mu       sync.Mutex
	running  int
	peak     int
	launched []string
}

func (f *fakeLauncher) Launch(ctx context.Context, name string) (int, error) {
	f.mu.Lock()
	f.running++
	f.peak = max(f.peak, f.running)
	f.launched = append(f.launched, name)
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.running--
	f.mu.Unlock()
	return f.codes[name], f.errs[name]
}

func newTestPool(l Launcher, cfg Config) *Pool {
	p := NewPool(l, cfg, zap.NewNop().Sugar())
	p.memoryStats = func() (uint64, uint64, error) { return 64 << 30, 32 << 30, nil }
	return p
}

func TestDispatchCollectsExitCodes(t *testing.T) {
	l := &fakeLauncher{
		codes: map[string]int{"A": ExitOK, "B": ExitFailed, "C": ExitSkipped},
		errs:  map[string]error{"D": errors.New("exec format error")},
	}
	p := newTestPool(l, Config{Workers: 2})

	results := p.Dispatch(context.Background(), []string{"A", "B", "C", "D"})
	require.Len(t, results, 4)

	assert.Equal(t, "A", results[0].Name)
	assert.False(t, results[0].Failed())
	assert.Equal(t, ExitFailed, results[1].ExitCode)
	assert.True(t, results[1].Failed())
	assert.False(t, results[2].Failed(), "skipped is not a failure")
	assert.True(t, results[3].Failed())
	assert.ErrorContains(t, results[3].Err, "exec format error")
}

func TestDispatchBoundsConcurrency(t *testing.T) {
	l := &fakeLauncher{delay: 20 * time.Millisecond}
	p := newTestPool(l, Config{Workers: 3})

	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	results := p.Dispatch(context.Background(), names)

	assert.Len(t, results, len(names))
	assert.LessOrEqual(t, l.peak, 3)
	assert.ElementsMatch(t, names, l.launched)
}

func TestDispatchRateLimit(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, Config{Workers: 4, LaunchPerSecond: 20})

	start := time.Now()
	p.Dispatch(context.Background(), []string{"a", "b", "c", "d", "e"})
	// burst of one, then 50ms per launch
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestDispatchCancelled(t *testing.T) {
	l := &fakeLauncher{}
	p := newTestPool(l, Config{Workers: 1, LaunchPerSecond: 0.001})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := p.Dispatch(ctx, []string{"a", "b"})

	for _, r := range results {
		assert.True(t, r.Failed())
		assert.Error(t, r.Err)
	}
	assert.Empty(t, l.launched)
}

func TestDispatchEmpty(t *testing.T) {
	assert.Empty(t, newTestPool(&fakeLauncher{}, Config{}).Dispatch(context.Background(), nil))
}

func TestMemoryPressure(t *testing.T) {
	p := newTestPool(&fakeLauncher{}, Config{Workers: 8, MemoryPerChildGB: 2})
	p.memoryStats = func() (uint64, uint64, error) { return 16 << 30, 5 << 30, nil }

	assert.Contains(t, p.checkMemoryPressure(8), "exceeds recommended (2)")
	assert.Empty(t, p.checkMemoryPressure(2))

	p.memoryStats = func() (uint64, uint64, error) { return 0, 0, errors.New("unsupported") }
	assert.Empty(t, p.checkMemoryPressure(100))
}

func TestSafeWorkerCount(t *testing.T) {
	assert.Equal(t, 1, safeWorkerCount(0.5, 1))
	assert.Equal(t, 1, safeWorkerCount(1.5, 1))
	assert.Equal(t, 7, safeWorkerCount(8, 1))
	assert.Equal(t, 3, safeWorkerCount(8, 2))
}

func TestProcessLauncher(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	ctx := context.Background()

	t.Run("passes the baseline name", func(t *testing.T) {
		l, err := NewProcessLauncher("/bin/sh", []string{"-c", `[ "$1" = --only ] && [ "$2" = LOGIN_BASELINE ] || exit 9`, "sh"}, nil)
		require.NoError(t, err)

		code, err := l.Launch(ctx, "LOGIN_BASELINE")
		require.NoError(t, err)
		assert.Equal(t, ExitOK, code)
	})

	t.Run("reports exit codes", func(t *testing.T) {
		l, err := NewProcessLauncher("/bin/sh", []string{"-c", "exit 3", "sh"}, nil)
		require.NoError(t, err)

		code, err := l.Launch(ctx, "X")
		require.NoError(t, err)
		assert.Equal(t, ExitSkipped, code)
	})

	t.Run("missing binary", func(t *testing.T) {
		l, err := NewProcessLauncher("/nonexistent/baseline", nil, nil)
		require.NoError(t, err)

		code, err := l.Launch(ctx, "X")
		require.Error(t, err)
		assert.Equal(t, -1, code)
	})

	t.Run("logs stdout lines", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l, err := NewProcessLauncher("/bin/sh", []string{"-c", `printf 'one\ntwo\n'`, "sh"}, zap.New(core).Sugar())
		require.NoError(t, err)

		_, err = l.Launch(ctx, "X")
		require.NoError(t, err)

		out := logs.FilterMessage("Baseline output").All()
		require.Len(t, out, 2)
		assert.Equal(t, "one", out[0].ContextMap()["message"])
		assert.Equal(t, "X", out[1].ContextMap()["baseline"])
	})

	t.Run("logs an unterminated last line", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l, err := NewProcessLauncher("/bin/sh", []string{"-c", `printf 'one\nrows=3'; exit 3`, "sh"}, zap.New(core).Sugar())
		require.NoError(t, err)

		code, err := l.Launch(ctx, "X")
		require.NoError(t, err)
		assert.Equal(t, ExitSkipped, code)

		out := logs.FilterMessage("Baseline output").All()
		require.Len(t, out, 2)
		assert.Equal(t, "rows=3", out[1].ContextMap()["message"])
	})

	t.Run("defaults to own executable", func(t *testing.T) {
		l, err := NewProcessLauncher("", nil, nil)
		require.NoError(t, err)
		assert.NotEmpty(t, l.Executable)
	})
}
