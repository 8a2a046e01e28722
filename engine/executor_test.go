package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/baseline/engine"
	"github.com/teranos/baseline/engine/enginetest"
	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/frame"
	"github.com/teranos/baseline/module"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newExecutor(t *testing.T, base string, backends ...engine.Backend) *engine.Executor {
	t.Helper()
	registry := engine.NewRegistry()
	for _, b := range backends {
		registry.Register(b)
	}
	return engine.NewExecutor(module.NewLoader(base), registry, "echo", zap.NewNop().Sugar())
}

func TestExecutorPrepareAndRun(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "spike", "spike.R"), "limit <- LIMIT\ninput_table\n")

	echo := &enginetest.Echo{}
	exec := newExecutor(t, base, echo)

	prepared, err := exec.Prepare("spike", map[string]string{"LIMIT": "3"})
	require.NoError(t, err)
	assert.Equal(t, "limit <- 3\ninput_table\n", prepared.Code)
	assert.Equal(t, "echo", prepared.Backend.Name())

	input := frame.Pack([]frame.Record{{"a": 1, "b": "x"}})
	out, err := exec.Run(context.Background(), prepared, input)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Columns())
	assert.Equal(t, prepared.Code, echo.LastCode)
}

func TestExecutorManifestPinsBackend(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "wasmy", "wasmy.stat"), "input_table")
	writeFile(t, filepath.Join(base, "wasmy", module.ManifestFile), `engine = "other"`)

	other := &enginetest.Echo{BackendName: "other", Ext: "stat"}
	exec := newExecutor(t, base, &enginetest.Echo{}, other)

	prepared, err := exec.Prepare("wasmy", nil)
	require.NoError(t, err)
	assert.Equal(t, "other", prepared.Backend.Name())
}

func TestExecutorUnknownBackend(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "m", module.ManifestFile), `engine = "julia"`)

	_, err := newExecutor(t, base, &enginetest.Echo{}).Prepare("m", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnknownBackend))
}

func TestExecutorMissingModule(t *testing.T) {
	_, err := newExecutor(t, t.TempDir(), &enginetest.Echo{}).Prepare("nope", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrModuleNotFound))
}

func TestExecutorUnsafeValue(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "m", "m.R"), "x <- V")

	_, err := newExecutor(t, base, &enginetest.Echo{}).Prepare("m", map[string]string{"V": "1; q()"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnsafeTemplateValue))
}

func TestExecutorRunMarksFaults(t *testing.T) {
	base := t.TempDir()
	writeFile(t, filepath.Join(base, "m", "m.R"), "stop('boom')")

	failing := &enginetest.Func{
		BackendName: "echo",
		Ext:         "R",
		Fn: func(ctx context.Context, code string, input frame.Columnar) (*frame.Output, error) {
			return nil, errors.New("Error in eval: boom")
		},
	}
	exec := newExecutor(t, base, failing)

	prepared, err := exec.Prepare("m", nil)
	require.NoError(t, err)

	_, err = exec.Run(context.Background(), prepared, frame.Columnar{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExecution))
	assert.Contains(t, err.Error(), "boom")
}

func TestRegistry(t *testing.T) {
	r := engine.NewRegistry()
	r.Register(&enginetest.Echo{BackendName: "b"})
	r.Register(&enginetest.Echo{BackendName: "a"})

	assert.True(t, r.Has("a"))
	assert.False(t, r.Has("c"))
	assert.Equal(t, []string{"a", "b"}, r.Names())

	assert.Panics(t, func() { r.Register(&enginetest.Echo{BackendName: "a"}) })
}
