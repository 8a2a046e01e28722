package wasm

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teranos/baseline/frame"
)

// Hand-assembled modules exporting a single _start function.
var (
	// _start: end
	emptyStart = []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
		0x03, 0x02, 0x01, 0x00,
		0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,
		0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
	}

	// _start: unreachable; end
	trappingStart = []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
		0x03, 0x02, 0x01, 0x00,
		0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,
		0x0a, 0x05, 0x01, 0x03, 0x00, 0x00, 0x0b,
	}
)

func newBackend(t *testing.T, wasmBytes []byte, cfg Config) *Backend {
	t.Helper()
	ctx := context.Background()
	b, err := NewFromBytes(ctx, wasmBytes, cfg, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close(ctx) })
	return b
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "R", newBackend(t, emptyStart, Config{}).Extension())
	assert.Equal(t, "py", newBackend(t, emptyStart, Config{Extension: ".py"}).Extension())
	assert.Equal(t, "wasm", newBackend(t, emptyStart, Config{}).Name())
}

func TestNewRejectsGarbage(t *testing.T) {
	_, err := NewFromBytes(context.Background(), []byte("not wasm"), Config{}, nil)
	assert.Error(t, err)
}

func TestNewRequiresRuntimePath(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Runtime: filepath.Join(t.TempDir(), "missing.wasm")}, nil)
	assert.Error(t, err)
}

func TestNewFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interp.wasm")
	require.NoError(t, os.WriteFile(path, emptyStart, 0o644))

	b, err := New(context.Background(), Config{Runtime: path}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Close(context.Background()))
}

func TestExecuteWithoutOutput(t *testing.T) {
	b := newBackend(t, emptyStart, Config{})

	_, err := b.Execute(context.Background(), "input_table", frame.Columnar{"a": {1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no output")
}

func TestExecuteTrap(t *testing.T) {
	b := newBackend(t, trappingStart, Config{})

	_, err := b.Execute(context.Background(), "input_table", frame.Columnar{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wasm module failed")
}

func TestRequestEncoding(t *testing.T) {
	data, err := json.Marshal(Request{Code: "x", InputTable: frame.Columnar{"a": {1, nil}}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"x","input_table":{"a":[1,null]}}`, string(data))
}

// An interpreter that echoes input_table can be supplied for a full
// round trip through a real runtime.
func TestExecuteWithInterpreter(t *testing.T) {
	path := os.Getenv("BASELINE_TEST_WASM_RUNTIME")
	if path == "" {
		t.Skip("BASELINE_TEST_WASM_RUNTIME not set")
	}
	b, err := New(context.Background(), Config{Runtime: path}, nil)
	require.NoError(t, err)
	defer b.Close(context.Background())

	out, err := b.Execute(context.Background(), "input_table", frame.Columnar{"a": {1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []frame.Tuple{{int64(1)}, {int64(2)}}, frame.Unpack(out))
}
