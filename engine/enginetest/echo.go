// Package enginetest provides in-process backends for tests.
package enginetest

import (
	"context"
	"sync"

	"github.com/teranos/baseline/frame"
)

// Echo returns input_table unchanged, whatever the code says.
// It records the last code and input it saw.
type Echo struct {
	BackendName string // defaults to "echo"
	Ext         string // defaults to "R"

	mu        sync.Mutex
	LastCode  string
	LastInput frame.Columnar
	Calls     int
}

func (e *Echo) Name() string {
	if e.BackendName == "" {
		return "echo"
	}
	return e.BackendName
}

func (e *Echo) Extension() string {
	if e.Ext == "" {
		return "R"
	}
	return e.Ext
}

func (e *Echo) Execute(ctx context.Context, code string, input frame.Columnar) (*frame.Output, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.LastCode = code
	e.LastInput = input
	e.Calls++
	return frame.FromColumnar(input), nil
}

// Func adapts a function into a backend.
type Func struct {
	BackendName string
	Ext         string
	Fn          func(ctx context.Context, code string, input frame.Columnar) (*frame.Output, error)
}

func (f *Func) Name() string      { return f.BackendName }
func (f *Func) Extension() string { return f.Ext }

func (f *Func) Execute(ctx context.Context, code string, input frame.Columnar) (*frame.Output, error) {
	return f.Fn(ctx, code, input)
}
