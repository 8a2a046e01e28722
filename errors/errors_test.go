package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrap(original, "wrapped")

	assert.Contains(t, wrapped.Error(), "wrapped")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestMarkKeepsCauseMessage(t *testing.T) {
	cause := New("no such table: auth_logs")
	err := Mark(Wrap(cause, "fetch log source"), ErrQuery)

	assert.True(t, Is(err, ErrQuery))
	assert.True(t, Is(err, cause))
	assert.False(t, Is(err, ErrPersist))
	assert.Equal(t, "fetch log source: no such table: auth_logs", err.Error())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"invalid metadata", InvalidMetadataf("missing key %q", "filter"), KindInvalidMetadata},
		{"unsafe template value", Wrap(ErrUnsafeTemplateValue, "THRESHOLD"), KindInvalidMetadata},
		{"invalid identifier", Wrap(ErrInvalidIdentifier, "logs; drop"), KindInvalidMetadata},
		{"query", Mark(New("boom"), ErrQuery), KindQuery},
		{"execution", Mark(New("R error"), ErrExecution), KindExecution},
		{"module not found", Wrap(ErrModuleNotFound, "zscore"), KindExecution},
		{"unknown backend", Wrap(ErrUnknownBackend, "julia"), KindExecution},
		{"persist", Mark(New("disk full"), ErrPersist), KindPersist},
		{"unknown", New("something else"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestWithHint(t *testing.T) {
	err := WithHint(ErrModuleNotFound, "check modules.dir")

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "check modules.dir", hints[0])
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
}

func ExampleClassify() {
	err := Mark(Wrap(New("connection reset"), "fetch log source"), ErrQuery)
	fmt.Println(Classify(err))
	// Output: query
}
