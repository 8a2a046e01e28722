package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/baseline/errors"
)

func TestHistoryStore(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteSession(t)
	h := NewHistoryStore(s.DB())

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, h.Record(ctx, Run{
		RunID: "pass-1", Baseline: "LOGIN_BASELINE", State: "done", Rows: 3,
		StartedAt: base, FinishedAt: base.Add(1500 * time.Millisecond),
	}))
	require.NoError(t, h.Record(ctx, Run{
		RunID: "pass-1", Baseline: "EGRESS_BASELINE", State: "failed", ErrorKind: "query",
		Message: "no such table: egress", StartedAt: base.Add(time.Second), FinishedAt: base.Add(2 * time.Second),
	}))

	runs, err := h.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, "EGRESS_BASELINE", runs[0].Baseline, "newest first")
	assert.Equal(t, "query", runs[0].ErrorKind)
	assert.NotEmpty(t, runs[0].ID)

	assert.Equal(t, "LOGIN_BASELINE", runs[1].Baseline)
	assert.Equal(t, 3, runs[1].Rows)
	assert.Equal(t, base, runs[1].StartedAt)
	assert.Equal(t, 1500*time.Millisecond, runs[1].Duration())

	limited, err := h.Recent(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestHistoryStoreRecordFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO baseline_runs").WillReturnError(errors.New("disk I/O error"))

	err = NewHistoryStore(db).Record(context.Background(), Run{Baseline: "X"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record run of X")
}
