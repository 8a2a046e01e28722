package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/teranos/baseline/errors"
)

// timeLayout is fixed width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Run is one baseline's outcome within an orchestration pass.
type Run struct {
	ID         string
	RunID      string
	Baseline   string
	State      string
	Rows       int
	ErrorKind  string
	Message    string
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration is how long the baseline took.
func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// HistoryStore records runs in the baseline_runs table.
type HistoryStore struct {
	db *sql.DB
}

// NewHistoryStore creates a history store over db.
func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record inserts run, assigning an ID when it has none.
func (h *HistoryStore) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	_, err := h.db.ExecContext(ctx,
		`INSERT INTO baseline_runs (id, run_id, baseline, state, rows_written, error_kind, message, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.RunID, run.Baseline, run.State, run.Rows, run.ErrorKind, run.Message,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
	)
	return errors.Wrapf(err, "record run of %s", run.Baseline)
}

// Recent returns up to limit runs, newest first.
func (h *HistoryStore) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT id, run_id, baseline, state, rows_written, error_kind, message, started_at, finished_at
		 FROM baseline_runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query baseline_runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var started, finished string
		if err := rows.Scan(&r.ID, &r.RunID, &r.Baseline, &r.State, &r.Rows, &r.ErrorKind, &r.Message, &started, &finished); err != nil {
			return nil, errors.Wrap(err, "scan baseline_runs")
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, errors.Wrapf(err, "parse started_at of run %s", r.ID)
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, errors.Wrapf(err, "parse finished_at of run %s", r.ID)
		}
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "iterate baseline_runs")
}
