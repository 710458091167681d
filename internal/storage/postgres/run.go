package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"program_catalog/internal/domain"
)

// RunRecorder keeps the history of sync runs, one row per run plus one row
// per source result, written atomically.
type RunRecorder struct {
	db *sqlx.DB
	tx *TransactionManager
}

func NewRunRecorder(db *sqlx.DB, tx *TransactionManager) *RunRecorder {
	return &RunRecorder{db: db, tx: tx}
}

func (r *RunRecorder) Record(ctx context.Context, report *domain.SyncReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	return r.tx.WithTransaction(ctx, func(ctx context.Context) error {
		exec := executor(ctx, r.db)

		_, err := exec.ExecContext(ctx, `
			INSERT INTO sync_runs (
				id, state, total, succeeded, failed, program_count, soft_errors,
				started_at, finished_at, report
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			report.RunID,
			report.State,
			report.Total,
			report.Succeeded,
			report.Failed,
			report.ProgramCount,
			report.SoftErrors,
			report.StartedAt,
			report.FinishedAt,
			string(body),
		)
		if err != nil {
			return classify("insert sync run", err)
		}

		for _, res := range report.Results {
			_, err := exec.ExecContext(ctx, `
				INSERT INTO sync_run_sources (
					run_id, data_source, status, count, soft_errors, error, duration_ms
				) VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`,
				report.RunID,
				res.Source,
				res.Status,
				res.Count,
				res.SoftErrors,
				res.Error,
				res.DurationMs,
			)
			if err != nil {
				return classify("insert sync run source", err)
			}
		}
		return nil
	})
}

// LastReport returns the report of the most recently started run.
func (r *RunRecorder) LastReport(ctx context.Context) (*domain.SyncReport, error) {
	var body []byte
	err := r.db.GetContext(ctx, &body, `SELECT report FROM sync_runs ORDER BY started_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classify("get latest run", err)
	}

	var report domain.SyncReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &report, nil
}
