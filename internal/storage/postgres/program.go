package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"program_catalog/internal/domain"
)

type ProgramStore struct {
	db *sqlx.DB
}

func NewProgramStore(db *sqlx.DB) *ProgramStore {
	return &ProgramStore{db: db}
}

const programColumns = `id, data_source, source_api_id, title, description, category,
	target_audience, target_location, keywords, budget_range, deadline, start_date, end_date,
	source_url, attachment_url, raw_data, registered_at, last_synced_at, sync_status`

type programRow struct {
	ID             uuid.UUID      `db:"id"`
	DataSource     string         `db:"data_source"`
	SourceAPIID    string         `db:"source_api_id"`
	Title          string         `db:"title"`
	Description    *string        `db:"description"`
	Category       *string        `db:"category"`
	TargetAudience pq.StringArray `db:"target_audience"`
	TargetLocation pq.StringArray `db:"target_location"`
	Keywords       pq.StringArray `db:"keywords"`
	BudgetRange    *string        `db:"budget_range"`
	Deadline       *time.Time     `db:"deadline"`
	StartDate      *time.Time     `db:"start_date"`
	EndDate        *time.Time     `db:"end_date"`
	SourceURL      *string        `db:"source_url"`
	AttachmentURL  *string        `db:"attachment_url"`
	RawData        []byte         `db:"raw_data"`
	RegisteredAt   time.Time      `db:"registered_at"`
	LastSyncedAt   time.Time      `db:"last_synced_at"`
	SyncStatus     string         `db:"sync_status"`
}

func (r programRow) toDomain() (domain.Program, error) {
	p := domain.Program{
		ID:             r.ID,
		DataSource:     domain.DataSource(r.DataSource),
		SourceAPIID:    r.SourceAPIID,
		Title:          r.Title,
		Description:    r.Description,
		Category:       r.Category,
		TargetAudience: []string(r.TargetAudience),
		TargetLocation: []string(r.TargetLocation),
		Keywords:       []string(r.Keywords),
		BudgetRange:    r.BudgetRange,
		Deadline:       r.Deadline,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		SourceURL:      r.SourceURL,
		AttachmentURL:  r.AttachmentURL,
		RegisteredAt:   r.RegisteredAt,
		LastSyncedAt:   r.LastSyncedAt,
		SyncStatus:     domain.ProgramStatus(r.SyncStatus),
	}
	if len(r.RawData) > 0 {
		if err := json.Unmarshal(r.RawData, &p.RawData); err != nil {
			return domain.Program{}, fmt.Errorf("decode raw_data: %w", err)
		}
	}
	return p, nil
}

// Upsert writes a program keyed by (data_source, source_api_id). registered_at
// is only set on insert.
func (s *ProgramStore) Upsert(ctx context.Context, program *domain.Program) (domain.UpsertResult, error) {
	query := `
		INSERT INTO programs (` + programColumns + `)
		VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19
		)
		ON CONFLICT (data_source, source_api_id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			category = EXCLUDED.category,
			target_audience = EXCLUDED.target_audience,
			target_location = EXCLUDED.target_location,
			keywords = EXCLUDED.keywords,
			budget_range = EXCLUDED.budget_range,
			deadline = EXCLUDED.deadline,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			source_url = EXCLUDED.source_url,
			attachment_url = EXCLUDED.attachment_url,
			raw_data = EXCLUDED.raw_data,
			last_synced_at = EXCLUDED.last_synced_at,
			sync_status = EXCLUDED.sync_status
		RETURNING id, (xmax = 0) AS inserted`

	rawData, err := json.Marshal(program.RawData)
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("encode raw_data: %w", err)
	}

	syncedAt := program.LastSyncedAt
	if syncedAt.IsZero() {
		syncedAt = time.Now()
	}
	status := program.SyncStatus
	if status == "" {
		status = domain.ProgramActive
	}

	var result domain.UpsertResult
	err = s.db.QueryRowContext(ctx, query,
		uuid.New(),
		program.DataSource,
		program.SourceAPIID,
		program.Title,
		program.Description,
		program.Category,
		pq.Array(nonNil(program.TargetAudience)),
		pq.Array(nonNil(program.TargetLocation)),
		pq.Array(nonNil(program.Keywords)),
		program.BudgetRange,
		program.Deadline,
		program.StartDate,
		program.EndDate,
		program.SourceURL,
		program.AttachmentURL,
		string(rawData),
		syncedAt,
		syncedAt,
		status,
	).Scan(&result.ID, &result.Inserted)
	if err != nil {
		return domain.UpsertResult{}, classify("upsert program", err)
	}

	return result, nil
}

func (s *ProgramStore) Get(ctx context.Context, ds domain.DataSource, sourceAPIID string) (*domain.Program, error) {
	query := `SELECT ` + programColumns + ` FROM programs WHERE data_source = $1 AND source_api_id = $2`

	var row programRow
	err := s.db.GetContext(ctx, &row, query, ds, sourceAPIID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, classify("get program", err)
	}

	p, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns programs in registration order. A zero limit returns all rows.
func (s *ProgramStore) List(ctx context.Context, filter domain.ListFilter) ([]domain.Program, error) {
	query := `
		SELECT ` + programColumns + `
		FROM programs
		WHERE ($1::text = '' OR data_source = $1)
		ORDER BY registered_at, id
		LIMIT NULLIF($2, 0) OFFSET $3`

	var rows []programRow
	if err := s.db.SelectContext(ctx, &rows, query, string(filter.DataSource), filter.Limit, filter.Offset); err != nil {
		return nil, classify("list programs", err)
	}

	programs := make([]domain.Program, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		programs = append(programs, p)
	}
	return programs, nil
}

func (s *ProgramStore) Count(ctx context.Context, ds domain.DataSource) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM programs WHERE ($1::text = '' OR data_source = $1)`,
		string(ds),
	)
	if err != nil {
		return 0, classify("count programs", err)
	}
	return n, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
