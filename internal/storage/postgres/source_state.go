package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"program_catalog/internal/domain"
)

type SourceStateStore struct {
	db *sqlx.DB
}

func NewSourceStateStore(db *sqlx.DB) *SourceStateStore {
	return &SourceStateStore{db: db}
}

func (s *SourceStateStore) Get(ctx context.Context, source domain.DataSource) (*domain.SourceState, error) {
	var state domain.SourceState
	query := `
		SELECT id, data_source, last_synced_at, last_status, last_error, total_synced
		FROM source_state
		WHERE data_source = $1`

	err := s.db.GetContext(ctx, &state, query, source)
	if errors.Is(err, sql.ErrNoRows) {
		// Never synced
		return &domain.SourceState{DataSource: source}, nil
	}
	if err != nil {
		return nil, classify("get source state", err)
	}
	return &state, nil
}

func (s *SourceStateStore) Update(ctx context.Context, state *domain.SourceState) error {
	query := `
		INSERT INTO source_state (data_source, last_synced_at, last_status, last_error, total_synced)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (data_source) DO UPDATE SET
			last_synced_at = EXCLUDED.last_synced_at,
			last_status = EXCLUDED.last_status,
			last_error = EXCLUDED.last_error,
			total_synced = EXCLUDED.total_synced`

	_, err := s.db.ExecContext(ctx, query,
		state.DataSource,
		state.LastSyncedAt,
		state.LastStatus,
		state.LastError,
		state.TotalSynced,
	)
	if err != nil {
		return classify("update source state", err)
	}
	return nil
}
