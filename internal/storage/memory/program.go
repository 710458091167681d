// Package memory provides in-process stores with the same upsert semantics
// as the PostgreSQL stores.
package memory

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"program_catalog/internal/domain"
)

type ProgramStore struct {
	mu       sync.RWMutex
	programs map[domain.ProgramKey]*domain.Program
	order    []domain.ProgramKey
}

func NewProgramStore() *ProgramStore {
	return &ProgramStore{programs: make(map[domain.ProgramKey]*domain.Program)}
}

// Upsert inserts a program or replaces every mutable field of the existing
// one. ID and RegisteredAt survive updates.
func (s *ProgramStore) Upsert(ctx context.Context, program *domain.Program) (domain.UpsertResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.UpsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := program.NaturalKey()
	stored := clone(program)
	if stored.LastSyncedAt.IsZero() {
		stored.LastSyncedAt = time.Now()
	}

	if existing, ok := s.programs[key]; ok {
		stored.ID = existing.ID
		stored.RegisteredAt = existing.RegisteredAt
		s.programs[key] = stored
		return domain.UpsertResult{ID: stored.ID, Inserted: false}, nil
	}

	stored.ID = uuid.New()
	stored.RegisteredAt = stored.LastSyncedAt
	s.programs[key] = stored
	s.order = append(s.order, key)
	return domain.UpsertResult{ID: stored.ID, Inserted: true}, nil
}

func (s *ProgramStore) Get(_ context.Context, ds domain.DataSource, sourceAPIID string) (*domain.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.programs[domain.ProgramKey{DataSource: ds, SourceAPIID: sourceAPIID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(p), nil
}

// List returns programs in registration order.
func (s *ProgramStore) List(_ context.Context, filter domain.ListFilter) ([]domain.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.Program
	skipped := 0
	for _, key := range s.order {
		if filter.DataSource != "" && key.DataSource != filter.DataSource {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		if filter.Limit > 0 && len(matched) == filter.Limit {
			break
		}
		matched = append(matched, *clone(s.programs[key]))
	}
	return matched, nil
}

func (s *ProgramStore) Count(_ context.Context, ds domain.DataSource) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if ds == "" {
		return len(s.programs), nil
	}
	n := 0
	for key := range s.programs {
		if key.DataSource == ds {
			n++
		}
	}
	return n, nil
}

func clone(p *domain.Program) *domain.Program {
	c := *p
	c.TargetAudience = slices.Clone(p.TargetAudience)
	c.TargetLocation = slices.Clone(p.TargetLocation)
	c.Keywords = slices.Clone(p.Keywords)
	c.RawData = maps.Clone(p.RawData)
	return &c
}
