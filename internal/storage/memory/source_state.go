package memory

import (
	"context"
	"sync"

	"program_catalog/internal/domain"
)

type SourceStateStore struct {
	mu     sync.Mutex
	states map[domain.DataSource]domain.SourceState
	nextID int64
}

func NewSourceStateStore() *SourceStateStore {
	return &SourceStateStore{states: make(map[domain.DataSource]domain.SourceState)}
}

// Get returns an empty state for sources that have never synced.
func (s *SourceStateStore) Get(_ context.Context, source domain.DataSource) (*domain.SourceState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.states[source]; ok {
		return &st, nil
	}
	return &domain.SourceState{DataSource: source}, nil
}

func (s *SourceStateStore) Update(_ context.Context, state *domain.SourceState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := *state
	if existing, ok := s.states[st.DataSource]; ok {
		st.ID = existing.ID
	} else {
		s.nextID++
		st.ID = s.nextID
	}
	s.states[st.DataSource] = st
	return nil
}
