package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/pinaht/internal/domain"
	"github.com/google/uuid"
)

// MemoryRunStore keeps reports in process. Reports are stored as JSON so
// callers never share state with the store.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID][]byte
	sums map[uuid.UUID]domain.RunSummary
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{
		runs: make(map[uuid.UUID][]byte),
		sums: make(map[uuid.UUID]domain.RunSummary),
	}
}

func (s *MemoryRunStore) Save(_ context.Context, r *domain.RunReport) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = data
	s.sums[r.ID] = r.Summary()
	return nil
}

func (s *MemoryRunStore) GetByID(_ context.Context, id uuid.UUID) (*domain.RunReport, error) {
	s.mu.RLock()
	data, ok := s.runs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	r := &domain.RunReport{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return r, nil
}

// List returns the newest runs first.
func (s *MemoryRunStore) List(_ context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	out := make([]domain.RunSummary, 0, len(s.sums))
	for _, rs := range s.sums {
		out = append(out, rs)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

var _ domain.RunStore = (*MemoryRunStore)(nil)

func (s *MemoryRunStore) DeleteEndedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rs := range s.sums {
		if rs.EndedAt.Before(cutoff) {
			delete(s.sums, id)
			delete(s.runs, id)
			n++
		}
	}
	return n, nil
}
