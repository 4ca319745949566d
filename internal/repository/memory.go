package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hseptw.io/ptw/internal/domain"
)

// MemoryStore is a Repository held in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]domain.Record
	refs    map[string]string // reference number -> id
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]domain.Record),
		refs:    make(map[string]string),
	}
}

// Create implements Repository.
func (s *MemoryStore) Create(_ context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := rec.Header()
	if _, ok := s.records[h.ID]; ok {
		return fmt.Errorf("create %s: %w", h.ID, ErrDuplicate)
	}
	if err := s.claimReference(h.ID, h.ReferenceNumber); err != nil {
		return err
	}
	h.Version = 1
	s.records[h.ID] = rec.Clone()
	return nil
}

// Load implements Repository.
func (s *MemoryStore) Load(_ context.Context, id string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("load %s: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

// Save implements Repository.
func (s *MemoryStore) Save(_ context.Context, rec domain.Record, expect Precondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := rec.Header()
	cur, ok := s.records[h.ID]
	if !ok {
		return fmt.Errorf("save %s: %w", h.ID, ErrNotFound)
	}
	ch := cur.Header()
	if ch.Status != expect.Status || ch.Version != expect.Version {
		return fmt.Errorf("save %s: %w", h.ID, ErrConflict)
	}
	if err := s.claimReference(h.ID, h.ReferenceNumber); err != nil {
		return err
	}
	h.Version = ch.Version + 1
	s.records[h.ID] = rec.Clone()
	return nil
}

func (s *MemoryStore) claimReference(id, ref string) error {
	if ref == "" {
		return nil
	}
	if owner, ok := s.refs[ref]; ok && owner != id {
		return fmt.Errorf("reference %s: %w", ref, ErrDuplicate)
	}
	s.refs[ref] = id
	return nil
}

// List implements Repository.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]domain.Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Record, 0, len(s.records))
	for _, rec := range s.records {
		h := rec.Header()
		if f.Kind != "" && h.Kind != f.Kind {
			continue
		}
		if f.Status != "" && h.Status != f.Status {
			continue
		}
		if f.CreatedBy != "" && h.CreatedBy != f.CreatedBy {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].Header(), matched[j].Header()
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})

	total := len(matched)
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	start := f.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	page := make([]domain.Record, 0, end-start)
	for _, rec := range matched[start:end] {
		page = append(page, rec.Clone())
	}
	return page, total, nil
}

// ListExpirable implements Repository.
func (s *MemoryStore) ListExpirable(_ context.Context, cutoff time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type candidate struct {
		id  string
		end time.Time
	}
	var found []candidate
	for id, rec := range s.records {
		h := rec.Header()
		if expirable(h.Status) && h.PlannedEnd != nil && h.PlannedEnd.Before(cutoff) {
			found = append(found, candidate{id, *h.PlannedEnd})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].end.Before(found[j].end) })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	ids := make([]string, len(found))
	for i, c := range found {
		ids[i] = c.id
	}
	return ids, nil
}
