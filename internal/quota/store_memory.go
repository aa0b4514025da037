package quota

import (
	"context"
	"fmt"
	"sync"

	"codegate/internal/storage/snapshot"
)

// MemoryStore keeps quota records in a mutex-guarded map, written through a
// snapshot backend after every mutation. A failed save rolls the mutation
// back.
type MemoryStore struct {
	mu      sync.Mutex
	records map[int64]Record
	backend snapshot.Backend
}

func NewMemory(backend snapshot.Backend) (*MemoryStore, error) {
	s := &MemoryStore{
		records: make(map[int64]Record),
		backend: backend,
	}
	found, err := backend.Load(&s.records)
	if err != nil {
		return nil, fmt.Errorf("load quota records: %w", err)
	}
	if !found {
		s.records = make(map[int64]Record)
	}
	return s, nil
}

func (s *MemoryStore) Get(_ context.Context, chatID int64) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[chatID]
	return rec, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, chatID int64, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.records[chatID]
	s.records[chatID] = rec
	if err := s.backend.Save(s.records); err != nil {
		if had {
			s.records[chatID] = prev
		} else {
			delete(s.records, chatID)
		}
		return fmt.Errorf("persist quota record: %w", err)
	}
	return nil
}
