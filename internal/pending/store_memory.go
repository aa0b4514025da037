package pending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codegate/internal/storage/snapshot"
	"codegate/pkg/platform/sentinel"
)

// persistedState is the on-disk form of the registry. The order slice keeps
// listing deterministic across restarts.
type persistedState struct {
	Intake    map[int64]Request  `json:"intake"`
	Completed map[string]Request `json:"completed"`
	Order     []string           `json:"order"`
}

// MemoryRegistry keeps requests in mutex-guarded maps and writes the whole
// state through a snapshot backend after every mutation. A failed save rolls
// the mutation back so memory never runs ahead of disk.
type MemoryRegistry struct {
	mu        sync.Mutex
	intake    map[int64]Request
	completed map[string]Request
	order     []string
	backend   snapshot.Backend
}

// NewMemory constructs a registry, loading any previous snapshot.
func NewMemory(backend snapshot.Backend) (*MemoryRegistry, error) {
	r := &MemoryRegistry{
		intake:    make(map[int64]Request),
		completed: make(map[string]Request),
		backend:   backend,
	}
	var state persistedState
	found, err := backend.Load(&state)
	if err != nil {
		return nil, fmt.Errorf("load pending registry: %w", err)
	}
	if found {
		if state.Intake != nil {
			r.intake = state.Intake
		}
		if state.Completed != nil {
			r.completed = state.Completed
		}
		r.order = state.Order
	}
	return r, nil
}

func (r *MemoryRegistry) saveLocked() error {
	return r.backend.Save(persistedState{
		Intake:    r.intake,
		Completed: r.completed,
		Order:     r.order,
	})
}

func (r *MemoryRegistry) PutIntake(_ context.Context, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.intake[req.ChatID]
	r.intake[req.ChatID] = req
	if err := r.saveLocked(); err != nil {
		if had {
			r.intake[req.ChatID] = prev
		} else {
			delete(r.intake, req.ChatID)
		}
		return fmt.Errorf("persist intake entry: %w", err)
	}
	return nil
}

func (r *MemoryRegistry) GetIntake(_ context.Context, chatID int64) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.intake[chatID]
	if !ok {
		return Request{}, fmt.Errorf("intake entry for chat %d: %w", chatID, sentinel.ErrNotFound)
	}
	return req, nil
}

func (r *MemoryRegistry) Complete(_ context.Context, key string, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prevIntake, hadIntake := r.intake[req.ChatID]
	prevCompleted, hadCompleted := r.completed[key]
	orderLen := len(r.order)

	delete(r.intake, req.ChatID)
	r.completed[key] = req
	if !hadCompleted {
		r.order = append(r.order, key)
	}

	if err := r.saveLocked(); err != nil {
		if hadIntake {
			r.intake[req.ChatID] = prevIntake
		}
		if hadCompleted {
			r.completed[key] = prevCompleted
		} else {
			delete(r.completed, key)
			r.order = r.order[:orderLen]
		}
		return fmt.Errorf("persist completed entry: %w", err)
	}
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, key string) (Request, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.completed[key]
	if !ok {
		return Request{}, fmt.Errorf("entry %q: %w", key, sentinel.ErrNotFound)
	}
	return req, nil
}

func (r *MemoryRegistry) Remove(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, had := r.completed[key]
	if !had {
		return nil
	}
	idx := r.orderIndexLocked(key)
	delete(r.completed, key)
	if idx >= 0 {
		r.order = append(r.order[:idx], r.order[idx+1:]...)
	}

	if err := r.saveLocked(); err != nil {
		r.completed[key] = prev
		if idx >= 0 {
			r.order = append(r.order[:idx], append([]string{key}, r.order[idx:]...)...)
		}
		return fmt.Errorf("persist removal: %w", err)
	}
	return nil
}

func (r *MemoryRegistry) List(_ context.Context) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.order))
	for _, key := range r.order {
		if req, ok := r.completed[key]; ok {
			entries = append(entries, Entry{Key: key, Request: req})
		}
	}
	return entries, nil
}

func (r *MemoryRegistry) DeleteExpired(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := persistedState{
		Intake:    r.intake,
		Completed: r.completed,
		Order:     r.order,
	}

	intake := make(map[int64]Request, len(r.intake))
	deleted := 0
	for chatID, req := range r.intake {
		if req.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		intake[chatID] = req
	}
	completed := make(map[string]Request, len(r.completed))
	order := make([]string, 0, len(r.order))
	for _, key := range r.order {
		req, ok := r.completed[key]
		if !ok {
			continue
		}
		if req.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		completed[key] = req
		order = append(order, key)
	}
	if deleted == 0 {
		return 0, nil
	}

	r.intake = intake
	r.completed = completed
	r.order = order
	if err := r.saveLocked(); err != nil {
		r.intake = prev.Intake
		r.completed = prev.Completed
		r.order = prev.Order
		return 0, fmt.Errorf("persist expiry sweep: %w", err)
	}
	return deleted, nil
}

func (r *MemoryRegistry) orderIndexLocked(key string) int {
	for i, k := range r.order {
		if k == key {
			return i
		}
	}
	return -1
}
