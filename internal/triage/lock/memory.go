package lock

import (
	"context"
	"sync"
	"time"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

// MemoryStore is a process-local lock backend, used for single-process runs and tests
type MemoryStore struct {
	mu    sync.Mutex
	locks map[string]domain.JobLock
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{locks: make(map[string]domain.JobLock)}
}

func (s *MemoryStore) Acquire(_ context.Context, category string, now time.Time, staleAfter time.Duration) (Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var acq Acquisition
	if held, ok := s.locks[category]; ok {
		if now.Sub(held.CreatedAt) <= staleAfter {
			return acq, nil
		}
		acq.ReplacedStale = true
	}

	s.locks[category] = domain.JobLock{
		Category:  category,
		CreatedAt: now,
		Status:    domain.LockStatusLocked,
	}
	acq.Acquired = true
	return acq, nil
}

func (s *MemoryStore) Release(_ context.Context, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, category)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, category string) (*domain.JobLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, ok := s.locks[category]
	if !ok {
		return nil, nil
	}
	return &held, nil
}

// Put installs a lock directly, bypassing the staleness check
func (s *MemoryStore) Put(l domain.JobLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks[l.Category] = l
}
