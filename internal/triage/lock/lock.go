// Package lock implements the per-category launch mutex with staleness eviction.
package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/item-triage/internal/triage/domain"
)

// Acquisition describes the outcome of a conditional lock write
type Acquisition struct {
	Acquired bool
	// ReplacedStale is set when an abandoned lock was evicted to make room
	ReplacedStale bool
}

// Store is a lock backend. Acquire must be a single conditional write: it
// installs a fresh lock for category unless a lock younger than staleAfter is
// already held.
type Store interface {
	Acquire(ctx context.Context, category string, now time.Time, staleAfter time.Duration) (Acquisition, error)
	Release(ctx context.Context, category string) error
	// Get returns nil when no lock is held
	Get(ctx context.Context, category string) (*domain.JobLock, error)
}

// Result is what TryAcquire reports to the launcher
type Result int

const (
	Acquired Result = iota
	AlreadyRunning
)

func (r Result) String() string {
	switch r {
	case Acquired:
		return "acquired"
	case AlreadyRunning:
		return "already_running"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

type stagingCounter interface {
	Count(ctx context.Context, category string) (int, error)
}

// Manager gates the job launcher
type Manager struct {
	store   Store
	staging stagingCounter
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager creates a lock manager. staging is consulted by ReleaseIfDrained.
func NewManager(store Store, staging stagingCounter, logger *slog.Logger) *Manager {
	return &Manager{
		store:   store,
		staging: staging,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// TryAcquire takes the category lock. Storage errors fail open and report
// Acquired so a broken lock table never blocks triage.
func (m *Manager) TryAcquire(ctx context.Context, category string, staleAfter time.Duration) Result {
	acq, err := m.store.Acquire(ctx, category, m.now(), staleAfter)
	if err != nil {
		m.logger.Error("Failed to check job lock, proceeding without it",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		return Acquired
	}

	if !acq.Acquired {
		m.logger.Info("Job lock held, another job is in progress",
			slog.String("category", category),
		)
		return AlreadyRunning
	}

	if acq.ReplacedStale {
		m.logger.Warn("Evicted stale job lock",
			slog.String("category", category),
			slog.Duration("stale_after", staleAfter),
		)
	}

	m.logger.Info("Job lock acquired", slog.String("category", category))
	return Acquired
}

// ReleaseIfDrained deletes the category lock once the staging set is empty.
// It reports whether the lock was released.
func (m *Manager) ReleaseIfDrained(ctx context.Context, category string) (bool, error) {
	remaining, err := m.staging.Count(ctx, category)
	if err != nil {
		return false, fmt.Errorf("failed to count staged items: %w", err)
	}

	if remaining > 0 {
		m.logger.Debug("Staged items remain, keeping job lock",
			slog.String("category", category),
			slog.Int("remaining", remaining),
		)
		return false, nil
	}

	if err := m.store.Release(ctx, category); err != nil {
		return false, fmt.Errorf("failed to release job lock: %w", err)
	}

	m.logger.Info("All staged items processed, released job lock",
		slog.String("category", category),
	)
	return true, nil
}

// Status returns the currently held lock for category, or nil
func (m *Manager) Status(ctx context.Context, category string) (*domain.JobLock, error) {
	return m.store.Get(ctx, category)
}
